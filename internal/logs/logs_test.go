package logs

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/openaddresses/batch-sub000/internal/apperr"
)

type fakeCW struct {
	pages [][]types.OutputLogEvent
	err   error
	calls int
}

func (f *fakeCW) GetLogEvents(ctx context.Context, in *cloudwatchlogs.GetLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls
	f.calls++
	if i >= len(f.pages) {
		// end of stream: echo the token back
		return &cloudwatchlogs.GetLogEventsOutput{NextForwardToken: in.NextToken}, nil
	}
	return &cloudwatchlogs.GetLogEventsOutput{
		Events:           f.pages[i],
		NextForwardToken: aws.String("tok-" + string(rune('a'+i))),
	}, nil
}

func event(ts int64, msg string) types.OutputLogEvent {
	return types.OutputLogEvent{Timestamp: aws.Int64(ts), Message: aws.String(msg)}
}

func TestEvents_Pages(t *testing.T) {
	f := &fakeCW{pages: [][]types.OutputLogEvent{
		{event(1, "one"), event(2, "two")},
		{event(3, "three")},
	}}
	c := &CloudWatch{client: f, group: "/aws/batch/job", maxPages: 10}

	got, err := c.Events(context.Background(), "batch-job/default/abc")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[2].Message != "three" || got[2].Timestamp != 3 {
		t.Errorf("last event = %+v", got[2])
	}
}

func TestEvents_EmptyStreamID(t *testing.T) {
	c := &CloudWatch{client: &fakeCW{}, maxPages: 1}
	got, err := c.Events(context.Background(), "")
	if err != nil || got != nil {
		t.Errorf("Events(\"\") = %v, %v; want nil, nil", got, err)
	}
}

func TestEvents_ExpiredStream(t *testing.T) {
	c := &CloudWatch{client: &fakeCW{err: &types.ResourceNotFoundException{Message: aws.String("gone")}}, maxPages: 1}
	got, err := c.Events(context.Background(), "old")
	if err != nil || len(got) != 0 {
		t.Errorf("Events(expired) = %v, %v; want empty, nil", got, err)
	}
}

func TestEvents_UpstreamError(t *testing.T) {
	c := &CloudWatch{client: &fakeCW{err: errors.New("throttled")}, maxPages: 1}
	_, err := c.Events(context.Background(), "s")
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Errorf("err = %v, want UpstreamFailure", err)
	}
}
