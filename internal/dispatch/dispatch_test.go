package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/google/uuid"
	"github.com/openaddresses/batch-sub000/internal/apperr"
)

type mockBatchClient struct {
	inputs []*batch.SubmitJobInput
	err    error
}

func (m *mockBatchClient) SubmitJob(_ context.Context, params *batch.SubmitJobInput, _ ...func(*batch.Options)) (*batch.SubmitJobOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, params)
	return &batch.SubmitJobOutput{JobId: aws.String("aws-job-1")}, nil
}

func newTestBatch(client *mockBatchClient) *Batch {
	return NewBatch(aws.Config{}, BatchOpts{
		Stack:         "batch-prod",
		JobQueue:      "queue",
		CIJobQueue:    "ci-queue",
		JobDefinition: "def",
		Timeout:       6 * time.Hour,
		Client:        client,
	})
}

func TestBatchSubmit(t *testing.T) {
	client := &mockBatchClient{}
	b := newTestBatch(client)

	handle, err := b.Submit(context.Background(), KindJob, Payload{JobID: 12, Source: "https://raw.githubusercontent.com/x.json", Layer: "addresses", Name: "county"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if handle != "aws-job-1" {
		t.Errorf("handle = %q", handle)
	}

	in := client.inputs[0]
	if aws.ToString(in.JobName) != "batch-prod_job_12" {
		t.Errorf("JobName = %q", aws.ToString(in.JobName))
	}
	if aws.ToString(in.JobQueue) != "queue" {
		t.Errorf("JobQueue = %q", aws.ToString(in.JobQueue))
	}
	if got := aws.ToInt32(in.Timeout.AttemptDurationSeconds); got != 21600 {
		t.Errorf("timeout = %d, want 21600", got)
	}
	env := map[string]string{}
	for _, kv := range in.ContainerOverrides.Environment {
		env[aws.ToString(kv.Name)] = aws.ToString(kv.Value)
	}
	if env["OA_JOB_ID"] != "12" || env["OA_SOURCE_LAYER"] != "addresses" || env["StackName"] != "batch-prod" {
		t.Errorf("env = %v", env)
	}
	if _, ok := env["OA_EXPORT_ID"]; ok {
		t.Error("zero export id should be omitted")
	}
}

func TestBatchSubmit_CIQueue(t *testing.T) {
	client := &mockBatchClient{}
	b := newTestBatch(client)

	if _, err := b.Submit(context.Background(), KindJobCI, Payload{JobID: 1}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if aws.ToString(client.inputs[0].JobQueue) != "ci-queue" {
		t.Errorf("JobQueue = %q, want ci-queue", aws.ToString(client.inputs[0].JobQueue))
	}
}

func TestBatchSubmit_Errors(t *testing.T) {
	b := newTestBatch(&mockBatchClient{err: errors.New("throttled")})
	_, err := b.Submit(context.Background(), KindJob, Payload{JobID: 1})
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Errorf("err = %v, want Upstream", err)
	}

	_, err = b.Submit(context.Background(), Kind("bogus"), Payload{})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want Validation", err)
	}
}

func TestJobName(t *testing.T) {
	tests := []struct {
		kind    Kind
		payload Payload
		want    string
	}{
		{KindJob, Payload{JobID: 5}, "st_job_5"},
		{KindExport, Payload{ExportID: 9}, "st_export_9"},
		{KindSources, Payload{}, "st_sources"},
	}
	for _, tt := range tests {
		if got := JobName("st", tt.kind, tt.payload); got != tt.want {
			t.Errorf("JobName(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
	if got := JobName("a.b c", KindJob, Payload{}); got != "a_b_c_job" {
		t.Errorf("sanitised = %q", got)
	}
	if got := JobName(strings.Repeat("x", 200), KindJob, Payload{}); len(got) != maxJobName {
		t.Errorf("len = %d, want %d", len(got), maxJobName)
	}
}

func TestLocal(t *testing.T) {
	l := &Local{}
	handle, err := l.Submit(context.Background(), KindFabric, Payload{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := uuid.Parse(handle); err != nil {
		t.Errorf("handle %q is not a uuid: %v", handle, err)
	}
	subs := l.Submissions()
	if len(subs) != 1 || subs[0].Kind != KindFabric {
		t.Errorf("submissions = %+v", subs)
	}

	l.FailFor = map[Kind]error{KindJob: errors.New("no capacity")}
	if _, err := l.Submit(context.Background(), KindJob, Payload{}); err == nil {
		t.Error("expected failure")
	}
}
