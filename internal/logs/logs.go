// Package logs retrieves job log streams from CloudWatch Logs.
package logs

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/openaddresses/batch-sub000/internal/apperr"
)

// Event is one log line of a stream.
type Event struct {
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch
	Message   string `json:"message"`
}

// Retriever returns the events of a log stream. An expired or unknown stream
// yields no events rather than an error.
type Retriever interface {
	Events(ctx context.Context, streamID string) ([]Event, error)
}

// cwClient abstracts the CloudWatch Logs methods we use, enabling test mocks.
type cwClient interface {
	GetLogEvents(ctx context.Context, params *cloudwatchlogs.GetLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error)
}

// CloudWatch reads job logs from a CloudWatch log group.
type CloudWatch struct {
	client   cwClient
	group    string
	maxPages int
}

// NewCloudWatch creates a retriever over group.
func NewCloudWatch(cfg aws.Config, group string) *CloudWatch {
	return &CloudWatch{client: cloudwatchlogs.NewFromConfig(cfg), group: group, maxPages: 10}
}

// Events pages through the stream from its head.
func (c *CloudWatch) Events(ctx context.Context, streamID string) ([]Event, error) {
	if streamID == "" {
		return nil, nil
	}
	var (
		out   []Event
		token *string
	)
	for page := 0; page < c.maxPages; page++ {
		resp, err := c.client.GetLogEvents(ctx, &cloudwatchlogs.GetLogEventsInput{
			LogGroupName:  aws.String(c.group),
			LogStreamName: aws.String(streamID),
			StartFromHead: aws.Bool(true),
			NextToken:     token,
		})
		if err != nil {
			var notFound *types.ResourceNotFoundException
			if errors.As(err, &notFound) {
				return nil, nil
			}
			return nil, apperr.Upstream(err, "logs: get events for %s", streamID)
		}
		for _, e := range resp.Events {
			out = append(out, Event{
				Timestamp: aws.ToInt64(e.Timestamp),
				Message:   aws.ToString(e.Message),
			})
		}
		// The forward token repeats once the end of the stream is reached.
		if resp.NextForwardToken == nil || (token != nil && *token == *resp.NextForwardToken) {
			break
		}
		token = resp.NextForwardToken
	}
	return out, nil
}

// String describes the retriever for logs.
func (c *CloudWatch) String() string {
	return fmt.Sprintf("cloudwatch(%s)", c.group)
}
