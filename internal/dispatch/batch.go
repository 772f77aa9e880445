package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/openaddresses/batch-sub000/internal/apperr"
)

// maxJobName is the AWS Batch job name length limit.
const maxJobName = 128

var jobNameUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

type batchClient interface {
	SubmitJob(ctx context.Context, params *batch.SubmitJobInput, optFns ...func(*batch.Options)) (*batch.SubmitJobOutput, error)
}

// BatchOpts configures an AWS Batch dispatcher.
type BatchOpts struct {
	Stack         string
	JobQueue      string
	CIJobQueue    string
	JobDefinition string
	Timeout       time.Duration
	// For testing: inject a mock client instead of the real Batch API.
	Client batchClient
}

// Batch submits tasks to AWS Batch.
type Batch struct {
	client batchClient
	opts   BatchOpts
}

// NewBatch creates a Batch dispatcher from an AWS config.
func NewBatch(awsCfg aws.Config, opts BatchOpts) *Batch {
	client := opts.Client
	if client == nil {
		client = batch.NewFromConfig(awsCfg)
	}
	if opts.CIJobQueue == "" {
		opts.CIJobQueue = opts.JobQueue
	}
	return &Batch{client: client, opts: opts}
}

// Submit implements Dispatcher.
func (b *Batch) Submit(ctx context.Context, kind Kind, payload Payload) (string, error) {
	if !kind.Valid() {
		return "", apperr.Validation("dispatch: unknown kind %q", kind)
	}

	queue := b.opts.JobQueue
	if kind == KindJobCI {
		queue = b.opts.CIJobQueue
	}

	env := []types.KeyValuePair{{Name: aws.String("StackName"), Value: aws.String(b.opts.Stack)}}
	for _, kv := range payload.Env() {
		env = append(env, types.KeyValuePair{Name: aws.String(kv[0]), Value: aws.String(kv[1])})
	}

	input := &batch.SubmitJobInput{
		JobName:       aws.String(JobName(b.opts.Stack, kind, payload)),
		JobQueue:      aws.String(queue),
		JobDefinition: aws.String(b.opts.JobDefinition),
		ContainerOverrides: &types.ContainerOverrides{
			Command:     []string{"./task.js", string(kind)},
			Environment: env,
		},
	}
	if b.opts.Timeout > 0 {
		input.Timeout = &types.JobTimeout{AttemptDurationSeconds: aws.Int32(int32(b.opts.Timeout / time.Second))}
	}

	out, err := b.client.SubmitJob(ctx, input)
	if err != nil {
		return "", apperr.Upstream(err, "dispatch: submit %s", kind)
	}
	return aws.ToString(out.JobId), nil
}

// JobName builds a Batch-safe job name such as "batch_job_12".
func JobName(stack string, kind Kind, payload Payload) string {
	name := fmt.Sprintf("%s_%s", stack, kind)
	switch {
	case payload.JobID != 0:
		name = fmt.Sprintf("%s_%d", name, payload.JobID)
	case payload.ExportID != 0:
		name = fmt.Sprintf("%s_%d", name, payload.ExportID)
	}
	name = jobNameUnsafe.ReplaceAllString(name, "_")
	if len(name) > maxJobName {
		name = name[:maxJobName]
	}
	return name
}
