// Package gojob hands scheduled sync work off to a go-job queue. The gateway
// only tracks run lifecycles; the job internals run in external workers that
// consume these messages.
package gojob

import (
	"context"
	"fmt"
	"strings"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-tokengate/core"
	"github.com/google/uuid"
)

const jobIDPrefix = "tokengate.sync."

// QueueExecutor implements core.JobExecutor by enqueueing one execution
// message per firing. Every firing gets a fresh idempotency key: concurrent
// firings of the same job are allowed, so nothing is deduplicated.
type QueueExecutor struct {
	enqueuer queue.Enqueuer
}

func NewQueueExecutor(enqueuer queue.Enqueuer) (*QueueExecutor, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is required")
	}
	return &QueueExecutor{enqueuer: enqueuer}, nil
}

func (e *QueueExecutor) Execute(ctx context.Context, jobName string) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: queue executor is not configured")
	}
	name := strings.TrimSpace(jobName)
	if name == "" {
		return fmt.Errorf("gojob: job name is required")
	}
	msg := NewExecutionMessage(name)
	if _, err := e.enqueuer.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("gojob: enqueue %s: %w", msg.JobID, err)
	}
	return nil
}

// NewExecutionMessage builds the go-job message for one firing of jobName.
func NewExecutionMessage(jobName string) *job.ExecutionMessage {
	name := strings.TrimSpace(jobName)
	return &job.ExecutionMessage{
		JobID: jobIDPrefix + name,
		Parameters: map[string]any{
			"job_name": name,
		},
		IdempotencyKey: name + "-" + uuid.NewString(),
	}
}

var _ core.JobExecutor = (*QueueExecutor)(nil)
