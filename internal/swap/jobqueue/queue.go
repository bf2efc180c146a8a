// Package jobqueue carries deferred swap work from the orchestrator to the
// worker pool. Delivery is at-least-once: a job stays in flight until it is
// acknowledged, and a durable backend hands unacknowledged jobs back after a
// restart.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// JobType distinguishes single-swap jobs from batch jobs
type JobType string

const (
	JobSingle JobType = "single"
	JobBatch  JobType = "batch"
)

var (
	ErrQueueFull    = errors.New("queue is full")
	ErrQueueClosed  = errors.New("queue is closed")
	ErrDuplicateJob = errors.New("duplicate job")
	ErrJobNotFound  = errors.New("job not found")
)

// Job is one unit of deferred work
type Job struct {
	ID         string    `json:"id"`
	Type       JobType   `json:"type"`
	UserID     string    `json:"userId"`
	SwapID     string    `json:"swapId,omitempty"`
	BatchID    string    `json:"batchId,omitempty"`
	SwapIDs    []string  `json:"swapIds,omitempty"`
	Atomic     bool      `json:"atomic,omitempty"`
	Attempt    int       `json:"attempt"`
	ReadyAt    time.Time `json:"readyAt"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Queue is the contract every backend implements
type Queue interface {
	// Enqueue adds a job. Jobs with a future ReadyAt are held back until then.
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job is ready, ctx is done or the queue closes.
	Dequeue(ctx context.Context) (Job, error)
	// Ack removes a delivered job for good.
	Ack(ctx context.Context, id string) error
	// Pending lists waiting and in-flight jobs.
	Pending(ctx context.Context) ([]Job, error)
	// Len is the number of waiting jobs.
	Len() int
	Close() error
}

// readyKey orders jobs by ReadyAt, then by enqueue sequence
func readyKey(job Job, seq uint64) string {
	return fmt.Sprintf("%020d:%020d:%s", job.ReadyAt.UnixNano(), seq, job.ID)
}

func normalize(job Job) (Job, error) {
	if job.ID == "" {
		return job, fmt.Errorf("job id is required")
	}
	now := time.Now()
	if job.ReadyAt.IsZero() {
		job.ReadyAt = now
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now
	}
	return job, nil
}

// Recoverer is implemented by durable backends that can hand back jobs which
// were in flight when the previous process stopped.
type Recoverer interface {
	Recover(ctx context.Context) ([]Job, error)
}
