package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DispatchJob is one queued dispatch attempt. ProviderID pins the job to a
// specific provider; when nil the worker selects among active providers.
type DispatchJob struct {
	DeliveryID uuid.UUID  `json:"delivery_id"`
	ProviderID *uuid.UUID `json:"provider_id,omitempty"`
	Attempt    int        `json:"attempt"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}

// Queue is the dispatch job queue. Jobs become visible to Dequeue at their
// due time, which is how retry backoff is scheduled.
type Queue interface {
	// Enqueue adds a job due immediately
	Enqueue(ctx context.Context, job *DispatchJob) error

	// EnqueueBatch adds multiple jobs due immediately
	EnqueueBatch(ctx context.Context, jobs []*DispatchJob) error

	// EnqueueAfter adds a job that becomes due after the given delay
	EnqueueAfter(ctx context.Context, job *DispatchJob, delay time.Duration) error

	// Dequeue removes and returns the next due job, or nil when none is due
	Dequeue(ctx context.Context) (*DispatchJob, error)

	// Depth returns the number of jobs in the queue, due or not
	Depth(ctx context.Context) (int64, error)
}
