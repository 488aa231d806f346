package repository

import (
	"context"
	"time"

	"media-analysis-pipeline/internal/domain/model"
)

type Counts struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// RetentionPolicy bounds how long terminal jobs are kept. Completed jobs are
// bounded by age and count, failed jobs by age only (kept longer for audit).
type RetentionPolicy struct {
	CompletedAge   time.Duration
	CompletedCount int
	FailedAge      time.Duration
}

// QueueStore is the durable per-type FIFO backing the pipeline. It is the only
// synchronization point between workers: Lease must guarantee that no two
// concurrent callers claim the same job.
type QueueStore interface {
	// Enqueue validates the payload and atomically persists a pending job.
	Enqueue(ctx context.Context, t model.JobType, payload model.Payload, opts model.EnqueueOptions) (string, error)

	// Lease atomically claims one due job for workerID and sets its lease to
	// now + leaseDuration. Returns domain.ErrNotFound when nothing is due.
	Lease(ctx context.Context, t model.JobType, workerID string, leaseDuration time.Duration) (*model.Job, error)

	// Ack marks the job completed and stores its result. Fails with
	// domain.ErrLeaseLost if the caller no longer owns the job.
	Ack(ctx context.Context, t model.JobType, jobID, workerID string, result any) error

	// Nack records a failure. Permanent failures and exhausted attempts
	// dead-letter the job; otherwise it returns to pending with backoff.
	Nack(ctx context.Context, t model.JobType, jobID, workerID, reason string, permanent bool) error

	// Heartbeat extends the lease of a long-running job.
	Heartbeat(ctx context.Context, t model.JobType, jobID, workerID string, leaseDuration time.Duration) error

	// UpdateProgress persists the job's progress for status queries.
	UpdateProgress(ctx context.Context, t model.JobType, jobID, workerID string, progress model.Progress) error

	// RequestCancel sets the cooperative cancel flag; the owning worker reads
	// it between sub-operations.
	RequestCancel(ctx context.Context, t model.JobType, jobID string) error

	GetJob(ctx context.Context, t model.JobType, jobID string) (*model.Job, error)
	Counts(ctx context.Context, t model.JobType) (Counts, error)

	// RequeueStalled returns every active job with an expired lease to
	// pending (or dead-letters it when attempts are exhausted), exactly once
	// per stall event. Returns the number of jobs touched.
	RequeueStalled(ctx context.Context, t model.JobType) (int, error)

	// PurgeExpired deletes terminal jobs outside the retention policy and
	// returns the number removed.
	PurgeExpired(ctx context.Context, t model.JobType, policy RetentionPolicy) (int, error)
}
