// File: internal/usecase/pipeline_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"media-analysis-pipeline/internal/domain"
	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/repository"
)

// Compile-time check
var _ PipelineUseCase = (*pipelineUC)(nil)

// JobStatus is the producer-facing view of a job, assembled from the queue
// record. Result and warnings are only present on terminal jobs.
type JobStatus struct {
	JobID         string         `json:"jobId"`
	Type          model.JobType  `json:"type"`
	State         model.JobState `json:"state"`
	Attempts      int            `json:"attempts"`
	MaxAttempts   int            `json:"maxAttempts"`
	Progress      model.Progress `json:"progress"`
	Result        any            `json:"result,omitempty"`
	FailureReason string         `json:"failureReason,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	ProcessedAt   *time.Time     `json:"processedAt,omitempty"`
	FinishedAt    *time.Time     `json:"finishedAt,omitempty"`
}

type PipelineUseCase interface {
	// Enqueue validates raw payload JSON for the given type and persists a
	// pending job, returning its ID.
	Enqueue(ctx context.Context, t model.JobType, rawPayload []byte, priority int) (string, error)
	// Status returns the current view of one job.
	Status(ctx context.Context, t model.JobType, jobID string) (*JobStatus, error)
	// Stats reports per-type queue depths.
	Stats(ctx context.Context) (map[model.JobType]repository.Counts, error)
}

type pipelineUC struct {
	queue          repository.QueueStore
	defaultBackoff model.Backoff
	maxAttempts    int
}

func NewPipelineUseCase(queue repository.QueueStore, defaultBackoff model.Backoff, maxAttempts int) *pipelineUC {
	return &pipelineUC{queue: queue, defaultBackoff: defaultBackoff, maxAttempts: maxAttempts}
}

func (u *pipelineUC) Enqueue(ctx context.Context, t model.JobType, rawPayload []byte, priority int) (string, error) {
	payload := model.PayloadFor(t)
	if payload == nil {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownJobType, t)
	}
	if err := json.Unmarshal(rawPayload, payload); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return u.queue.Enqueue(ctx, t, payload, model.EnqueueOptions{
		MaxAttempts: u.maxAttempts,
		Priority:    priority,
		Backoff:     u.defaultBackoff,
	})
}

func (u *pipelineUC) Status(ctx context.Context, t model.JobType, jobID string) (*JobStatus, error) {
	job, err := u.queue.GetJob(ctx, t, jobID)
	if err != nil {
		return nil, err
	}
	st := &JobStatus{
		JobID:       job.ID,
		Type:        job.Type,
		State:       job.State,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		Progress:    job.Progress,
		CreatedAt:   job.CreatedAt,
	}
	if !job.ProcessedAt.IsZero() {
		processed := job.ProcessedAt
		st.ProcessedAt = &processed
	}
	if job.Terminal() {
		st.Result = job.Result
		st.FailureReason = job.FailureReason
		st.Warnings = job.Warnings()
		if !job.FinishedAt.IsZero() {
			finished := job.FinishedAt
			st.FinishedAt = &finished
		}
	}
	return st, nil
}

func (u *pipelineUC) Stats(ctx context.Context) (map[model.JobType]repository.Counts, error) {
	out := make(map[model.JobType]repository.Counts, len(model.AllJobTypes()))
	for _, t := range model.AllJobTypes() {
		counts, err := u.queue.Counts(ctx, t)
		if err != nil {
			return nil, err
		}
		out[t] = counts
	}
	return out, nil
}
