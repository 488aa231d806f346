// Package memstore provides a fully in-memory QueueStore. Safe for concurrent
// access. Intended for unit testing and development mode; production runs the
// Postgres-backed store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"media-analysis-pipeline/internal/domain"
	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/repository"
)

var _ repository.QueueStore = (*Queue)(nil)

type Queue struct {
	mu      sync.Mutex
	jobs    map[model.JobType]map[string]*model.Job
	backoff model.Backoff // applied when enqueue options leave it zero
}

func New(defaultBackoff model.Backoff) *Queue {
	jobs := make(map[model.JobType]map[string]*model.Job)
	for _, t := range model.AllJobTypes() {
		jobs[t] = make(map[string]*model.Job)
	}
	return &Queue{jobs: jobs, backoff: defaultBackoff}
}

func (q *Queue) Enqueue(_ context.Context, t model.JobType, payload model.Payload, opts model.EnqueueOptions) (string, error) {
	if _, ok := q.jobs[t]; !ok {
		return "", domain.ErrUnknownJobType
	}
	if payload == nil {
		return "", fmt.Errorf("%w: nil payload", domain.ErrInvalidPayload)
	}
	if err := payload.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = q.backoff
	}
	job := model.NewJob(t, payload, opts)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[t][job.ID] = job
	return job.ID, nil
}

func (q *Queue) Lease(_ context.Context, t model.JobType, workerID string, leaseDuration time.Duration) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var due []*model.Job
	for _, j := range q.jobs[t] {
		if j.State == model.JobStatePending && !j.NextRunAt.After(now) {
			due = append(due, j)
		}
	}
	if len(due) == 0 {
		return nil, domain.ErrNotFound
	}
	// Highest priority first, then FIFO: ULIDs sort by creation time.
	sort.Slice(due, func(i, k int) bool {
		if due[i].Priority != due[k].Priority {
			return due[i].Priority > due[k].Priority
		}
		return due[i].ID < due[k].ID
	})

	j := due[0]
	j.State = model.JobStateActive
	j.Attempts++
	j.WorkerID = workerID
	j.LeaseExpiresAt = now.Add(leaseDuration)
	if j.ProcessedAt.IsZero() {
		j.ProcessedAt = now
	}
	return cloneJob(j), nil
}

func (q *Queue) Ack(_ context.Context, t model.JobType, jobID, workerID string, result any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, err := q.owned(t, jobID, workerID)
	if err != nil {
		return err
	}
	j.State = model.JobStateCompleted
	j.Result = result
	j.FinishedAt = time.Now()
	j.WorkerID = ""
	j.LeaseExpiresAt = time.Time{}
	return nil
}

func (q *Queue) Nack(_ context.Context, t model.JobType, jobID, workerID, reason string, permanent bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, err := q.owned(t, jobID, workerID)
	if err != nil {
		return err
	}
	q.nackLocked(j, reason, permanent)
	return nil
}

// nackLocked applies retry-or-dead-letter to an active job. Callers hold q.mu.
func (q *Queue) nackLocked(j *model.Job, reason string, permanent bool) {
	j.WorkerID = ""
	j.LeaseExpiresAt = time.Time{}
	if permanent || j.Attempts >= j.MaxAttempts {
		j.State = model.JobStateFailed
		j.FailureReason = reason
		j.FinishedAt = time.Now()
		return
	}
	j.State = model.JobStatePending
	j.NextRunAt = time.Now().Add(j.Backoff.Delay(j.Attempts))
}

func (q *Queue) Heartbeat(_ context.Context, t model.JobType, jobID, workerID string, leaseDuration time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, err := q.owned(t, jobID, workerID)
	if err != nil {
		return err
	}
	j.LeaseExpiresAt = time.Now().Add(leaseDuration)
	return nil
}

func (q *Queue) UpdateProgress(_ context.Context, t model.JobType, jobID, workerID string, progress model.Progress) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, err := q.owned(t, jobID, workerID)
	if err != nil {
		return err
	}
	j.Progress = cloneProgress(progress)
	return nil
}

func (q *Queue) RequestCancel(_ context.Context, t model.JobType, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[t][jobID]
	if !ok {
		return domain.ErrNotFound
	}
	j.CancelRequested = true
	return nil
}

func (q *Queue) GetJob(_ context.Context, t model.JobType, jobID string) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[t][jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (q *Queue) Counts(_ context.Context, t model.JobType) (repository.Counts, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var c repository.Counts
	for _, j := range q.jobs[t] {
		switch j.State {
		case model.JobStatePending:
			c.Pending++
		case model.JobStateActive:
			c.Active++
		case model.JobStateCompleted:
			c.Completed++
		case model.JobStateFailed:
			c.Failed++
		}
	}
	return c, nil
}

func (q *Queue) RequeueStalled(_ context.Context, t model.JobType) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	n := 0
	for _, j := range q.jobs[t] {
		if j.State == model.JobStateActive && j.LeaseExpiresAt.Before(now) {
			q.nackLocked(j, "stalled: lease expired", false)
			n++
		}
	}
	return n, nil
}

func (q *Queue) PurgeExpired(_ context.Context, t model.JobType, policy repository.RetentionPolicy) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	removed := 0
	var completed []*model.Job
	for id, j := range q.jobs[t] {
		switch j.State {
		case model.JobStateCompleted:
			if policy.CompletedAge > 0 && now.Sub(j.FinishedAt) > policy.CompletedAge {
				delete(q.jobs[t], id)
				removed++
				continue
			}
			completed = append(completed, j)
		case model.JobStateFailed:
			if policy.FailedAge > 0 && now.Sub(j.FinishedAt) > policy.FailedAge {
				delete(q.jobs[t], id)
				removed++
			}
		}
	}
	if policy.CompletedCount > 0 && len(completed) > policy.CompletedCount {
		sort.Slice(completed, func(i, k int) bool {
			return completed[i].FinishedAt.Before(completed[k].FinishedAt)
		})
		for _, j := range completed[:len(completed)-policy.CompletedCount] {
			delete(q.jobs[t], j.ID)
			removed++
		}
	}
	return removed, nil
}

// owned fetches an active job and verifies the caller still holds its lease.
func (q *Queue) owned(t model.JobType, jobID, workerID string) (*model.Job, error) {
	j, ok := q.jobs[t][jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if j.State != model.JobStateActive {
		return nil, domain.ErrJobNotActive
	}
	if j.WorkerID != workerID {
		return nil, domain.ErrLeaseLost
	}
	return j, nil
}

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	cp.Progress = cloneProgress(j.Progress)
	return &cp
}

func cloneProgress(p model.Progress) model.Progress {
	cp := p
	if p.SubTasks != nil {
		cp.SubTasks = make(map[string]model.SubTask, len(p.SubTasks))
		for k, v := range p.SubTasks {
			cp.SubTasks[k] = v
		}
	}
	return cp
}
