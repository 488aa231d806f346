package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"media-analysis-pipeline/internal/domain"
	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/repository"
)

var _ repository.QueueStore = (*QueueRepo)(nil)

// QueueRepo is the durable Postgres queue. FOR UPDATE SKIP LOCKED on the
// lease query is what upholds the single-owner invariant under concurrency.
type QueueRepo struct {
	pool    *pgxpool.Pool
	backoff model.Backoff
}

func NewQueueRepo(pool *pgxpool.Pool, defaultBackoff model.Backoff) *QueueRepo {
	return &QueueRepo{pool: pool, backoff: defaultBackoff}
}

const jobColumns = `id, type, payload, state, attempts, max_attempts, priority, backoff,
next_run_at, lease_expires_at, worker_id, cancel_requested,
created_at, processed_at, finished_at, result, failure_reason, progress`

func (r *QueueRepo) Enqueue(ctx context.Context, t model.JobType, payload model.Payload, opts model.EnqueueOptions) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("%w: nil payload", domain.ErrInvalidPayload)
	}
	if err := payload.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = r.backoff
	}
	job := model.NewJob(t, payload, opts)

	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	backoffJSON, err := json.Marshal(job.Backoff)
	if err != nil {
		return "", fmt.Errorf("marshal backoff: %w", err)
	}

	const q = `
INSERT INTO jobs (id, type, payload, state, attempts, max_attempts, priority, backoff,
                  next_run_at, created_at, progress)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '{}'::jsonb);`

	_, err = r.pool.Exec(ctx, q,
		job.ID, string(job.Type), payloadJSON, string(job.State),
		job.Attempts, job.MaxAttempts, job.Priority, backoffJSON,
		job.NextRunAt, job.CreatedAt)
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

func (r *QueueRepo) Lease(ctx context.Context, t model.JobType, workerID string, leaseDuration time.Duration) (*model.Job, error) {
	q := fmt.Sprintf(`
UPDATE jobs SET
  state = 'active',
  attempts = attempts + 1,
  worker_id = $2,
  lease_expires_at = now() + make_interval(secs => $3),
  processed_at = COALESCE(processed_at, now())
WHERE id = (
  SELECT id FROM jobs
  WHERE type = $1 AND state = 'pending' AND next_run_at <= now()
  ORDER BY priority DESC, id
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
RETURNING %s;`, jobColumns)

	row := r.pool.QueryRow(ctx, q, string(t), workerID, leaseDuration.Seconds())
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *QueueRepo) Ack(ctx context.Context, t model.JobType, jobID, workerID string, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	const q = `
UPDATE jobs SET
  state = 'completed',
  result = $4,
  finished_at = now(),
  worker_id = '',
  lease_expires_at = NULL
WHERE id = $1 AND type = $2 AND state = 'active' AND worker_id = $3;`

	tag, err := r.pool.Exec(ctx, q, jobID, string(t), workerID, resultJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

func (r *QueueRepo) Nack(ctx context.Context, t model.JobType, jobID, workerID, reason string, permanent bool) error {
	return WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		q := fmt.Sprintf(`SELECT %s FROM jobs WHERE id = $1 AND type = $2 FOR UPDATE;`, jobColumns)
		job, err := scanJob(tx.QueryRow(ctx, q, jobID, string(t)))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
		if job.State != model.JobStateActive {
			return domain.ErrJobNotActive
		}
		if job.WorkerID != workerID {
			return domain.ErrLeaseLost
		}
		return r.requeueOrFail(ctx, tx, job, reason, permanent)
	})
}

// requeueOrFail applies the retry-or-dead-letter decision to an active job.
func (r *QueueRepo) requeueOrFail(ctx context.Context, tx pgx.Tx, job *model.Job, reason string, permanent bool) error {
	if permanent || job.Attempts >= job.MaxAttempts {
		const q = `
UPDATE jobs SET state = 'failed', failure_reason = $2, finished_at = now(),
                worker_id = '', lease_expires_at = NULL
WHERE id = $1;`
		_, err := tx.Exec(ctx, q, job.ID, reason)
		return err
	}
	delay := job.Backoff.Delay(job.Attempts)
	const q = `
UPDATE jobs SET state = 'pending', next_run_at = now() + make_interval(secs => $2),
                worker_id = '', lease_expires_at = NULL
WHERE id = $1;`
	_, err := tx.Exec(ctx, q, job.ID, delay.Seconds())
	return err
}

func (r *QueueRepo) Heartbeat(ctx context.Context, t model.JobType, jobID, workerID string, leaseDuration time.Duration) error {
	const q = `
UPDATE jobs SET lease_expires_at = now() + make_interval(secs => $4)
WHERE id = $1 AND type = $2 AND state = 'active' AND worker_id = $3;`
	tag, err := r.pool.Exec(ctx, q, jobID, string(t), workerID, leaseDuration.Seconds())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

func (r *QueueRepo) UpdateProgress(ctx context.Context, t model.JobType, jobID, workerID string, progress model.Progress) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	const q = `
UPDATE jobs SET progress = $4
WHERE id = $1 AND type = $2 AND state = 'active' AND worker_id = $3;`
	tag, err := r.pool.Exec(ctx, q, jobID, string(t), workerID, progressJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

func (r *QueueRepo) RequestCancel(ctx context.Context, t model.JobType, jobID string) error {
	const q = `UPDATE jobs SET cancel_requested = TRUE WHERE id = $1 AND type = $2;`
	tag, err := r.pool.Exec(ctx, q, jobID, string(t))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *QueueRepo) GetJob(ctx context.Context, t model.JobType, jobID string) (*model.Job, error) {
	q := fmt.Sprintf(`SELECT %s FROM jobs WHERE id = $1 AND type = $2;`, jobColumns)
	job, err := scanJob(r.pool.QueryRow(ctx, q, jobID, string(t)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *QueueRepo) Counts(ctx context.Context, t model.JobType) (repository.Counts, error) {
	const q = `SELECT state, count(*) FROM jobs WHERE type = $1 GROUP BY state;`
	rows, err := r.pool.Query(ctx, q, string(t))
	if err != nil {
		return repository.Counts{}, err
	}
	defer rows.Close()

	var c repository.Counts
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return repository.Counts{}, domain.ErrReadDatabaseRow
		}
		switch model.JobState(state) {
		case model.JobStatePending:
			c.Pending = n
		case model.JobStateActive:
			c.Active = n
		case model.JobStateCompleted:
			c.Completed = n
		case model.JobStateFailed:
			c.Failed = n
		}
	}
	return c, rows.Err()
}

func (r *QueueRepo) RequeueStalled(ctx context.Context, t model.JobType) (int, error) {
	n := 0
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		q := fmt.Sprintf(`
SELECT %s FROM jobs
WHERE type = $1 AND state = 'active' AND lease_expires_at < now()
FOR UPDATE SKIP LOCKED;`, jobColumns)
		rows, err := tx.Query(ctx, q, string(t))
		if err != nil {
			return err
		}
		var stalled []*model.Job
		for rows.Next() {
			job, err := scanJobFromRows(rows)
			if err != nil {
				rows.Close()
				return err
			}
			stalled = append(stalled, job)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, job := range stalled {
			if err := r.requeueOrFail(ctx, tx, job, "stalled: lease expired", false); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *QueueRepo) PurgeExpired(ctx context.Context, t model.JobType, policy repository.RetentionPolicy) (int, error) {
	removed := 0
	if policy.CompletedAge > 0 {
		const q = `
DELETE FROM jobs
WHERE type = $1 AND state = 'completed' AND finished_at < now() - make_interval(secs => $2);`
		tag, err := r.pool.Exec(ctx, q, string(t), policy.CompletedAge.Seconds())
		if err != nil {
			return removed, err
		}
		removed += int(tag.RowsAffected())
	}
	if policy.CompletedCount > 0 {
		const q = `
DELETE FROM jobs
WHERE type = $1 AND state = 'completed' AND id IN (
  SELECT id FROM jobs WHERE type = $1 AND state = 'completed'
  ORDER BY finished_at DESC OFFSET $2
);`
		tag, err := r.pool.Exec(ctx, q, string(t), policy.CompletedCount)
		if err != nil {
			return removed, err
		}
		removed += int(tag.RowsAffected())
	}
	if policy.FailedAge > 0 {
		const q = `
DELETE FROM jobs
WHERE type = $1 AND state = 'failed' AND finished_at < now() - make_interval(secs => $2);`
		tag, err := r.pool.Exec(ctx, q, string(t), policy.FailedAge.Seconds())
		if err != nil {
			return removed, err
		}
		removed += int(tag.RowsAffected())
	}
	return removed, nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	return scanJobInto(row.Scan)
}

func scanJobFromRows(rows pgx.Rows) (*model.Job, error) {
	return scanJobInto(rows.Scan)
}

func scanJobInto(scan func(dest ...interface{}) error) (*model.Job, error) {
	var (
		job          model.Job
		typeStr      string
		stateStr     string
		payloadJSON  []byte
		backoffJSON  []byte
		resultJSON   []byte
		progressJSON []byte
		leaseExp     *time.Time
		processedAt  *time.Time
		finishedAt   *time.Time
	)
	err := scan(
		&job.ID, &typeStr, &payloadJSON, &stateStr, &job.Attempts, &job.MaxAttempts,
		&job.Priority, &backoffJSON, &job.NextRunAt, &leaseExp, &job.WorkerID,
		&job.CancelRequested, &job.CreatedAt, &processedAt, &finishedAt,
		&resultJSON, &job.FailureReason, &progressJSON,
	)
	if err != nil {
		return nil, err
	}
	job.Type = model.JobType(typeStr)
	job.State = model.JobState(stateStr)
	if leaseExp != nil {
		job.LeaseExpiresAt = *leaseExp
	}
	if processedAt != nil {
		job.ProcessedAt = *processedAt
	}
	if finishedAt != nil {
		job.FinishedAt = *finishedAt
	}
	if err := json.Unmarshal(backoffJSON, &job.Backoff); err != nil {
		return nil, fmt.Errorf("decode backoff: %w", err)
	}
	payload := model.PayloadFor(job.Type)
	if payload == nil {
		return nil, domain.ErrUnknownJobType
	}
	if err := json.Unmarshal(payloadJSON, payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	job.Payload = payload
	if len(progressJSON) > 0 {
		if err := json.Unmarshal(progressJSON, &job.Progress); err != nil {
			return nil, fmt.Errorf("decode progress: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		result := model.ResultFor(job.Type)
		if err := json.Unmarshal(resultJSON, result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		job.Result = result
	}
	return &job, nil
}
