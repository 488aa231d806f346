package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"media-analysis-pipeline/internal/domain"
	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/repository"
	"media-analysis-pipeline/internal/infra/logging"
	"media-analysis-pipeline/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Processor executes one leased job of its type. It reports progress, cost and
// cancellation through the Execution it receives; everything around the call
// (leasing, ack/nack, retry classification, status mirroring) is the runtime's.
type Processor interface {
	Type() model.JobType
	Process(ctx context.Context, e *Execution) (any, error)
}

// Runtime is the type-agnostic half of a worker: lease, execute, settle.
type Runtime struct {
	queue  repository.QueueStore
	ledger repository.CostLedger
	status repository.MediaStatusStore
	log    *zerolog.Logger

	leaseDuration time.Duration
	callTimeout   time.Duration
}

func NewRuntime(
	queue repository.QueueStore,
	ledger repository.CostLedger,
	status repository.MediaStatusStore,
	log *zerolog.Logger,
	leaseDuration, callTimeout time.Duration,
) *Runtime {
	return &Runtime{
		queue:         queue,
		ledger:        ledger,
		status:        status,
		log:           log,
		leaseDuration: leaseDuration,
		callTimeout:   callTimeout,
	}
}

// ProcessOne leases and runs at most one job. The bool reports whether a job
// was found; settlement errors are handled internally, only lease-path errors
// surface so the pool can back off on store outages.
func (r *Runtime) ProcessOne(ctx context.Context, proc Processor, workerID string) (bool, error) {
	job, err := r.queue.Lease(ctx, proc.Type(), workerID, r.leaseDuration)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	r.execute(ctx, proc, job, workerID)
	return true, nil
}

func (r *Runtime) execute(ctx context.Context, proc Processor, job *model.Job, workerID string) {
	userID, mediaID := job.Payload.Owner()
	ctx = logging.WithJobID(ctx, job.ID)
	ctx = logging.WithJobType(ctx, string(job.Type))
	ctx = logging.WithUserID(ctx, userID)
	ctx = logging.WithMediaItemID(ctx, mediaID)
	ctx = logging.WithWorkerID(ctx, workerID)
	log := logging.With(ctx, r.log)

	e := &Execution{rt: r, job: job, workerID: workerID, log: log}
	e.mirrorStatus(ctx, model.MediaStateProcessing, nil)

	start := time.Now()
	log.Info().Int("attempt", job.Attempts).Msg("job started")

	result, err := r.run(ctx, proc, e)
	elapsed := time.Since(start)
	metrics.ObserveJobDuration(string(job.Type), float64(elapsed.Milliseconds()))

	if err != nil {
		r.settleFailure(ctx, e, err, elapsed)
		return
	}
	r.settleSuccess(ctx, e, result, elapsed)
}

// run isolates the processor call so a panic settles like a transient error
// instead of killing the worker goroutine.
func (r *Runtime) run(ctx context.Context, proc Processor, e *Execution) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("processor panicked")
			err = domain.Transient("panic: %v", rec)
		}
	}()
	return proc.Process(ctx, e)
}

func (r *Runtime) settleSuccess(ctx context.Context, e *Execution, result any, elapsed time.Duration) {
	job := e.job
	if err := r.queue.Ack(ctx, job.Type, job.ID, e.workerID, result); err != nil {
		if errors.Is(err, domain.ErrLeaseLost) {
			// Another worker owns the job now; our result is discarded and
			// theirs will land. Dropping it here keeps completion single-writer.
			e.log.Warn().Msg("lease lost before ack, result discarded")
			return
		}
		e.log.Error().Err(err).Msg("ack failed")
		return
	}
	metrics.IncJob(string(job.Type), "completed")

	meta := map[string]any{"jobId": job.ID, "result": result}
	if warnings := job.Warnings(); len(warnings) > 0 {
		meta["warnings"] = warnings
	}
	e.mirrorStatus(ctx, model.MediaStateCompleted, meta)
	e.log.Info().Dur("duration", elapsed).Msg("job completed")
}

func (r *Runtime) settleFailure(ctx context.Context, e *Execution, procErr error, elapsed time.Duration) {
	job := e.job
	if errors.Is(procErr, domain.ErrLeaseLost) {
		// The job was reclaimed mid-flight (stall recovery or cancel); it is
		// no longer ours to settle.
		e.log.Warn().Msg("lease lost during execution")
		return
	}

	permanent := domain.IsPermanent(procErr)
	if err := r.queue.Nack(ctx, job.Type, job.ID, e.workerID, procErr.Error(), permanent); err != nil {
		if errors.Is(err, domain.ErrLeaseLost) {
			e.log.Warn().Msg("lease lost before nack")
			return
		}
		e.log.Error().Err(err).Msg("nack failed")
		return
	}

	// Attempts was bumped at lease time, so exhaustion is visible here without
	// re-reading the job.
	deadLettered := permanent || job.Attempts >= job.MaxAttempts
	if deadLettered {
		metrics.IncJob(string(job.Type), "failed")
		e.mirrorStatus(ctx, model.MediaStateFailed, map[string]any{
			"jobId": job.ID,
			"error": procErr.Error(),
		})
		e.log.Error().Err(procErr).Dur("duration", elapsed).
			Bool("permanent", permanent).Int("attempts", job.Attempts).
			Msg("job failed")
		return
	}
	metrics.IncJobRetry(string(job.Type))
	e.log.Warn().Err(procErr).Dur("duration", elapsed).
		Int("attempt", job.Attempts).Int("max_attempts", job.MaxAttempts).
		Msg("job failed, will retry")
}

// Execution is the per-job handle a processor works through. All mutation of
// the job's progress goes through it so queue and status mirror stay in step.
type Execution struct {
	rt       *Runtime
	job      *model.Job
	workerID string
	log      *zerolog.Logger
}

func (e *Execution) Job() *model.Job         { return e.job }
func (e *Execution) Logger() *zerolog.Logger { return e.log }

// InitProgress sets up one pending sub-task per operation and persists the
// zero progress so status queries see the plan immediately. Current is
// monotonic within an attempt; a retry starts a fresh attempt and resets it
// here, since discarded partial results must not count as progress.
func (e *Execution) InitProgress(ctx context.Context, ops []string) error {
	e.job.Progress = model.Progress{Total: len(ops)}
	for _, op := range ops {
		e.job.Progress.SetSubTask(op, model.SubTaskPending, "")
	}
	return e.Flush(ctx)
}

func (e *Execution) BeginOp(ctx context.Context, op string) error {
	e.job.Progress.SetSubTask(op, model.SubTaskProcessing, "")
	e.job.Progress.Message = op
	return e.Flush(ctx)
}

func (e *Execution) CompleteOp(ctx context.Context, op string) error {
	e.job.Progress.SetSubTask(op, model.SubTaskCompleted, "")
	e.job.Progress.Advance(op + " done")
	return e.Flush(ctx)
}

// FailOp records a failed sub-operation without aborting the job; used under
// the partial-commit policy. It still advances the counter so Current reaches
// Total even when some operations fail.
func (e *Execution) FailOp(ctx context.Context, op string, opErr error) error {
	e.job.Progress.SetSubTask(op, model.SubTaskFailed, opErr.Error())
	e.job.Progress.Advance(op + " failed")
	return e.Flush(ctx)
}

// Flush persists progress. ErrLeaseLost propagates so the processor aborts.
func (e *Execution) Flush(ctx context.Context) error {
	err := e.rt.queue.UpdateProgress(ctx, e.job.Type, e.job.ID, e.workerID, e.job.Progress)
	if err != nil {
		return err
	}
	e.mirrorStatus(ctx, model.MediaStateProcessing, map[string]any{
		"jobId":    e.job.ID,
		"progress": e.job.Progress,
	})
	return nil
}

// Heartbeat extends the lease during long provider calls.
func (e *Execution) Heartbeat(ctx context.Context) error {
	return e.rt.queue.Heartbeat(ctx, e.job.Type, e.job.ID, e.workerID, e.rt.leaseDuration)
}

// CheckCancel re-reads the cancel flag; processors call it between
// sub-operations. A requested cancel surfaces as a permanent failure.
func (e *Execution) CheckCancel(ctx context.Context) error {
	j, err := e.rt.queue.GetJob(ctx, e.job.Type, e.job.ID)
	if err != nil {
		return err
	}
	if j.CancelRequested {
		return fmt.Errorf("%w: cancel requested", domain.ErrJobCancelled)
	}
	return nil
}

// TrackCost appends a ledger entry and feeds the cost counter. Ledger outages
// are logged and counted, never propagated.
func (e *Execution) TrackCost(ctx context.Context, service, operation string, amountMicros int64) {
	if amountMicros < 0 {
		amountMicros = 0
	}
	userID, mediaID := e.job.Payload.Owner()
	rec := model.NewCostRecord(userID, service, operation, amountMicros, map[string]string{
		"jobId":       e.job.ID,
		"mediaItemId": mediaID,
	})
	if err := e.rt.ledger.Record(ctx, rec); err != nil {
		metrics.IncLedgerWriteFailure()
		e.log.Warn().Err(err).Str("service", service).Str("operation", operation).
			Msg("cost ledger write failed")
	}
}

// ProviderCtx bounds a single provider call.
func (e *Execution) ProviderCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.rt.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.rt.callTimeout)
}

func (e *Execution) mirrorStatus(ctx context.Context, state model.MediaState, meta map[string]any) {
	_, mediaID := e.job.Payload.Owner()
	if err := e.rt.status.UpdateStatus(ctx, mediaID, state, meta); err != nil {
		metrics.IncStatusSyncFailure()
		e.log.Warn().Err(err).Str("state", string(state)).Msg("media status sync failed")
	}
}
