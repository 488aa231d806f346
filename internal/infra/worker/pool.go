package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/repository"
	"media-analysis-pipeline/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Pool runs N lease loops for one job type. Each loop drains the queue while
// jobs are due and falls back to a poll ticker when it is empty.
type Pool struct {
	rt       *Runtime
	proc     Processor
	workers  int
	interval time.Duration
	log      *zerolog.Logger

	wg sync.WaitGroup
}

func NewPool(rt *Runtime, proc Processor, workers int, pollInterval time.Duration, log *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{rt: rt, proc: proc, workers: workers, interval: pollInterval, log: log}
}

// Start launches the lease loops. Cancelling ctx stops leasing; a job already
// in flight runs on a detached context so it can finish and settle instead of
// being aborted mid-call. Provider timeouts still bound how long that takes.
func (p *Pool) Start(ctx context.Context) {
	host, _ := os.Hostname()
	for i := 0; i < p.workers; i++ {
		workerID := fmt.Sprintf("%s-%s-%d", host, p.proc.Type(), i)
		p.wg.Add(1)
		go p.loop(ctx, workerID)
	}
	p.log.Info().Str("type", string(p.proc.Type())).Int("workers", p.workers).Msg("pool started")
}

func (p *Pool) loop(ctx context.Context, workerID string) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	// Execution is detached from the stop signal: once a lease is held the
	// job runs to its own settlement (ack or nack) even during shutdown.
	execCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return
		}
		found, err := p.rt.ProcessOne(execCtx, p.proc, workerID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error().Err(err).Str("worker_id", workerID).Msg("lease failed")
		}
		if found && ctx.Err() == nil {
			// More work may be due; skip the ticker and lease again.
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until every lease loop has returned.
func (p *Pool) Wait() { p.wg.Wait() }

// Janitor is the shared maintenance loop: it returns stalled jobs to the
// queue, enforces retention and samples queue depth for the gauges.
type Janitor struct {
	queue     repository.QueueStore
	retention repository.RetentionPolicy
	interval  time.Duration
	log       *zerolog.Logger
}

func NewJanitor(queue repository.QueueStore, retention repository.RetentionPolicy, interval time.Duration, log *zerolog.Logger) *Janitor {
	return &Janitor{queue: queue, retention: retention, interval: interval, log: log}
}

func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	for _, t := range model.AllJobTypes() {
		if n, err := j.queue.RequeueStalled(ctx, t); err != nil {
			j.log.Error().Err(err).Str("type", string(t)).Msg("stall recovery failed")
		} else if n > 0 {
			metrics.AddStalled(string(t), n)
			j.log.Warn().Str("type", string(t)).Int("requeued", n).Msg("stalled jobs recovered")
		}

		if n, err := j.queue.PurgeExpired(ctx, t, j.retention); err != nil {
			j.log.Error().Err(err).Str("type", string(t)).Msg("retention purge failed")
		} else if n > 0 {
			j.log.Debug().Str("type", string(t)).Int("purged", n).Msg("expired jobs purged")
		}

		counts, err := j.queue.Counts(ctx, t)
		if err != nil {
			j.log.Error().Err(err).Str("type", string(t)).Msg("counts failed")
			continue
		}
		metrics.SetQueueDepth(string(t), "pending", counts.Pending)
		metrics.SetQueueDepth(string(t), "active", counts.Active)
		metrics.SetQueueDepth(string(t), "completed", counts.Completed)
		metrics.SetQueueDepth(string(t), "failed", counts.Failed)
	}
}
