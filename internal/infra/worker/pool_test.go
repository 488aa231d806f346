package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/repository"
	"media-analysis-pipeline/internal/infra/memstore"

	"github.com/rs/zerolog"
)

func TestPool_DrainsQueueConcurrently(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	const jobs = 12
	for i := 0; i < jobs; i++ {
		enqueueImage(t, env)
	}

	var processed int64
	proc := &stubProcessor{jobType: model.JobTypeImage, process: func(ctx context.Context, e *Execution) (any, error) {
		atomic.AddInt64(&processed, 1)
		return &model.ImageResult{}, nil
	}}

	log := zerolog.Nop()
	pool := NewPool(env.rt, proc, 4, time.Millisecond, &log)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		counts, err := env.queue.Counts(context.Background(), model.JobTypeImage)
		if err != nil {
			t.Fatalf("Counts: %v", err)
		}
		if counts.Active > 4 {
			t.Fatalf("active jobs = %d, pool size is 4", counts.Active)
		}
		if counts.Completed == jobs {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	pool.Wait()

	if got := atomic.LoadInt64(&processed); got != jobs {
		t.Fatalf("expected %d jobs processed exactly once, got %d", jobs, got)
	}
}

func TestPool_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	proc := &stubProcessor{jobType: model.JobTypeImage, process: func(ctx context.Context, e *Execution) (any, error) {
		return &model.ImageResult{}, nil
	}}

	log := zerolog.Nop()
	pool := NewPool(env.rt, proc, 2, time.Millisecond, &log)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("pool did not stop after context cancel")
	}
}

func TestJanitor_RecoversStalledJobs(t *testing.T) {
	t.Parallel()

	q := memstore.New(model.Backoff{Base: time.Millisecond})
	id, err := q.Enqueue(context.Background(), model.JobTypeText, &model.TextPayload{
		UserID: "user-1", MediaItemID: "media-j1", RawText: "stall me", DetectSentiment: true,
	}, model.EnqueueOptions{MaxAttempts: 3, Backoff: model.Backoff{Base: time.Millisecond}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Lease and walk away: the lease expires without ack or heartbeat.
	if _, err := q.Lease(context.Background(), model.JobTypeText, "crashed", 5*time.Millisecond); err != nil {
		t.Fatalf("Lease: %v", err)
	}

	log := zerolog.Nop()
	janitor := NewJanitor(q, repository.RetentionPolicy{
		CompletedAge: time.Hour, CompletedCount: 100, FailedAge: time.Hour,
	}, 10*time.Millisecond, &log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go janitor.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := q.GetJob(context.Background(), model.JobTypeText, id)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if j.State == model.JobStatePending {
			if j.Attempts != 1 {
				t.Fatalf("stall recovery must keep the attempt count, got %d", j.Attempts)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("janitor never requeued the stalled job")
}

func TestPool_ShutdownLetsInFlightJobFinish(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	id := enqueueImage(t, env)

	started := make(chan struct{})
	release := make(chan struct{})
	proc := &stubProcessor{jobType: model.JobTypeImage, process: func(ctx context.Context, e *Execution) (any, error) {
		close(started)
		<-release
		// The stop signal must not reach a job that already holds a lease.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &model.ImageResult{}, nil
	}}

	log := zerolog.Nop()
	pool := NewPool(env.rt, proc, 1, time.Millisecond, &log)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	<-started
	cancel()
	close(release)
	pool.Wait()

	j, err := env.queue.GetJob(context.Background(), model.JobTypeImage, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.State != model.JobStateCompleted {
		t.Fatalf("in-flight job must settle completed across shutdown, got %s (%s)", j.State, j.FailureReason)
	}
}
