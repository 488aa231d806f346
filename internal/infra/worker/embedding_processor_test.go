package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/infra/memstore"
)

func enqueueEmbedding(t *testing.T, env *testEnv, mediaID, content string) string {
	t.Helper()
	id, err := env.queue.Enqueue(context.Background(), model.JobTypeEmbedding, &model.EmbeddingPayload{
		UserID:      "user-1",
		MediaItemID: mediaID,
		Content:     content,
	}, model.EnqueueOptions{MaxAttempts: 3, Backoff: model.Backoff{Base: time.Millisecond}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return id
}

func TestEmbeddingProcessor_CacheAside(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	embedder := &fakeEmbedder{}
	cache := memstore.NewEmbeddingCache()
	proc := NewEmbeddingProcessor(embedder, cache, "text-embedding-3-small")

	// First job: miss, provider call, cost billed.
	id1 := enqueueEmbedding(t, env, "media-e1", "same content")
	j1 := env.driveToTerminal(t, proc, id1)
	if j1.State != model.JobStateCompleted {
		t.Fatalf("job 1: expected completed, got %s (%s)", j1.State, j1.FailureReason)
	}
	r1 := j1.Result.(*model.EmbeddingResult)
	if r1.CacheHit {
		t.Fatalf("first embedding must be a cache miss")
	}
	if r1.TotalCostMicros != 10 {
		t.Fatalf("expected provider cost 10, got %d", r1.TotalCostMicros)
	}

	// Second job with identical content: hit, no provider call, zero cost.
	id2 := enqueueEmbedding(t, env, "media-e2", "same content")
	j2 := env.driveToTerminal(t, proc, id2)
	r2 := j2.Result.(*model.EmbeddingResult)
	if !r2.CacheHit {
		t.Fatalf("second embedding must be a cache hit")
	}
	if r2.TotalCostMicros != 0 {
		t.Fatalf("cache hits must not be billed, got %d", r2.TotalCostMicros)
	}
	if len(r2.Vector) != len(r1.Vector) {
		t.Fatalf("cached vector differs: %v vs %v", r2.Vector, r1.Vector)
	}
	if embedder.calls != 1 {
		t.Fatalf("expected a single provider call, got %d", embedder.calls)
	}

	// Different content misses again.
	id3 := enqueueEmbedding(t, env, "media-e3", "other content")
	j3 := env.driveToTerminal(t, proc, id3)
	if j3.Result.(*model.EmbeddingResult).CacheHit {
		t.Fatalf("different content must miss the cache")
	}
	if embedder.calls != 2 {
		t.Fatalf("expected two provider calls, got %d", embedder.calls)
	}
}

func TestEmbeddingProcessor_CacheFailureDegradesToProvider(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	embedder := &fakeEmbedder{}
	proc := NewEmbeddingProcessor(embedder, failingCache{}, "text-embedding-3-small")

	id := enqueueEmbedding(t, env, "media-e4", "content")
	j := env.driveToTerminal(t, proc, id)
	if j.State != model.JobStateCompleted {
		t.Fatalf("cache outage must not fail the job, got %s (%s)", j.State, j.FailureReason)
	}
	if embedder.calls != 1 {
		t.Fatalf("expected provider fallback call, got %d", embedder.calls)
	}
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) (*model.EmbeddingResult, error) {
	return nil, errors.New("redis: connection refused")
}

func (failingCache) Set(context.Context, string, *model.EmbeddingResult) error {
	return errors.New("redis: connection refused")
}
