package ai

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-analysis-pipeline/internal/domain"
	"media-analysis-pipeline/internal/domain/ports/adapter"
)

type countingEmbedder struct {
	inFlight int64
	peak     int64
}

func (c *countingEmbedder) Embed(ctx context.Context, content, model string) (*adapter.EmbeddingVector, error) {
	n := atomic.AddInt64(&c.inFlight, 1)
	for {
		peak := atomic.LoadInt64(&c.peak)
		if n <= peak || atomic.CompareAndSwapInt64(&c.peak, peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt64(&c.inFlight, -1)
	return &adapter.EmbeddingVector{Vector: []float64{1}, Model: model}, nil
}

func TestLimiter_BoundsConcurrency(t *testing.T) {
	t.Parallel()
	inner := &countingEmbedder{}
	limited := NewLimitedEmbedding(inner, NewLimiter(2))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := limited.Embed(context.Background(), "hello", "m"); err != nil {
				t.Errorf("Embed() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if peak := atomic.LoadInt64(&inner.peak); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestLimiter_ZeroMeansUnlimited(t *testing.T) {
	t.Parallel()
	limited := NewLimitedEmbedding(&countingEmbedder{}, NewLimiter(0))
	if _, err := limited.Embed(context.Background(), "hello", "m"); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	t.Parallel()
	if err := classifyHTTPStatus("poll", 200); err != nil {
		t.Errorf("200 classified as error: %v", err)
	}
	if err := classifyHTTPStatus("poll", 503); err == nil || domain.IsPermanent(err) {
		t.Errorf("503 should be transient, got %v", err)
	}
	if err := classifyHTTPStatus("poll", 429); !errors.Is(err, domain.ErrRateLimited) || domain.IsPermanent(err) {
		t.Errorf("429 should be a transient rate limit, got %v", err)
	}
	if err := classifyHTTPStatus("poll", 404); !domain.IsPermanent(err) {
		t.Errorf("404 should be permanent, got %v", err)
	}
}

func TestNoopEmbedIsDeterministic(t *testing.T) {
	t.Parallel()
	n := &NoopProviders{}
	a, err := n.Embed(context.Background(), "same content", "m")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, err := n.Embed(context.Background(), "same content", "m")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(a.Vector) == 0 || len(a.Vector) != len(b.Vector) {
		t.Fatalf("vector lengths = %d, %d", len(a.Vector), len(b.Vector))
	}
	for i := range a.Vector {
		if a.Vector[i] != b.Vector[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a.Vector[i], b.Vector[i])
		}
	}
}
