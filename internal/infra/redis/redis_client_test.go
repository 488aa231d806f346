package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"media-analysis-pipeline/internal/domain/model"
)

// fakeRedis covers the RedisClient surface with a plain map. Missing keys
// return the real go-redis nil sentinel so IsNil behaves as in production.
type fakeRedis struct {
	data    map[string]string
	counts  map[string]int64
	expires map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		data:    make(map[string]string),
		counts:  make(map[string]int64),
		expires: make(map[string]time.Duration),
	}
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	v, ok := f.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	switch v := value.(type) {
	case string:
		f.data[key] = v
	case []byte:
		f.data[key] = string(v)
	default:
		f.data[key] = fmt.Sprintf("%v", v)
	}
	f.expires[key] = expiration
	return nil
}

func (f *fakeRedis) Incr(ctx context.Context, key string) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	f.expires[key] = expiration
	return nil
}

func (f *fakeRedis) Close() error { return nil }

func TestRateLimiter_FixedWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := newFakeRedis()
	limiter := NewRateLimiter(fake)
	key := EnqueueKey("user-1")

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, key, 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow() #%d error = %v", i, err)
		}
		if !ok {
			t.Fatalf("Allow() #%d = false, want true", i)
		}
	}
	ok, err := limiter.Allow(ctx, key, 3, time.Minute)
	if err != nil {
		t.Fatalf("Allow() over limit error = %v", err)
	}
	if ok {
		t.Fatal("Allow() over limit = true, want false")
	}

	// The window TTL is set exactly once, on the first hit.
	if f := fake.expires[key]; f != time.Minute {
		t.Errorf("window expiry = %v, want 1m", f)
	}

	// Other users have their own window.
	ok, err = limiter.Allow(ctx, EnqueueKey("user-2"), 3, time.Minute)
	if err != nil || !ok {
		t.Fatalf("Allow(other user) = %v, %v, want true", ok, err)
	}
}

func TestEmbeddingCache_RoundTripAndMiss(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := newFakeRedis()
	cache := NewEmbeddingCache(fake, time.Hour)

	got, err := cache.Get(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("Get(miss) error = %v", err)
	}
	if got != nil {
		t.Fatalf("Get(miss) = %+v, want nil", got)
	}

	want := &model.EmbeddingResult{
		Vector:          []float64{0.1, 0.2},
		Model:           "text-embedding-3-small",
		TokenCount:      7,
		TotalCostMicros: 7,
	}
	if err := cache.Set(ctx, "deadbeef", want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if ttl := fake.expires["embedding:deadbeef"]; ttl != time.Hour {
		t.Errorf("cache ttl = %v, want 1h", ttl)
	}

	got, err = cache.Get(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("Get(hit) error = %v", err)
	}
	if got == nil || got.Model != want.Model || got.TokenCount != want.TokenCount || len(got.Vector) != 2 {
		t.Fatalf("Get(hit) = %+v, want %+v", got, want)
	}
}
