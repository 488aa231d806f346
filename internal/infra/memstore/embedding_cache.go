package memstore

import (
	"context"
	"sync"

	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/adapter"
)

var _ adapter.EmbeddingCache = (*EmbeddingCache)(nil)

// EmbeddingCache is the in-memory cache for dev mode and tests. No TTL; dev
// processes are short-lived.
type EmbeddingCache struct {
	mu      sync.Mutex
	entries map[string]*model.EmbeddingResult
}

func NewEmbeddingCache() *EmbeddingCache {
	return &EmbeddingCache{entries: make(map[string]*model.EmbeddingResult)}
}

func (c *EmbeddingCache) Get(ctx context.Context, key string) (*model.EmbeddingResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (c *EmbeddingCache) Set(ctx context.Context, key string, value *model.EmbeddingResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *value
	c.entries[key] = &cp
	return nil
}
