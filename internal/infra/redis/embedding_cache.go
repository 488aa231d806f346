package redis

import (
	"context"
	"encoding/json"
	"time"

	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/adapter"
)

var _ adapter.EmbeddingCache = (*EmbeddingCache)(nil)

// EmbeddingCache stores embedding results keyed by content hash. A race on
// the same key only costs a redundant provider call; the last write wins and
// both writes carry the same value.
type EmbeddingCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewEmbeddingCache(client RedisClient, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{client: client, ttl: ttl}
}

func (c *EmbeddingCache) Get(ctx context.Context, key string) (*model.EmbeddingResult, error) {
	data, err := c.client.Get(ctx, "embedding:"+key)
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, err
	}
	var res model.EmbeddingResult
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *EmbeddingCache) Set(ctx context.Context, key string, value *model.EmbeddingResult) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "embedding:"+key, data, c.ttl)
}
