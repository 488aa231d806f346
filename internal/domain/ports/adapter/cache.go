package adapter

import (
	"context"

	"media-analysis-pipeline/internal/domain/model"
)

// EmbeddingCache is a shared TTL-bounded key-value store keyed by content
// hash. Writes are idempotent; racing writers on the same key only cost a
// redundant provider call.
type EmbeddingCache interface {
	// Get returns (nil, nil) on a miss.
	Get(ctx context.Context, key string) (*model.EmbeddingResult, error)
	Set(ctx context.Context, key string, value *model.EmbeddingResult) error
}
