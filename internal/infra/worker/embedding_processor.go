package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/adapter"
	"media-analysis-pipeline/internal/infra/metrics"
)

const serviceEmbedding = "embedding"

// EmbeddingProcessor computes one embedding with a cache-aside lookup keyed
// by content hash. Cache hits complete the job at zero cost; cache failures
// degrade to a provider call, never to a job failure.
type EmbeddingProcessor struct {
	embedder     adapter.EmbeddingAdapter
	cache        adapter.EmbeddingCache
	defaultModel string
}

func NewEmbeddingProcessor(embedder adapter.EmbeddingAdapter, cache adapter.EmbeddingCache, defaultModel string) *EmbeddingProcessor {
	return &EmbeddingProcessor{embedder: embedder, cache: cache, defaultModel: defaultModel}
}

func (p *EmbeddingProcessor) Type() model.JobType { return model.JobTypeEmbedding }

func (p *EmbeddingProcessor) Process(ctx context.Context, e *Execution) (any, error) {
	payload := e.Job().Payload.(*model.EmbeddingPayload)
	if err := e.InitProgress(ctx, payload.Operations()); err != nil {
		return nil, err
	}
	if err := e.BeginOp(ctx, model.OpEmbed); err != nil {
		return nil, err
	}

	embModel := payload.Model
	if embModel == "" {
		embModel = p.defaultModel
	}
	key := cacheKey(embModel, payload.Content)

	if cached, err := p.cache.Get(ctx, key); err != nil {
		metrics.IncEmbeddingCache("error")
		e.Logger().Warn().Err(err).Msg("embedding cache lookup failed")
	} else if cached != nil {
		metrics.IncEmbeddingCache("hit")
		result := *cached
		result.CacheHit = true
		result.TotalCostMicros = 0
		if err := e.CompleteOp(ctx, model.OpEmbed); err != nil {
			return nil, err
		}
		return &result, nil
	} else {
		metrics.IncEmbeddingCache("miss")
	}

	cctx, cancel := e.ProviderCtx(ctx)
	defer cancel()
	start := time.Now()
	vec, err := p.embedder.Embed(cctx, payload.Content, embModel)
	observeCall(serviceEmbedding, model.OpEmbed, start, cost(vec), err)
	if err != nil {
		return nil, err
	}
	e.TrackCost(ctx, serviceEmbedding, model.OpEmbed, vec.CostMicros)

	result := &model.EmbeddingResult{
		Vector:          vec.Vector,
		Model:           vec.Model,
		TokenCount:      vec.TokenCount,
		TotalCostMicros: vec.CostMicros,
	}
	if err := p.cache.Set(ctx, key, result); err != nil {
		e.Logger().Warn().Err(err).Msg("embedding cache write failed")
	}
	if err := e.CompleteOp(ctx, model.OpEmbed); err != nil {
		return nil, err
	}
	return result, nil
}

func cacheKey(embModel, content string) string {
	h := sha256.New()
	h.Write([]byte(embModel))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}
