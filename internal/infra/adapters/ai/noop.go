package ai

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/adapter"
)

var (
	_ adapter.VisionAdapter        = (*NoopProviders)(nil)
	_ adapter.ModerationAdapter    = (*NoopProviders)(nil)
	_ adapter.TextAnalysisAdapter  = (*NoopProviders)(nil)
	_ adapter.TranscriptionAdapter = (*NoopProviders)(nil)
	_ adapter.EmbeddingAdapter     = (*NoopProviders)(nil)
)

// NoopProviders fills every provider port for local/dev runs. It returns
// deterministic canned results with zero cost instead of calling anything.
type NoopProviders struct {
	// Delay lets tests simulate slow providers.
	Delay time.Duration
}

func NewNoopProviders() *NoopProviders {
	return &NoopProviders{}
}

func (n *NoopProviders) wait(ctx context.Context) error {
	if n.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(n.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *NoopProviders) DetectLabels(ctx context.Context, sourceURI string) (*adapter.LabelsResult, error) {
	if err := n.wait(ctx); err != nil {
		return nil, err
	}
	return &adapter.LabelsResult{
		Labels: []model.Label{{Name: "placeholder", Confidence: 0.99}},
	}, nil
}

func (n *NoopProviders) DetectText(ctx context.Context, sourceURI string) (*adapter.TextDetectionResult, error) {
	if err := n.wait(ctx); err != nil {
		return nil, err
	}
	return &adapter.TextDetectionResult{Text: "noop detected text for " + sourceURI}, nil
}

func (n *NoopProviders) DetectFaces(ctx context.Context, sourceURI string) (*adapter.FacesResult, error) {
	if err := n.wait(ctx); err != nil {
		return nil, err
	}
	return &adapter.FacesResult{}, nil
}

func (n *NoopProviders) Moderate(ctx context.Context, sourceURI string) (*adapter.ModerationResult, error) {
	if err := n.wait(ctx); err != nil {
		return nil, err
	}
	return &adapter.ModerationResult{
		Verdict: model.ModerationVerdict{Flagged: false},
	}, nil
}

func (n *NoopProviders) DetectSentiment(ctx context.Context, text string) (*adapter.SentimentResult, error) {
	if err := n.wait(ctx); err != nil {
		return nil, err
	}
	return &adapter.SentimentResult{Sentiment: "neutral", Score: 0.5}, nil
}

func (n *NoopProviders) DetectEntities(ctx context.Context, text string) (*adapter.EntitiesResult, error) {
	if err := n.wait(ctx); err != nil {
		return nil, err
	}
	return &adapter.EntitiesResult{}, nil
}

func (n *NoopProviders) DetectKeyPhrases(ctx context.Context, text string) (*adapter.KeyPhrasesResult, error) {
	if err := n.wait(ctx); err != nil {
		return nil, err
	}
	return &adapter.KeyPhrasesResult{KeyPhrases: []string{"noop"}}, nil
}

func (n *NoopProviders) DetectLanguage(ctx context.Context, text string) (*adapter.LanguageResult, error) {
	if err := n.wait(ctx); err != nil {
		return nil, err
	}
	return &adapter.LanguageResult{Language: "en"}, nil
}

func (n *NoopProviders) Start(ctx context.Context, input adapter.TranscriptionInput) (string, error) {
	if err := n.wait(ctx); err != nil {
		return "", err
	}
	return "noop-" + input.SourceURI, nil
}

func (n *NoopProviders) Poll(ctx context.Context, handle string) (*adapter.TranscriptionJob, error) {
	if err := n.wait(ctx); err != nil {
		return nil, err
	}
	return &adapter.TranscriptionJob{
		Handle:     handle,
		State:      adapter.TranscriptionCompleted,
		Transcript: "noop transcript",
		Language:   "en",
	}, nil
}

// Embed hashes the content into a small stable vector so equal inputs embed
// equal, which keeps the cache path exercisable in dev mode.
func (n *NoopProviders) Embed(ctx context.Context, content, embModel string) (*adapter.EmbeddingVector, error) {
	if err := n.wait(ctx); err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(content))
	vec := make([]float64, 8)
	for i := range vec {
		bits := binary.BigEndian.Uint32(sum[i*4 : i*4+4])
		vec[i] = float64(bits%2000)/1000 - 1
	}
	return &adapter.EmbeddingVector{
		Vector:     vec,
		Model:      "noop",
		TokenCount: len(content) / 4,
	}, nil
}
