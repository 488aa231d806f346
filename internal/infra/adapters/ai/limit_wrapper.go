package ai

import (
	"context"

	"media-analysis-pipeline/internal/domain/ports/adapter"
)

// Provider calls share one semaphore so the process-wide number of in-flight
// external requests stays bounded regardless of pool sizes.
type Limiter struct {
	sem chan struct{}
}

func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		return &Limiter{}
	}
	return &Limiter{sem: make(chan struct{}, maxConcurrent)}
}

func (l *Limiter) acquire() func() {
	if l.sem == nil {
		return func() {}
	}
	l.sem <- struct{}{}
	return func() { <-l.sem }
}

// Compile-time checks
var (
	_ adapter.VisionAdapter        = (*limitedVision)(nil)
	_ adapter.ModerationAdapter    = (*limitedModeration)(nil)
	_ adapter.TextAnalysisAdapter  = (*limitedTextAnalysis)(nil)
	_ adapter.TranscriptionAdapter = (*limitedTranscription)(nil)
	_ adapter.EmbeddingAdapter     = (*limitedEmbedding)(nil)
)

type limitedVision struct {
	inner adapter.VisionAdapter
	l     *Limiter
}

func NewLimitedVision(inner adapter.VisionAdapter, l *Limiter) adapter.VisionAdapter {
	return &limitedVision{inner: inner, l: l}
}

func (w *limitedVision) DetectLabels(ctx context.Context, sourceURI string) (*adapter.LabelsResult, error) {
	defer w.l.acquire()()
	return w.inner.DetectLabels(ctx, sourceURI)
}

func (w *limitedVision) DetectText(ctx context.Context, sourceURI string) (*adapter.TextDetectionResult, error) {
	defer w.l.acquire()()
	return w.inner.DetectText(ctx, sourceURI)
}

func (w *limitedVision) DetectFaces(ctx context.Context, sourceURI string) (*adapter.FacesResult, error) {
	defer w.l.acquire()()
	return w.inner.DetectFaces(ctx, sourceURI)
}

type limitedModeration struct {
	inner adapter.ModerationAdapter
	l     *Limiter
}

func NewLimitedModeration(inner adapter.ModerationAdapter, l *Limiter) adapter.ModerationAdapter {
	return &limitedModeration{inner: inner, l: l}
}

func (w *limitedModeration) Moderate(ctx context.Context, sourceURI string) (*adapter.ModerationResult, error) {
	defer w.l.acquire()()
	return w.inner.Moderate(ctx, sourceURI)
}

type limitedTextAnalysis struct {
	inner adapter.TextAnalysisAdapter
	l     *Limiter
}

func NewLimitedTextAnalysis(inner adapter.TextAnalysisAdapter, l *Limiter) adapter.TextAnalysisAdapter {
	return &limitedTextAnalysis{inner: inner, l: l}
}

func (w *limitedTextAnalysis) DetectSentiment(ctx context.Context, text string) (*adapter.SentimentResult, error) {
	defer w.l.acquire()()
	return w.inner.DetectSentiment(ctx, text)
}

func (w *limitedTextAnalysis) DetectEntities(ctx context.Context, text string) (*adapter.EntitiesResult, error) {
	defer w.l.acquire()()
	return w.inner.DetectEntities(ctx, text)
}

func (w *limitedTextAnalysis) DetectKeyPhrases(ctx context.Context, text string) (*adapter.KeyPhrasesResult, error) {
	defer w.l.acquire()()
	return w.inner.DetectKeyPhrases(ctx, text)
}

func (w *limitedTextAnalysis) DetectLanguage(ctx context.Context, text string) (*adapter.LanguageResult, error) {
	defer w.l.acquire()()
	return w.inner.DetectLanguage(ctx, text)
}

type limitedTranscription struct {
	inner adapter.TranscriptionAdapter
	l     *Limiter
}

func NewLimitedTranscription(inner adapter.TranscriptionAdapter, l *Limiter) adapter.TranscriptionAdapter {
	return &limitedTranscription{inner: inner, l: l}
}

func (w *limitedTranscription) Start(ctx context.Context, input adapter.TranscriptionInput) (string, error) {
	defer w.l.acquire()()
	return w.inner.Start(ctx, input)
}

func (w *limitedTranscription) Poll(ctx context.Context, handle string) (*adapter.TranscriptionJob, error) {
	defer w.l.acquire()()
	return w.inner.Poll(ctx, handle)
}

type limitedEmbedding struct {
	inner adapter.EmbeddingAdapter
	l     *Limiter
}

func NewLimitedEmbedding(inner adapter.EmbeddingAdapter, l *Limiter) adapter.EmbeddingAdapter {
	return &limitedEmbedding{inner: inner, l: l}
}

func (w *limitedEmbedding) Embed(ctx context.Context, content, model string) (*adapter.EmbeddingVector, error) {
	defer w.l.acquire()()
	return w.inner.Embed(ctx, content, model)
}
