package worker

import (
	"context"
	"sync"

	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/adapter"
)

// Function-field fakes: tests override only the calls they care about,
// everything else succeeds with a canned result.

type fakeVision struct {
	mu         sync.Mutex
	labelCalls int

	detectLabels func(ctx context.Context, uri string) (*adapter.LabelsResult, error)
	detectText   func(ctx context.Context, uri string) (*adapter.TextDetectionResult, error)
	detectFaces  func(ctx context.Context, uri string) (*adapter.FacesResult, error)
}

func (f *fakeVision) DetectLabels(ctx context.Context, uri string) (*adapter.LabelsResult, error) {
	f.mu.Lock()
	f.labelCalls++
	f.mu.Unlock()
	if f.detectLabels != nil {
		return f.detectLabels(ctx, uri)
	}
	return &adapter.LabelsResult{
		Labels:     []model.Label{{Name: "cat", Confidence: 0.9}},
		CostMicros: 100,
	}, nil
}

func (f *fakeVision) DetectText(ctx context.Context, uri string) (*adapter.TextDetectionResult, error) {
	if f.detectText != nil {
		return f.detectText(ctx, uri)
	}
	return &adapter.TextDetectionResult{Text: "hello", CostMicros: 100}, nil
}

func (f *fakeVision) DetectFaces(ctx context.Context, uri string) (*adapter.FacesResult, error) {
	if f.detectFaces != nil {
		return f.detectFaces(ctx, uri)
	}
	return &adapter.FacesResult{
		Faces:      []model.Face{{Confidence: 0.8, Emotion: "happy"}},
		CostMicros: 100,
	}, nil
}

type fakeModeration struct {
	moderate func(ctx context.Context, uri string) (*adapter.ModerationResult, error)
}

func (f *fakeModeration) Moderate(ctx context.Context, uri string) (*adapter.ModerationResult, error) {
	if f.moderate != nil {
		return f.moderate(ctx, uri)
	}
	return &adapter.ModerationResult{
		Verdict:    model.ModerationVerdict{Flagged: false},
		CostMicros: 100,
	}, nil
}

type fakeTextAnalysis struct {
	detectSentiment func(ctx context.Context, text string) (*adapter.SentimentResult, error)
	detectEntities  func(ctx context.Context, text string) (*adapter.EntitiesResult, error)
	detectPhrases   func(ctx context.Context, text string) (*adapter.KeyPhrasesResult, error)
	detectLanguage  func(ctx context.Context, text string) (*adapter.LanguageResult, error)
}

func (f *fakeTextAnalysis) DetectSentiment(ctx context.Context, text string) (*adapter.SentimentResult, error) {
	if f.detectSentiment != nil {
		return f.detectSentiment(ctx, text)
	}
	return &adapter.SentimentResult{Sentiment: "positive", Score: 0.9, CostMicros: 50}, nil
}

func (f *fakeTextAnalysis) DetectEntities(ctx context.Context, text string) (*adapter.EntitiesResult, error) {
	if f.detectEntities != nil {
		return f.detectEntities(ctx, text)
	}
	return &adapter.EntitiesResult{
		Entities:   []model.Entity{{Text: "Berlin", Kind: "location"}},
		CostMicros: 50,
	}, nil
}

func (f *fakeTextAnalysis) DetectKeyPhrases(ctx context.Context, text string) (*adapter.KeyPhrasesResult, error) {
	if f.detectPhrases != nil {
		return f.detectPhrases(ctx, text)
	}
	return &adapter.KeyPhrasesResult{KeyPhrases: []string{"queue"}, CostMicros: 50}, nil
}

func (f *fakeTextAnalysis) DetectLanguage(ctx context.Context, text string) (*adapter.LanguageResult, error) {
	if f.detectLanguage != nil {
		return f.detectLanguage(ctx, text)
	}
	return &adapter.LanguageResult{Language: "en", CostMicros: 50}, nil
}

// fakeTranscription replays a scripted sequence of poll states.
type fakeTranscription struct {
	mu     sync.Mutex
	polls  int
	script []adapter.TranscriptionJob

	startErr error
}

func (f *fakeTranscription) Start(ctx context.Context, input adapter.TranscriptionInput) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return "handle-1", nil
}

func (f *fakeTranscription) Poll(ctx context.Context, handle string) (*adapter.TranscriptionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.polls++
	job := f.script[i]
	job.Handle = handle
	return &job, nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int

	embed func(ctx context.Context, content, embModel string) (*adapter.EmbeddingVector, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, content, embModel string) (*adapter.EmbeddingVector, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.embed != nil {
		return f.embed(ctx, content, embModel)
	}
	return &adapter.EmbeddingVector{
		Vector:     []float64{0.1, 0.2, 0.3},
		Model:      embModel,
		TokenCount: 3,
		CostMicros: 10,
	}, nil
}

// stubProcessor lets runtime tests drive arbitrary behavior.
type stubProcessor struct {
	jobType model.JobType
	process func(ctx context.Context, e *Execution) (any, error)
}

func (s *stubProcessor) Type() model.JobType { return s.jobType }

func (s *stubProcessor) Process(ctx context.Context, e *Execution) (any, error) {
	return s.process(ctx, e)
}
