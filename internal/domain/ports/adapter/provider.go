package adapter

import (
	"context"

	"media-analysis-pipeline/internal/domain/model"
)

// Every provider call returns its data plus the provider's cost estimate in
// micro-units, so the runtime can account each sub-operation separately.

type LabelsResult struct {
	Labels     []model.Label
	CostMicros int64
}

type TextDetectionResult struct {
	Text       string
	CostMicros int64
}

type FacesResult struct {
	Faces      []model.Face
	CostMicros int64
}

// VisionAdapter covers the synchronous image operations.
type VisionAdapter interface {
	DetectLabels(ctx context.Context, sourceURI string) (*LabelsResult, error)
	DetectText(ctx context.Context, sourceURI string) (*TextDetectionResult, error)
	DetectFaces(ctx context.Context, sourceURI string) (*FacesResult, error)
}

type ModerationResult struct {
	Verdict    model.ModerationVerdict
	CostMicros int64
}

type ModerationAdapter interface {
	Moderate(ctx context.Context, sourceURI string) (*ModerationResult, error)
}

type SentimentResult struct {
	Sentiment  string
	Score      float64
	CostMicros int64
}

type EntitiesResult struct {
	Entities   []model.Entity
	CostMicros int64
}

type KeyPhrasesResult struct {
	KeyPhrases []string
	CostMicros int64
}

type LanguageResult struct {
	Language   string
	CostMicros int64
}

// TextAnalysisAdapter covers the synchronous text operations.
type TextAnalysisAdapter interface {
	DetectSentiment(ctx context.Context, text string) (*SentimentResult, error)
	DetectEntities(ctx context.Context, text string) (*EntitiesResult, error)
	DetectKeyPhrases(ctx context.Context, text string) (*KeyPhrasesResult, error)
	DetectLanguage(ctx context.Context, text string) (*LanguageResult, error)
}

type TranscriptionState string

const (
	TranscriptionRunning   TranscriptionState = "running"
	TranscriptionCompleted TranscriptionState = "completed"
	TranscriptionFailed    TranscriptionState = "failed"
)

type TranscriptionJob struct {
	Handle     string
	State      TranscriptionState
	Transcript string
	Segments   []model.TranscriptSegment
	Language   string
	Error      string
	CostMicros int64
}

type TranscriptionInput struct {
	SourceURI       string
	LanguageCode    string
	DurationSeconds float64
}

// TranscriptionAdapter is the long-running provider: Start returns a pollable
// handle, Poll is called on a bounded interval until the job is terminal.
type TranscriptionAdapter interface {
	Start(ctx context.Context, input TranscriptionInput) (string, error)
	Poll(ctx context.Context, handle string) (*TranscriptionJob, error)
}

type EmbeddingVector struct {
	Vector     []float64
	Model      string
	TokenCount int
	CostMicros int64
}

type EmbeddingAdapter interface {
	Embed(ctx context.Context, content, model string) (*EmbeddingVector, error)
}
