package model

type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type Face struct {
	BoundingBox []float64 `json:"boundingBox,omitempty"`
	Confidence  float64   `json:"confidence"`
	Emotion     string    `json:"emotion,omitempty"`
}

type ModerationVerdict struct {
	Flagged    bool               `json:"flagged"`
	Categories map[string]float64 `json:"categories,omitempty"`
}

type ImageResult struct {
	Labels          []Label            `json:"labels,omitempty"`
	Text            string             `json:"text,omitempty"`
	Faces           []Face             `json:"faces,omitempty"`
	Moderation      *ModerationVerdict `json:"moderation,omitempty"`
	TotalCostMicros int64              `json:"totalCostMicros"`
}

type TranscriptSegment struct {
	StartSeconds float64 `json:"startSeconds"`
	EndSeconds   float64 `json:"endSeconds"`
	Text         string  `json:"text"`
}

type VideoResult struct {
	Transcript      string              `json:"transcript,omitempty"`
	Segments        []TranscriptSegment `json:"segments,omitempty"`
	Language        string              `json:"language,omitempty"`
	Labels          []Label             `json:"labels,omitempty"`
	TotalCostMicros int64               `json:"totalCostMicros"`
}

type Entity struct {
	Text string `json:"text"`
	Kind string `json:"kind"`
}

type TextResult struct {
	Sentiment       string   `json:"sentiment,omitempty"`
	SentimentScore  float64  `json:"sentimentScore,omitempty"`
	Entities        []Entity `json:"entities,omitempty"`
	KeyPhrases      []string `json:"keyPhrases,omitempty"`
	Language        string   `json:"language,omitempty"`
	TotalCostMicros int64    `json:"totalCostMicros"`
}

type EmbeddingResult struct {
	Vector          []float64 `json:"vector"`
	Model           string    `json:"model"`
	TokenCount      int       `json:"tokenCount"`
	CacheHit        bool      `json:"cacheHit"`
	TotalCostMicros int64     `json:"totalCostMicros"`
}

// ResultFor returns a zero result of the concrete type for t, used when
// decoding stored results back from JSON.
func ResultFor(t JobType) any {
	switch t {
	case JobTypeImage:
		return &ImageResult{}
	case JobTypeVideo:
		return &VideoResult{}
	case JobTypeText:
		return &TextResult{}
	case JobTypeEmbedding:
		return &EmbeddingResult{}
	}
	return nil
}
