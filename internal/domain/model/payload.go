package model

import (
	"fmt"
	"strings"
)

// Payload is the type-specific input of a job. Validate runs synchronously at
// enqueue time; a failing payload never becomes a job.
type Payload interface {
	Validate() error
	Operations() []string // enabled sub-operations, in execution order
	Owner() (userID, mediaItemID string)
}

// Sub-operation names. Each maps to one external provider call.
const (
	OpDetectLabels     = "detectLabels"
	OpDetectText       = "detectText"
	OpDetectFaces      = "detectFaces"
	OpDetectModeration = "detectModeration"
	OpTranscribe       = "transcribe"
	OpDetectSentiment  = "detectSentiment"
	OpDetectEntities   = "detectEntities"
	OpDetectKeyPhrases = "detectKeyPhrases"
	OpDetectLanguage   = "detectLanguage"
	OpEmbed            = "embed"
)

type ImagePayload struct {
	UserID           string `json:"userId"`
	MediaItemID      string `json:"mediaItemId"`
	SourceURI        string `json:"sourceUri"`
	DetectLabels     bool   `json:"detectLabels"`
	DetectText       bool   `json:"detectText"`
	DetectFaces      bool   `json:"detectFaces"`
	DetectModeration bool   `json:"detectModeration"`
}

func (p *ImagePayload) Validate() error {
	if err := requireIDs(p.UserID, p.MediaItemID); err != nil {
		return err
	}
	if p.SourceURI == "" {
		return fmt.Errorf("sourceUri is required")
	}
	if len(p.Operations()) == 0 {
		return fmt.Errorf("at least one detection operation must be enabled")
	}
	return nil
}

func (p *ImagePayload) Owner() (string, string) { return p.UserID, p.MediaItemID }

func (p *ImagePayload) Operations() []string {
	var ops []string
	if p.DetectLabels {
		ops = append(ops, OpDetectLabels)
	}
	if p.DetectText {
		ops = append(ops, OpDetectText)
	}
	if p.DetectFaces {
		ops = append(ops, OpDetectFaces)
	}
	if p.DetectModeration {
		ops = append(ops, OpDetectModeration)
	}
	return ops
}

type VideoPayload struct {
	UserID          string  `json:"userId"`
	MediaItemID     string  `json:"mediaItemId"`
	SourceURI       string  `json:"sourceUri"`
	Transcribe      bool    `json:"transcribe"`
	DetectLabels    bool    `json:"detectLabels"`
	DurationSeconds float64 `json:"durationSeconds"`
	LanguageCode    string  `json:"languageCode,omitempty"`
}

func (p *VideoPayload) Validate() error {
	if err := requireIDs(p.UserID, p.MediaItemID); err != nil {
		return err
	}
	if p.SourceURI == "" {
		return fmt.Errorf("sourceUri is required")
	}
	if p.DurationSeconds <= 0 {
		return fmt.Errorf("durationSeconds must be positive")
	}
	if len(p.Operations()) == 0 {
		return fmt.Errorf("at least one operation must be enabled")
	}
	return nil
}

func (p *VideoPayload) Owner() (string, string) { return p.UserID, p.MediaItemID }

func (p *VideoPayload) Operations() []string {
	var ops []string
	if p.Transcribe {
		ops = append(ops, OpTranscribe)
	}
	if p.DetectLabels {
		ops = append(ops, OpDetectLabels)
	}
	return ops
}

type TextPayload struct {
	UserID           string `json:"userId"`
	MediaItemID      string `json:"mediaItemId"`
	RawText          string `json:"rawText"`
	DetectSentiment  bool   `json:"detectSentiment"`
	DetectEntities   bool   `json:"detectEntities"`
	DetectKeyPhrases bool   `json:"detectKeyPhrases"`
	DetectLanguage   bool   `json:"detectLanguage"`
}

func (p *TextPayload) Validate() error {
	if err := requireIDs(p.UserID, p.MediaItemID); err != nil {
		return err
	}
	if strings.TrimSpace(p.RawText) == "" {
		return fmt.Errorf("rawText is required")
	}
	if len(p.Operations()) == 0 {
		return fmt.Errorf("at least one analysis operation must be enabled")
	}
	return nil
}

func (p *TextPayload) Owner() (string, string) { return p.UserID, p.MediaItemID }

func (p *TextPayload) Operations() []string {
	var ops []string
	if p.DetectSentiment {
		ops = append(ops, OpDetectSentiment)
	}
	if p.DetectEntities {
		ops = append(ops, OpDetectEntities)
	}
	if p.DetectKeyPhrases {
		ops = append(ops, OpDetectKeyPhrases)
	}
	if p.DetectLanguage {
		ops = append(ops, OpDetectLanguage)
	}
	return ops
}

type EmbeddingPayload struct {
	UserID      string `json:"userId"`
	MediaItemID string `json:"mediaItemId"`
	Content     string `json:"content"`
	Model       string `json:"model,omitempty"`
}

func (p *EmbeddingPayload) Validate() error {
	if err := requireIDs(p.UserID, p.MediaItemID); err != nil {
		return err
	}
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

func (p *EmbeddingPayload) Owner() (string, string) { return p.UserID, p.MediaItemID }

func (p *EmbeddingPayload) Operations() []string {
	return []string{OpEmbed}
}

func requireIDs(userID, mediaItemID string) error {
	if userID == "" {
		return fmt.Errorf("userId is required")
	}
	if mediaItemID == "" {
		return fmt.Errorf("mediaItemId is required")
	}
	return nil
}

// PayloadFor returns a zero payload of the right concrete type for t, used by
// stores and handlers to decode JSON into the correct shape.
func PayloadFor(t JobType) Payload {
	switch t {
	case JobTypeImage:
		return &ImagePayload{}
	case JobTypeVideo:
		return &VideoPayload{}
	case JobTypeText:
		return &TextPayload{}
	case JobTypeEmbedding:
		return &EmbeddingPayload{}
	}
	return nil
}
