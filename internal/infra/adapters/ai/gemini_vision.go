package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/genai"

	"media-analysis-pipeline/internal/domain"
	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the ports
var (
	_ adapter.VisionAdapter     = (*GeminiVisionAdapter)(nil)
	_ adapter.ModerationAdapter = (*GeminiVisionAdapter)(nil)
)

// Micro-unit pricing per vision call. Flat per-image base plus output tokens.
const (
	visionBaseCostMicros     = 250
	visionPerTokenCostMicros = 2
)

// GeminiVisionAdapter runs the image operations through Gemini's multimodal
// generate endpoint, asking for a strict JSON answer per operation.
type GeminiVisionAdapter struct {
	client *genai.Client
	model  string
}

func NewGeminiVisionAdapter(ctx context.Context, apiKey, baseURL, modelName string) (*GeminiVisionAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiVisionAdapter{client: c, model: modelName}, nil
}

func (g *GeminiVisionAdapter) DetectLabels(ctx context.Context, sourceURI string) (*adapter.LabelsResult, error) {
	const prompt = `List the objects and scenes visible in this image. Respond with JSON only:
{"labels":[{"name":"...","confidence":0.0}]}`
	var out struct {
		Labels []model.Label `json:"labels"`
	}
	cost, err := g.generateJSON(ctx, sourceURI, prompt, &out)
	if err != nil {
		return nil, err
	}
	return &adapter.LabelsResult{Labels: out.Labels, CostMicros: cost}, nil
}

func (g *GeminiVisionAdapter) DetectText(ctx context.Context, sourceURI string) (*adapter.TextDetectionResult, error) {
	const prompt = `Transcribe all readable text in this image. Respond with JSON only:
{"text":"..."}`
	var out struct {
		Text string `json:"text"`
	}
	cost, err := g.generateJSON(ctx, sourceURI, prompt, &out)
	if err != nil {
		return nil, err
	}
	return &adapter.TextDetectionResult{Text: out.Text, CostMicros: cost}, nil
}

func (g *GeminiVisionAdapter) DetectFaces(ctx context.Context, sourceURI string) (*adapter.FacesResult, error) {
	const prompt = `Describe the faces in this image. Respond with JSON only:
{"faces":[{"boundingBox":[0,0,0,0],"confidence":0.0,"emotion":"..."}]}`
	var out struct {
		Faces []model.Face `json:"faces"`
	}
	cost, err := g.generateJSON(ctx, sourceURI, prompt, &out)
	if err != nil {
		return nil, err
	}
	return &adapter.FacesResult{Faces: out.Faces, CostMicros: cost}, nil
}

func (g *GeminiVisionAdapter) Moderate(ctx context.Context, sourceURI string) (*adapter.ModerationResult, error) {
	const prompt = `Rate this image for unsafe content. Respond with JSON only:
{"flagged":false,"categories":{"violence":0.0,"sexual":0.0,"hate":0.0,"self-harm":0.0}}`
	var out model.ModerationVerdict
	cost, err := g.generateJSON(ctx, sourceURI, prompt, &out)
	if err != nil {
		return nil, err
	}
	return &adapter.ModerationResult{Verdict: out, CostMicros: cost}, nil
}

// generateJSON sends one multimodal request and decodes the JSON reply into v.
// Returns the call's cost estimate in micro-units.
func (g *GeminiVisionAdapter) generateJSON(ctx context.Context, sourceURI, prompt string, v any) (int64, error) {
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{Text: prompt},
			{FileData: &genai.FileData{FileURI: sourceURI, MIMEType: mimeFromURI(sourceURI)}},
		},
	}}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{})
	if err != nil {
		// The genai SDK surfaces transport problems as plain errors; treat
		// them as retryable unless the model rejected the input outright.
		if strings.Contains(err.Error(), "INVALID_ARGUMENT") {
			return 0, domain.WrapPermanent(err)
		}
		return 0, domain.WrapTransient(err)
	}

	text := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		if t := resp.Candidates[0].Content.Parts[0].Text; t != "" {
			text = t
		}
	}
	if text == "" {
		return 0, domain.Transient("gemini: empty response")
	}
	if err := json.Unmarshal([]byte(stripFences(text)), v); err != nil {
		return 0, domain.Transient("gemini: malformed json reply: %v", err)
	}

	cost := int64(visionBaseCostMicros)
	if resp.UsageMetadata != nil {
		cost += int64(resp.UsageMetadata.CandidatesTokenCount) * visionPerTokenCostMicros
	}
	return cost, nil
}

// stripFences removes a surrounding markdown code fence, which Gemini adds to
// JSON answers more often than not.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func mimeFromURI(uri string) string {
	switch {
	case strings.HasSuffix(uri, ".png"):
		return "image/png"
	case strings.HasSuffix(uri, ".webp"):
		return "image/webp"
	case strings.HasSuffix(uri, ".gif"):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
