package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"media-analysis-pipeline/internal/domain"
	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/adapter"
)

var _ adapter.TranscriptionAdapter = (*HTTPTranscribeAdapter)(nil)

// HTTPTranscribeAdapter talks to an asynchronous transcription service over a
// small REST surface: POST /v1/transcriptions starts a job and returns its id,
// GET /v1/transcriptions/{id} reports status until terminal.
type HTTPTranscribeAdapter struct {
	apiKey string
	base   string
	client *http.Client
}

func NewHTTPTranscribeAdapter(apiKey, base string) (*HTTPTranscribeAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("transcribe api key empty")
	}
	if base == "" {
		return nil, errors.New("transcribe base url empty")
	}
	return &HTTPTranscribeAdapter{
		apiKey: apiKey,
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (t *HTTPTranscribeAdapter) Start(ctx context.Context, input adapter.TranscriptionInput) (string, error) {
	reqBody := struct {
		SourceURI       string  `json:"source_uri"`
		LanguageCode    string  `json:"language_code,omitempty"`
		DurationSeconds float64 `json:"duration_seconds"`
	}{input.SourceURI, input.LanguageCode, input.DurationSeconds}

	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, t.base+"/v1/transcriptions", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", domain.WrapTransient(err)
	}
	defer resp.Body.Close()
	if err := classifyHTTPStatus("transcribe start", resp.StatusCode); err != nil {
		return "", err
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", domain.Transient("transcribe: decode start response: %v", err)
	}
	if payload.ID == "" {
		return "", domain.Transient("transcribe: start response missing id")
	}
	return payload.ID, nil
}

func (t *HTTPTranscribeAdapter) Poll(ctx context.Context, handle string) (*adapter.TranscriptionJob, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/v1/transcriptions/"+handle, nil)
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, domain.WrapTransient(err)
	}
	defer resp.Body.Close()
	if err := classifyHTTPStatus("transcribe poll", resp.StatusCode); err != nil {
		return nil, err
	}

	var payload struct {
		ID         string `json:"id"`
		Status     string `json:"status"` // queued | running | completed | failed
		Transcript string `json:"transcript"`
		Segments   []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
		} `json:"segments"`
		Language   string `json:"language"`
		Error      string `json:"error"`
		CostMicros int64  `json:"cost_micros"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, domain.Transient("transcribe: decode poll response: %v", err)
	}

	job := &adapter.TranscriptionJob{
		Handle:     handle,
		Transcript: payload.Transcript,
		Language:   payload.Language,
		Error:      payload.Error,
		CostMicros: payload.CostMicros,
	}
	for _, s := range payload.Segments {
		job.Segments = append(job.Segments, model.TranscriptSegment{
			StartSeconds: s.Start,
			EndSeconds:   s.End,
			Text:         s.Text,
		})
	}
	switch payload.Status {
	case "completed":
		job.State = adapter.TranscriptionCompleted
	case "failed":
		job.State = adapter.TranscriptionFailed
	default:
		job.State = adapter.TranscriptionRunning
	}
	return job, nil
}

func classifyHTTPStatus(op string, code int) error {
	switch {
	case code < 300:
		return nil
	case code == 429:
		return domain.WrapTransient(fmt.Errorf("%s: %w", op, domain.ErrRateLimited))
	case code == 408 || code >= 500:
		return domain.Transient("%s: http %d", op, code)
	default:
		return domain.Permanent("%s: http %d", op, code)
	}
}
