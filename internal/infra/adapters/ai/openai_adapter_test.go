package ai

import (
	"context"
	"strings"
	"testing"

	"media-analysis-pipeline/internal/domain"
)

func TestOpenAIAdapter_RejectsOversizedInput(t *testing.T) {
	t.Parallel()
	o, err := NewOpenAIAdapter("test-key", "", "")
	if err != nil {
		t.Fatalf("NewOpenAIAdapter() error = %v", err)
	}
	huge := strings.Repeat("word ", 3*maxInputTokens)

	// Oversized input must fail locally, before any provider call, and must
	// be permanent: a retry cannot shrink it.
	if _, err := o.DetectSentiment(context.Background(), huge); err == nil {
		t.Fatal("DetectSentiment(oversized) succeeded, want error")
	} else {
		if !domain.IsPermanent(err) {
			t.Errorf("DetectSentiment(oversized) error is not permanent: %v", err)
		}
		if !strings.Contains(err.Error(), "input too large") {
			t.Errorf("DetectSentiment(oversized) error = %v", err)
		}
	}

	if _, err := o.Embed(context.Background(), huge, ""); err == nil {
		t.Fatal("Embed(oversized) succeeded, want error")
	} else if !domain.IsPermanent(err) {
		t.Errorf("Embed(oversized) error is not permanent: %v", err)
	}
}

func TestPreflightCountsSmallInput(t *testing.T) {
	t.Parallel()
	tokens, err := preflight("a short sentence to count", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("preflight() error = %v", err)
	}
	if tokens <= 0 || tokens > 32 {
		t.Errorf("preflight() = %d tokens, want a small positive count", tokens)
	}
}
