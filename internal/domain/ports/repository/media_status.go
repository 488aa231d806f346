package repository

import (
	"context"

	"media-analysis-pipeline/internal/domain/model"
)

// MediaStatusStore mirrors job state onto the external media-item record.
// Fire-and-forget from the pipeline: failures are logged, never propagated.
type MediaStatusStore interface {
	UpdateStatus(ctx context.Context, mediaItemID string, state model.MediaState, metadata map[string]any) error
	GetStatus(ctx context.Context, mediaItemID string) (*model.MediaStatus, error)
}
