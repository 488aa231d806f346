package memstore

import (
	"context"
	"sync"
	"time"

	"media-analysis-pipeline/internal/domain"
	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/repository"
)

var _ repository.MediaStatusStore = (*MediaStatusStore)(nil)

// MediaStatusStore is the in-memory status mirror for dev mode and tests.
type MediaStatusStore struct {
	mu       sync.Mutex
	statuses map[string]*model.MediaStatus
}

func NewMediaStatusStore() *MediaStatusStore {
	return &MediaStatusStore{statuses: make(map[string]*model.MediaStatus)}
}

func (s *MediaStatusStore) UpdateStatus(ctx context.Context, mediaItemID string, state model.MediaState, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[mediaItemID] = &model.MediaStatus{
		MediaItemID: mediaItemID,
		State:       state,
		Metadata:    metadata,
		UpdatedAt:   time.Now(),
	}
	return nil
}

func (s *MediaStatusStore) GetStatus(ctx context.Context, mediaItemID string) (*model.MediaStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[mediaItemID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *st
	return &cp, nil
}
