package model

import (
	"time"

	"github.com/google/uuid"
)

// CostRecord is one append-only ledger entry per completed sub-operation.
// Records are never retracted, even when the owning job later fails.
type CostRecord struct {
	ID           string
	UserID       string
	Service      string
	Operation    string
	AmountMicros int64
	Metadata     map[string]string
	CreatedAt    time.Time
}

func NewCostRecord(userID, service, operation string, amountMicros int64, metadata map[string]string) *CostRecord {
	return &CostRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		Service:      service,
		Operation:    operation,
		AmountMicros: amountMicros,
		Metadata:     metadata,
		CreatedAt:    time.Now(),
	}
}

type MediaState string

const (
	MediaStateProcessing MediaState = "processing"
	MediaStateCompleted  MediaState = "completed"
	MediaStateFailed     MediaState = "failed"
)

// MediaStatus mirrors a job's interim and terminal state onto the media item
// so consumers outside the pipeline can observe it without touching the queue.
type MediaStatus struct {
	MediaItemID string
	State       MediaState
	Metadata    map[string]any
	UpdatedAt   time.Time
}
