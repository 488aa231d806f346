package memstore

import (
	"context"
	"sync"

	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/repository"
)

var _ repository.CostLedger = (*Ledger)(nil)

// Ledger is the in-memory cost ledger for dev mode and tests.
type Ledger struct {
	mu      sync.Mutex
	records []*model.CostRecord
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Record(ctx context.Context, rec *model.CostRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *rec
	l.records = append(l.records, &cp)
	return nil
}

func (l *Ledger) ListByUser(ctx context.Context, userID string) ([]*model.CostRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*model.CostRecord
	for _, rec := range l.records {
		if rec.UserID == userID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}
