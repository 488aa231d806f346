package repository

import (
	"context"

	"media-analysis-pipeline/internal/domain/model"
)

// CostLedger is the external append-only billing record. Calls are best-effort
// from the pipeline's perspective: a ledger outage never aborts a job.
type CostLedger interface {
	Record(ctx context.Context, rec *model.CostRecord) error
	// ListByUser exists for operator inspection and tests.
	ListByUser(ctx context.Context, userID string) ([]*model.CostRecord, error)
}
