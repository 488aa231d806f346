package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"

	"media-analysis-pipeline/internal/domain"
	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/repository"
)

var _ repository.CostLedger = (*costLedgerRepo)(nil)

// costLedgerRepo is append-only: records are inserted and never updated or
// deleted by the pipeline.
type costLedgerRepo struct {
	pool *pgxpool.Pool
}

func NewCostLedgerRepo(pool *pgxpool.Pool) *costLedgerRepo {
	return &costLedgerRepo{pool: pool}
}

func (r *costLedgerRepo) Record(ctx context.Context, rec *model.CostRecord) error {
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	const q = `
INSERT INTO cost_records (id, user_id, service, operation, amount_micros, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`
	_, err = r.pool.Exec(ctx, q,
		rec.ID, rec.UserID, rec.Service, rec.Operation, rec.AmountMicros, metaJSON, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Same record delivered twice, the first insert won.
			return nil
		}
		return err
	}
	return nil
}

func (r *costLedgerRepo) ListByUser(ctx context.Context, userID string) ([]*model.CostRecord, error) {
	const q = `
SELECT id, user_id, service, operation, amount_micros, metadata, created_at
FROM cost_records
WHERE user_id = $1
ORDER BY created_at;`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.CostRecord
	for rows.Next() {
		var rec model.CostRecord
		var metaJSON []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Service, &rec.Operation,
			&rec.AmountMicros, &metaJSON, &rec.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
