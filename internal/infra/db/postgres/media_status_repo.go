package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"media-analysis-pipeline/internal/domain"
	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/repository"
)

var _ repository.MediaStatusStore = (*mediaStatusRepo)(nil)

type mediaStatusRepo struct {
	pool *pgxpool.Pool
}

func NewMediaStatusRepo(pool *pgxpool.Pool) *mediaStatusRepo {
	return &mediaStatusRepo{pool: pool}
}

func (r *mediaStatusRepo) UpdateStatus(ctx context.Context, mediaItemID string, state model.MediaState, metadata map[string]any) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	const q = `
INSERT INTO media_statuses (media_item_id, state, metadata, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (media_item_id) DO UPDATE SET
  state = EXCLUDED.state,
  metadata = EXCLUDED.metadata,
  updated_at = EXCLUDED.updated_at;`
	_, err = r.pool.Exec(ctx, q, mediaItemID, string(state), metaJSON, time.Now())
	return err
}

func (r *mediaStatusRepo) GetStatus(ctx context.Context, mediaItemID string) (*model.MediaStatus, error) {
	const q = `
SELECT media_item_id, state, metadata, updated_at
FROM media_statuses
WHERE media_item_id = $1;`
	var st model.MediaStatus
	var stateStr string
	var metaJSON []byte
	err := r.pool.QueryRow(ctx, q, mediaItemID).Scan(&st.MediaItemID, &stateStr, &metaJSON, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	st.State = model.MediaState(stateStr)
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &st.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &st, nil
}
