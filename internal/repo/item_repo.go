package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Recital/internal/domain"
)

// ItemRepo — репозиторий результатов item'ов.
type ItemRepo struct {
	pool *pgxpool.Pool
}

// NewItemRepo создаёт новый ItemRepo.
func NewItemRepo(pool *pgxpool.Pool) *ItemRepo {
	return &ItemRepo{pool: pool}
}

const upsertItemQuery = `
	INSERT INTO recital_items (run_id, item_id, outcome, artifact_path, stage, reason, duration_ms, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (run_id, item_id) DO UPDATE
	SET outcome = EXCLUDED.outcome,
	    artifact_path = EXCLUDED.artifact_path,
	    stage = EXCLUDED.stage,
	    reason = EXCLUDED.reason,
	    duration_ms = EXCLUDED.duration_ms,
	    finished_at = EXCLUDED.finished_at
`

// Save сохраняет результат одного item.
func (r *ItemRepo) Save(ctx context.Context, runID uuid.UUID, res domain.ProcessingResult) error {
	if _, err := r.pool.Exec(ctx, upsertItemQuery, itemArgs(runID, res)...); err != nil {
		return fmt.Errorf("save item %s: %w", res.ID, err)
	}
	return nil
}

// SaveAll сохраняет результаты одним batch-запросом.
func (r *ItemRepo) SaveAll(ctx context.Context, runID uuid.UUID, results []domain.ProcessingResult) error {
	if len(results) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, res := range results {
		batch.Queue(upsertItemQuery, itemArgs(runID, res)...)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, res := range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save item %s: %w", res.ID, err)
		}
	}
	return nil
}

// ListByRun возвращает результаты run, отсортированные по id.
// failedOnly — только FAILED.
func (r *ItemRepo) ListByRun(ctx context.Context, runID uuid.UUID, failedOnly bool) ([]domain.ProcessingResult, error) {
	query := `
		SELECT item_id, outcome, artifact_path, stage, reason, duration_ms, finished_at
		FROM recital_items
		WHERE run_id = $1 AND (NOT $2::boolean OR outcome = 'FAILED')
		ORDER BY item_id ASC
	`
	rows, err := r.pool.Query(ctx, query, runID, failedOnly)
	if err != nil {
		return nil, fmt.Errorf("list items by run: %w", err)
	}
	defer rows.Close()

	var results []domain.ProcessingResult
	for rows.Next() {
		var res domain.ProcessingResult
		var artifactPath, stage, reason *string
		var durationMS int64

		if err := rows.Scan(
			&res.ID,
			&res.Outcome,
			&artifactPath,
			&stage,
			&reason,
			&durationMS,
			&res.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}

		if artifactPath != nil {
			res.ArtifactPath = *artifactPath
		}
		if stage != nil {
			res.Stage = domain.Stage(*stage)
		}
		if reason != nil {
			res.Reason = *reason
		}
		res.Duration = time.Duration(durationMS) * time.Millisecond
		results = append(results, res)
	}
	return results, rows.Err()
}

func itemArgs(runID uuid.UUID, res domain.ProcessingResult) []any {
	return []any{
		runID,
		res.ID,
		res.Outcome,
		nullString(res.ArtifactPath),
		nullString(string(res.Stage)),
		nullString(res.Reason),
		res.Duration.Milliseconds(),
		res.FinishedAt,
	}
}
