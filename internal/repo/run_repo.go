package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Recital/internal/domain"
)

const runColumns = `id, status, spec, items, total, succeeded, failed, schedule_id,
	idempotency_key, started_at, finished_at, error, created_at`

// RunRepo — репозиторий runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Create сохраняет новый run.
// Повтор idempotency_key — ErrAlreadyExists.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	specJSON, err := json.Marshal(run.RunSpec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	var itemsJSON []byte
	if len(run.Items) > 0 {
		if itemsJSON, err = json.Marshal(run.Items); err != nil {
			return fmt.Errorf("marshal items: %w", err)
		}
	}

	query := `
		INSERT INTO recital_runs (id, status, spec, items, total, schedule_id, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		specJSON,
		itemsJSON,
		run.Total,
		run.ScheduleID,
		nullString(run.IdempotencyKey),
		run.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID вместе с items.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM recital_runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает run по ключу идемпотентности.
func (r *RunRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM recital_runs WHERE idempotency_key = $1`
	return scanRun(r.pool.QueryRow(ctx, query, key))
}

// List возвращает runs с фильтрацией, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM recital_runs
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::uuid IS NULL OR schedule_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		nullUUID(filter.ScheduleID),
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return collectRuns(rows)
}

// ListPending возвращает PENDING runs, старые первыми.
func (r *RunRepo) ListPending(ctx context.Context, limit int) ([]domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM recital_runs
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending runs: %w", err)
	}
	return collectRuns(rows)
}

// Claim переводит run из PENDING в RUNNING.
// Если run уже забрал другой воркер или его отменили — ErrInvalidState.
func (r *RunRepo) Claim(ctx context.Context, run *domain.Run) error {
	run.MarkRunning()
	result, err := r.pool.Exec(ctx, `
		UPDATE recital_runs
		SET status = $2, started_at = $3
		WHERE id = $1 AND status = 'PENDING'
	`, run.ID, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("claim run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// Update сохраняет статус, счётчики и время run.
func (r *RunRepo) Update(ctx context.Context, run *domain.Run) error {
	query := `
		UPDATE recital_runs
		SET status = $2, total = $3, succeeded = $4, failed = $5,
		    started_at = $6, finished_at = $7, error = $8
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		run.Total,
		run.Succeeded,
		run.Failed,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Cancel отменяет PENDING или RUNNING run.
// Для уже завершённого run — ErrInvalidState.
func (r *RunRepo) Cancel(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE recital_runs
		SET status = 'CANCELLED', finished_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'RUNNING')
	`, id)
	if err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrInvalidState
}

// Status возвращает текущий статус run.
// Воркер опрашивает его, чтобы заметить отмену через API.
func (r *RunRepo) Status(ctx context.Context, id uuid.UUID) (domain.RunStatus, error) {
	var status domain.RunStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM recital_runs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get run status: %w", err)
	}
	return status, nil
}

// --- Helpers ---

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	Status     domain.RunStatus
	ScheduleID *uuid.UUID
	Limit      int
	Offset     int
}

// rowScanner — общее у pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var specJSON, itemsJSON []byte
	var idempotencyKey, runError *string

	err := row.Scan(
		&run.ID,
		&run.Status,
		&specJSON,
		&itemsJSON,
		&run.Total,
		&run.Succeeded,
		&run.Failed,
		&run.ScheduleID,
		&idempotencyKey,
		&run.StartedAt,
		&run.FinishedAt,
		&runError,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if err := json.Unmarshal(specJSON, &run.RunSpec); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	if itemsJSON != nil {
		if err := json.Unmarshal(itemsJSON, &run.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	if idempotencyKey != nil {
		run.IdempotencyKey = *idempotencyKey
	}
	if runError != nil {
		run.Error = *runError
	}

	return &run, nil
}

func collectRuns(rows pgx.Rows) ([]domain.Run, error) {
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}

// nullInt возвращает nil для нулевого int.
func nullInt(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
