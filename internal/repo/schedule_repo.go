package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Recital/internal/domain"
)

const scheduleColumns = `id, name, spec, cron_expr, interval_sec, timezone, enabled,
	next_due_at, last_run_at, last_run_id, created_at, updated_at`

// ScheduleRepo — репозиторий schedules.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

// Create сохраняет новый schedule.
func (r *ScheduleRepo) Create(ctx context.Context, s *domain.Schedule) error {
	specJSON, err := json.Marshal(s.Spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}

	query := `
		INSERT INTO recital_schedules (id, name, spec, cron_expr, interval_sec, timezone,
		                               enabled, next_due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		s.ID,
		nullString(s.Name),
		specJSON,
		nullString(s.CronExpr),
		nullInt(s.IntervalSec),
		s.Timezone,
		s.Enabled,
		s.NextDueAt,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetByID возвращает schedule по ID.
func (r *ScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM recital_schedules WHERE id = $1`
	return scanSchedule(r.pool.QueryRow(ctx, query, id))
}

// List возвращает schedules, новые первыми.
func (r *ScheduleRepo) List(ctx context.Context, filter ScheduleFilter) ([]domain.Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM recital_schedules
		WHERE ($1::boolean IS NULL OR enabled = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, query, filter.Enabled, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return collectSchedules(rows)
}

// ListDue возвращает включённые schedules с next_due_at <= now.
func (r *ScheduleRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM recital_schedules
		WHERE enabled AND next_due_at IS NOT NULL AND next_due_at <= $1
		ORDER BY next_due_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	return collectSchedules(rows)
}

// Update сохраняет schedule целиком.
func (r *ScheduleRepo) Update(ctx context.Context, s *domain.Schedule) error {
	specJSON, err := json.Marshal(s.Spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}

	query := `
		UPDATE recital_schedules
		SET name = $2, spec = $3, cron_expr = $4, interval_sec = $5, timezone = $6,
		    enabled = $7, next_due_at = $8, last_run_at = $9, last_run_id = $10, updated_at = $11
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		s.ID,
		nullString(s.Name),
		specJSON,
		nullString(s.CronExpr),
		nullInt(s.IntervalSec),
		s.Timezone,
		s.Enabled,
		s.NextDueAt,
		s.LastRunAt,
		s.LastRunID,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет schedule.
func (r *ScheduleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM recital_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEnabled включает или выключает schedule.
func (r *ScheduleRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE recital_schedules SET enabled = $2, updated_at = NOW() WHERE id = $1
	`, id, enabled)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ScheduleFilter — параметры фильтрации schedules.
type ScheduleFilter struct {
	Enabled *bool
	Limit   int
	Offset  int
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var s domain.Schedule
	var name, cronExpr *string
	var intervalSec *int
	var specJSON []byte

	err := row.Scan(
		&s.ID,
		&name,
		&specJSON,
		&cronExpr,
		&intervalSec,
		&s.Timezone,
		&s.Enabled,
		&s.NextDueAt,
		&s.LastRunAt,
		&s.LastRunID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	if err := json.Unmarshal(specJSON, &s.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	if name != nil {
		s.Name = *name
	}
	if cronExpr != nil {
		s.CronExpr = *cronExpr
	}
	if intervalSec != nil {
		s.IntervalSec = *intervalSec
	}
	return &s, nil
}

func collectSchedules(rows pgx.Rows) ([]domain.Schedule, error) {
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}
