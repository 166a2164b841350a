package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Recital/internal/domain"
)

// Run DTOs

// CreateRunRequest — запрос на создание run.
//
// Поля RunSpec встраиваются на верхний уровень JSON. Items и Source
// взаимоисключающие: либо текст приходит в запросе, либо воркер
// читает TSV со своего диска.
type CreateRunRequest struct {
	domain.RunSpec
	Items          []domain.WorkItem `json:"items,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// RunResponse — ответ с run. Items не возвращаются: их может быть много,
// результаты доступны через /runs/{id}/items.
type RunResponse struct {
	ID             uuid.UUID      `json:"id"`
	Status         string         `json:"status"`
	Spec           domain.RunSpec `json:"spec"`
	Total          int            `json:"total"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	ScheduleID     *uuid.UUID     `json:"schedule_id,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	DurationMs     int64          `json:"duration_ms,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:             r.ID,
		Status:         string(r.Status),
		Spec:           r.RunSpec,
		Total:          r.Total,
		Succeeded:      r.Succeeded,
		Failed:         r.Failed,
		ScheduleID:     r.ScheduleID,
		IdempotencyKey: r.IdempotencyKey,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		DurationMs:     r.Duration().Milliseconds(),
		Error:          r.Error,
		CreatedAt:      r.CreatedAt,
	}
}

// Item DTOs

// ItemResponse — результат одного item.
type ItemResponse struct {
	ID           string    `json:"id"`
	Outcome      string    `json:"outcome"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	Stage        string    `json:"stage,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	FinishedAt   time.Time `json:"finished_at"`
}

// ItemFromDomain конвертирует domain.ProcessingResult в ItemResponse.
func ItemFromDomain(r domain.ProcessingResult) ItemResponse {
	return ItemResponse{
		ID:           r.ID,
		Outcome:      string(r.Outcome),
		ArtifactPath: r.ArtifactPath,
		Stage:        string(r.Stage),
		Reason:       r.Reason,
		DurationMs:   r.Duration.Milliseconds(),
		FinishedAt:   r.FinishedAt,
	}
}

// Engine DTOs

// EngineResponse — вариант движка.
type EngineResponse struct {
	Variant     string `json:"variant"`
	Batch       bool   `json:"batch"`
	BatchOnly   bool   `json:"batch_only"`
	Description string `json:"description"`
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	Name        string         `json:"name"`
	Spec        domain.RunSpec `json:"spec"`
	CronExpr    string         `json:"cron_expr,omitempty"`
	IntervalSec int            `json:"interval_sec,omitempty"`
	Timezone    string         `json:"timezone,omitempty"`
	Enabled     bool           `json:"enabled"`
}

// UpdateScheduleRequest — запрос на обновление schedule.
type UpdateScheduleRequest struct {
	Name        *string         `json:"name,omitempty"`
	Spec        *domain.RunSpec `json:"spec,omitempty"`
	CronExpr    *string         `json:"cron_expr,omitempty"`
	IntervalSec *int            `json:"interval_sec,omitempty"`
	Timezone    *string         `json:"timezone,omitempty"`
}

// SetEnabledRequest — запрос на включение/выключение.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ScheduleResponse — ответ с schedule.
type ScheduleResponse struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Spec        domain.RunSpec `json:"spec"`
	CronExpr    string         `json:"cron_expr,omitempty"`
	IntervalSec int            `json:"interval_sec,omitempty"`
	Timezone    string         `json:"timezone"`
	Enabled     bool           `json:"enabled"`
	NextDueAt   *time.Time     `json:"next_due_at,omitempty"`
	LastRunAt   *time.Time     `json:"last_run_at,omitempty"`
	LastRunID   *uuid.UUID     `json:"last_run_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	if s == nil {
		return ScheduleResponse{}
	}
	return ScheduleResponse{
		ID:          s.ID,
		Name:        s.Name,
		Spec:        s.Spec,
		CronExpr:    s.CronExpr,
		IntervalSec: s.IntervalSec,
		Timezone:    s.Timezone,
		Enabled:     s.Enabled,
		NextDueAt:   s.NextDueAt,
		LastRunAt:   s.LastRunAt,
		LastRunID:   s.LastRunID,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
