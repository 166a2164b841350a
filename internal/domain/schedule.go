package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание повторной обработки списка из Source.
//
// Используется для словарей, которые пополняются: каждый запуск
// перечитывает TSV и заново озвучивает все строки. Запуск:
// - По cron-выражению: "0 9 * * *" (каждый день в 9:00)
// - По интервалу: каждые N секунд
//
// Scheduler проверяет next_due_at и создаёт run, когда время подошло.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// Spec — параметры создаваемых run. Spec.Source обязателен.
	Spec RunSpec `json:"spec"`

	// Name — имя расписания для удобства.
	Name string `json:"name,omitempty"`

	// CronExpr — cron-выражение из пяти полей, например "30 3 * * 1"
	// (по понедельникам в 3:30). Имеет приоритет над IntervalSec.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал между запусками, если CronExpr пуст.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для cron ("UTC" по умолчанию).
	Timezone string `json:"timezone"`

	// Enabled — если false, scheduler игнорирует расписание.
	Enabled bool `json:"enabled"`

	// NextDueAt — когда создать следующий run.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего запуска.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastRunID — ID последнего созданного run.
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`

	// CreatedAt — время создания schedule.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue проверяет, пора ли создавать run.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Enabled && s.NextDueAt != nil && !now.Before(*s.NextDueAt)
}

// NewRun создаёт PENDING run по расписанию.
// idempotencyKey защищает от повторного создания на том же тике.
func (s *Schedule) NewRun(idempotencyKey string) *Run {
	run := NewRun(s.Spec, nil)
	id := s.ID
	run.ScheduleID = &id
	run.IdempotencyKey = idempotencyKey
	return run
}

// RecordRun запоминает созданный run и сдвигает NextDueAt.
func (s *Schedule) RecordRun(runID uuid.UUID, nextDue time.Time) {
	now := time.Now().UTC()
	s.LastRunAt = &now
	s.LastRunID = &runID
	s.NextDueAt = &nextDue
	s.UpdatedAt = now
}
