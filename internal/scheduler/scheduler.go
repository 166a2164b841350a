package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/repo"
	"github.com/shaiso/Recital/internal/telemetry"
)

// ScheduleStore — то, что планировщику нужно от repo.ScheduleRepo.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	Update(ctx context.Context, s *domain.Schedule) error
}

// RunStore — то, что планировщику нужно от repo.RunRepo.
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Run, error)
}

// RunPublisher публикует run.requested (mq.Publisher).
type RunPublisher interface {
	PublishRunRequested(ctx context.Context, runID uuid.UUID) error
}

// Scheduler — планировщик, создающий runs по due schedules.
type Scheduler struct {
	schedules ScheduleStore
	runs      RunStore
	publisher RunPublisher
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules ScheduleStore
	Runs      RunStore
	Publisher RunPublisher // опционально
	Logger    *slog.Logger
	BatchSize int // количество schedules за один тик (default: 100)
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scheduler{
		schedules: cfg.Schedules,
		runs:      cfg.Runs,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

// Tick выполняет один тик планировщика.
//
// Для каждого due schedule создаёт PENDING run, сдвигает next_due_at
// и публикует run.requested. Ошибка одного schedule не мешает остальным.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()

	due, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(due))

	var processed, created int
	for i := range due {
		sched := &due[i]

		runCreated, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			continue
		}

		processed++
		if runCreated {
			created++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(due),
		"processed", processed,
		"runs_created", created,
	)
	return nil
}

// processSchedule создаёт run для одного schedule.
// Возвращает true, если run создан (а не найден по ключу идемпотентности).
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	logger := telemetry.WithScheduleID(s.logger, sched.ID.String())

	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		// next_due_at не трогаем: исправленный через API schedule продолжит работу
		return false, fmt.Errorf("calculate next due: %w", err)
	}

	if sched.Spec.Source == "" {
		logger.Warn("schedule has no source, skipping run")
		return false, s.advance(ctx, sched, nil, nextDue)
	}

	// Один run на schedule и конкретный тик, даже если два
	// планировщика успели прочитать один и тот же schedule.
	key := IdempotencyKey(sched)

	run, err := s.runs.GetByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		logger.Debug("run already exists", "run_id", run.ID, "idempotency_key", key)
		return false, s.advance(ctx, sched, run, nextDue)
	case !errors.Is(err, repo.ErrNotFound):
		return false, fmt.Errorf("check idempotency: %w", err)
	}

	run = sched.NewRun(key)
	if err := s.runs.Create(ctx, run); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			logger.Debug("run created concurrently", "idempotency_key", key)
			return false, nil
		}
		return false, fmt.Errorf("create run: %w", err)
	}

	logger.Info("created run from schedule",
		"run_id", run.ID,
		"schedule_name", sched.Name,
		"source", run.Source,
		"next_due_at", nextDue,
	)

	if err := s.advance(ctx, sched, run, nextDue); err != nil {
		return true, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishRunRequested(ctx, run.ID); err != nil {
			// run уже в БД, воркер заберёт его через polling
			logger.Warn("failed to publish run.requested", "run_id", run.ID, "error", err)
		}
	}

	return true, nil
}

// advance сохраняет следующий запуск schedule.
func (s *Scheduler) advance(ctx context.Context, sched *domain.Schedule, run *domain.Run, nextDue time.Time) error {
	if run != nil {
		sched.RecordRun(run.ID, nextDue)
	} else {
		sched.NextDueAt = &nextDue
		sched.UpdatedAt = s.now().UTC()
	}
	if err := s.schedules.Update(ctx, sched); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// IdempotencyKey возвращает ключ run для текущего тика schedule:
// "{schedule_id}_{next_due_at_unix}".
func IdempotencyKey(sched *domain.Schedule) string {
	var due int64
	if sched.NextDueAt != nil {
		due = sched.NextDueAt.Unix()
	}
	return fmt.Sprintf("%s_%d", sched.ID, due)
}
