package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/engine"
	"github.com/shaiso/Recital/internal/repo"
)

// RunStore — хранилище runs (repo.RunRepo).
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// ItemStore — хранилище результатов item'ов (repo.ItemRepo).
type ItemStore interface {
	ListByRun(ctx context.Context, runID uuid.UUID, failedOnly bool) ([]domain.ProcessingResult, error)
}

// ScheduleStore — хранилище расписаний (repo.ScheduleRepo).
type ScheduleStore interface {
	Create(ctx context.Context, s *domain.Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
	List(ctx context.Context, filter repo.ScheduleFilter) ([]domain.Schedule, error)
	Update(ctx context.Context, s *domain.Schedule) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

// RunPublisher публикует run.requested (mq.Publisher).
type RunPublisher interface {
	PublishRunRequested(ctx context.Context, runID uuid.UUID) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runs      RunStore
	items     ItemStore
	schedules ScheduleStore
	publisher RunPublisher
	registry  *engine.Registry
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Runs      RunStore
	Items     ItemStore
	Schedules ScheduleStore

	// Publisher — опционально. Без него воркер найдёт run через polling.
	Publisher RunPublisher

	// Registry — варианты движка для валидации и GET /engines
	// (default: engine.DefaultRegistry()).
	Registry *engine.Registry

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Registry == nil {
		cfg.Registry = engine.DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		runs:      cfg.Runs,
		items:     cfg.Items,
		schedules: cfg.Schedules,
		publisher: cfg.Publisher,
		registry:  cfg.Registry,
		logger:    cfg.Logger,
	}
}
