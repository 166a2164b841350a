package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Recital/internal/config"
	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/engine"
	"github.com/shaiso/Recital/internal/mq"
	"github.com/shaiso/Recital/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval   = 10 * time.Second
	defaultPollBatch      = 10
	defaultCancelInterval = 2 * time.Second
)

// RunStore — хранилище runs.
type RunStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	ListPending(ctx context.Context, limit int) ([]domain.Run, error)
	Claim(ctx context.Context, run *domain.Run) error
	Update(ctx context.Context, run *domain.Run) error
	Status(ctx context.Context, id uuid.UUID) (domain.RunStatus, error)
}

// ItemStore — хранилище результатов item'ов.
type ItemStore interface {
	SaveAll(ctx context.Context, runID uuid.UUID, results []domain.ProcessingResult) error
}

// EventPublisher публикует события run.
type EventPublisher interface {
	PublishItemCompleted(ctx context.Context, runID uuid.UUID, res domain.ProcessingResult) error
	PublishRunFinished(ctx context.Context, run *domain.Run) error
}

// Worker выполняет runs через orchestrator.
//
// Run приходит из очереди runs.requested или находится опросом
// PENDING runs в БД. Воркер выполняет один run за раз: стратегия
// run сама занимает все ядра.
type Worker struct {
	runs      RunStore
	items     ItemStore
	publisher EventPublisher
	conn      *mq.Connection

	base     *config.Config
	registry *engine.Registry
	metrics  *telemetry.Metrics

	pollInterval   time.Duration
	pollBatch      int
	cancelInterval time.Duration

	// runMu — один run за раз, из очереди или из опроса.
	runMu sync.Mutex

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Runs, Items — хранилища (обязательны).
	Runs  RunStore
	Items ItemStore

	// Publisher — события item.completed / run.finished (опционально).
	Publisher EventPublisher

	// Conn — RabbitMQ. nil — только опрос БД.
	Conn *mq.Connection

	// Base — конфигурация по умолчанию, поверх которой применяется RunSpec
	// (default: config.DefaultConfig()).
	Base *config.Config

	// Registry — варианты движков (default: engine.DefaultRegistry()).
	Registry *engine.Registry

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	// PollInterval — интервал опроса PENDING runs (default: 10s).
	PollInterval time.Duration

	// PollBatch — сколько runs забирать за опрос (default: 10).
	PollBatch int

	// CancelCheckInterval — как часто проверять отмену run через API (default: 2s).
	CancelCheckInterval time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollBatch <= 0 {
		cfg.PollBatch = defaultPollBatch
	}
	if cfg.CancelCheckInterval <= 0 {
		cfg.CancelCheckInterval = defaultCancelInterval
	}
	if cfg.Base == nil {
		cfg.Base = config.DefaultConfig()
	}
	if cfg.Registry == nil {
		cfg.Registry = engine.DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Worker{
		runs:           cfg.Runs,
		items:          cfg.Items,
		publisher:      cfg.Publisher,
		conn:           cfg.Conn,
		base:           cfg.Base,
		registry:       cfg.Registry,
		metrics:        cfg.Metrics,
		pollInterval:   cfg.PollInterval,
		pollBatch:      cfg.PollBatch,
		cancelInterval: cfg.CancelCheckInterval,
		logger:         cfg.Logger,
	}
}

// Start запускает consumer runs.requested (если есть Conn) и опрос БД.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"engines", w.registry.Variants(),
	)

	if w.conn != nil {
		consumer := mq.NewConsumer(w.conn, mq.ConsumerConfig{
			Queue:   mq.QueueRunsRequested,
			Handler: w.handleRunRequested,
			Logger:  w.logger,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("run consumer stopped", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop отменяет текущий run и ждёт завершения горутин.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// pollLoop подхватывает PENDING runs, сообщения о которых потерялись.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// сразу при старте: runs, созданные пока воркер был выключен
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	runs, err := w.runs.ListPending(ctx, w.pollBatch)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("failed to list pending runs", "error", err)
		}
		return
	}
	if len(runs) == 0 {
		return
	}

	w.logger.Debug("poll found pending runs", "count", len(runs))
	for i := range runs {
		if ctx.Err() != nil {
			return
		}
		err := w.ProcessRun(ctx, runs[i].ID)
		if err != nil && !errors.Is(err, ErrRunNotPending) {
			w.logger.Error("failed to process run from poll", "run_id", runs[i].ID, "error", err)
		}
	}
}

// handleRunRequested обрабатывает сообщение run.requested.
func (w *Worker) handleRunRequested(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.RunRequestedPayload](msg)
	if err != nil {
		return errors.Join(err, mq.ErrPermanent)
	}

	err = w.ProcessRun(ctx, payload.RunID)
	switch {
	case err == nil, errors.Is(err, ErrRunNotPending):
		// уже выполнен или забран опросом
		return nil
	case errors.Is(err, ErrRunNotFound):
		return errors.Join(err, mq.ErrPermanent)
	default:
		return err
	}
}
