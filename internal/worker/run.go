package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/orchestrator"
	"github.com/shaiso/Recital/internal/repo"
	"github.com/shaiso/Recital/internal/source"
	"github.com/shaiso/Recital/internal/telemetry"
)

// finalizeTimeout — сколько даётся на сохранение итога run,
// когда контекст воркера уже отменён.
const finalizeTimeout = 10 * time.Second

// ProcessRun забирает PENDING run, выполняет его и сохраняет итог.
//
// Ошибки item'ов и фатальные ошибки run не возвращаются: они
// записываются в run. Возвращаются только ошибки хранилища,
// ErrRunNotFound и ErrRunNotPending.
func (w *Worker) ProcessRun(ctx context.Context, runID uuid.UUID) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	run, err := w.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return fmt.Errorf("get run: %w", err)
	}
	if run.Status != domain.RunStatusPending {
		return ErrRunNotPending
	}
	if err := w.runs.Claim(ctx, run); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return ErrRunNotPending
		}
		return fmt.Errorf("claim run: %w", err)
	}

	logger := telemetry.WithRunID(w.logger, run.ID.String())
	if run.ScheduleID != nil {
		logger = telemetry.WithScheduleID(logger, run.ScheduleID.String())
	}
	logger.Info("run claimed",
		"engine", run.EngineVariant,
		"strategy", run.Strategy,
		"source", run.Source,
		"items", len(run.Items),
	)

	return w.finish(ctx, run, w.execute(ctx, run, logger), logger)
}

// execution — итог Orchestrator.Run для одного run.
type execution struct {
	results []domain.ProcessingResult
	err     error

	// cancelledByUser — run отменён через API, а не остановкой воркера.
	cancelledByUser bool
}

// execute загружает items, собирает orchestrator и выполняет run.
func (w *Worker) execute(ctx context.Context, run *domain.Run, logger *slog.Logger) execution {
	items, err := w.loadItems(run)
	if err != nil {
		return execution{err: err}
	}
	run.Total = len(items)

	obs := orchestrator.Observers{&itemEvents{runID: run.ID, publisher: w.publisher, logger: logger}}
	if w.metrics != nil {
		obs = append(obs, w.metrics)
	}

	pipeline, err := w.base.WithSpec(run.RunSpec).Build(w.registry, obs, logger)
	if err != nil {
		return execution{err: err}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var cancelled atomic.Bool
	go w.watchCancel(runCtx, run.ID, func() {
		cancelled.Store(true)
		cancel()
	})

	results, err := pipeline.Orchestrator.Run(runCtx, items)
	return execution{results: results, err: err, cancelledByUser: cancelled.Load()}
}

func (w *Worker) loadItems(run *domain.Run) ([]domain.WorkItem, error) {
	if len(run.Items) > 0 {
		return run.Items, nil
	}
	if run.Source == "" {
		return nil, ErrNoItems
	}
	items, err := source.ReadTSVFile(run.Source)
	if err != nil {
		return nil, fmt.Errorf("load source: %w", err)
	}
	return items, nil
}

// watchCancel опрашивает статус run и вызывает onCancel,
// если run отменили через API.
func (w *Worker) watchCancel(ctx context.Context, runID uuid.UUID, onCancel func()) {
	ticker := time.NewTicker(w.cancelInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := w.runs.Status(ctx, runID)
			if err != nil {
				continue
			}
			if status == domain.RunStatusCancelled {
				onCancel()
				return
			}
		}
	}
}

// finish сохраняет результаты и итоговый статус run.
func (w *Worker) finish(ctx context.Context, run *domain.Run, ex execution, logger *slog.Logger) error {
	// итог сохраняется и при остановке воркера
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	summary := domain.Summarize(ex.results)

	switch {
	case ex.err == nil:
		run.MarkSucceeded(summary)
	case ex.results != nil:
		// run прерван, но каждый item получил результат
		run.MarkCancelled(summary)
		if !ex.cancelledByUser {
			run.Error = ErrWorkerStopped.Error()
		}
	default:
		run.MarkFailed(ex.err.Error())
	}

	if len(ex.results) > 0 {
		if err := w.items.SaveAll(saveCtx, run.ID, ex.results); err != nil {
			return fmt.Errorf("save item results: %w", err)
		}
	}
	if err := w.runs.Update(saveCtx, run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	if w.metrics != nil {
		w.metrics.RunFinished(run.Status)
	}

	logger.Info("run finished",
		"status", run.Status,
		"succeeded", run.Succeeded,
		"failed", run.Failed,
		"duration", run.Duration(),
		"error", run.Error,
	)

	if w.publisher != nil {
		if err := w.publisher.PublishRunFinished(saveCtx, run); err != nil {
			// итог уже в БД
			logger.Warn("failed to publish run.finished", "error", err)
		}
	}
	return nil
}
