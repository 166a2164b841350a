package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/encoder"
	"github.com/shaiso/Recital/internal/engine"
)

// EngineFactory создаёт Handle движка. Вызывается один раз на воркер.
type EngineFactory interface {
	Init(ctx context.Context) (engine.Handle, error)
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Strategy — стратегия выполнения (обязательна).
	Strategy Strategy

	// Engine — фабрика Handle движка (обязательна).
	Engine EngineFactory

	// Encoder — энкодер итоговых файлов (обязателен).
	Encoder encoder.Encoder

	// OutputDir — директория итоговых файлов <id>.<ext> (обязательна).
	OutputDir string

	// WorkDir — где создаётся временная директория run (default: os.TempDir()).
	WorkDir string

	// EncodeParallelism — сколько item'ов кодируется одновременно
	// в microbatch (default: runtime.NumCPU()).
	EncodeParallelism int

	// Observer — наблюдатель (default: NopObserver).
	Observer Observer

	// Logger
	Logger *slog.Logger
}

// Orchestrator выполняет run: WorkItem → синтез → WAV → энкодер → артефакт.
//
// Orchestrator не хранит состояние между run'ами, Run можно вызывать
// повторно и параллельно.
type Orchestrator struct {
	strategy          Strategy
	factory           EngineFactory
	encoder           encoder.Encoder
	outputDir         string
	workDir           string
	encodeParallelism int
	observer          Observer
	logger            *slog.Logger
}

// New создаёт Orchestrator. Ошибки конфигурации — *ConfigurationError.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.Strategy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Engine == nil {
		return nil, &ConfigurationError{Field: "engine", Message: "engine factory is required"}
	}
	if cfg.Encoder == nil {
		return nil, &ConfigurationError{Field: "encoder", Message: "encoder is required"}
	}
	if cfg.OutputDir == "" {
		return nil, &ConfigurationError{Field: "output.dir", Message: "output directory is required"}
	}
	if cfg.EncodeParallelism < 0 {
		return nil, &ConfigurationError{
			Field:   "encode_parallelism",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.EncodeParallelism),
		}
	}
	if cfg.EncodeParallelism == 0 {
		cfg.EncodeParallelism = runtime.NumCPU()
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Orchestrator{
		strategy:          cfg.Strategy,
		factory:           cfg.Engine,
		encoder:           cfg.Encoder,
		outputDir:         cfg.OutputDir,
		workDir:           cfg.WorkDir,
		encodeParallelism: cfg.EncodeParallelism,
		observer:          cfg.Observer,
		logger:            cfg.Logger,
	}, nil
}

// Strategy возвращает стратегию выполнения.
func (o *Orchestrator) Strategy() Strategy {
	return o.strategy
}

// Run обрабатывает items и возвращает ровно один результат на item
// в порядке входа.
//
// Ошибки:
//   - *ConfigurationError — items невалидны или нет доступа к директориям,
//     результатов нет
//   - *EngineInitError — движок не загрузился, результатов нет
//   - context.Canceled / DeadlineExceeded — run отменён; результаты полные,
//     не начатые item'ы получают Failure на этапе cancelled
func (o *Orchestrator) Run(ctx context.Context, items []domain.WorkItem) ([]domain.ProcessingResult, error) {
	if len(items) == 0 {
		return []domain.ProcessingResult{}, nil
	}
	if err := domain.ValidateItems(items); err != nil {
		return nil, &ConfigurationError{Field: "items", Message: "invalid work items", Err: err}
	}

	if err := os.MkdirAll(o.outputDir, 0o755); err != nil {
		return nil, &ConfigurationError{Field: "output.dir", Message: "cannot create output directory", Err: err}
	}
	tmp, err := os.MkdirTemp(o.workDir, "recital-run-*")
	if err != nil {
		return nil, &ConfigurationError{Field: "output.work_dir", Message: "cannot create work directory", Err: err}
	}
	// всё промежуточное лежит внутри tmp, поэтому после run ничего не остаётся
	defer os.RemoveAll(tmp)

	rs := &runState{
		workDir:   tmp,
		outputDir: o.outputDir,
		extension: o.encoder.Extension(),
	}

	started := time.Now()
	workers := 1
	if o.strategy.Kind == KindPool {
		workers = min(o.strategy.Concurrency, len(items))
	}

	logger := o.logger.With("strategy", o.strategy.String())
	logger.Info("run started", "items", len(items), "workers", workers, "output_dir", o.outputDir)
	o.observer.OnRunStart(RunInfo{
		Total:    len(items),
		Strategy: o.strategy,
		Workers:  workers,
		Started:  started,
	})

	var results []domain.ProcessingResult
	switch o.strategy.Kind {
	case KindMicroBatch:
		results, err = o.runMicroBatch(ctx, rs, items)
	default:
		results, err = o.runPool(ctx, rs, items, workers)
	}
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("run cancelled", "error", err)
			if !errors.Is(err, ctx.Err()) {
				err = errors.Join(ctx.Err(), err)
			}
			return nil, fmt.Errorf("run cancelled: %w", err)
		}
		logger.Error("run aborted", "error", err)
		return nil, err
	}

	summary := domain.Summarize(results)
	dur := time.Since(started)
	o.observer.OnRunDone(summary, dur)

	if ctx.Err() != nil && hasStage(results, domain.StageCancelled) {
		logger.Warn("run cancelled",
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"duration", dur,
		)
		return results, fmt.Errorf("run cancelled: %w", ctx.Err())
	}

	logger.Info("run finished",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", dur,
	)
	return results, nil
}

// runState — пути одного run.
type runState struct {
	workDir   string
	outputDir string
	extension string
}

// intermediatePath возвращает уникальный путь промежуточного WAV.
func (rs *runState) intermediatePath(id string) string {
	return filepath.Join(rs.workDir, id+"."+uuid.NewString()[:8]+".wav")
}

// targetPath возвращает путь итогового файла.
func (rs *runState) targetPath(id string) string {
	return filepath.Join(rs.outputDir, id+"."+rs.extension)
}

// fillCancelled проставляет Failure(cancelled) item'ам, которые не были обработаны.
// Наблюдатель получает для них пару OnItemStart/OnItemDone, как и для остальных.
func (o *Orchestrator) fillCancelled(ctx context.Context, items []domain.WorkItem, results []domain.ProcessingResult, done []bool) {
	cause := ctx.Err()
	if cause == nil {
		cause = context.Canceled
	}
	for i, ok := range done {
		if ok {
			continue
		}
		results[i] = failure(items[i].ID, domain.StageCancelled, cause)
		o.observer.OnItemStart(items[i].ID)
		o.observer.OnItemDone(results[i])
	}
}

func hasStage(results []domain.ProcessingResult, stage domain.Stage) bool {
	for _, r := range results {
		if !r.IsSuccess() && r.Stage == stage {
			return true
		}
	}
	return false
}
