package config

import (
	"log/slog"

	"github.com/shaiso/Recital/internal/encoder"
	"github.com/shaiso/Recital/internal/engine"
	"github.com/shaiso/Recital/internal/orchestrator"
)

// Pipeline — собранные по конфигурации компоненты run.
type Pipeline struct {
	Orchestrator *orchestrator.Orchestrator
	Factory      *engine.Factory
	Encoder      encoder.Encoder
}

// Build проверяет конфигурацию и собирает Orchestrator.
//
// Вариант движка без одиночного синтеза (batch-only) при стратегии pool
// переводится на microbatch: иначе каждый item шёл бы отдельным батчем.
func (c *Config) Build(reg *engine.Registry, obs orchestrator.Observer, logger *slog.Logger) (*Pipeline, error) {
	if err := c.Validate(reg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	factory, err := engine.NewFactory(reg, c.Engine)
	if err != nil {
		return nil, &orchestrator.ConfigurationError{Field: "engine.variant", Message: "cannot resolve engine", Err: err}
	}
	enc, err := encoder.New(c.Encoder)
	if err != nil {
		return nil, &orchestrator.ConfigurationError{Field: "encoder", Message: "invalid encoder", Err: err}
	}

	strategy := c.ResolvedStrategy()
	if factory.Capabilities().BatchOnly && strategy.Kind == orchestrator.KindPool {
		size := c.Strategy.BatchSize
		if size <= 0 {
			size = DefaultConfig().Strategy.BatchSize
		}
		logger.Info("engine supports batch inference only, switching to microbatch",
			"engine", c.Engine.Variant,
			"batch_size", size,
		)
		strategy = orchestrator.MicroBatch(size)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Strategy:          strategy,
		Engine:            factory,
		Encoder:           enc,
		OutputDir:         c.Output.Dir,
		WorkDir:           c.Output.WorkDir,
		EncodeParallelism: c.Output.EncodeParallelism,
		Observer:          obs,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{Orchestrator: orch, Factory: factory, Encoder: enc}, nil
}
