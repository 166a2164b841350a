package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/engine"
)

// runPool раздаёт item'ы воркерам через небуферизованный канал.
//
// Каждый воркер создаёт свой Handle до первого item'а. Раздача начинается
// только после успешного Init всех воркеров: при ошибке Init ни один
// item не обрабатывается.
func (o *Orchestrator) runPool(ctx context.Context, rs *runState, items []domain.WorkItem, workers int) ([]domain.ProcessingResult, error) {
	results := make([]domain.ProcessingResult, len(items))
	done := make([]bool, len(items))

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	var ready sync.WaitGroup
	ready.Add(workers)

	for w := range workers {
		g.Go(func() error {
			h, err := o.initHandle(gctx, w)
			ready.Done()
			if err != nil {
				return err
			}
			defer o.closeHandle(h, w)

			o.logger.Debug("worker started", "worker", w)
			for i := range jobs {
				results[i] = o.processItem(gctx, h, rs, items[i])
				done[i] = true
			}
			o.logger.Debug("worker stopped", "worker", w)
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		ready.Wait()
		for i := range items {
			if gctx.Err() != nil {
				return nil
			}
			select {
			case <-gctx.Done():
				return nil
			case jobs <- i:
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	o.fillCancelled(ctx, items, results, done)
	return results, nil
}

// initHandle вызывает Init фабрики. Паника в Init тоже фатальна.
func (o *Orchestrator) initHandle(ctx context.Context, worker int) (h engine.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, &EngineInitError{Worker: worker, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	h, err = o.factory.Init(ctx)
	if err != nil {
		return nil, &EngineInitError{Worker: worker, Err: err}
	}
	if h == nil {
		return nil, &EngineInitError{Worker: worker, Err: fmt.Errorf("factory returned nil handle")}
	}
	return h, nil
}

func (o *Orchestrator) closeHandle(h engine.Handle, worker int) {
	if err := h.Close(); err != nil {
		o.logger.Warn("engine close failed", "worker", worker, "error", err)
	}
}
