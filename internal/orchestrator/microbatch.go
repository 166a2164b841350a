package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/engine"
)

// runMicroBatch синтезирует непрерывные куски по BatchSize item'ов,
// по одному вызову SynthesizeBatch за раз и в порядке входа.
//
// Запись и кодирование готового батча идут в отдельных горутинах
// (не больше EncodeParallelism) параллельно с синтезом следующего.
//
// Если бэкенд уронил батч целиком, каждый id батча получает Failure
// с общей причиной (*BatchProcessingError).
func (o *Orchestrator) runMicroBatch(ctx context.Context, rs *runState, items []domain.WorkItem) ([]domain.ProcessingResult, error) {
	h, err := o.initHandle(ctx, 0)
	if err != nil {
		return nil, err
	}
	defer o.closeHandle(h, 0)

	bh := engine.AsBatch(h)
	size := o.strategy.BatchSize

	results := make([]domain.ProcessingResult, len(items))
	done := make([]bool, len(items))

	var enc errgroup.Group
	enc.SetLimit(o.encodeParallelism)

	for start := 0; start < len(items); start += size {
		if ctx.Err() != nil {
			break
		}

		chunk := items[start:min(start+size, len(items))]
		ids := make([]string, len(chunk))
		texts := make([]string, len(chunk))
		for i, it := range chunk {
			ids[i] = it.ID
			texts[i] = it.Text
			o.observer.OnItemStart(it.ID)
		}

		started := time.Now()
		outs, err := o.synthesizeBatch(ctx, bh, texts)
		o.observer.OnBatch(len(chunk), time.Since(started), err)

		if err != nil {
			berr := &BatchProcessingError{IDs: ids, Err: err}
			stage := stageOf(ctx, domain.StageSynthesize)
			for i, it := range chunk {
				res := failure(it.ID, stage, berr)
				res.Duration = time.Since(started)
				results[start+i] = res
				done[start+i] = true
				o.report(res)
			}
			continue
		}

		for i, out := range outs {
			idx := start + i
			id := chunk[i].ID

			if out.Err != nil {
				res := failure(id, stageOf(ctx, domain.StageSynthesize), out.Err)
				res.Duration = time.Since(started)
				results[idx] = res
				done[idx] = true
				o.report(res)
				continue
			}

			enc.Go(func() error {
				results[idx] = o.finishItem(ctx, rs, id, out.Audio, started)
				done[idx] = true
				return nil
			})
		}
	}

	enc.Wait()

	o.fillCancelled(ctx, items, results, done)
	return results, nil
}

// synthesizeBatch вызывает SynthesizeBatch и проверяет число результатов.
// Паника бэкенда считается ошибкой батча.
func (o *Orchestrator) synthesizeBatch(ctx context.Context, bh engine.BatchHandle, texts []string) (outs []engine.BatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			outs, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	outs, err = bh.SynthesizeBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(outs) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrBatchSize, len(texts), len(outs))
	}
	return outs, nil
}
