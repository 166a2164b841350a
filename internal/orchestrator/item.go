package orchestrator

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/shaiso/Recital/internal/audio"
	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/engine"
)

// failure создаёт Failure с ItemProcessingError.
func failure(id string, stage domain.Stage, err error) domain.ProcessingResult {
	return domain.Failed(id, stage, &ItemProcessingError{ID: id, Stage: stage, Err: err})
}

// stageOf возвращает cancelled, если ошибка вызвана отменой run.
func stageOf(ctx context.Context, stage domain.Stage) domain.Stage {
	if ctx.Err() != nil {
		return domain.StageCancelled
	}
	return stage
}

// processItem — граница item'а в пуле: синтез, запись, кодирование.
// Любая ошибка или паника превращается в Failure.
func (o *Orchestrator) processItem(ctx context.Context, h engine.Handle, rs *runState, item domain.WorkItem) (res domain.ProcessingResult) {
	started := time.Now()
	o.observer.OnItemStart(item.ID)

	defer func() {
		if r := recover(); r != nil {
			res = o.panicked(item.ID, r)
		}
		res.Duration = time.Since(started)
		o.report(res)
	}()

	if err := ctx.Err(); err != nil {
		return failure(item.ID, domain.StageCancelled, err)
	}

	a, err := h.Synthesize(ctx, item.Text)
	if err != nil {
		return failure(item.ID, stageOf(ctx, domain.StageSynthesize), err)
	}
	return o.finish(ctx, rs, item.ID, a)
}

// finish записывает промежуточный WAV и кодирует его в итоговый файл.
func (o *Orchestrator) finish(ctx context.Context, rs *runState, id string, a audio.Audio) domain.ProcessingResult {
	inter := rs.intermediatePath(id)
	// энкодер сам удаляет файл, здесь страховка на случай паники
	defer os.Remove(inter)

	if err := audio.WriteWAVFile(inter, a); err != nil {
		return failure(id, domain.StageWrite, err)
	}

	target := rs.targetPath(id)
	if err := o.encoder.Encode(ctx, inter, target); err != nil {
		return failure(id, stageOf(ctx, domain.StageEncode), err)
	}
	return domain.Succeeded(id, target)
}

// finishItem — граница item'а для microbatch (синтез уже выполнен батчем).
func (o *Orchestrator) finishItem(ctx context.Context, rs *runState, id string, a audio.Audio, started time.Time) (res domain.ProcessingResult) {
	defer func() {
		if r := recover(); r != nil {
			res = o.panicked(id, r)
		}
		res.Duration = time.Since(started)
		o.report(res)
	}()

	if err := ctx.Err(); err != nil {
		return failure(id, domain.StageCancelled, err)
	}
	return o.finish(ctx, rs, id, a)
}

func (o *Orchestrator) panicked(id string, r any) domain.ProcessingResult {
	o.logger.Error("item panicked",
		"item_id", id,
		"panic", r,
		"stack", string(debug.Stack()),
	)
	return failure(id, domain.StagePanic, fmt.Errorf("panic: %v", r))
}

// report логирует результат и сообщает наблюдателю.
func (o *Orchestrator) report(res domain.ProcessingResult) {
	if res.IsSuccess() {
		o.logger.Debug("item done", "item_id", res.ID, "artifact", res.ArtifactPath, "duration", res.Duration)
	} else {
		o.logger.Warn("item failed", "item_id", res.ID, "stage", res.Stage, "error", res.Reason)
	}
	o.observer.OnItemDone(res)
}
