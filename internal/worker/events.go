package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/orchestrator"
)

const publishTimeout = 5 * time.Second

// itemEvents публикует item.completed для каждого результата.
type itemEvents struct {
	orchestrator.NopObserver

	runID     uuid.UUID
	publisher EventPublisher
	logger    *slog.Logger
}

func (e *itemEvents) OnItemDone(res domain.ProcessingResult) {
	if e.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := e.publisher.PublishItemCompleted(ctx, e.runID, res); err != nil {
		e.logger.Debug("failed to publish item.completed", "item_id", res.ID, "error", err)
	}
}
