package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Recital/internal/domain"
)

// Publisher публикует события run.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish отправляет msg в exchange. Сообщения persistent.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, key RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(exchange), string(key), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         string(msg.Type),
			Timestamp:    msg.Timestamp,
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish %s to %s/%s: %w", msg.Type, exchange, key, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", key,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

func (p *Publisher) publish(ctx context.Context, exchange Exchange, key RoutingKey, t MessageType, payload any) error {
	msg, err := NewMessage(t, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, exchange, key, msg)
}

// PublishRunRequested сообщает воркерам о новом run.
func (p *Publisher) PublishRunRequested(ctx context.Context, runID uuid.UUID) error {
	return p.publish(ctx, ExchangeRuns, RoutingKeyRequested, MessageTypeRunRequested,
		RunRequestedPayload{RunID: runID})
}

// PublishItemCompleted публикует результат item.
func (p *Publisher) PublishItemCompleted(ctx context.Context, runID uuid.UUID, res domain.ProcessingResult) error {
	return p.publish(ctx, ExchangeEvents, RoutingKeyItemCompleted, MessageTypeItemCompleted,
		ItemCompletedPayload{RunID: runID, Result: res})
}

// PublishRunFinished публикует итог run.
func (p *Publisher) PublishRunFinished(ctx context.Context, run *domain.Run) error {
	return p.publish(ctx, ExchangeEvents, RoutingKeyRunFinished, MessageTypeRunFinished,
		RunFinishedPayload{
			RunID:     run.ID,
			Status:    run.Status,
			Total:     run.Total,
			Succeeded: run.Succeeded,
			Failed:    run.Failed,
			Error:     run.Error,
		})
}
