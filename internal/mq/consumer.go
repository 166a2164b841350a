package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает сообщение.
//
// nil — ack. Ошибка с ErrPermanent — в DLQ сразу. Прочие ошибки —
// один повтор через requeue, при повторной неудаче — в DLQ.
type Handler func(ctx context.Context, msg *Message) error

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	// Queue — очередь (обязательна).
	Queue Queue

	// Handler — обработчик (обязателен).
	Handler Handler

	// Prefetch — сообщений без ack на consumer (default: 1).
	// Один run занимает воркер целиком, поэтому больше 1 обычно не нужно.
	Prefetch int

	// Logger
	Logger *slog.Logger
}

// Consumer читает очередь и вызывает Handler для каждого сообщения.
// После переподключения подписка восстанавливается.
type Consumer struct {
	conn     *Connection
	queue    Queue
	handler  Handler
	prefetch int
	logger   *slog.Logger
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, cfg ConsumerConfig) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Consumer{
		conn:     conn,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: cfg.Prefetch,
		logger:   cfg.Logger.With("queue", cfg.Queue),
	}
}

// Run блокируется до отмены ctx или закрытия соединения.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("subscribe failed", "error", err)
		} else {
			c.logger.Info("consumer started")
			c.drain(ctx, deliveries)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		// ждём, пока Connection переподключится
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.Done():
			return ErrClosed
		case <-c.conn.Reconnected():
			c.logger.Info("reconnected, resubscribing")
		}
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(string(c.queue), "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// drain обрабатывает сообщения, пока канал доставки открыт.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed")
				return
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Error("malformed message, dead-lettering", "error", err, "body", string(d.Body))
		d.Nack(false, false)
		return
	}

	logger := c.logger.With("message_id", msg.ID, "type", msg.Type)
	logger.Debug("received message")

	err := c.handler(ctx, &msg)
	switch decide(err, d.Redelivered) {
	case dispositionAck:
		d.Ack(false)
	case dispositionRequeue:
		logger.Warn("handler failed, requeueing", "error", err)
		d.Nack(false, true)
	default:
		logger.Error("handler failed, dead-lettering", "error", err, "redelivered", d.Redelivered)
		d.Nack(false, false)
	}
}

type disposition int

const (
	dispositionAck disposition = iota
	dispositionRequeue
	dispositionDeadLetter
)

// decide выбирает, что сделать с сообщением после обработчика.
func decide(err error, redelivered bool) disposition {
	switch {
	case err == nil:
		return dispositionAck
	case errors.Is(err, ErrPermanent), redelivered:
		return dispositionDeadLetter
	default:
		return dispositionRequeue
	}
}
