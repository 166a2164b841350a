package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeRuns   Exchange = "recital.runs"
	ExchangeEvents Exchange = "recital.events"
	ExchangeDLQ    Exchange = "recital.dlq"
)

const (
	QueueRunsRequested Queue = "runs.requested"
	QueueRunsFinished  Queue = "runs.finished"
	QueueDLQRuns       Queue = "dlq.runs"
)

const (
	RoutingKeyRequested     RoutingKey = "requested"
	RoutingKeyItemCompleted RoutingKey = "item.completed"
	RoutingKeyRunFinished   RoutingKey = "run.finished"
	RoutingKeyDLQRuns       RoutingKey = "runs"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue    Queue
	key      RoutingKey
	exchange Exchange
}

// topology описывает всё, что объявляет SetupTopology.
func topology() ([]exchangeDecl, []queueDecl, []bindingDecl) {
	exchanges := []exchangeDecl{
		{ExchangeRuns, amqp.ExchangeDirect},
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}
	queues := []queueDecl{
		{QueueRunsRequested, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQRuns),
		}},
		{QueueRunsFinished, nil},
		{QueueDLQRuns, nil},
	}
	bindings := []bindingDecl{
		{QueueRunsRequested, RoutingKeyRequested, ExchangeRuns},
		{QueueRunsFinished, RoutingKeyRunFinished, ExchangeEvents},
		{QueueDLQRuns, RoutingKeyDLQRuns, ExchangeDLQ},
	}
	return exchanges, queues, bindings
}

// SetupTopology объявляет exchanges, очереди и привязки. Идемпотентна.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		exchanges, queues, bindings := topology()

		for _, ex := range exchanges {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}
		for _, q := range queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}
		for _, b := range bindings {
			if err := ch.QueueBind(string(b.queue), string(b.key), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}
