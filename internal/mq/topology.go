package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Обменники.
const (
	ExchangeRuns    Exchange = "stagehand.runs"
	ExchangeReports Exchange = "stagehand.reports"
	ExchangeDLQ     Exchange = "stagehand.dlq"
)

// Очереди.
const (
	QueueRunsRequested   Queue = "runs.requested"
	QueueReportsFinalized Queue = "reports.finalized"
	QueueDLQRuns         Queue = "dlq.runs"
)

// Ключи маршрутизации.
const (
	RoutingKeyRequested RoutingKey = "requested"
	RoutingKeyFinalized RoutingKey = "finalized"
	RoutingKeyDLQRuns   RoutingKey = "runs"
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
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topology — полное описание объектов брокера.
type topology struct {
	exchanges []exchangeDecl
	queues    []queueDecl
	bindings  []bindingDecl
}

// defaultTopology возвращает топологию stagehand.
//
//	stagehand.runs (direct)
//	└── runs.requested [requested] → runner, DLQ: dlq.runs
//	stagehand.reports (topic)
//	└── reports.finalized [finalized] → внешние подписчики
//	stagehand.dlq (direct)
//	└── dlq.runs [runs]
func defaultTopology() topology {
	return topology{
		exchanges: []exchangeDecl{
			{ExchangeRuns, amqp.ExchangeDirect},
			{ExchangeReports, amqp.ExchangeTopic},
			{ExchangeDLQ, amqp.ExchangeDirect},
		},
		queues: []queueDecl{
			{QueueRunsRequested, amqp.Table{
				"x-dead-letter-exchange":    string(ExchangeDLQ),
				"x-dead-letter-routing-key": string(RoutingKeyDLQRuns),
			}},
			{QueueReportsFinalized, nil},
			{QueueDLQRuns, nil},
		},
		bindings: []bindingDecl{
			{QueueRunsRequested, RoutingKeyRequested, ExchangeRuns},
			{QueueReportsFinalized, RoutingKeyFinalized, ExchangeReports},
			{QueueDLQRuns, RoutingKeyDLQRuns, ExchangeDLQ},
		},
	}
}

// SetupTopology объявляет обменники, очереди и привязки.
// Операции идемпотентны: повторный вызов с теми же параметрами безопасен.
func SetupTopology(ctx context.Context, conn *Connection) error {
	t := defaultTopology()

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range t.exchanges {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range t.queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range t.bindings {
			if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}
