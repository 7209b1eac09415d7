package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/stagehand/internal/domain"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunRequested    MessageType = "run.requested"
	MessageTypeReportFinalized MessageType = "report.finalized"
)

// Message — конверт сообщения.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// RunRequest — запрос на запуск pipeline.
type RunRequest struct {
	// Pipeline — путь к файлу pipeline на стороне runner.
	Pipeline string `json:"pipeline"`

	// Branch — ветка для guard.
	Branch string `json:"branch,omitempty"`

	// Vars — начальные переменные контекста.
	Vars map[string]any `json:"vars,omitempty"`

	// IdempotencyKey — повторный запрос с тем же ключом не запускает run.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// RequestedBy — источник запроса (scheduler, api, cli).
	RequestedBy string `json:"requested_by,omitempty"`
}

// Publisher публикует сообщения в RabbitMQ.
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

// NewMessage заворачивает payload в конверт с новым ID.
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   body,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Publish публикует конверт в exchange с ключом routingKey.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishJSON заворачивает payload и публикует его.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, exchange, routingKey, msg)
}

// PublishRunRequested ставит запуск pipeline в очередь runner.
func (p *Publisher) PublishRunRequested(ctx context.Context, req RunRequest) error {
	return p.PublishJSON(ctx, ExchangeRuns, RoutingKeyRequested, MessageTypeRunRequested, req)
}

// PublishReport публикует финальный отчёт run.
func (p *Publisher) PublishReport(ctx context.Context, r *domain.RunReport) error {
	return p.PublishJSON(ctx, ExchangeReports, RoutingKeyFinalized, MessageTypeReportFinalized, r)
}
