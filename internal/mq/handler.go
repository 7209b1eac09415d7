package mq

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/stagehand/internal/domain"
)

// ErrInvalidRequest — запрос на запуск не содержит обязательных полей.
var ErrInvalidRequest = errors.New("invalid run request")

// RunRequestHandler возвращает Handler очереди runs.requested.
// Сообщения другого типа и битые payload уходят в DLQ.
func RunRequestHandler(trigger func(ctx context.Context, req RunRequest) error) Handler {
	return func(ctx context.Context, msg *Message) error {
		if msg.Type != MessageTypeRunRequested {
			return Permanent(fmt.Errorf("unexpected message type %q", msg.Type))
		}

		req, err := DecodePayload[RunRequest](msg)
		if err != nil {
			return Permanent(err)
		}
		if req.Pipeline == "" {
			return Permanent(fmt.Errorf("%w: pipeline is required", ErrInvalidRequest))
		}

		return trigger(ctx, req)
	}
}

// ReportPublisher публикует отчёты. Реализуется *Publisher.
type ReportPublisher interface {
	PublishReport(ctx context.Context, r *domain.RunReport) error
}

// ReportNotifier — получатель отчётов, публикующий их в stagehand.reports.
type ReportNotifier struct {
	publisher ReportPublisher
}

// NewReportNotifier создаёт ReportNotifier.
func NewReportNotifier(p ReportPublisher) *ReportNotifier {
	return &ReportNotifier{publisher: p}
}

// Name возвращает имя получателя для логов и метрик.
func (n *ReportNotifier) Name() string {
	return "amqp"
}

// Notify публикует отчёт.
func (n *ReportNotifier) Notify(ctx context.Context, r *domain.RunReport) error {
	return n.publisher.PublishReport(ctx, r)
}
