package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/stagehand/internal/mq"
	"github.com/shaiso/stagehand/internal/scheduler"
)

// handleRunRequest выполняет запрос из очереди runs.requested.
//
// Ошибки в самом pipeline не исправятся повтором: сообщение уходит
// в DLQ. Дубликаты подтверждаются без запуска. Остановка оркестратора
// возвращает сообщение в очередь.
func (o *Orchestrator) handleRunRequest(ctx context.Context, req mq.RunRequest) error {
	source := req.RequestedBy
	if source == "" {
		source = "amqp"
	}

	report, err := o.Submit(ctx, Request{
		Pipeline:       req.Pipeline,
		Branch:         req.Branch,
		Vars:           req.Vars,
		IdempotencyKey: req.IdempotencyKey,
		Source:         source,
	})
	switch {
	case err == nil:
		o.logger.Debug("queued run finished", "run_id", report.RunID, "status", report.Status)
		return nil
	case errors.Is(err, ErrDuplicateRun), errors.Is(err, ErrRunAlreadyActive):
		o.logger.Info("duplicate run request dropped", "idempotency_key", req.IdempotencyKey, "reason", err)
		return nil
	case permanent(err):
		return mq.Permanent(err)
	default:
		return err
	}
}

// TriggerSchedule запускает run по расписанию в фоне.
// Реализует scheduler.Trigger через scheduler.TriggerFunc.
func (o *Orchestrator) TriggerSchedule(ctx context.Context, req scheduler.Request) (uuid.UUID, error) {
	runID, err := o.Dispatch(ctx, Request{
		Pipeline:       req.Pipeline,
		Branch:         req.Branch,
		Vars:           req.Vars,
		IdempotencyKey: req.IdempotencyKey,
		Source:         "scheduler:" + req.Schedule,
	})
	if errors.Is(err, ErrDuplicateRun) || errors.Is(err, ErrRunAlreadyActive) {
		return runID, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("schedule %s: %w", req.Schedule, err)
	}
	return runID, nil
}
