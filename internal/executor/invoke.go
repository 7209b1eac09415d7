package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/stagehand/internal/engine"
	"github.com/shaiso/stagehand/internal/runctx"
	"github.com/shaiso/stagehand/internal/steps"
	"github.com/shaiso/stagehand/internal/telemetry"
)

// invoke выполняет шаг стадии с повторами.
// Возвращает результат, количество попыток и последнюю ошибку.
func (w *walk) invoke(ctx context.Context, logger *slog.Logger, n *engine.Node, rc *runctx.Context) (*steps.Result, int, error) {
	inv := n.Invocation
	step := inv.Step
	ref := step.Ref()

	params, err := runctx.RenderParams(inv.Params, rc.View())
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %w", ErrStepExecution, ref, err)
	}
	params, err = step.Prepare(params)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrStepExecution, err)
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = w.executor.defaultTimeout
	}

	policy := inv.Retry
	maxAttempts := policy.Attempts()

	for attempt := 1; ; attempt++ {
		res, err := w.attempt(ctx, step, params, rc, timeout)
		if err == nil {
			return res, attempt, nil
		}

		if attempt >= maxAttempts || !retryable(err) {
			return nil, attempt, err
		}

		delay := calculateBackoff(attempt, &policy)
		telemetry.RetriesTotal.WithLabelValues(step.Name).Inc()
		logger.Debug("retrying step",
			"step", ref,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
	}
}

// invocationResult — результат одной попытки.
type invocationResult struct {
	res *steps.Result
	err error
}

// attempt выполняет одну попытку вызова с дедлайном.
//
// Тело шага работает в отдельной горутине: если оно игнорирует ctx,
// Executor всё равно перестаёт ждать по дедлайну или отмене.
// panic в теле шага превращается в ErrStepExecution.
func (w *walk) attempt(ctx context.Context, step *steps.Step, params map[string]any, rc *runctx.Context, timeout time.Duration) (*steps.Result, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ref := step.Ref()
	done := make(chan invocationResult, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocationResult{err: fmt.Errorf("%w: %s: panic: %v", ErrStepExecution, ref, r)}
			}
		}()
		res, err := step.Invoke(actx, params, rc)
		done <- invocationResult{res: res, err: err}
	}()

	var out invocationResult
	select {
	case out = <-done:
	case <-actx.Done():
		// Результат мог прийти одновременно с дедлайном.
		select {
		case out = <-done:
		default:
			out.err = actx.Err()
		}
	}

	res, err := classify(ctx, actx, ref, out)

	result := telemetry.ResultSuccess
	switch {
	case errors.Is(err, ErrTimeout):
		result = telemetry.ResultTimeout
	case errors.Is(err, ErrCancelled):
		result = telemetry.ResultCancelled
	case err != nil:
		result = telemetry.ResultFailure
	}
	telemetry.StepInvocationsTotal.WithLabelValues(step.Name, result).Inc()
	telemetry.StepDuration.WithLabelValues(step.Name).Observe(time.Since(start).Seconds())

	return res, err
}

// classify превращает результат попытки в ошибку из таксономии Executor.
func classify(ctx, actx context.Context, ref string, out invocationResult) (*steps.Result, error) {
	if out.err == nil {
		if out.res == nil {
			return steps.NewResult(nil), nil
		}
		return out.res, nil
	}

	switch {
	case errors.Is(out.err, ErrStepExecution):
		return nil, out.err
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w: %s: %v", ErrCancelled, ref, ctx.Err())
	case errors.Is(actx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %s", ErrTimeout, ref)
	default:
		return nil, fmt.Errorf("%w: %s: %w", ErrStepExecution, ref, out.err)
	}
}
