package executor

import (
	"errors"
	"time"

	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/steps"
)

const (
	defaultInitialDelay = 100 * time.Millisecond
	defaultMaxDelay     = 30 * time.Second
)

// calculateBackoff вычисляет задержку перед следующей попыткой.
//
// attempt — номер завершившейся попытки (с 1).
// exponential (по умолчанию): initial * 2^(attempt-1), не больше max.
// fixed: всегда initial.
func calculateBackoff(attempt int, policy *domain.RetryPolicy) time.Duration {
	if policy == nil {
		return defaultInitialDelay
	}

	initialDelay := time.Duration(policy.InitialDelayMs) * time.Millisecond
	if initialDelay <= 0 {
		initialDelay = defaultInitialDelay
	}

	maxDelay := time.Duration(policy.MaxDelayMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	delay := initialDelay
	if policy.Backoff != domain.BackoffFixed {
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= maxDelay {
				break
			}
		}
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// retryable проверяет, имеет ли смысл повторять вызов.
// Невалидные параметры не исправятся от повтора, отмена — окончательна.
func retryable(err error) bool {
	return !errors.Is(err, steps.ErrInvalidParams) && !errors.Is(err, ErrCancelled)
}
