package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/stagehand/internal/runctx"
)

var delaySchema = Schema{
	"duration_ms":  {Type: ParamTypeInteger, Description: "delay in milliseconds"},
	"duration_sec": {Type: ParamTypeInteger, Description: "delay in seconds"},
}

// DelayStep — шаг задержки.
//
// Приостанавливает выполнение на указанное время.
// Прерывается при отмене ctx.
//
// Параметры:
//
//	{"duration_sec": 10}  // или
//	{"duration_ms": 500}
type DelayStep struct{}

// NewDelayStep создаёт новый DelayStep.
func NewDelayStep() *DelayStep {
	return &DelayStep{}
}

// Invoke выполняет задержку.
func (s *DelayStep) Invoke(ctx context.Context, params map[string]any, _ *runctx.Context) (*Result, error) {
	duration, err := s.parseDuration(params)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	case <-timer.C:
		return NewResult(map[string]any{
			"duration_ms": duration.Milliseconds(),
		}), nil
	}
}

// parseDuration извлекает длительность из параметров.
func (s *DelayStep) parseDuration(params map[string]any) (time.Duration, error) {
	if sec := ParamInt(params, "duration_sec"); sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}
	if ms := ParamInt(params, "duration_ms"); ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return 0, fmt.Errorf("%w: %s: duration_sec or duration_ms required", ErrInvalidParams, StepDelay)
}
