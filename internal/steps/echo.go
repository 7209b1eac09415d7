package steps

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/shaiso/stagehand/internal/runctx"
)

// Имена встроенных шагов.
const (
	StepEcho      = "echo"
	StepShell     = "shell"
	StepHTTP      = "http"
	StepDelay     = "delay"
	StepTransform = "transform"
	StepSetVar    = "setvar"
)

// Capabilities встроенных шагов.
const (
	// CapabilityExec — запуск внешних процессов.
	CapabilityExec = "exec"

	// CapabilityNetwork — сетевые запросы.
	CapabilityNetwork = "network"
)

var echoSchema = Schema{
	"message": {Type: ParamTypeString, Required: true, Description: "text to print"},
}

// EchoStep — шаг вывода сообщения.
//
// Параметры:
//
//	{"message": "Deploying {{ .Vars.image }} from {{ .Branch }}"}
//
// Output:
//
//	{"message": "Deploying app:1.2 from main"}
type EchoStep struct {
	mu  sync.Mutex
	out io.Writer
}

// NewEchoStep создаёт EchoStep, пишущий в out.
func NewEchoStep(out io.Writer) *EchoStep {
	return &EchoStep{out: out}
}

// Invoke выводит сообщение.
func (s *EchoStep) Invoke(ctx context.Context, params map[string]any, _ *runctx.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, err)
	}

	msg := ParamString(params, "message")

	s.mu.Lock()
	_, err := fmt.Fprintln(s.out, msg)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write message: %w", err)
	}

	return NewResult(map[string]any{"message": msg}), nil
}
