package steps

import (
	"context"
	"fmt"
	"maps"

	"github.com/shaiso/stagehand/internal/runctx"
)

var setVarSchema = Schema{
	"vars": {Type: ParamTypeObject, Required: true, Description: "variables to set"},
}

// SetVarStep записывает значения в контекст потомков стадии.
//
//	{"vars": {"env": "staging", "replicas": 2}}
type SetVarStep struct{}

// NewSetVarStep создаёт новый SetVarStep.
func NewSetVarStep() *SetVarStep {
	return &SetVarStep{}
}

// Invoke возвращает vars как delta.
func (s *SetVarStep) Invoke(ctx context.Context, params map[string]any, _ *runctx.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, err)
	}

	vars := maps.Clone(ParamMap(params, "vars"))
	return &Result{
		Output: map[string]any{"count": len(vars)},
		Delta:  runctx.Delta(vars),
	}, nil
}
