package steps

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaiso/stagehand/internal/runctx"
)

var transformSchema = Schema{
	"mappings": {Type: ParamTypeObject, Required: true, Description: "variable name to template"},
}

// TransformStep — шаг трансформации данных.
//
// Mappings — шаблоны, которые Executor рендерит против контекста
// до вызова. Шаг приводит результаты к JSON-типам и записывает их
// в delta: потомки стадии видят их как обычные переменные.
//
// Параметры:
//
//	{
//	    "mappings": {
//	        "image": "registry.local/app:{{ .Vars.commit }}",
//	        "replicas": "{{ if eq .Branch \"main\" }}3{{ else }}1{{ end }}"
//	    }
//	}
//
// Output и Delta: {"image": "registry.local/app:1a2b3c", "replicas": 3}
type TransformStep struct{}

// NewTransformStep создаёт новый TransformStep.
func NewTransformStep() *TransformStep {
	return &TransformStep{}
}

// Invoke выполняет трансформацию.
func (s *TransformStep) Invoke(ctx context.Context, params map[string]any, _ *runctx.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, err)
	}

	mappings := ParamMap(params, "mappings")
	values := make(map[string]any, len(mappings))
	for key, val := range mappings {
		if str, ok := val.(string); ok {
			values[key] = s.parseValue(str)
		} else {
			values[key] = val
		}
	}

	return &Result{
		Output: values,
		Delta:  runctx.Delta(values),
	}, nil
}

// parseValue пытается распарсить строку как JSON.
// Если не получается — возвращает строку как есть.
func (s *TransformStep) parseValue(value string) any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(value), &obj); err == nil {
		return obj
	}

	var arr []any
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr
	}

	var num json.Number
	if err := json.Unmarshal([]byte(value), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	switch value {
	case "true":
		return true
	case "false":
		return false
	}

	return value
}
