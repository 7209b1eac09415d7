package steps

import (
	"context"
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"
	"github.com/xeipuuv/gojsonschema"

	"github.com/shaiso/stagehand/internal/runctx"
)

// Body — исполняемое тело шага.
//
// Все шаги реестра вызываются одинаково, независимо от того,
// что они делают внутри (shell, HTTP, запись переменных).
// Тело должно проверять ctx.Done() и не изменять rc.
type Body interface {
	Invoke(ctx context.Context, params map[string]any, rc *runctx.Context) (*Result, error)
}

// BodyFunc — адаптер функции к интерфейсу Body.
type BodyFunc func(ctx context.Context, params map[string]any, rc *runctx.Context) (*Result, error)

// Invoke вызывает f.
func (f BodyFunc) Invoke(ctx context.Context, params map[string]any, rc *runctx.Context) (*Result, error) {
	return f(ctx, params, rc)
}

// Result — результат вызова шага.
type Result struct {
	// Output — выходные данные шага (попадают в отчёт).
	Output map[string]any

	// Delta — переменные, которые увидят потомки стадии.
	Delta runctx.Delta
}

// NewResult создаёт Result с output.
func NewResult(output map[string]any) *Result {
	if output == nil {
		output = make(map[string]any)
	}
	return &Result{Output: output}
}

// Step — зарегистрированная версия шага.
// Неизменяема после регистрации.
type Step struct {
	// Name — имя шага.
	Name string

	// Version — версия шага.
	Version *semver.Version

	// Schema — схема параметров.
	Schema Schema

	// Capabilities — возможности, которые требует шаг ("exec", "network").
	Capabilities []string

	// Description — описание шага.
	Description string

	body      Body
	validator *gojsonschema.Schema
}

// Option — опция регистрации шага.
type Option func(*Step)

// WithCapabilities задаёт требуемые capabilities.
func WithCapabilities(caps ...string) Option {
	return func(s *Step) {
		s.Capabilities = append(s.Capabilities, caps...)
	}
}

// WithDescription задаёт описание шага.
func WithDescription(desc string) Option {
	return func(s *Step) {
		s.Description = desc
	}
}

// Ref возвращает ссылку вида name@version.
func (s *Step) Ref() string {
	return s.Name + "@" + s.Version.String()
}

// Requires проверяет, требует ли шаг capability.
func (s *Step) Requires(capability string) bool {
	return slices.Contains(s.Capabilities, capability)
}

// Prepare заполняет значения по умолчанию и проверяет параметры по схеме.
// Возвращает новую map; params не изменяется.
func (s *Step) Prepare(params map[string]any) (map[string]any, error) {
	prepared := s.Schema.withDefaults(params)

	if s.validator == nil {
		return prepared, nil
	}

	result, err := s.validator.Validate(gojsonschema.NewGoLoader(prepared))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParams, s.Ref(), err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidParams, s.Ref(), describeErrors(result.Errors()))
	}

	return prepared, nil
}

// Invoke выполняет тело шага.
func (s *Step) Invoke(ctx context.Context, params map[string]any, rc *runctx.Context) (*Result, error) {
	return s.body.Invoke(ctx, params, rc)
}

// ParamString извлекает строковый параметр.
func ParamString(params map[string]any, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ParamInt извлекает числовой параметр.
func ParamInt(params map[string]any, key string) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// ParamBool извлекает булев параметр.
func ParamBool(params map[string]any, key string, defaultVal bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// ParamMap извлекает map-параметр.
func ParamMap(params map[string]any, key string) map[string]any {
	if v, ok := params[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// ParamMapString извлекает map[string]string; нестроковые значения форматируются.
func ParamMapString(params map[string]any, key string) map[string]string {
	v, ok := params[key]
	if !ok {
		return nil
	}
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		result := make(map[string]string, len(m))
		for k, val := range m {
			if s, ok := val.(string); ok {
				result[k] = s
			} else {
				result[k] = fmt.Sprint(val)
			}
		}
		return result
	}
	return nil
}
