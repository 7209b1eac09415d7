package steps

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Типы параметров.
const (
	ParamTypeString  = "string"
	ParamTypeInteger = "integer"
	ParamTypeNumber  = "number"
	ParamTypeBoolean = "boolean"
	ParamTypeObject  = "object"
	ParamTypeArray   = "array"
	ParamTypeAny     = "any"
)

// Param — описание параметра шага.
type Param struct {
	// Type — тип значения (ParamType*). Пустой тип эквивалентен "any".
	Type string `json:"type,omitempty"`

	// Required — параметр обязателен (если нет Default).
	Required bool `json:"required,omitempty"`

	// Default — значение по умолчанию.
	Default any `json:"default,omitempty"`

	// Description — описание параметра.
	Description string `json:"description,omitempty"`
}

// Schema — схема параметров шага: имя → описание.
//
// nil Schema означает, что параметры не проверяются.
// Пустая (не nil) Schema запрещает любые параметры.
type Schema map[string]Param

// Names возвращает отсортированные имена параметров.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check проверяет набор статически заданных параметров:
// неизвестные имена и отсутствующие обязательные параметры без default.
func (s Schema) Check(keys []string) error {
	if s == nil {
		return nil
	}

	given := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := s[k]; !ok {
			return fmt.Errorf("%w: unknown param %q", ErrInvalidParams, k)
		}
		given[k] = true
	}

	for _, name := range s.Names() {
		p := s[name]
		if p.Required && p.Default == nil && !given[name] {
			return fmt.Errorf("%w: missing required param %q", ErrInvalidParams, name)
		}
	}

	return nil
}

// withDefaults возвращает копию params с заполненными значениями по умолчанию.
// Строки, полученные рендерингом шаблонов, приводятся к типу из схемы.
func (s Schema) withDefaults(params map[string]any) map[string]any {
	result := make(map[string]any, len(params)+len(s))
	for k, v := range params {
		if p, ok := s[k]; ok {
			v = coerce(v, p.Type)
		}
		result[k] = v
	}
	for name, p := range s {
		if _, ok := result[name]; !ok && p.Default != nil {
			result[name] = p.Default
		}
	}
	return result
}

// coerce пытается распарсить строку как JSON, если схема ожидает не строку.
func coerce(v any, typ string) any {
	str, ok := v.(string)
	if !ok {
		return v
	}
	switch typ {
	case ParamTypeInteger, ParamTypeNumber, ParamTypeBoolean, ParamTypeObject, ParamTypeArray:
		var parsed any
		if err := json.Unmarshal([]byte(strings.TrimSpace(str)), &parsed); err == nil {
			return parsed
		}
	}
	return v
}

// compile собирает JSON Schema документ и компилирует его.
func (s Schema) compile() (*gojsonschema.Schema, error) {
	if s == nil {
		return nil, nil
	}

	properties := make(map[string]any, len(s))
	required := make([]string, 0)

	for _, name := range s.Names() {
		p := s[name]
		prop := make(map[string]any)
		switch p.Type {
		case "", ParamTypeAny:
		case ParamTypeString, ParamTypeInteger, ParamTypeNumber, ParamTypeBoolean, ParamTypeObject, ParamTypeArray:
			prop["type"] = p.Type
		default:
			return nil, fmt.Errorf("%w: param %q has unknown type %q", ErrInvalidSchema, name, p.Type)
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[name] = prop

		if p.Required {
			required = append(required, name)
		}
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return compiled, nil
}

// describeErrors форматирует ошибки валидации в одну строку.
func describeErrors(errs []gojsonschema.ResultError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.String())
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
