package runctx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// View — данные, доступные в шаблонах.
//
//   - {{ .Vars.image }}
//   - {{ .Branch }}
//   - {{ .RunID }}
//   - {{ .Credentials.registry }}
type View struct {
	Vars        map[string]any    `json:"vars"`
	Branch      string            `json:"branch"`
	RunID       string            `json:"run_id"`
	Credentials map[string]string `json:"credentials"`
}

// View собирает данные для шаблонов из контекста.
func (c *Context) View() *View {
	creds := make(map[string]string, len(c.credentials))
	for k, v := range c.credentials {
		creds[k] = v
	}
	return &View{
		Vars:        c.Vars(),
		Branch:      c.branch,
		RunID:       c.runID.String(),
		Credentials: creds,
	}
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если второй аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// coalesce — возвращает первое непустое значение
	"coalesce": func(values ...any) any {
		for _, v := range values {
			if v == nil {
				continue
			}
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			return v
		}
		return nil
	},

	// fromJSON — парсит JSON строку
	"fromJSON": func(s string) any {
		var result any
		if err := json.Unmarshal([]byte(s), &result); err != nil {
			return nil
		}
		return result
	},

	"join":      func(sep string, items []string) string { return strings.Join(items, sep) },
	"split":     func(sep, s string) []string { return strings.Split(s, sep) },
	"contains":  strings.Contains,
	"hasPrefix": strings.HasPrefix,
	"hasSuffix": strings.HasSuffix,
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
	"replace":   strings.ReplaceAll,
}

// IsTemplate проверяет, содержит ли строка шаблонные выражения.
func IsTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

// Parse компилирует шаблон без выполнения.
// Используется при компиляции pipeline, чтобы ошибки синтаксиса
// обнаруживались до запуска.
//
// Обращение к отсутствующему ключу (.Vars.imgae) — ошибка рендеринга.
// Необязательную переменную читают через index: {{ index .Vars "tag" }}.
func Parse(tmpl string) (*template.Template, error) {
	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}
	return t, nil
}

// ParseValue рекурсивно проверяет синтаксис всех шаблонов в значении.
func ParseValue(value any) error {
	switch v := value.(type) {
	case string:
		if !IsTemplate(v) {
			return nil
		}
		_, err := Parse(v)
		return err
	case map[string]any:
		for key, val := range v {
			if err := ParseValue(val); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	case []any:
		for i, val := range v {
			if err := ParseValue(val); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// ConditionTemplate оборачивает условие в if, чтобы получить bool.
func ConditionTemplate(condition string) string {
	return fmt.Sprintf(`{{if %s}}true{{else}}false{{end}}`, condition)
}

// Render рендерит строковый шаблон с контекстом.
func Render(tmpl string, view *View) (string, error) {
	if !IsTemplate(tmpl) {
		return tmpl, nil
	}

	t, err := Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderValue рендерит произвольное значение.
// Рекурсивно обрабатывает map и slice; остальные типы возвращаются как есть.
func RenderValue(value any, view *View) (any, error) {
	switch v := value.(type) {
	case string:
		return Render(v, view)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := RenderValue(val, view)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderValue(val, view)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	case map[string]string:
		result := make(map[string]string, len(v))
		for key, val := range v {
			rendered, err := Render(val, view)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	default:
		return value, nil
	}
}

// RenderParams рендерит параметры вызова шага.
func RenderParams(params map[string]any, view *View) (map[string]any, error) {
	result := make(map[string]any, len(params))
	for key, val := range params {
		rendered, err := RenderValue(val, view)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", key, err)
		}
		result[key] = rendered
	}
	return result, nil
}
