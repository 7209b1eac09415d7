package engine

import (
	"bytes"
	"fmt"
	"maps"
	"path"
	"sort"
	"text/template"

	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/runctx"
)

// Guard — условие выполнения стадии.
//
// Все заданные части должны выполняться:
//   - Branch — glob-шаблон (path.Match) имени ветки
//   - Vars — равенство переменных контекста (строковое сравнение)
//   - Expr — Go template условие, например `eq .Vars.env "prod"`
type Guard struct {
	Branch string
	Vars   map[string]string
	Expr   string

	expr *template.Template
}

// newGuard проверяет и компилирует guard.
func newGuard(stageID string, def *domain.GuardDef) (*Guard, error) {
	g := &Guard{
		Branch: def.Branch,
		Vars:   maps.Clone(def.Vars),
		Expr:   def.Expr,
	}

	if g.Branch != "" {
		if _, err := path.Match(g.Branch, ""); err != nil {
			return nil, NewValidationError(stageID, "when.branch",
				fmt.Sprintf("invalid branch pattern %q: %v", g.Branch, err), ErrInvalidGuard)
		}
	}

	if g.Expr != "" {
		t, err := runctx.Parse(runctx.ConditionTemplate(g.Expr))
		if err != nil {
			return nil, NewValidationError(stageID, "when.expr",
				fmt.Sprintf("invalid guard expression: %v", err), err)
		}
		g.expr = t
	}

	return g, nil
}

// Evaluate вычисляет guard против контекста.
func (g *Guard) Evaluate(rc *runctx.Context) (bool, error) {
	if g.Branch != "" {
		ok, err := path.Match(g.Branch, rc.Branch())
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidGuard, err)
		}
		if !ok {
			return false, nil
		}
	}

	keys := make([]string, 0, len(g.Vars))
	for k := range g.Vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, ok := rc.Get(k)
		if !ok || fmt.Sprint(v) != g.Vars[k] {
			return false, nil
		}
	}

	if g.expr != nil {
		var buf bytes.Buffer
		if err := g.expr.Execute(&buf, rc.View()); err != nil {
			return false, fmt.Errorf("%w: %v", runctx.ErrTemplateRender, err)
		}
		return buf.String() == "true", nil
	}

	return true, nil
}

// String возвращает описание guard для логов.
func (g *Guard) String() string {
	var parts []string
	if g.Branch != "" {
		parts = append(parts, "branch="+g.Branch)
	}
	keys := make([]string, 0, len(g.Vars))
	for k := range g.Vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+g.Vars[k])
	}
	if g.Expr != "" {
		parts = append(parts, "expr="+g.Expr)
	}
	return fmt.Sprint(parts)
}
