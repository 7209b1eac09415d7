package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/runctx"
	"github.com/shaiso/stagehand/internal/steps"
)

// StepResolver — источник шагов для компиляции.
// Реализуется steps.Registry.
type StepResolver interface {
	Resolve(name, constraint string) (*steps.Step, error)
}

// compiler — состояние одной компиляции.
type compiler struct {
	resolver    StepResolver
	permissions map[string]bool
	defaults    domain.StageDefaults
	nodes       map[string]*Node
	order       []string
}

// Compile компилирует PipelineSource в Pipeline.
//
// Проверяет:
//   - Наличие стадий
//   - Уникальность ID стадий во всём дереве
//   - Корректность типов стадий (parallel с детьми, conditional с guard)
//   - Разрешимость всех ссылок на шаги в реестре
//   - Capabilities шагов против permissions pipeline
//   - Статические параметры против схемы шага
//   - Синтаксис шаблонов в параметрах и guard
//   - Границы retry и таймаутов
//
// При любой ошибке возвращает *ValidationError и не возвращает
// частичный граф. Compile не имеет побочных эффектов: одинаковый
// источник даёт структурно одинаковый граф (и одинаковый Fingerprint).
func Compile(src *domain.PipelineSource, resolver StepResolver) (*Pipeline, error) {
	if resolver == nil {
		panic("engine: Compile called with nil resolver")
	}
	if src == nil || len(src.Stages) == 0 {
		return nil, NewValidationError("", "stages", "pipeline has no stages", ErrEmptyPipeline)
	}

	c := &compiler{
		resolver:    resolver,
		permissions: make(map[string]bool, len(src.Permissions)),
		nodes:       make(map[string]*Node),
	}
	for _, p := range src.Permissions {
		c.permissions[p] = true
	}
	if src.Defaults != nil {
		c.defaults = *src.Defaults
	}
	if err := validateRetry("", c.defaults.Retry); err != nil {
		return nil, err
	}
	if _, err := parseTimeout("", c.defaults.Timeout); err != nil {
		return nil, err
	}

	root := &Node{Kind: KindSequential}
	for i := range src.Stages {
		child, err := c.compileStage(&src.Stages[i], "")
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, child)
	}

	permissions := make([]string, 0, len(c.permissions))
	for p := range c.permissions {
		permissions = append(permissions, p)
	}
	sort.Strings(permissions)

	p := &Pipeline{
		Name:        src.Name,
		Description: src.Description,
		Root:        root,
		Permissions: permissions,
		nodes:       c.nodes,
		order:       c.order,
	}

	fp, err := fingerprint(p)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}
	p.fingerprint = fp

	return p, nil
}

// compileStage рекурсивно компилирует стадию и её потомков.
func (c *compiler) compileStage(def *domain.StageDef, parentID string) (*Node, error) {
	if def.ID == "" {
		where := "top level"
		if parentID != "" {
			where = "child of " + parentID
		}
		return nil, NewValidationError("", "id", "stage has empty ID ("+where+")", ErrEmptyStageID)
	}
	if _, exists := c.nodes[def.ID]; exists {
		return nil, NewValidationError(def.ID, "id",
			fmt.Sprintf("duplicate stage ID: %s", def.ID), ErrDuplicateStageID)
	}

	kind, err := parseKind(def.ID, def.Kind)
	if err != nil {
		return nil, err
	}

	node := &Node{
		ID:              def.ID,
		Name:            def.Name,
		Kind:            kind,
		ParentID:        parentID,
		ContinueOnError: def.ContinueOnError,
	}
	c.nodes[def.ID] = node
	c.order = append(c.order, def.ID)

	switch {
	case kind == KindParallel && len(def.Stages) == 0:
		return nil, NewValidationError(def.ID, "stages", "parallel stage has no children", ErrEmptyParallel)
	case kind == KindConditional && def.When.IsEmpty():
		return nil, NewValidationError(def.ID, "when", "conditional stage has no guard", ErrMissingGuard)
	case def.Step == nil && len(def.Stages) == 0:
		return nil, NewValidationError(def.ID, "step", "stage has neither step nor children", ErrEmptyStage)
	}

	if !def.When.IsEmpty() {
		guard, err := newGuard(def.ID, def.When)
		if err != nil {
			return nil, err
		}
		node.Guard = guard
	}

	if def.Step != nil {
		inv, err := c.compileInvocation(def)
		if err != nil {
			return nil, err
		}
		node.Invocation = inv
	}

	for i := range def.Stages {
		child, err := c.compileStage(&def.Stages[i], def.ID)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}

	return node, nil
}

// compileInvocation разрешает шаг и проверяет параметры вызова.
func (c *compiler) compileInvocation(def *domain.StageDef) (*Invocation, error) {
	ref := def.Step
	if ref.Name == "" {
		return nil, NewValidationError(def.ID, "step.name", "step reference has empty name", ErrUnresolvedStep)
	}

	step, err := c.resolver.Resolve(ref.Name, ref.Version)
	if err != nil {
		return nil, NewValidationError(def.ID, "step",
			fmt.Sprintf("cannot resolve %s@%s: %v", ref.Name, versionOrAny(ref.Version), err),
			fmt.Errorf("%w: %w", ErrUnresolvedStep, err))
	}

	for _, capability := range step.Capabilities {
		if !c.permissions[capability] {
			return nil, NewValidationError(def.ID, "step",
				fmt.Sprintf("%s requires capability %q not listed in permissions", step.Ref(), capability),
				ErrCapabilityDenied)
		}
	}

	if err := runctx.ParseValue(ref.Params); err != nil {
		return nil, NewValidationError(def.ID, "step.params", err.Error(), err)
	}

	keys := make([]string, 0, len(ref.Params))
	for k := range ref.Params {
		keys = append(keys, k)
	}
	if err := step.Schema.Check(keys); err != nil {
		return nil, NewValidationError(def.ID, "step.params",
			fmt.Sprintf("%s: %v", step.Ref(), err), fmt.Errorf("%w: %w", ErrInvalidParams, err))
	}

	// Без шаблонов параметры можно полностью проверить уже сейчас.
	if !hasTemplates(ref.Params) {
		if _, err := step.Prepare(ref.Params); err != nil {
			return nil, NewValidationError(def.ID, "step.params", err.Error(),
				fmt.Errorf("%w: %w", ErrInvalidParams, err))
		}
	}

	retry := def.Retry
	if retry == nil {
		retry = c.defaults.Retry
	}
	if err := validateRetry(def.ID, retry); err != nil {
		return nil, err
	}

	timeoutStr := def.Timeout
	if timeoutStr == "" {
		timeoutStr = c.defaults.Timeout
	}
	timeout, err := parseTimeout(def.ID, timeoutStr)
	if err != nil {
		return nil, err
	}

	inv := &Invocation{
		Step:    step,
		Params:  copyValue(ref.Params).(map[string]any),
		Timeout: timeout,
	}
	if retry != nil {
		inv.Retry = *retry
	}
	if inv.Params == nil {
		inv.Params = make(map[string]any)
	}

	return inv, nil
}

// parseKind проверяет тип стадии; пустой тип — sequential.
func parseKind(stageID, kind string) (Kind, error) {
	switch Kind(kind) {
	case "", KindSequential:
		return KindSequential, nil
	case KindParallel:
		return KindParallel, nil
	case KindConditional:
		return KindConditional, nil
	default:
		return "", NewValidationError(stageID, "kind",
			fmt.Sprintf("unknown stage kind: %s", kind), ErrUnknownKind)
	}
}

// validateRetry проверяет границы политики повторов.
func validateRetry(stageID string, p *domain.RetryPolicy) error {
	if p == nil {
		return nil
	}
	switch {
	case p.Max < 0:
		return NewValidationError(stageID, "retry.max", "retry max must be >= 0", ErrInvalidRetry)
	case p.InitialDelayMs < 0:
		return NewValidationError(stageID, "retry.initial_delay_ms", "initial delay must be >= 0", ErrInvalidRetry)
	case p.MaxDelayMs < 0:
		return NewValidationError(stageID, "retry.max_delay_ms", "max delay must be >= 0", ErrInvalidRetry)
	}
	switch p.Backoff {
	case "", domain.BackoffFixed, domain.BackoffExponential:
		return nil
	default:
		return NewValidationError(stageID, "retry.backoff",
			fmt.Sprintf("unknown backoff: %s", p.Backoff), ErrInvalidRetry)
	}
}

// parseTimeout разбирает таймаут; пустая строка — 0.
func parseTimeout(stageID, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, NewValidationError(stageID, "timeout",
			fmt.Sprintf("invalid timeout %q: %v", s, err), ErrInvalidTimeout)
	}
	if d < 0 {
		return 0, NewValidationError(stageID, "timeout",
			fmt.Sprintf("timeout must be >= 0, got %s", s), ErrInvalidTimeout)
	}
	return d, nil
}

func versionOrAny(v string) string {
	if v == "" {
		return "*"
	}
	return v
}

// hasTemplates проверяет, есть ли шаблоны среди значений.
func hasTemplates(value any) bool {
	switch v := value.(type) {
	case string:
		return runctx.IsTemplate(v)
	case map[string]any:
		for _, val := range v {
			if hasTemplates(val) {
				return true
			}
		}
	case []any:
		for _, val := range v {
			if hasTemplates(val) {
				return true
			}
		}
	}
	return false
}

// copyValue глубоко копирует map и slice, чтобы граф не разделял
// данные с исходником.
func copyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		if v == nil {
			return map[string]any(nil)
		}
		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = copyValue(val)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = copyValue(val)
		}
		return result
	default:
		return value
	}
}
