package steps

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// Registry — реестр версионированных шагов.
//
// Ключ — пара (name, version). Реестр только дополняется:
// существующие версии не изменяются и не удаляются.
// Потокобезопасен; Resolve можно вызывать конкурентно.
type Registry struct {
	mu    sync.RWMutex
	steps map[string][]*Step // версии по убыванию
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string][]*Step),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными шагами.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.MustRegister(StepEcho, "1.0.0", echoSchema, NewEchoStep(os.Stdout),
		WithDescription("print a message"))
	r.MustRegister(StepShell, "1.0.0", shellSchema, NewShellStep(),
		WithCapabilities(CapabilityExec), WithDescription("run a shell script"))
	r.MustRegister(StepHTTP, "1.0.0", httpSchema, NewHTTPStep(),
		WithCapabilities(CapabilityNetwork), WithDescription("perform an HTTP request"))
	r.MustRegister(StepDelay, "1.0.0", delaySchema, NewDelayStep(),
		WithDescription("pause execution"))
	r.MustRegister(StepTransform, "1.0.0", transformSchema, NewTransformStep(),
		WithDescription("render mappings into context variables"))
	r.MustRegister(StepSetVar, "1.0.0", setVarSchema, NewSetVarStep(),
		WithDescription("write literal values into context variables"))

	return r
}

// Register регистрирует новую версию шага.
//
// Возвращает *DuplicateVersionError, если (name, version) уже есть,
// ErrInvalidVersion для версии не в формате semver.
func (r *Registry) Register(name, version string, schema Schema, body Body, opts ...Option) (*Step, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if body == nil {
		panic("steps: Register called with nil body for " + name)
	}

	v, err := semver.StrictNewVersion(version)
	if err != nil {
		return nil, fmt.Errorf("%w: %s@%s: %v", ErrInvalidVersion, name, version, err)
	}

	validator, err := schema.compile()
	if err != nil {
		return nil, fmt.Errorf("register %s@%s: %w", name, version, err)
	}

	step := &Step{
		Name:      name,
		Version:   v,
		Schema:    schema,
		body:      body,
		validator: validator,
	}
	for _, opt := range opts {
		opt(step)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.steps[name]
	for _, existing := range versions {
		if existing.Version.Equal(v) {
			return nil, &DuplicateVersionError{Name: name, Version: v.String()}
		}
	}

	versions = append(versions, step)
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Version.GreaterThan(versions[j].Version)
	})
	r.steps[name] = versions

	return step, nil
}

// MustRegister регистрирует шаг и паникует при ошибке.
// Используется для встроенных шагов.
func (r *Registry) MustRegister(name, version string, schema Schema, body Body, opts ...Option) *Step {
	step, err := r.Register(name, version, schema, body, opts...)
	if err != nil {
		panic(err)
	}
	return step
}

// Resolve возвращает наибольшую версию шага, удовлетворяющую ограничению.
//
// Ограничение — semver constraint (">=1.0.0 <2.0.0", "^1.2", "1.2.0").
// Пустое ограничение, "*" и "latest" означают любую версию.
func (r *Registry) Resolve(name, constraint string) (*Step, error) {
	var c *semver.Constraints
	if !isAnyVersion(constraint) {
		parsed, err := semver.NewConstraint(constraint)
		if err != nil {
			return nil, fmt.Errorf("%w: %s@%s: %v", ErrInvalidConstraint, name, constraint, err)
		}
		c = parsed
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.steps[name]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, name)
	}
	if c == nil {
		return versions[0], nil
	}

	for _, step := range versions {
		if c.Check(step.Version) {
			return step, nil
		}
	}

	return nil, fmt.Errorf("%w: %s@%s", ErrStepNotFound, name, constraint)
}

// isAnyVersion проверяет, означает ли ограничение любую версию.
func isAnyVersion(constraint string) bool {
	return constraint == "" || constraint == "*" || constraint == "latest"
}

// Names возвращает отсортированные имена зарегистрированных шагов.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.steps))
	for name := range r.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Versions возвращает версии шага по убыванию.
func (r *Registry) Versions(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := make([]string, 0, len(r.steps[name]))
	for _, step := range r.steps[name] {
		versions = append(versions, step.Version.String())
	}
	return versions
}

// Steps возвращает все версии всех шагов: по имени, затем по убыванию версии.
func (r *Registry) Steps() []*Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.steps))
	for name := range r.steps {
		names = append(names, name)
	}
	sort.Strings(names)

	var all []*Step
	for _, name := range names {
		all = append(all, r.steps[name]...)
	}
	return all
}

// Len возвращает общее количество зарегистрированных версий.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, versions := range r.steps {
		n += len(versions)
	}
	return n
}
