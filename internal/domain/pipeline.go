package domain

// PipelineSource — разобранное описание pipeline.
//
// Это абстрактное дерево, которое получает компилятор (engine.Compile).
// Формат исходника (YAML, JSONC) — забота pipelinefile, сюда попадает
// уже распарсенная структура.
//
// Пример (YAML):
//
//	name: build
//	permissions: [exec, network]
//	stages:
//	  - id: checkout
//	    step: {name: shell, version: "^1.0.0", params: {script: "git fetch"}}
//	  - id: tests
//	    kind: parallel
//	    stages:
//	      - id: unit
//	        step: {name: shell, params: {script: "go test ./..."}}
//	      - id: lint
//	        step: {name: shell, params: {script: "golangci-lint run"}}
//	  - id: deploy
//	    kind: conditional
//	    when: {branch: "main"}
//	    step: {name: deploy, version: ">=1.0.0 <2.0.0"}
type PipelineSource struct {
	// Name — имя pipeline.
	Name string `json:"name" yaml:"name"`

	// Description — описание назначения pipeline.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Permissions — capabilities, которые pipeline разрешает шагам
	// (например "exec", "network"). Проверяются при компиляции.
	Permissions []string `json:"permissions,omitempty" yaml:"permissions,omitempty"`

	// Defaults — настройки по умолчанию для всех шагов.
	Defaults *StageDefaults `json:"defaults,omitempty" yaml:"defaults,omitempty"`

	// Stages — стадии верхнего уровня. Выполняются последовательно.
	Stages []StageDef `json:"stages" yaml:"stages"`
}

// StageDefaults — настройки по умолчанию для вызовов шагов.
type StageDefaults struct {
	// Retry — политика повторных попыток.
	Retry *RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`

	// Timeout — таймаут вызова шага ("30s", "5m").
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Типы стадий.
const (
	// StageKindSequential — дочерние стадии выполняются строго по порядку.
	StageKindSequential = "sequential"

	// StageKindParallel — дочерние стадии выполняются параллельно.
	StageKindParallel = "parallel"

	// StageKindConditional — последовательная стадия с обязательным guard.
	StageKindConditional = "conditional"
)

// StageDef — определение стадии в pipeline.
type StageDef struct {
	// ID — уникальный (в рамках pipeline) идентификатор стадии.
	ID string `json:"id" yaml:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Kind — тип стадии: "sequential" (по умолчанию), "parallel", "conditional".
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	// When — guard. Если не выполняется, всё поддерево получает SKIPPED.
	When *GuardDef `json:"when,omitempty" yaml:"when,omitempty"`

	// Step — вызов шага (ноль или один на стадию).
	// Выполняется до дочерних стадий; его delta видна потомкам.
	Step *StepRef `json:"step,omitempty" yaml:"step,omitempty"`

	// Retry — политика повторных попыток, переопределяет defaults.retry.
	Retry *RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`

	// Timeout — таймаут вызова шага, переопределяет defaults.timeout.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// ContinueOnError — падение этой стадии не прерывает соседей
	// и не роняет родителя. Статус run всё равно будет FAILURE.
	ContinueOnError bool `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`

	// Stages — дочерние стадии.
	Stages []StageDef `json:"stages,omitempty" yaml:"stages,omitempty"`
}

// StepRef — ссылка на шаг в реестре.
type StepRef struct {
	// Name — имя шага.
	Name string `json:"name" yaml:"name"`

	// Version — ограничение версии (semver): "1.2.0", "^1.0.0", ">=1.0.0 <2.0.0".
	// Пустое значение — последняя версия.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Params — параметры вызова. Строки могут содержать Go templates.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// GuardDef — условие выполнения стадии.
// Все заданные части должны выполняться одновременно.
type GuardDef struct {
	// Branch — glob-шаблон имени ветки ("main", "release/*").
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`

	// Vars — переменные контекста, которые должны совпасть (строковое сравнение).
	Vars map[string]string `json:"vars,omitempty" yaml:"vars,omitempty"`

	// Expr — Go template условие, например `eq .Vars.env "prod"`.
	Expr string `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// IsEmpty возвращает true, если guard ничего не проверяет.
func (g *GuardDef) IsEmpty() bool {
	return g == nil || (g.Branch == "" && len(g.Vars) == 0 && g.Expr == "")
}

// Стратегии задержки между попытками.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// RetryPolicy — политика повторных попыток.
type RetryPolicy struct {
	// Max — количество повторов после первой попытки (0 — без повторов).
	Max int `json:"max,omitempty" yaml:"max,omitempty"`

	// Backoff — стратегия задержки: "fixed", "exponential" (по умолчанию).
	Backoff string `json:"backoff,omitempty" yaml:"backoff,omitempty"`

	// InitialDelayMs — начальная задержка в миллисекундах.
	InitialDelayMs int `json:"initial_delay_ms,omitempty" yaml:"initial_delay_ms,omitempty"`

	// MaxDelayMs — максимальная задержка в миллисекундах.
	MaxDelayMs int `json:"max_delay_ms,omitempty" yaml:"max_delay_ms,omitempty"`
}

// Attempts возвращает общее количество попыток (первая + повторы).
func (p *RetryPolicy) Attempts() int {
	if p == nil || p.Max <= 0 {
		return 1
	}
	return p.Max + 1
}
