package runctx

import (
	"maps"

	"github.com/google/uuid"
)

// Delta — добавленные или переопределённые шагом переменные.
type Delta map[string]any

// Options — параметры корневого контекста run.
type Options struct {
	// RunID — ID run. Если не задан, генерируется новый.
	RunID uuid.UUID

	// Branch — имя ветки, для которой выполняется run.
	Branch string

	// Vars — начальные переменные.
	Vars map[string]any

	// Credentials — дескрипторы секретов: имя → ссылка на секрет во внешнем хранилище.
	// Сами значения секретов сюда не попадают.
	Credentials map[string]string
}

// Context — неизменяемый слоистый снимок состояния run.
//
// Каждый слой хранит только свою delta и ссылку на родителя.
// With создаёт дочерний слой; родитель никогда не изменяется,
// поэтому параллельные ветки безопасно получают общих предков.
type Context struct {
	parent *Context
	vars   map[string]any

	runID       uuid.UUID
	branch      string
	credentials map[string]string
}

// New создаёт корневой контекст run.
func New(opts Options) *Context {
	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	return &Context{
		vars:        maps.Clone(opts.Vars),
		runID:       runID,
		branch:      opts.Branch,
		credentials: maps.Clone(opts.Credentials),
	}
}

// With возвращает дочерний слой с копией delta.
// Пустая delta не создаёт новый слой.
func (c *Context) With(delta Delta) *Context {
	if len(delta) == 0 {
		return c
	}
	return &Context{
		parent:      c,
		vars:        maps.Clone(map[string]any(delta)),
		runID:       c.runID,
		branch:      c.branch,
		credentials: c.credentials,
	}
}

// Get возвращает значение переменной, начиная с ближайшего слоя.
func (c *Context) Get(key string) (any, bool) {
	for layer := c; layer != nil; layer = layer.parent {
		if v, ok := layer.vars[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// String возвращает переменную как строку (пусто, если нет или не строка).
func (c *Context) String(key string) string {
	v, ok := c.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Vars возвращает плоскую копию всех видимых переменных.
func (c *Context) Vars() map[string]any {
	var chain []*Context
	for layer := c; layer != nil; layer = layer.parent {
		chain = append(chain, layer)
	}

	result := make(map[string]any)
	for i := len(chain) - 1; i >= 0; i-- {
		maps.Copy(result, chain[i].vars)
	}
	return result
}

// RunID возвращает ID run.
func (c *Context) RunID() uuid.UUID {
	return c.runID
}

// Branch возвращает имя ветки.
func (c *Context) Branch() string {
	return c.branch
}

// Credential возвращает дескриптор секрета по имени.
func (c *Context) Credential(name string) (string, bool) {
	h, ok := c.credentials[name]
	return h, ok
}
