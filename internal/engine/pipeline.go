package engine

import (
	"slices"
	"time"

	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/steps"
)

// Kind — тип стадии.
type Kind string

const (
	KindSequential  Kind = domain.StageKindSequential
	KindParallel    Kind = domain.StageKindParallel
	KindConditional Kind = domain.StageKindConditional
)

// Pipeline — скомпилированный pipeline.
//
// Строгое дерево Node с синтетическим корнем (ID пустой,
// KindSequential), дочерние узлы которого — стадии верхнего уровня.
// Не изменяется после Compile; безопасен для конкурентного чтения
// и повторных запусков.
type Pipeline struct {
	// Name — имя pipeline.
	Name string

	// Description — описание pipeline.
	Description string

	// Root — синтетический корень дерева.
	Root *Node

	// Permissions — объявленные capabilities.
	Permissions []string

	nodes       map[string]*Node
	order       []string
	fingerprint string
}

// Node — узел дерева стадий.
type Node struct {
	// ID — ID стадии (пустой у корня).
	ID string

	// Name — человекочитаемое имя.
	Name string

	// Kind — тип стадии.
	Kind Kind

	// ParentID — ID родителя (пустой для стадий верхнего уровня).
	ParentID string

	// Children — дочерние стадии в порядке определения.
	Children []*Node

	// Guard — условие выполнения (nil — всегда).
	Guard *Guard

	// Invocation — вызов шага (nil — у стадии нет шага).
	Invocation *Invocation

	// ContinueOnError — падение не прерывает следующие стадии последовательной
	// группы. На статус параллельной группы не влияет.
	ContinueOnError bool
}

// Invocation — разрешённый при компиляции вызов шага.
type Invocation struct {
	// Step — версия шага из реестра.
	Step *steps.Step

	// Params — статические параметры (шаблоны рендерятся при выполнении).
	Params map[string]any

	// Retry — итоговая политика повторов.
	Retry domain.RetryPolicy

	// Timeout — дедлайн вызова (0 — таймаут Executor по умолчанию).
	Timeout time.Duration
}

// IsRoot проверяет, является ли узел синтетическим корнем.
func (n *Node) IsRoot() bool {
	return n.ID == ""
}

// Walk обходит поддерево в pre-order.
// Если fn возвращает false, потомки узла не посещаются.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Node возвращает узел по ID стадии.
func (p *Pipeline) Node(id string) (*Node, bool) {
	n, ok := p.nodes[id]
	return n, ok
}

// StageIDs возвращает ID всех стадий в порядке определения (pre-order).
func (p *Pipeline) StageIDs() []string {
	return slices.Clone(p.order)
}

// Len возвращает количество стадий (без корня).
func (p *Pipeline) Len() int {
	return len(p.order)
}

// Fingerprint возвращает hex-отпечаток структуры графа.
func (p *Pipeline) Fingerprint() string {
	return p.fingerprint
}
