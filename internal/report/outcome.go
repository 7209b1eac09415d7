package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/stagehand/internal/domain"
)

// Outcome — исход узла дерева стадий.
//
// Executor строит дерево Outcome, повторяющее дерево Node;
// Finalize превращает его в плоский RunReport.
type Outcome struct {
	StageID    string
	ParentID   string
	Step       string
	Status     domain.Status
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
	Output     map[string]any
	Children   []*Outcome
}

// Walk обходит дерево исходов в pre-order.
func (o *Outcome) Walk(fn func(*Outcome)) {
	fn(o)
	for _, child := range o.Children {
		child.Walk(fn)
	}
}

// Meta — сведения о run, не зависящие от исходов стадий.
type Meta struct {
	RunID          uuid.UUID
	Pipeline       string
	Fingerprint    string
	Branch         string
	StartedAt      time.Time
	FinishedAt     time.Time
	IdempotencyKey string
}

// Finalize собирает RunReport из дерева исходов.
//
// Итоговый статус:
//   - FAILURE, если хоть одна не пропущенная стадия упала
//   - ABORTED, если run был отменён до завершения
//   - SUCCESS в остальных случаях
//
// Стадии выводятся в порядке определения (pre-order). Корень
// с пустым StageID в отчёт не попадает.
func Finalize(meta Meta, root *Outcome, cancelled bool) *domain.RunReport {
	report := &domain.RunReport{
		RunID:          meta.RunID,
		Pipeline:       meta.Pipeline,
		Fingerprint:    meta.Fingerprint,
		Branch:         meta.Branch,
		StartedAt:      meta.StartedAt,
		FinishedAt:     meta.FinishedAt,
		IdempotencyKey: meta.IdempotencyKey,
		Stages:         []domain.StageOutcome{},
	}

	failed, aborted := false, false
	if root != nil {
		root.Walk(func(o *Outcome) {
			switch o.Status {
			case domain.StatusFailure:
				failed = true
			case domain.StatusAborted:
				aborted = true
			}
			if o.StageID == "" {
				return
			}
			report.Stages = append(report.Stages, toStageOutcome(o))
		})
	}

	switch {
	case failed:
		report.Status = domain.StatusFailure
	case cancelled || aborted:
		report.Status = domain.StatusAborted
	default:
		report.Status = domain.StatusSuccess
	}

	return report
}

func toStageOutcome(o *Outcome) domain.StageOutcome {
	so := domain.StageOutcome{
		StageID:    o.StageID,
		ParentID:   o.ParentID,
		Step:       o.Step,
		Status:     o.Status,
		Attempts:   o.Attempts,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
		Output:     o.Output,
	}
	if o.Err != nil {
		so.Error = o.Err.Error()
	}
	return so
}
