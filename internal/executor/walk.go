package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/engine"
	"github.com/shaiso/stagehand/internal/report"
	"github.com/shaiso/stagehand/internal/runctx"
)

// walk — состояние одного обхода графа.
type walk struct {
	executor *Executor
	logger   *slog.Logger

	// interrupted — хоть одна стадия прервана отменой ctx.
	interrupted atomic.Bool
}

// runNode выполняет стадию и её поддерево.
func (w *walk) runNode(ctx context.Context, n *engine.Node, rc *runctx.Context) *report.Outcome {
	if ctx.Err() != nil {
		w.interrupted.Store(true)
		return abortTree(n, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err()))
	}

	out := newOutcome(n)
	out.StartedAt = time.Now()

	logger := w.logger
	if !n.IsRoot() {
		logger = logger.With("stage_id", n.ID)
		logger.Debug("stage started", "kind", n.Kind)
	}

	if n.Guard != nil {
		ok, err := n.Guard.Evaluate(rc)
		if err != nil {
			out.Status = domain.StatusFailure
			out.Err = fmt.Errorf("%w: %w", ErrGuard, err)
			out.Children = abortChildren(n, fmt.Errorf("%w: guard of %s failed", ErrNotStarted, n.ID))
			return w.finish(logger, out)
		}
		if !ok {
			skipped := skipTree(n)
			skipped.StartedAt = out.StartedAt
			skipped.FinishedAt = time.Now()
			logger.Debug("stage skipped", "guard", n.Guard.String())
			return skipped
		}
	}

	childRC := rc
	if n.Invocation != nil {
		res, attempts, err := w.invoke(ctx, logger, n, rc)
		out.Attempts = attempts
		if err != nil {
			out.Err = err
			out.Status = domain.StatusFailure
			if errors.Is(err, ErrCancelled) {
				out.Status = domain.StatusAborted
				w.interrupted.Store(true)
			}
			out.Children = abortChildren(n, fmt.Errorf("%w: step of %s did not succeed", ErrNotStarted, n.ID))
			return w.finish(logger, out)
		}
		out.Output = res.Output
		childRC = rc.With(res.Delta)
	}

	switch n.Kind {
	case engine.KindSequential, engine.KindConditional:
		out.Children, out.Status = w.runSequential(ctx, n.Children, childRC)
	case engine.KindParallel:
		out.Children, out.Status = w.runParallel(ctx, n.Children, childRC)
	default:
		panic(fmt.Sprintf("executor: unknown stage kind %q in compiled graph", n.Kind))
	}

	return w.finish(logger, out)
}

// runSequential выполняет стадии по порядку на текущей горутине.
// После падения стадии (без continue_on_error) остальные получают ABORTED.
func (w *walk) runSequential(ctx context.Context, children []*engine.Node, rc *runctx.Context) ([]*report.Outcome, domain.Status) {
	outs := make([]*report.Outcome, 0, len(children))
	status := domain.StatusSuccess
	var blockedBy string

	for _, child := range children {
		if blockedBy != "" {
			outs = append(outs, abortTree(child, fmt.Errorf("%w: previous stage %s did not succeed", ErrNotStarted, blockedBy)))
			continue
		}

		out := w.runNode(ctx, child, rc)
		outs = append(outs, out)

		if child.ContinueOnError || !out.Status.Blocks() {
			continue
		}
		blockedBy = child.ID
		status = out.Status
	}

	return outs, status
}

// runParallel выполняет стадии конкурентно и ждёт всех (join barrier).
// Падение одной стадии не отменяет остальные.
func (w *walk) runParallel(ctx context.Context, children []*engine.Node, rc *runctx.Context) ([]*report.Outcome, domain.Status) {
	outs := make([]*report.Outcome, len(children))
	pool := w.executor.pool

	var wg sync.WaitGroup
	for i, child := range children {
		if pool.TryAcquire(1) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer pool.Release(1)
				outs[i] = w.runNode(ctx, child, rc)
			}()
			continue
		}
		// Пул занят — выполняем сами.
		outs[i] = w.runNode(ctx, child, rc)
	}
	wg.Wait()

	// continue_on_error здесь не действует: группа с упавшей стадией
	// не может завершиться SUCCESS.
	status := domain.StatusSuccess
	for _, out := range outs {
		switch out.Status {
		case domain.StatusFailure:
			status = domain.StatusFailure
		case domain.StatusAborted:
			if status != domain.StatusFailure {
				status = domain.StatusAborted
			}
		}
	}

	return outs, status
}

// finish фиксирует время завершения и логирует исход.
func (w *walk) finish(logger *slog.Logger, out *report.Outcome) *report.Outcome {
	out.FinishedAt = time.Now()
	if out.StageID == "" {
		return out
	}

	switch out.Status {
	case domain.StatusFailure:
		logger.Warn("stage failed", "error", out.Err, "attempts", out.Attempts)
	case domain.StatusAborted:
		logger.Info("stage aborted", "error", out.Err)
	default:
		logger.Debug("stage finished", "status", out.Status, "duration", out.FinishedAt.Sub(out.StartedAt))
	}
	return out
}

func newOutcome(n *engine.Node) *report.Outcome {
	out := &report.Outcome{StageID: n.ID, ParentID: n.ParentID}
	if n.Invocation != nil {
		out.Step = n.Invocation.Step.Ref()
	}
	return out
}

// skipTree помечает поддерево как SKIPPED без вызовов.
func skipTree(n *engine.Node) *report.Outcome {
	out := newOutcome(n)
	out.Status = domain.StatusSkipped
	for _, child := range n.Children {
		out.Children = append(out.Children, skipTree(child))
	}
	return out
}

// abortTree помечает поддерево как ABORTED без вызовов.
func abortTree(n *engine.Node, err error) *report.Outcome {
	out := newOutcome(n)
	out.Status = domain.StatusAborted
	out.Err = err
	out.Children = abortChildren(n, err)
	return out
}

func abortChildren(n *engine.Node, err error) []*report.Outcome {
	if len(n.Children) == 0 {
		return nil
	}
	outs := make([]*report.Outcome, 0, len(n.Children))
	for _, child := range n.Children {
		outs = append(outs, abortTree(child, err))
	}
	return outs
}
