package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/engine"
	"github.com/shaiso/stagehand/internal/runctx"
	"github.com/shaiso/stagehand/internal/steps"
)

// recorder считает вызовы шагов и запоминает видимые переменные.
type recorder struct {
	mu    sync.Mutex
	calls map[string]int
	vars  map[string]map[string]any
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[string]int), vars: make(map[string]map[string]any)}
}

func (r *recorder) hit(name string, rc *runctx.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name]++
	r.vars[name] = rc.Vars()
	return r.calls[name]
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

func (r *recorder) seen(name string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vars[name]
}

// testRegistry регистрирует тестовые шаги; параметр name идентифицирует вызов.
func testRegistry(rec *recorder) *steps.Registry {
	r := steps.NewRegistry()
	name := func(p map[string]any) string { return steps.ParamString(p, "name") }

	r.MustRegister("ok", "1.0.0", nil, steps.BodyFunc(
		func(_ context.Context, p map[string]any, rc *runctx.Context) (*steps.Result, error) {
			rec.hit(name(p), rc)
			res := steps.NewResult(map[string]any{"name": name(p)})
			if vars := steps.ParamMap(p, "set"); vars != nil {
				res.Output["set"] = vars
				res.Delta = runctx.Delta(vars)
			}
			return res, nil
		}))

	r.MustRegister("sleep", "1.0.0", nil, steps.BodyFunc(
		func(ctx context.Context, p map[string]any, rc *runctx.Context) (*steps.Result, error) {
			rec.hit(name(p), rc)
			select {
			case <-time.After(time.Duration(steps.ParamInt(p, "ms")) * time.Millisecond):
				return steps.NewResult(nil), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}))

	r.MustRegister("fail", "1.0.0", nil, steps.BodyFunc(
		func(_ context.Context, p map[string]any, rc *runctx.Context) (*steps.Result, error) {
			rec.hit(name(p), rc)
			return nil, errors.New("boom")
		}))

	r.MustRegister("flaky", "1.0.0", nil, steps.BodyFunc(
		func(_ context.Context, p map[string]any, rc *runctx.Context) (*steps.Result, error) {
			if rec.hit(name(p), rc) <= steps.ParamInt(p, "failures") {
				return nil, errors.New("transient")
			}
			return steps.NewResult(nil), nil
		}))

	r.MustRegister("hang", "1.0.0", nil, steps.BodyFunc(
		func(_ context.Context, p map[string]any, rc *runctx.Context) (*steps.Result, error) {
			rec.hit(name(p), rc)
			time.Sleep(time.Second)
			return steps.NewResult(nil), nil
		}))

	r.MustRegister("panic", "1.0.0", nil, steps.BodyFunc(
		func(_ context.Context, p map[string]any, rc *runctx.Context) (*steps.Result, error) {
			rec.hit(name(p), rc)
			panic("kaboom")
		}))

	r.MustRegister("typed", "1.0.0", steps.Schema{"count": {Type: steps.ParamTypeInteger}}, steps.BodyFunc(
		func(_ context.Context, p map[string]any, rc *runctx.Context) (*steps.Result, error) {
			rec.hit("typed", rc)
			return steps.NewResult(nil), nil
		}))

	return r
}

// stage — короткая запись стадии с шагом.
func stage(id, step string, params map[string]any) domain.StageDef {
	if params == nil {
		params = map[string]any{}
	}
	params["name"] = id
	return domain.StageDef{ID: id, Step: &domain.StepRef{Name: step, Params: params}}
}

func compile(t *testing.T, rec *recorder, stages ...domain.StageDef) *engine.Pipeline {
	t.Helper()
	p, err := engine.Compile(&domain.PipelineSource{Name: "test", Stages: stages}, testRegistry(rec))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return p
}

func newExecutor(workers int) *Executor {
	return New(Config{
		Workers: workers,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func status(t *testing.T, r *domain.RunReport, id string) domain.StageOutcome {
	t.Helper()
	o, ok := r.Stage(id)
	if !ok {
		t.Fatalf("stage %s not in report", id)
	}
	return o
}

func TestExecute_ChainFailure(t *testing.T) {
	rec := newRecorder()
	p := compile(t, rec, stage("A", "ok", nil), stage("B", "fail", nil))

	r := newExecutor(0).Execute(context.Background(), p, runctx.New(runctx.Options{}))

	if r.Status != domain.StatusFailure {
		t.Errorf("expected FAILURE, got %s", r.Status)
	}
	if s := status(t, r, "A").Status; s != domain.StatusSuccess {
		t.Errorf("A: expected SUCCESS, got %s", s)
	}
	b := status(t, r, "B")
	if b.Status != domain.StatusFailure {
		t.Errorf("B: expected FAILURE, got %s", b.Status)
	}
	if !strings.Contains(b.Error, "boom") {
		t.Errorf("B: error should carry step error, got %q", b.Error)
	}
	if len(r.Stages) != 2 {
		t.Errorf("expected 2 stages, got %d", len(r.Stages))
	}
}

func TestExecute_SequentialAbortsLaterSiblings(t *testing.T) {
	rec := newRecorder()
	group := domain.StageDef{ID: "d", Stages: []domain.StageDef{stage("d1", "ok", nil)}}
	p := compile(t, rec,
		stage("a", "ok", nil),
		stage("b", "fail", nil),
		stage("c", "ok", nil),
		group,
	)

	r := newExecutor(0).Execute(context.Background(), p, runctx.New(runctx.Options{}))

	for _, id := range []string{"c", "d", "d1"} {
		o := status(t, r, id)
		if o.Status != domain.StatusAborted {
			t.Errorf("%s: expected ABORTED, got %s", id, o.Status)
		}
		if !o.StartedAt.IsZero() {
			t.Errorf("%s: aborted stage must not have started", id)
		}
	}
	if rec.count("c") != 0 || rec.count("d1") != 0 {
		t.Error("aborted stages must not be invoked")
	}
	if r.Status != domain.StatusFailure {
		t.Errorf("expected FAILURE, got %s", r.Status)
	}
}

func TestExecute_ParallelTiming(t *testing.T) {
	rec := newRecorder()
	p := compile(t, rec, domain.StageDef{
		ID:   "group",
		Kind: "parallel",
		Stages: []domain.StageDef{
			stage("C", "sleep", map[string]any{"ms": 100}),
			stage("D", "sleep", map[string]any{"ms": 10}),
		},
	})

	start := time.Now()
	r := newExecutor(4).Execute(context.Background(), p, runctx.New(runctx.Options{}))
	elapsed := time.Since(start)

	if r.Status != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", r.Status)
	}
	if elapsed < 100*time.Millisecond {
		t.Errorf("group finished before slowest child: %v", elapsed)
	}
	if elapsed > 400*time.Millisecond {
		t.Errorf("children did not run concurrently: %v", elapsed)
	}

	group := status(t, r, "group")
	for _, id := range []string{"C", "D"} {
		child := status(t, r, id)
		if child.Status != domain.StatusSuccess {
			t.Errorf("%s: expected SUCCESS, got %s", id, child.Status)
		}
		if group.FinishedAt.Before(child.FinishedAt) {
			t.Errorf("group completed before %s", id)
		}
	}
}

func TestExecute_ParallelFailureDoesNotCancelSiblings(t *testing.T) {
	rec := newRecorder()
	p := compile(t, rec, domain.StageDef{
		ID:   "group",
		Kind: "parallel",
		Stages: []domain.StageDef{
			stage("slow", "sleep", map[string]any{"ms": 50}),
			stage("broken", "fail", nil),
		},
	})

	r := newExecutor(4).Execute(context.Background(), p, runctx.New(runctx.Options{}))

	if s := status(t, r, "slow").Status; s != domain.StatusSuccess {
		t.Errorf("slow: expected SUCCESS, got %s", s)
	}
	if s := status(t, r, "group").Status; s != domain.StatusFailure {
		t.Errorf("group: expected FAILURE, got %s", s)
	}
	if r.Status != domain.StatusFailure {
		t.Errorf("expected FAILURE, got %s", r.Status)
	}
}

func TestExecute_GuardFalseSkipsSubtree(t *testing.T) {
	rec := newRecorder()
	deploy := domain.StageDef{
		ID:   "deploy",
		Kind: "conditional",
		When: &domain.GuardDef{Branch: "main"},
		Step: &domain.StepRef{Name: "ok", Params: map[string]any{"name": "deploy"}},
		Stages: []domain.StageDef{
			stage("push", "ok", nil),
			{ID: "notify", Kind: "parallel", Stages: []domain.StageDef{stage("chat", "ok", nil), stage("mail", "ok", nil)}},
		},
	}
	p := compile(t, rec, stage("build", "ok", nil), deploy)

	r := newExecutor(0).Execute(context.Background(), p, runctx.New(runctx.Options{Branch: "feature/x"}))

	if r.Status != domain.StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", r.Status)
	}
	for _, id := range []string{"deploy", "push", "notify", "chat", "mail"} {
		if s := status(t, r, id).Status; s != domain.StatusSkipped {
			t.Errorf("%s: expected SKIPPED, got %s", id, s)
		}
	}
	if rec.total() != 1 || rec.count("build") != 1 {
		t.Errorf("expected only build to be invoked, got %v", rec.calls)
	}
}

func TestExecute_GuardTrueRuns(t *testing.T) {
	rec := newRecorder()
	p := compile(t, rec, domain.StageDef{
		ID:   "deploy",
		When: &domain.GuardDef{Branch: "release/*", Expr: `eq .Vars.env "prod"`},
		Step: &domain.StepRef{Name: "ok", Params: map[string]any{"name": "deploy"}},
	})

	rc := runctx.New(runctx.Options{Branch: "release/2.0", Vars: map[string]any{"env": "prod"}})
	r := newExecutor(0).Execute(context.Background(), p, rc)

	if r.Status != domain.StatusSuccess || rec.count("deploy") != 1 {
		t.Errorf("expected deploy to run once, status %s calls %d", r.Status, rec.count("deploy"))
	}
}

func TestExecute_GuardErrorFails(t *testing.T) {
	rec := newRecorder()
	p := compile(t, rec, domain.StageDef{
		ID:     "deploy",
		When:   &domain.GuardDef{Expr: `.Missing.Field`},
		Stages: []domain.StageDef{stage("push", "ok", nil)},
	})

	r := newExecutor(0).Execute(context.Background(), p, runctx.New(runctx.Options{}))

	d := status(t, r, "deploy")
	if d.Status != domain.StatusFailure || !strings.Contains(d.Error, "guard") {
		t.Errorf("expected guard FAILURE, got %s %q", d.Status, d.Error)
	}
	if rec.count("push") != 0 {
		t.Error("children of a failed guard must not run")
	}
}

func TestExecute_RetryBound(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		rec := newRecorder()
		def := stage("s", "fail", nil)
		def.Retry = &domain.RetryPolicy{Max: n, InitialDelayMs: 1}
		p := compile(t, rec, def)

		r := newExecutor(0).Execute(context.Background(), p, runctx.New(runctx.Options{}))

		if got := rec.count("s"); got != n+1 {
			t.Errorf("retry %d: expected %d attempts, got %d", n, n+1, got)
		}
		o := status(t, r, "s")
		if o.Status != domain.StatusFailure || o.Attempts != n+1 {
			t.Errorf("retry %d: expected FAILURE after %d attempts, got %s/%d", n, n+1, o.Status, o.Attempts)
		}
	}
}

func TestExecute_RetryRecovers(t *testing.T) {
	rec := newRecorder()
	def := stage("s", "flaky", map[string]any{"failures": 2})
	def.Retry = &domain.RetryPolicy{Max: 5, InitialDelayMs: 1, Backoff: "fixed"}
	p := compile(t, rec, def)

	r := newExecutor(0).Execute(context.Background(), p, runctx.New(runctx.Options{}))

	o := status(t, r, "s")
	if o.Status != domain.StatusSuccess || o.Attempts != 3 {
		t.Errorf("expected SUCCESS on attempt 3, got %s/%d", o.Status, o.Attempts)
	}
}

func TestExecute_Timeout(t *testing.T) {
	rec := newRecorder()
	def := stage("s", "hang", nil)
	def.Timeout = "50ms"
	p := compile(t, rec, def, stage("after", "ok", nil))

	start := time.Now()
	r := newExecutor(0).Execute(context.Background(), p, runctx.New(runctx.Options{}))
	elapsed := time.Since(start)

	if elapsed > 500*time.Millisecond {
		t.Errorf("executor waited for hung step: %v", elapsed)
	}
	o := status(t, r, "s")
	if o.Status != domain.StatusFailure || !strings.Contains(o.Error, ErrTimeout.Error()) {
		t.Errorf("expected timeout FAILURE, got %s %q", o.Status, o.Error)
	}
	if s := status(t, r, "after").Status; s != domain.StatusAborted {
		t.Errorf("after: expected ABORTED, got %s", s)
	}
}

func TestExecute_DefaultTimeout(t *testing.T) {
	rec := newRecorder()
	p := compile(t, rec, stage("s", "hang", nil))

	e := New(Config{DefaultTimeout: 30 * time.Millisecond, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	r := e.Execute(context.Background(), p, runctx.New(runctx.Options{}))

	if o := status(t, r, "s"); !strings.Contains(o.Error, ErrTimeout.Error()) {
		t.Errorf("expected timeout, got %q", o.Error)
	}
}

func TestExecute_Cancellation(t *testing.T) {
	rec := newRecorder()
	p := compile(t, rec,
		stage("first", "ok", nil),
		domain.StageDef{ID: "group", Kind: "parallel", Stages: []domain.StageDef{
			stage("p1", "sleep", map[string]any{"ms": 2000}),
			stage("p2", "sleep", map[string]any{"ms": 2000}),
		}},
		stage("last", "ok", nil),
	)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	r := newExecutor(4).Execute(ctx, p, runctx.New(runctx.Options{}))
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Errorf("cancellation was not cooperative: %v", elapsed)
	}
	if r.Status != domain.StatusAborted {
		t.Errorf("expected ABORTED, got %s", r.Status)
	}
	if s := status(t, r, "first").Status; s != domain.StatusSuccess {
		t.Errorf("completed stage must keep SUCCESS, got %s", s)
	}
	for _, id := range []string{"p1", "p2", "group", "last"} {
		if s := status(t, r, id).Status; s != domain.StatusAborted {
			t.Errorf("%s: expected ABORTED, got %s", id, s)
		}
	}
	if rec.count("last") != 0 {
		t.Error("stages after cancellation must not run")
	}
}

func TestExecute_CancelledBeforeStart(t *testing.T) {
	rec := newRecorder()
	p := compile(t, rec, stage("a", "ok", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newExecutor(0).Execute(ctx, p, runctx.New(runctx.Options{}))
	if r.Status != domain.StatusAborted || rec.total() != 0 {
		t.Errorf("expected ABORTED with no invocations, got %s/%d", r.Status, rec.total())
	}
}

func TestExecute_PanicRecovered(t *testing.T) {
	rec := newRecorder()
	p := compile(t, rec, stage("s", "panic", nil))

	r := newExecutor(0).Execute(context.Background(), p, runctx.New(runctx.Options{}))

	o := status(t, r, "s")
	if o.Status != domain.StatusFailure || !strings.Contains(o.Error, "kaboom") {
		t.Errorf("expected recovered panic, got %s %q", o.Status, o.Error)
	}
}

func TestExecute_DeltaVisibility(t *testing.T) {
	rec := newRecorder()
	parent := domain.StageDef{
		ID:   "parent",
		Kind: "parallel",
		Step: &domain.StepRef{Name: "ok", Params: map[string]any{"name": "parent", "set": map[string]any{"image": "app:1"}}},
		Stages: []domain.StageDef{
			stage("left", "ok", map[string]any{"set": map[string]any{"side": "left"}}),
			stage("right", "ok", map[string]any{"set": map[string]any{"side": "right"}}),
		},
	}
	p := compile(t, rec, parent, stage("sibling", "ok", nil))

	rc := runctx.New(runctx.Options{Vars: map[string]any{"env": "dev"}})
	r := newExecutor(4).Execute(context.Background(), p, rc)
	if r.Status != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", r.Status)
	}

	for _, id := range []string{"left", "right"} {
		vars := rec.seen(id)
		if vars["image"] != "app:1" || vars["env"] != "dev" {
			t.Errorf("%s must see parent delta and root vars: %v", id, vars)
		}
		if _, ok := vars["side"]; ok {
			t.Errorf("%s must not see sibling delta: %v", id, vars)
		}
	}
	if _, ok := rec.seen("sibling")["image"]; ok {
		t.Error("delta must not leak to the next sibling")
	}
	if _, ok := rc.Get("image"); ok {
		t.Error("root context must not be written")
	}
}

func TestExecute_ParamsRendered(t *testing.T) {
	rec := newRecorder()
	p := compile(t, rec,
		domain.StageDef{
			ID:   "prepare",
			Step: &domain.StepRef{Name: "ok", Params: map[string]any{"name": "prepare", "set": map[string]any{"tag": "v2"}}},
			Stages: []domain.StageDef{
				stage("use", "ok", map[string]any{"set": map[string]any{"image": "app:{{ .Vars.tag }}@{{ .Branch }}"}}),
			},
		},
	)

	r := newExecutor(0).Execute(context.Background(), p, runctx.New(runctx.Options{Branch: "main"}))
	if r.Status != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", r.Status)
	}
	out := status(t, r, "use")
	set, _ := out.Output["set"].(map[string]any)
	if set["image"] != "app:v2@main" {
		t.Errorf("expected rendered param, got %v", out.Output)
	}
}

func TestExecute_InvalidRenderedParamsNotRetried(t *testing.T) {
	rec := newRecorder()
	p := compile(t, rec, domain.StageDef{
		ID:    "s",
		Retry: &domain.RetryPolicy{Max: 3, InitialDelayMs: 1},
		Step:  &domain.StepRef{Name: "typed", Params: map[string]any{"count": "{{ .Vars.count }}"}},
	})

	r := newExecutor(0).Execute(context.Background(), p, runctx.New(runctx.Options{Vars: map[string]any{"count": "many"}}))

	o := status(t, r, "s")
	if o.Status != domain.StatusFailure || o.Attempts != 0 {
		t.Errorf("expected FAILURE without attempts, got %s/%d", o.Status, o.Attempts)
	}
	if rec.count("typed") != 0 {
		t.Error("step with invalid params must not be invoked")
	}
}

func TestExecute_ContinueOnError(t *testing.T) {
	rec := newRecorder()
	lint := stage("lint", "fail", nil)
	lint.ContinueOnError = true
	p := compile(t, rec, lint, stage("build", "ok", nil))

	r := newExecutor(0).Execute(context.Background(), p, runctx.New(runctx.Options{}))

	if s := status(t, r, "build").Status; s != domain.StatusSuccess {
		t.Errorf("build must run after continue_on_error stage, got %s", s)
	}
	if r.Status != domain.StatusFailure {
		t.Errorf("run with a failed stage must be FAILURE, got %s", r.Status)
	}
}

func TestExecute_ParallelContinueOnErrorStillFails(t *testing.T) {
	rec := newRecorder()
	c1 := stage("c1", "fail", nil)
	c1.ContinueOnError = true
	p := compile(t, rec, domain.StageDef{
		ID:     "group",
		Kind:   "parallel",
		Stages: []domain.StageDef{c1, stage("c2", "ok", nil)},
	})

	r := newExecutor(4).Execute(context.Background(), p, runctx.New(runctx.Options{}))

	if s := status(t, r, "group").Status; s != domain.StatusFailure {
		t.Errorf("group with a failed child must be FAILURE, got %s", s)
	}
	if s := status(t, r, "c2").Status; s != domain.StatusSuccess {
		t.Errorf("c2: expected SUCCESS, got %s", s)
	}
	if r.Status != domain.StatusFailure {
		t.Errorf("expected FAILURE, got %s", r.Status)
	}
}

func TestExecute_MissingVarFailsStage(t *testing.T) {
	rec := newRecorder()
	p := compile(t, rec,
		stage("deploy", "ok", map[string]any{"set": map[string]any{"cmd": "deploy {{ .Vars.imgae }}"}}),
		stage("verify", "ok", nil),
	)

	rc := runctx.New(runctx.Options{Vars: map[string]any{"image": "app:1"}})
	r := newExecutor(0).Execute(context.Background(), p, rc)

	d := status(t, r, "deploy")
	if d.Status != domain.StatusFailure || d.Attempts != 0 {
		t.Errorf("expected FAILURE without attempts, got %s/%d", d.Status, d.Attempts)
	}
	if !strings.Contains(d.Error, runctx.ErrTemplateRender.Error()) {
		t.Errorf("expected render error, got %q", d.Error)
	}
	if rec.count("deploy") != 0 || rec.count("verify") != 0 {
		t.Errorf("no step may run with an unrendered param, got %v", rec.calls)
	}
	if r.Status != domain.StatusFailure {
		t.Errorf("expected FAILURE, got %s", r.Status)
	}
}

func TestExecute_GuardOnMissingVar(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want domain.Status
	}{
		{"direct access fails", `eq .Vars.region "eu"`, domain.StatusFailure},
		{"index is optional", `index .Vars "region"`, domain.StatusSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecorder()
			def := stage("deploy", "ok", nil)
			def.When = &domain.GuardDef{Expr: tt.expr}
			p := compile(t, rec, def)

			r := newExecutor(0).Execute(context.Background(), p, runctx.New(runctx.Options{}))

			if s := status(t, r, "deploy").Status; s != tt.want {
				t.Errorf("expected %s, got %s", tt.want, s)
			}
			if rec.count("deploy") != 0 {
				t.Error("guarded step must not run")
			}
		})
	}
}

func TestExecute_NestedParallelSmallPool(t *testing.T) {
	rec := newRecorder()
	inner := func(id string) domain.StageDef {
		return domain.StageDef{ID: id, Kind: "parallel", Stages: []domain.StageDef{
			stage(id+"-a", "sleep", map[string]any{"ms": 10}),
			stage(id+"-b", "sleep", map[string]any{"ms": 10}),
		}}
	}
	p := compile(t, rec, domain.StageDef{
		ID:     "outer",
		Kind:   "parallel",
		Stages: []domain.StageDef{inner("x"), inner("y"), inner("z")},
	})

	done := make(chan *domain.RunReport)
	go func() {
		done <- newExecutor(1).Execute(context.Background(), p, runctx.New(runctx.Options{}))
	}()

	select {
	case r := <-done:
		if r.Status != domain.StatusSuccess {
			t.Errorf("expected SUCCESS, got %s", r.Status)
		}
		if rec.total() != 6 {
			t.Errorf("expected 6 invocations, got %d", rec.total())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("nested parallel groups deadlocked")
	}
}

func TestExecute_ReportMeta(t *testing.T) {
	rec := newRecorder()
	p := compile(t, rec, stage("a", "ok", nil))
	rc := runctx.New(runctx.Options{Branch: "main"})

	r := newExecutor(0).Run(context.Background(), p, rc, RunOptions{IdempotencyKey: "nightly_1700000000"})

	if r.RunID != rc.RunID() || r.Branch != "main" || r.Pipeline != "test" {
		t.Errorf("unexpected meta: %+v", r)
	}
	if r.Fingerprint != p.Fingerprint() || r.IdempotencyKey != "nightly_1700000000" {
		t.Errorf("unexpected fingerprint or key: %+v", r)
	}
	if r.FinishedAt.Before(r.StartedAt) {
		t.Error("finished before started")
	}
}

func TestExecute_PanicsOnNilPipeline(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	newExecutor(0).Execute(context.Background(), nil, runctx.New(runctx.Options{}))
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name     string
		attempt  int
		policy   *domain.RetryPolicy
		expected time.Duration
	}{
		{"nil policy", 1, nil, 100 * time.Millisecond},
		{"defaults", 1, &domain.RetryPolicy{}, 100 * time.Millisecond},
		{"exponential 1", 1, &domain.RetryPolicy{InitialDelayMs: 100}, 100 * time.Millisecond},
		{"exponential 2", 2, &domain.RetryPolicy{InitialDelayMs: 100}, 200 * time.Millisecond},
		{"exponential 4", 4, &domain.RetryPolicy{InitialDelayMs: 100}, 800 * time.Millisecond},
		{"capped", 10, &domain.RetryPolicy{InitialDelayMs: 100, MaxDelayMs: 1000}, time.Second},
		{"fixed", 5, &domain.RetryPolicy{InitialDelayMs: 250, Backoff: "fixed"}, 250 * time.Millisecond},
		{"default cap", 30, &domain.RetryPolicy{InitialDelayMs: 1000}, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateBackoff(tt.attempt, tt.policy); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
