package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/orchestrator"
	"github.com/shaiso/stagehand/internal/repo"
	"github.com/shaiso/stagehand/internal/steps"
)

// fakeReports — ReportStore в памяти.
type fakeReports struct {
	reports    []domain.RunReport
	lastFilter repo.ReportFilter
	err        error
}

func (f *fakeReports) GetByID(_ context.Context, id uuid.UUID) (*domain.RunReport, error) {
	for i := range f.reports {
		if f.reports[i].RunID == id {
			return &f.reports[i], nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeReports) List(_ context.Context, filter repo.ReportFilter) ([]domain.RunReport, error) {
	f.lastFilter = filter
	return f.reports, f.err
}

// fakeRuns — RunService с заранее заданным ответом.
type fakeRuns struct {
	runID   uuid.UUID
	err     error
	lastReq orchestrator.Request
	active  []orchestrator.ActiveRun
}

func (f *fakeRuns) Dispatch(_ context.Context, req orchestrator.Request) (uuid.UUID, error) {
	f.lastReq = req
	return f.runID, f.err
}

func (f *fakeRuns) ActiveRuns() []orchestrator.ActiveRun {
	return f.active
}

type fakeSchedules []domain.Schedule

func (f fakeSchedules) Schedules() []domain.Schedule { return f }

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Catalog == nil {
		cfg.Catalog = steps.DefaultRegistry()
	}
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, contentType, body string) (int, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode, decoded
}

func TestListReports(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := &fakeReports{reports: []domain.RunReport{{
		RunID:      uuid.New(),
		Pipeline:   "deploy",
		Status:     domain.StatusSuccess,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Stages:     []domain.StageOutcome{{StageID: "build", Status: domain.StatusSuccess}},
	}}}
	srv := newTestServer(t, Config{Reports: store})

	code, body := do(t, http.MethodGet, srv.URL+"/api/v1/reports?pipeline=deploy&status=SUCCESS&limit=10&offset=5", "", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if store.lastFilter != (repo.ReportFilter{Pipeline: "deploy", Status: domain.StatusSuccess, Limit: 10, Offset: 5}) {
		t.Errorf("unexpected filter: %+v", store.lastFilter)
	}

	data := body["data"].([]any)
	item := data[0].(map[string]any)
	if item["duration_ms"] != float64(1500) {
		t.Errorf("expected duration_ms 1500, got %v", item["duration_ms"])
	}
	if _, ok := item["stages"]; ok {
		t.Error("summary must not contain stages")
	}
}

func TestListReports_BadQuery(t *testing.T) {
	srv := newTestServer(t, Config{Reports: &fakeReports{}})

	for _, q := range []string{"status=DONE", "limit=abc", "offset=-1"} {
		t.Run(q, func(t *testing.T) {
			code, _ := do(t, http.MethodGet, srv.URL+"/api/v1/reports?"+q, "", "")
			if code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", code)
			}
		})
	}
}

func TestListReports_StoreError(t *testing.T) {
	srv := newTestServer(t, Config{Reports: &fakeReports{err: errors.New("connection refused")}})

	code, body := do(t, http.MethodGet, srv.URL+"/api/v1/reports", "", "")
	if code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
	if msg := body["error"].(map[string]any)["message"]; msg != "internal server error" {
		t.Errorf("internal details leaked: %v", msg)
	}
}

func TestGetReport(t *testing.T) {
	id := uuid.New()
	srv := newTestServer(t, Config{Reports: &fakeReports{reports: []domain.RunReport{{
		RunID:  id,
		Status: domain.StatusFailure,
		Stages: []domain.StageOutcome{{StageID: "build", Status: domain.StatusFailure}},
	}}}})

	tests := []struct {
		name     string
		id       string
		expected int
	}{
		{"found", id.String(), http.StatusOK},
		{"not found", uuid.NewString(), http.StatusNotFound},
		{"invalid id", "nope", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, http.MethodGet, srv.URL+"/api/v1/reports/"+tt.id, "", "")
			if code != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, code)
			}
			if code == http.StatusOK {
				stages := body["data"].(map[string]any)["stages"].([]any)
				if len(stages) != 1 {
					t.Errorf("expected 1 stage, got %d", len(stages))
				}
			}
		})
	}
}

func TestReports_NotConfigured(t *testing.T) {
	srv := newTestServer(t, Config{})

	code, _ := do(t, http.MethodGet, srv.URL+"/api/v1/reports", "", "")
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
}

func TestCreateRun(t *testing.T) {
	runID := uuid.New()

	tests := []struct {
		name      string
		err       error
		body      string
		expected  int
		duplicate bool
	}{
		{"accepted", nil, `{"pipeline":"deploy.yaml","branch":"main","vars":{"env":"prod"}}`, http.StatusAccepted, false},
		{"duplicate", fmt.Errorf("%w: k", orchestrator.ErrDuplicateRun), `{"pipeline":"deploy.yaml","idempotency_key":"k"}`, http.StatusOK, true},
		{"active", orchestrator.ErrRunAlreadyActive, `{"pipeline":"deploy.yaml","idempotency_key":"k"}`, http.StatusOK, true},
		{"missing pipeline field", nil, `{}`, http.StatusBadRequest, false},
		{"bad json", nil, `{`, http.StatusBadRequest, false},
		{"outside dir", orchestrator.ErrInvalidRequest, `{"pipeline":"../x.yaml"}`, http.StatusBadRequest, false},
		{"load error", orchestrator.ErrPipelineLoad, `{"pipeline":"nope.yaml"}`, http.StatusNotFound, false},
		{"invalid pipeline", orchestrator.ErrInvalidPipeline, `{"pipeline":"broken.yaml"}`, http.StatusUnprocessableEntity, false},
		{"stopping", orchestrator.ErrOrchestratorStopped, `{"pipeline":"deploy.yaml"}`, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := &fakeRuns{runID: runID, err: tt.err}
			srv := newTestServer(t, Config{Runs: runs})

			code, body := do(t, http.MethodPost, srv.URL+"/api/v1/runs", "application/json", tt.body)
			if code != tt.expected {
				t.Fatalf("expected %d, got %d (%v)", tt.expected, code, body)
			}
			if code == http.StatusUnprocessableEntity {
				if e, _ := body["error"].(map[string]any); e["code"] != string(ErrCodeInvalidPipeline) {
					t.Errorf("unexpected error body %v", body)
				}
			}
			if code == http.StatusAccepted || code == http.StatusOK {
				data := body["data"].(map[string]any)
				if data["run_id"] != runID.String() {
					t.Errorf("unexpected run_id %v", data["run_id"])
				}
				if dup, _ := data["duplicate"].(bool); dup != tt.duplicate {
					t.Errorf("duplicate = %v, want %v", dup, tt.duplicate)
				}
			}
		})
	}
}

func TestCreateRun_PassesRequest(t *testing.T) {
	runs := &fakeRuns{runID: uuid.New()}
	srv := newTestServer(t, Config{Runs: runs})

	do(t, http.MethodPost, srv.URL+"/api/v1/runs", "application/json",
		`{"pipeline":"deploy.yaml","branch":"release/1","vars":{"tag":"v1"},"idempotency_key":"abc"}`)

	req := runs.lastReq
	if req.Pipeline != "deploy.yaml" || req.Branch != "release/1" || req.IdempotencyKey != "abc" || req.Source != "api" {
		t.Errorf("unexpected request %+v", req)
	}
	if req.Vars["tag"] != "v1" {
		t.Errorf("vars not passed: %v", req.Vars)
	}
}

func TestListActiveRuns(t *testing.T) {
	runs := &fakeRuns{active: []orchestrator.ActiveRun{{RunID: uuid.New(), Pipeline: "deploy"}}}
	srv := newTestServer(t, Config{Runs: runs})

	code, body := do(t, http.MethodGet, srv.URL+"/api/v1/runs/active", "", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if data := body["data"].([]any); len(data) != 1 {
		t.Errorf("expected 1 active run, got %d", len(data))
	}
}

func TestValidatePipeline(t *testing.T) {
	srv := newTestServer(t, Config{})

	const valid = `
name: release
stages:
  - id: build
    step:
      name: echo
      params:
        message: building
  - id: notify
    kind: parallel
    stages:
      - id: a
        step: {name: echo, params: {message: a}}
      - id: b
        when: {branch: "main"}
        step: {name: echo, params: {message: b}}
`

	code, body := do(t, http.MethodPost, srv.URL+"/api/v1/pipelines/validate", "application/yaml", valid)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", code, body)
	}
	data := body["data"].(map[string]any)
	if data["valid"] != true || data["name"] != "release" {
		t.Errorf("unexpected response %v", data)
	}
	if fp, _ := data["fingerprint"].(string); fp == "" {
		t.Error("expected fingerprint")
	}
	stages := data["stages"].([]any)
	if len(stages) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(stages))
	}
	b := stages[3].(map[string]any)
	if b["id"] != "b" || b["parent_id"] != "notify" || b["step"] != "echo@1.0.0" || b["guard"] == nil {
		t.Errorf("unexpected stage %v", b)
	}
}

func TestValidatePipeline_Invalid(t *testing.T) {
	srv := newTestServer(t, Config{})

	tests := []struct {
		name        string
		url         string
		contentType string
		body        string
		expected    int
		stageID     string
	}{
		{
			name:     "unknown step",
			url:      "/api/v1/pipelines/validate",
			body:     "name: x\nstages:\n  - id: a\n    step: {name: nope}\n",
			expected: http.StatusUnprocessableEntity,
			stageID:  "a",
		},
		{
			name:        "jsonc by content type",
			url:         "/api/v1/pipelines/validate",
			contentType: "application/json",
			body:        `{"name": "x", /* empty */ "stages": []}`,
			expected:    http.StatusUnprocessableEntity,
		},
		{
			name:     "decode error",
			url:      "/api/v1/pipelines/validate?format=jsonc",
			body:     `{"name": "x", "unknown": 1}`,
			expected: http.StatusBadRequest,
		},
		{
			name:     "unsupported format",
			url:      "/api/v1/pipelines/validate?format=toml",
			body:     `name = "x"`,
			expected: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, http.MethodPost, srv.URL+tt.url, tt.contentType, tt.body)
			if code != tt.expected {
				t.Fatalf("expected %d, got %d (%v)", tt.expected, code, body)
			}
			if code != http.StatusUnprocessableEntity {
				return
			}
			data := body["data"].(map[string]any)
			if data["valid"] != false {
				t.Error("expected valid=false")
			}
			issue := data["errors"].([]any)[0].(map[string]any)
			if tt.stageID != "" && issue["stage_id"] != tt.stageID {
				t.Errorf("expected stage_id %s, got %v", tt.stageID, issue["stage_id"])
			}
		})
	}
}

func TestListSteps(t *testing.T) {
	srv := newTestServer(t, Config{})

	code, body := do(t, http.MethodGet, srv.URL+"/api/v1/steps", "", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if total := body["total"].(float64); int(total) != steps.DefaultRegistry().Len() {
		t.Errorf("expected %d steps, got %v", steps.DefaultRegistry().Len(), total)
	}
}

func TestListSchedules(t *testing.T) {
	srv := newTestServer(t, Config{Schedules: fakeSchedules{
		{Name: "nightly", Pipeline: "deploy.yaml", CronExpr: "0 3 * * *", Enabled: true},
		{Name: "paused", Pipeline: "deploy.yaml", IntervalSec: 60},
	}})

	tests := []struct {
		query    string
		expected int
	}{
		{"", 2},
		{"?enabled=true", 1},
		{"?enabled=false", 1},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			code, body := do(t, http.MethodGet, srv.URL+"/api/v1/schedules"+tt.query, "", "")
			if code != http.StatusOK {
				t.Fatalf("expected 200, got %d", code)
			}
			if data := body["data"].([]any); len(data) != tt.expected {
				t.Errorf("expected %d schedules, got %d", tt.expected, len(data))
			}
		})
	}

	code, _ := do(t, http.MethodGet, srv.URL+"/api/v1/schedules?enabled=maybe", "", "")
	if code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Chain(Recovery(logger), Logging(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
