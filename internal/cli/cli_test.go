package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/shaiso/stagehand/internal/runctx"
	"github.com/shaiso/stagehand/internal/steps"
)

const samplePipeline = `
name: sample
stages:
  - id: build
    step:
      name: record
  - id: deploy
    when:
      branch: main
    step:
      name: record
`

const failingPipeline = `
name: failing
stages:
  - id: boom
    step:
      name: fail
`

func testRegistry() *steps.Registry {
	r := steps.NewRegistry()
	r.MustRegister("record", "1.0.0", nil, steps.BodyFunc(
		func(_ context.Context, _ map[string]any, rc *runctx.Context) (*steps.Result, error) {
			env, _ := rc.Get("env")
			return steps.NewResult(map[string]any{"env": env}), nil
		}), steps.WithDescription("records the env variable"))
	r.MustRegister("fail", "1.0.0", nil, steps.BodyFunc(
		func(context.Context, map[string]any, *runctx.Context) (*steps.Result, error) {
			return nil, errors.New("boom")
		}))
	return r
}

func writePipeline(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute выполняет команду с аргументами args.
// Пустой срез вместо nil: иначе cobra возьмёт os.Args.
func execute(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd.Execute()
}

func TestRunCmd(t *testing.T) {
	path := writePipeline(t, samplePipeline)

	tests := []struct {
		name        string
		args        []string
		deployState string
	}{
		{"guard passes", []string{path, "--branch", "main", "--var", "env=prod"}, "SUCCESS"},
		{"guard skips", []string{path, "--branch", "dev"}, "SKIPPED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			out := NewOutputTo(true, &stdout, &stderr)
			cmd := NewRunCmd(testRegistry, func() *Output { return out })

			if err := execute(t, cmd, tt.args...); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var report struct {
				Status string `json:"status"`
				Branch string `json:"branch"`
				Stages []struct {
					StageID string         `json:"stage_id"`
					Status  string         `json:"status"`
					Output  map[string]any `json:"output"`
				} `json:"stages"`
			}
			if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
				t.Fatalf("decode report: %v\n%s", err, stdout.String())
			}
			if report.Status != "SUCCESS" {
				t.Errorf("expected SUCCESS, got %s", report.Status)
			}
			if len(report.Stages) != 2 || report.Stages[1].Status != tt.deployState {
				t.Errorf("unexpected stages %+v", report.Stages)
			}
			if !strings.Contains(stderr.String(), "SUCCESS") {
				t.Errorf("expected summary in stderr, got %q", stderr.String())
			}
		})
	}
}

func TestRunCmd_PassesVars(t *testing.T) {
	path := writePipeline(t, samplePipeline)

	var stdout bytes.Buffer
	out := NewOutputTo(true, &stdout, &bytes.Buffer{})
	cmd := NewRunCmd(testRegistry, func() *Output { return out })

	if err := execute(t, cmd, path, "--var", "env=staging"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout.String(), `"env": "staging"`) {
		t.Errorf("expected env in step output, got %s", stdout.String())
	}
}

func TestRunCmd_Failure(t *testing.T) {
	path := writePipeline(t, failingPipeline)

	var stdout bytes.Buffer
	out := NewOutputTo(false, &stdout, &bytes.Buffer{})
	cmd := NewRunCmd(testRegistry, func() *Output { return out })

	err := execute(t, cmd, path)
	if !errors.Is(err, ErrRunNotSuccessful) {
		t.Fatalf("expected ErrRunNotSuccessful, got %v", err)
	}
	if !strings.Contains(stdout.String(), "FAILURE") || !strings.Contains(stdout.String(), "boom") {
		t.Errorf("expected failure row in table, got %s", stdout.String())
	}
}

func TestRunCmd_BadVar(t *testing.T) {
	path := writePipeline(t, samplePipeline)
	cmd := NewRunCmd(testRegistry, func() *Output { return NewOutputTo(false, &bytes.Buffer{}, &bytes.Buffer{}) })

	if err := execute(t, cmd, path, "--var", "novalue"); err == nil || !strings.Contains(err.Error(), "KEY=VALUE") {
		t.Errorf("expected KEY=VALUE error, got %v", err)
	}
}

func TestValidateCmd(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(false, &stdout, &stderr)
	cmd := NewValidateCmd(testRegistry, func() *Output { return out })

	if err := execute(t, cmd, writePipeline(t, samplePipeline)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	table := stdout.String()
	for _, want := range []string{"STAGE", "build", "deploy", "record@1.0.0", "branch=main"} {
		if !strings.Contains(table, want) {
			t.Errorf("expected %q in output:\n%s", want, table)
		}
	}
	if !strings.Contains(stderr.String(), "Pipeline sample is valid: 2 stages") {
		t.Errorf("unexpected message %q", stderr.String())
	}
}

func TestValidateCmd_UnknownStep(t *testing.T) {
	path := writePipeline(t, "name: x\nstages:\n  - id: a\n    step: {name: missing}\n")
	cmd := NewValidateCmd(testRegistry, func() *Output { return NewOutputTo(false, &bytes.Buffer{}, &bytes.Buffer{}) })

	if err := execute(t, cmd, path); err == nil {
		t.Error("expected compile error")
	}
}

func TestFingerprintCmd(t *testing.T) {
	path := writePipeline(t, samplePipeline)

	var first, second bytes.Buffer
	for _, buf := range []*bytes.Buffer{&first, &second} {
		out := NewOutputTo(false, buf, &bytes.Buffer{})
		cmd := NewFingerprintCmd(testRegistry, func() *Output { return out })
		if err := execute(t, cmd, path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	fp := strings.TrimSpace(first.String())
	if fp == "" || fp != strings.TrimSpace(second.String()) {
		t.Errorf("fingerprint must be stable, got %q and %q", first.String(), second.String())
	}
}

func TestStepsCmd(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr error
	}{
		{"all", nil, []string{"record", "fail", "records the env variable"}, nil},
		{"filtered", []string{"record"}, []string{"record"}, nil},
		{"unknown", []string{"nope"}, nil, steps.ErrStepNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout bytes.Buffer
			out := NewOutputTo(false, &stdout, &bytes.Buffer{})
			cmd := NewStepsCmd(testRegistry, func() *Output { return out })

			err := execute(t, cmd, tt.args...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			for _, w := range tt.want {
				if !strings.Contains(stdout.String(), w) {
					t.Errorf("expected %q in output:\n%s", w, stdout.String())
				}
			}
		})
	}
}

func TestParseKeyValues(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected map[string]string
		wantErr  bool
	}{
		{"empty", nil, nil, false},
		{"pairs", []string{"a=1", "b=x=y"}, map[string]string{"a": "1", "b": "x=y"}, false},
		{"empty value", []string{"a="}, map[string]string{"a": ""}, false},
		{"no separator", []string{"a"}, nil, true},
		{"empty key", []string{"=1"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseKeyValues(tt.input, "var")
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
			for k, v := range tt.expected {
				if got[k] != v {
					t.Errorf("%s: expected %q, got %q", k, v, got[k])
				}
			}
		})
	}
}

func TestClient(t *testing.T) {
	var gotRun CreateRunRequest
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/reports", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "FAILURE" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"data":[{"run_id":"r1","pipeline":"deploy","status":"FAILURE","duration_ms":42}],"total":1}`))
	})
	mux.HandleFunc("GET /api/v1/reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"report not found"}}`))
	})
	mux.HandleFunc("POST /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotRun)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"data":{"run_id":"r2"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL)

	reports, err := client.ListReports(ListReportsOpts{Status: "FAILURE", Limit: 5})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reports) != 1 || reports[0].RunID != "r1" || reports[0].DurationMs != 42 {
		t.Errorf("unexpected reports %+v", reports)
	}

	if _, err := client.GetReport("missing"); err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND error, got %v", err)
	}

	accepted, err := client.StartRun(CreateRunRequest{Pipeline: "deploy.yaml", Branch: "main"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if accepted.RunID != "r2" || accepted.Duplicate {
		t.Errorf("unexpected response %+v", accepted)
	}
	if gotRun.Pipeline != "deploy.yaml" || gotRun.Branch != "main" {
		t.Errorf("unexpected request %+v", gotRun)
	}
}
