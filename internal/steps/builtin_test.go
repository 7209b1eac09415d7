package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/stagehand/internal/runctx"
)

func TestEchoStep(t *testing.T) {
	var buf bytes.Buffer
	step := NewEchoStep(&buf)

	res, err := step.Invoke(context.Background(), map[string]any{"message": "hello"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "hello\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
	if res.Output["message"] != "hello" {
		t.Errorf("unexpected result: %v", res.Output)
	}
}

func TestShellStep(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	step := NewShellStep()
	rc := runctx.New(runctx.Options{Branch: "main", Vars: map[string]any{"name": "api"}})

	res, err := step.Invoke(context.Background(), map[string]any{
		"script": `echo "$STAGEHAND_VAR_NAME@$STAGEHAND_BRANCH $GREETING"`,
		"env":    map[string]any{"GREETING": "hi"},
		"export": "line",
	}, rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output["exit_code"] != 0 {
		t.Errorf("expected exit 0, got %v", res.Output["exit_code"])
	}
	if res.Delta["line"] != "api@main hi" {
		t.Errorf("unexpected delta: %v", res.Delta)
	}
}

func TestShellStep_NonZeroExit(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	_, err := NewShellStep().Invoke(context.Background(), map[string]any{
		"script": "echo boom >&2; exit 3",
	}, nil)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if exitErr.Code != 3 || exitErr.Stderr != "boom" {
		t.Errorf("unexpected exit error: %+v", exitErr)
	}
}

func TestShellStep_Cancellation(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewShellStep().Invoke(ctx, map[string]any{"script": "sleep 5"}, nil)
	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
}

func TestDelayStep(t *testing.T) {
	step := NewDelayStep()

	start := time.Now()
	res, err := step.Invoke(context.Background(), map[string]any{"duration_ms": 50}, nil)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("delay was too short: %v", elapsed)
	}
	if res.Output["duration_ms"] != int64(50) {
		t.Errorf("unexpected output: %v", res.Output)
	}
}

func TestDelayStep_Cancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewDelayStep().Invoke(ctx, map[string]any{"duration_sec": 1}, nil)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("cancellation took too long: %v", elapsed)
	}
}

func TestDelayStep_MissingDuration(t *testing.T) {
	_, err := NewDelayStep().Invoke(context.Background(), map[string]any{}, nil)
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

func TestHTTPStep_GET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	defer server.Close()

	res, err := NewHTTPStep().Invoke(context.Background(), map[string]any{"url": server.URL}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output["status_code"] != 200 {
		t.Errorf("expected status_code 200, got %v", res.Output["status_code"])
	}
	body, ok := res.Output["body"].(map[string]any)
	if !ok || body["status"] != "ok" {
		t.Errorf("unexpected body: %v", res.Output["body"])
	}
}

func TestHTTPStep_POST(t *testing.T) {
	var received map[string]any
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json")
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	res, err := NewHTTPStep().Invoke(context.Background(), map[string]any{
		"method":  "post",
		"url":     server.URL,
		"headers": map[string]any{"Authorization": "Bearer t0k3n"},
		"body":    map[string]any{"image": "app:1"},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output["status_code"] != 201 {
		t.Errorf("expected 201, got %v", res.Output["status_code"])
	}
	if received["image"] != "app:1" {
		t.Errorf("body not sent: %v", received)
	}
	if auth != "Bearer t0k3n" {
		t.Errorf("header not sent: %q", auth)
	}
}

func TestHTTPStep_FailOnStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewHTTPStep().Invoke(context.Background(), map[string]any{"url": server.URL}, nil)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway || !strings.Contains(httpErr.Body, "nope") {
		t.Errorf("unexpected error: %+v", httpErr)
	}

	res, err := NewHTTPStep().Invoke(context.Background(), map[string]any{
		"url":            server.URL,
		"fail_on_status": false,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output["status_code"] != http.StatusBadGateway {
		t.Errorf("unexpected status: %v", res.Output["status_code"])
	}
}

func TestHTTPStep_Cancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPStep().Invoke(ctx, map[string]any{"url": server.URL}, nil)
	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
}

func TestTransformStep(t *testing.T) {
	res, err := NewTransformStep().Invoke(context.Background(), map[string]any{
		"mappings": map[string]any{
			"replicas": "3",
			"image":    "app:1",
			"enabled":  "true",
			"tags":     `["a","b"]`,
		},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Delta["replicas"] != int64(3) {
		t.Errorf("expected int64 3, got %v (%T)", res.Delta["replicas"], res.Delta["replicas"])
	}
	if res.Delta["image"] != "app:1" {
		t.Errorf("unexpected image: %v", res.Delta["image"])
	}
	if res.Delta["enabled"] != true {
		t.Errorf("unexpected enabled: %v", res.Delta["enabled"])
	}
	if tags, ok := res.Delta["tags"].([]any); !ok || len(tags) != 2 {
		t.Errorf("unexpected tags: %v", res.Delta["tags"])
	}
}

func TestSetVarStep(t *testing.T) {
	vars := map[string]any{"env": "staging"}
	res, err := NewSetVarStep().Invoke(context.Background(), map[string]any{"vars": vars}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Delta["env"] != "staging" || res.Output["count"] != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	// Delta — копия
	vars["env"] = "prod"
	if res.Delta["env"] != "staging" {
		t.Error("delta must not alias params")
	}
}
