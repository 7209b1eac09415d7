package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не зависит от internal/api) ---

// ReportSummary — отчёт из списка API.
type ReportSummary struct {
	RunID          string `json:"run_id"`
	Pipeline       string `json:"pipeline"`
	Fingerprint    string `json:"fingerprint,omitempty"`
	Branch         string `json:"branch,omitempty"`
	Status         string `json:"status"`
	StartedAt      string `json:"started_at"`
	FinishedAt     string `json:"finished_at"`
	DurationMs     int64  `json:"duration_ms"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ActiveRun — выполняющийся run из API.
type ActiveRun struct {
	RunID          string `json:"run_id"`
	Pipeline       string `json:"pipeline"`
	Fingerprint    string `json:"fingerprint"`
	Branch         string `json:"branch,omitempty"`
	Source         string `json:"source,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	StartedAt      string `json:"started_at"`
}

// RunAccepted — ответ на запуск run.
type RunAccepted struct {
	RunID     string `json:"run_id"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// ScheduleResponse — schedule из API.
type ScheduleResponse struct {
	Name        string `json:"name"`
	Pipeline    string `json:"pipeline"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Enabled     bool   `json:"enabled"`
	Branch      string `json:"branch,omitempty"`
	NextDueAt   string `json:"next_due_at,omitempty"`
	LastRunAt   string `json:"last_run_at,omitempty"`
	LastRunID   string `json:"last_run_id,omitempty"`
}

// --- Request types ---

// CreateRunRequest — запуск pipeline на сервере.
type CreateRunRequest struct {
	Pipeline       string         `json:"pipeline"`
	Branch         string         `json:"branch,omitempty"`
	Vars           map[string]any `json:"vars,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// ListReportsOpts — параметры фильтрации отчётов.
type ListReportsOpts struct {
	Pipeline string
	Status   string
	Limit    int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для API stagehand-runner.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Reports ---

// ListReports возвращает отчёты с фильтрацией.
func (c *Client) ListReports(opts ListReportsOpts) ([]ReportSummary, error) {
	params := url.Values{}
	if opts.Pipeline != "" {
		params.Set("pipeline", opts.Pipeline)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var reports []ReportSummary
	err := c.list("/api/v1/reports", params, &reports)
	return reports, err
}

// GetReport возвращает полный отчёт по ID run.
// Отчёт декодируется как есть, чтобы CLI не зависел от его схемы.
func (c *Client) GetReport(runID string) (map[string]any, error) {
	var report map[string]any
	err := c.get("/api/v1/reports/"+url.PathEscape(runID), &report)
	return report, err
}

// --- Runs ---

// StartRun запускает pipeline на сервере.
func (c *Client) StartRun(req CreateRunRequest) (*RunAccepted, error) {
	var accepted RunAccepted
	err := c.post("/api/v1/runs", req, &accepted)
	return &accepted, err
}

// ActiveRuns возвращает выполняющиеся run.
func (c *Client) ActiveRuns() ([]ActiveRun, error) {
	var runs []ActiveRun
	err := c.list("/api/v1/runs/active", nil, &runs)
	return runs, err
}

// --- Schedules ---

// ListSchedules возвращает загруженные расписания.
func (c *Client) ListSchedules() ([]ScheduleResponse, error) {
	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", nil, &schedules)
	return schedules, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
