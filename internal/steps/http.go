package steps

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/stagehand/internal/runctx"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

var httpSchema = Schema{
	"method":           {Type: ParamTypeString, Default: http.MethodGet},
	"url":              {Type: ParamTypeString, Required: true},
	"headers":          {Type: ParamTypeObject},
	"body":             {Type: ParamTypeAny},
	"follow_redirects": {Type: ParamTypeBoolean, Default: true},
	"validate_ssl":     {Type: ParamTypeBoolean, Default: true},
	"timeout_sec":      {Type: ParamTypeInteger},
	"fail_on_status":   {Type: ParamTypeBoolean, Default: true, Description: "treat status >= 400 as failure"},
}

// HTTPStep — шаг HTTP запроса.
//
// Параметры:
//
//	{
//	    "method": "POST",
//	    "url": "https://deploy.example.com/api/releases",
//	    "headers": {"Authorization": "Bearer {{ .Credentials.deploy }}"},
//	    "body": {"image": "{{ .Vars.image }}"},
//	    "follow_redirects": true,
//	    "validate_ssl": true,
//	    "timeout_sec": 30,
//	    "fail_on_status": true
//	}
//
// Output:
//
//	{
//	    "status_code": 200,
//	    "headers": {"Content-Type": "application/json"},
//	    "body": {...}  // parsed JSON или string
//	}
type HTTPStep struct{}

// NewHTTPStep создаёт новый HTTPStep.
func NewHTTPStep() *HTTPStep {
	return &HTTPStep{}
}

// Invoke выполняет HTTP запрос.
func (s *HTTPStep) Invoke(ctx context.Context, params map[string]any, _ *runctx.Context) (*Result, error) {
	cfg, err := s.parseConfig(params)
	if err != nil {
		return nil, err
	}

	client := s.buildClient(cfg)

	req, err := s.buildRequest(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	result, err := s.parseResponse(resp)
	if err != nil {
		return nil, err
	}

	if cfg.FailOnStatus && resp.StatusCode >= 400 {
		body, _ := result.Output["body"].(string)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}
	}

	return result, nil
}

// httpConfig — разобранные параметры HTTP шага.
type httpConfig struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            any
	FollowRedirects bool
	ValidateSSL     bool
	TimeoutSec      int
	FailOnStatus    bool
}

// parseConfig разбирает параметры HTTP шага.
func (s *HTTPStep) parseConfig(params map[string]any) (*httpConfig, error) {
	cfg := &httpConfig{
		Method:          strings.ToUpper(ParamString(params, "method")),
		URL:             ParamString(params, "url"),
		Headers:         ParamMapString(params, "headers"),
		Body:            params["body"],
		FollowRedirects: ParamBool(params, "follow_redirects", true),
		ValidateSSL:     ParamBool(params, "validate_ssl", true),
		TimeoutSec:      ParamInt(params, "timeout_sec"),
		FailOnStatus:    ParamBool(params, "fail_on_status", true),
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidParams, StepHTTP)
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}

	return cfg, nil
}

// buildClient создаёт HTTP клиент с нужными настройками.
// Общий дедлайн вызова задаёт Executor через ctx.
func (s *HTTPStep) buildClient(cfg *httpConfig) *http.Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	var checkRedirect func(*http.Request, []*http.Request) error
	if !cfg.FollowRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.ValidateSSL},
		},
	}
}

// buildRequest создаёт HTTP запрос.
func (s *HTTPStep) buildRequest(ctx context.Context, cfg *httpConfig) (*http.Request, error) {
	var bodyReader io.Reader

	if cfg.Body != nil {
		bodyBytes, err := s.serializeBody(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		if _, ok := cfg.Headers["Content-Type"]; !ok {
			cfg.Headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}

	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// serializeBody сериализует body в bytes.
func (s *HTTPStep) serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// parseResponse читает ответ с ограничением размера.
func (s *HTTPStep) parseResponse(resp *http.Response) (*Result, error) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var body any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			body = string(bodyBytes)
		}
	} else {
		body = string(bodyBytes)
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return NewResult(map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}), nil
}
