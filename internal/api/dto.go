package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/engine"
	"github.com/shaiso/stagehand/internal/steps"
)

// Report DTOs

// ReportSummary — отчёт без стадий для списков.
type ReportSummary struct {
	RunID          uuid.UUID     `json:"run_id"`
	Pipeline       string        `json:"pipeline"`
	Fingerprint    string        `json:"fingerprint,omitempty"`
	Branch         string        `json:"branch,omitempty"`
	Status         domain.Status `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	DurationMs     int64         `json:"duration_ms"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

// ReportSummaryFromDomain конвертирует domain.RunReport в ReportSummary.
func ReportSummaryFromDomain(r domain.RunReport) ReportSummary {
	return ReportSummary{
		RunID:          r.RunID,
		Pipeline:       r.Pipeline,
		Fingerprint:    r.Fingerprint,
		Branch:         r.Branch,
		Status:         r.Status,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		DurationMs:     r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
		IdempotencyKey: r.IdempotencyKey,
	}
}

// Run DTOs

// CreateRunRequest — запрос на запуск pipeline.
type CreateRunRequest struct {
	Pipeline       string         `json:"pipeline"`
	Branch         string         `json:"branch,omitempty"`
	Vars           map[string]any `json:"vars,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// RunAcceptedResponse — ответ на запуск.
// Duplicate выставлен, если run с тем же ключом уже был или выполняется.
type RunAcceptedResponse struct {
	RunID     uuid.UUID `json:"run_id"`
	Duplicate bool      `json:"duplicate,omitempty"`
}

// Pipeline DTOs

// ValidationResponse — результат проверки pipeline.
type ValidationResponse struct {
	Valid       bool              `json:"valid"`
	Name        string            `json:"name,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Stages      []StageResponse   `json:"stages,omitempty"`
	Errors      []ValidationIssue `json:"errors,omitempty"`
}

// StageResponse — стадия скомпилированного pipeline.
type StageResponse struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Kind     string `json:"kind"`
	Step     string `json:"step,omitempty"`
	Guard    string `json:"guard,omitempty"`
}

// ValidationIssue — ошибка компиляции pipeline.
type ValidationIssue struct {
	StageID string `json:"stage_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// StagesFromPipeline возвращает стадии pipeline в порядке обхода.
func StagesFromPipeline(p *engine.Pipeline) []StageResponse {
	stages := make([]StageResponse, 0, p.Len())
	p.Root.Walk(func(n *engine.Node) bool {
		if n.IsRoot() {
			return true
		}
		s := StageResponse{
			ID:       n.ID,
			ParentID: n.ParentID,
			Kind:     string(n.Kind),
		}
		if n.Invocation != nil {
			s.Step = n.Invocation.Step.Ref()
		}
		if n.Guard != nil {
			s.Guard = n.Guard.String()
		}
		stages = append(stages, s)
		return true
	})
	return stages
}

// Step DTOs

// StepResponse — зарегистрированная версия шага.
type StepResponse struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Description  string       `json:"description,omitempty"`
	Capabilities []string     `json:"capabilities,omitempty"`
	Params       steps.Schema `json:"params,omitempty"`
}

// StepFromDomain конвертирует steps.Step в StepResponse.
func StepFromDomain(s *steps.Step) StepResponse {
	return StepResponse{
		Name:         s.Name,
		Version:      s.Version.String(),
		Description:  s.Description,
		Capabilities: s.Capabilities,
		Params:       s.Schema,
	}
}

// Schedule DTOs

// ScheduleResponse — ответ с расписанием.
type ScheduleResponse struct {
	Name        string     `json:"name"`
	Pipeline    string     `json:"pipeline"`
	CronExpr    string     `json:"cron_expr,omitempty"`
	IntervalSec int        `json:"interval_sec,omitempty"`
	Timezone    string     `json:"timezone,omitempty"`
	Enabled     bool       `json:"enabled"`
	Branch      string     `json:"branch,omitempty"`
	NextDueAt   *time.Time `json:"next_due_at,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastRunID   *uuid.UUID `json:"last_run_id,omitempty"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	return ScheduleResponse{
		Name:        s.Name,
		Pipeline:    s.Pipeline,
		CronExpr:    s.CronExpr,
		IntervalSec: s.IntervalSec,
		Timezone:    s.Timezone,
		Enabled:     s.Enabled,
		Branch:      s.Branch,
		NextDueAt:   s.NextDueAt,
		LastRunAt:   s.LastRunAt,
		LastRunID:   s.LastRunID,
	}
}
