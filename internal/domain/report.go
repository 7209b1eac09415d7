package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunReport — итоговый отчёт об одном выполнении pipeline.
//
// Создаётся Result Aggregator'ом (report.Finalize) один раз,
// когда обход графа завершён или прерван. После создания не меняется.
type RunReport struct {
	// RunID — уникальный идентификатор run.
	RunID uuid.UUID `json:"run_id"`

	// Pipeline — имя pipeline.
	Pipeline string `json:"pipeline"`

	// Fingerprint — отпечаток скомпилированного графа (hex).
	Fingerprint string `json:"fingerprint,omitempty"`

	// Branch — ветка, для которой выполнялся run.
	Branch string `json:"branch,omitempty"`

	// Status — итоговый статус run.
	Status Status `json:"status"`

	// StartedAt — время начала обхода графа.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения обхода графа.
	FinishedAt time.Time `json:"finished_at"`

	// Stages — исходы всех стадий в порядке определения (pre-order).
	Stages []StageOutcome `json:"stages"`

	// IdempotencyKey — ключ идемпотентности триггера (cron, очередь).
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// StageOutcome — исход одной стадии.
type StageOutcome struct {
	// StageID — ID стадии из pipeline.
	StageID string `json:"stage_id"`

	// ParentID — ID родительской стадии (пусто для корня).
	ParentID string `json:"parent_id,omitempty"`

	// Step — вызванный шаг в формате name@version (пусто, если шага нет).
	Step string `json:"step,omitempty"`

	// Status — итоговый статус стадии.
	Status Status `json:"status"`

	// Attempts — количество попыток вызова шага.
	Attempts int `json:"attempts,omitempty"`

	// StartedAt — время начала. Нулевое, если стадия не запускалась.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения.
	FinishedAt time.Time `json:"finished_at"`

	// Error — текст ошибки (для FAILURE и ABORTED).
	Error string `json:"error,omitempty"`

	// Output — выходные данные шага.
	Output map[string]any `json:"output,omitempty"`
}

// Duration возвращает продолжительность стадии.
func (o *StageOutcome) Duration() time.Duration {
	if o.StartedAt.IsZero() || o.FinishedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// Duration возвращает продолжительность run.
func (r *RunReport) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stage возвращает исход стадии по ID.
func (r *RunReport) Stage(stageID string) (StageOutcome, bool) {
	for _, o := range r.Stages {
		if o.StageID == stageID {
			return o, true
		}
	}
	return StageOutcome{}, false
}

// Summary возвращает количество стадий по статусам.
func (r *RunReport) Summary() map[Status]int {
	summary := make(map[Status]int, 4)
	for _, o := range r.Stages {
		summary[o.Status]++
	}
	return summary
}

// FailedStages возвращает ID упавших стадий.
func (r *RunReport) FailedStages() []string {
	var failed []string
	for _, o := range r.Stages {
		if o.Status == StatusFailure {
			failed = append(failed, o.StageID)
		}
	}
	return failed
}

// IsSuccess возвращает true, если run завершился успешно.
func (r *RunReport) IsSuccess() bool {
	return r.Status == StatusSuccess
}
