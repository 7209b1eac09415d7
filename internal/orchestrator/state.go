package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/stagehand/internal/engine"
	"github.com/shaiso/stagehand/internal/runctx"
)

// Request — запрос на запуск pipeline.
type Request struct {
	// Pipeline — путь к файлу pipeline.
	Pipeline string

	// Branch — ветка для guard.
	Branch string

	// Vars — начальные переменные контекста.
	Vars map[string]any

	// IdempotencyKey — ключ дедупликации. Пустой — без дедупликации.
	IdempotencyKey string

	// Source — кто запросил run (api, amqp, scheduler:<name>).
	Source string
}

// ActiveRun — run, который выполняется прямо сейчас.
type ActiveRun struct {
	RunID          uuid.UUID `json:"run_id"`
	Pipeline       string    `json:"pipeline"`
	Fingerprint    string    `json:"fingerprint"`
	Branch         string    `json:"branch,omitempty"`
	Source         string    `json:"source,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	StartedAt      time.Time `json:"started_at"`
}

// preparedRun — скомпилированный run, зарегистрированный как активный.
type preparedRun struct {
	info     ActiveRun
	pipeline *engine.Pipeline
	rc       *runctx.Context
	dedupKey string
}
