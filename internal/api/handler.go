package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/engine"
	"github.com/shaiso/stagehand/internal/orchestrator"
	"github.com/shaiso/stagehand/internal/repo"
	"github.com/shaiso/stagehand/internal/steps"
)

// ReportStore — чтение сохранённых отчётов (repo.ReportRepo).
type ReportStore interface {
	GetByID(ctx context.Context, runID uuid.UUID) (*domain.RunReport, error)
	List(ctx context.Context, filter repo.ReportFilter) ([]domain.RunReport, error)
}

// RunService — запуск pipeline (orchestrator.Orchestrator).
type RunService interface {
	Dispatch(ctx context.Context, req orchestrator.Request) (uuid.UUID, error)
	ActiveRuns() []orchestrator.ActiveRun
}

// ScheduleSource — загруженные расписания (scheduler.Scheduler).
type ScheduleSource interface {
	Schedules() []domain.Schedule
}

// StepCatalog — реестр шагов (steps.Registry).
type StepCatalog interface {
	engine.StepResolver
	Steps() []*steps.Step
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	reports   ReportStore
	runs      RunService
	schedules ScheduleSource
	catalog   StepCatalog
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
//
// Любая зависимость, кроме Catalog, может отсутствовать:
// соответствующие маршруты тогда отвечают 503.
type Config struct {
	Reports   ReportStore
	Runs      RunService
	Schedules ScheduleSource
	Catalog   StepCatalog
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Catalog == nil {
		panic("api: step catalog is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		reports:   cfg.Reports,
		runs:      cfg.Runs,
		schedules: cfg.Schedules,
		catalog:   cfg.Catalog,
		logger:    logger.With("component", "api"),
	}
}
