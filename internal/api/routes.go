package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Reports
	mux.Handle("GET /api/v1/reports", chain(http.HandlerFunc(h.ListReports)))
	mux.Handle("GET /api/v1/reports/{id}", chain(http.HandlerFunc(h.GetReport)))

	// Runs
	mux.Handle("POST /api/v1/runs", chain(http.HandlerFunc(h.CreateRun)))
	mux.Handle("GET /api/v1/runs/active", chain(http.HandlerFunc(h.ListActiveRuns)))

	// Pipelines & steps
	mux.Handle("POST /api/v1/pipelines/validate", chain(http.HandlerFunc(h.ValidatePipeline)))
	mux.Handle("GET /api/v1/steps", chain(http.HandlerFunc(h.ListSteps)))

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
}
