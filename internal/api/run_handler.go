package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/stagehand/internal/orchestrator"
)

// CreateRun запускает pipeline в фоне.
// POST /api/v1/runs
//
// Повторный запрос с тем же idempotency_key возвращает 200 и ID
// существующего run; новый run — 202.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		Unavailable(w, "runs are not accepted by this instance")
		return
	}

	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Pipeline == "" {
		BadRequest(w, "pipeline is required")
		return
	}

	runID, err := h.runs.Dispatch(r.Context(), orchestrator.Request{
		Pipeline:       req.Pipeline,
		Branch:         req.Branch,
		Vars:           req.Vars,
		IdempotencyKey: req.IdempotencyKey,
		Source:         "api",
	})
	switch {
	case err == nil:
		Accepted(w, RunAcceptedResponse{RunID: runID})
	case errors.Is(err, orchestrator.ErrDuplicateRun), errors.Is(err, orchestrator.ErrRunAlreadyActive):
		Success(w, RunAcceptedResponse{RunID: runID, Duplicate: true})
	default:
		HandleRunError(w, h.logger, err)
	}
}

// ListActiveRuns возвращает выполняющиеся run.
// GET /api/v1/runs/active
func (h *Handler) ListActiveRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		List(w, []orchestrator.ActiveRun{}, 0)
		return
	}

	runs := h.runs.ActiveRuns()
	List(w, runs, len(runs))
}
