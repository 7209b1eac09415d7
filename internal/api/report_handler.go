package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/stagehand/internal/domain"
	"github.com/shaiso/stagehand/internal/repo"
)

// ListReports возвращает отчёты с фильтрацией, новые первыми.
// GET /api/v1/reports?pipeline=...&status=...&limit=...&offset=...
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		Unavailable(w, "report storage is not configured")
		return
	}

	q := r.URL.Query()
	filter := repo.ReportFilter{
		Pipeline: q.Get("pipeline"),
	}

	if s := q.Get("status"); s != "" {
		status := domain.Status(s)
		if !status.IsValid() {
			BadRequest(w, "invalid status")
			return
		}
		filter.Status = status
	}

	var ok bool
	if filter.Limit, ok = queryInt(q.Get("limit"), repo.DefaultListLimit); !ok {
		BadRequest(w, "invalid limit")
		return
	}
	if filter.Offset, ok = queryInt(q.Get("offset"), 0); !ok {
		BadRequest(w, "invalid offset")
		return
	}

	reports, err := h.reports.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ReportSummary, len(reports))
	for i, report := range reports {
		result[i] = ReportSummaryFromDomain(report)
	}

	List(w, result, len(result))
}

// GetReport возвращает отчёт со стадиями.
// GET /api/v1/reports/{id}
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		Unavailable(w, "report storage is not configured")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	report, err := h.reports.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "report not found") {
		return
	}

	Success(w, report)
}

// queryInt парсит неотрицательное число из query.
// Пустая строка даёт defaultVal.
func queryInt(s string, defaultVal int) (int, bool) {
	if s == "" {
		return defaultVal, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
