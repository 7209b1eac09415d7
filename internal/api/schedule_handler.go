package api

import (
	"net/http"
)

// ListSchedules возвращает загруженные расписания.
// GET /api/v1/schedules?enabled=true|false
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	if h.schedules == nil {
		List(w, []ScheduleResponse{}, 0)
		return
	}

	var enabled *bool
	switch r.URL.Query().Get("enabled") {
	case "":
	case "true":
		v := true
		enabled = &v
	case "false":
		v := false
		enabled = &v
	default:
		BadRequest(w, "invalid enabled")
		return
	}

	schedules := h.schedules.Schedules()
	result := make([]ScheduleResponse, 0, len(schedules))
	for i := range schedules {
		if enabled != nil && schedules[i].Enabled != *enabled {
			continue
		}
		result = append(result, ScheduleFromDomain(&schedules[i]))
	}

	List(w, result, len(result))
}
