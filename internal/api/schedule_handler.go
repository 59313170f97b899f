package api

import (
	"net/http"
)

// ListSchedules возвращает расписания планировщика.
// GET /api/v1/schedules?pipeline=...
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	if h.schedules == nil {
		List(w, []ScheduleResponse{}, 0)
		return
	}

	pipeline := r.URL.Query().Get("pipeline")

	result := make([]ScheduleResponse, 0)
	for _, s := range h.schedules.Schedules() {
		if pipeline != "" && s.Pipeline != pipeline {
			continue
		}
		result = append(result, ScheduleFromDomain(s))
	}

	List(w, result, len(result))
}
