package api

import (
	"net/http"
	"time"

	"tcron/internal/core"
	"tcron/internal/repository"
)

type schedulePreviewRequest struct {
	Schedule *repository.ScheduleDocument `json:"schedule"`
	Now      string                       `json:"now,omitempty"`
	Count    int                          `json:"count,omitempty"`
}

type schedulePreviewResponse struct {
	Valid     bool     `json:"valid"`
	NextTimes []string `json:"next_times,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func (s *Server) handleSchedulePreview(w http.ResponseWriter, r *http.Request) {
	var req schedulePreviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Schedule == nil {
		writeJSON(w, http.StatusBadRequest, schedulePreviewResponse{Valid: false, Message: "schedule is required"})
		return
	}

	sched := repository.TaskDocument{Schedule: req.Schedule}.ToTask().Schedule
	schedule, err := core.ScheduleFor(*sched)
	if err != nil {
		writeJSON(w, http.StatusOK, schedulePreviewResponse{Valid: false, Message: err.Error()})
		return
	}

	count := req.Count
	if count <= 0 || count > 10 {
		count = 5
	}

	base := time.Now().UTC()
	if req.Now != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Now); err == nil {
			base = parsed.UTC()
		}
	}

	writeJSON(w, http.StatusOK, schedulePreviewResponse{
		Valid:     true,
		NextTimes: formatTimes(core.NextOccurrences(schedule, base, count)),
	})
}
