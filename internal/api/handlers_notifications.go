package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tcron/internal/core"
)

type notificationResponse struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	TaskID    *string    `json:"task_id,omitempty"`
	IsRead    bool       `json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

type notificationSummaryResponse struct {
	TotalCount         int `json:"total_count"`
	UnreadCount        int `json:"unread_count"`
	TaskCompletedCount int `json:"task_completed_count"`
	TaskFailedCount    int `json:"task_failed_count"`
	SystemCount        int `json:"system_count"`
}

type createNotificationRequest struct {
	Title   string  `json:"title"`
	Message string  `json:"message"`
	Type    string  `json:"type"`
	TaskID  *string `json:"task_id"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.NotificationFilter{UnreadOnly: parseBoolParam(q.Get("unread"))}
	if raw := strings.TrimSpace(q.Get("type")); raw != "" {
		t, err := core.ParseNotificationType(strings.ToUpper(raw))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		filter.Type = &t
	}
	if taskID := strings.TrimSpace(q.Get("task_id")); taskID != "" {
		filter.TaskID = &taskID
	}

	list, err := s.deps.Notifications.List(r.Context(), filter)
	if err != nil {
		s.writeRepoError(w, err, "list notifications")
		return
	}
	resp := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, notificationToResponse(n))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	kind := core.NotificationSystemInfo
	if raw := strings.TrimSpace(req.Type); raw != "" {
		t, err := core.ParseNotificationType(strings.ToUpper(raw))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		kind = t
	}
	n, err := s.deps.Notifications.Create(r.Context(), req.Title, req.Message, kind, req.TaskID)
	if err != nil {
		s.writeRepoError(w, err, "create notification")
		return
	}
	writeJSON(w, http.StatusCreated, notificationToResponse(n))
}

// handleDeleteNotifications deletes every notification, or only read ones with ?read_only=1.
func (s *Server) handleDeleteNotifications(w http.ResponseWriter, r *http.Request) {
	var err error
	if parseBoolParam(r.URL.Query().Get("read_only")) {
		err = s.deps.Notifications.DeleteRead(r.Context())
	} else {
		err = s.deps.Notifications.DeleteAll(r.Context())
	}
	if err != nil {
		s.writeRepoError(w, err, "delete notifications")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotificationSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Notifications.Summary(r.Context())
	if err != nil {
		s.writeRepoError(w, err, "summarize notifications")
		return
	}
	writeJSON(w, http.StatusOK, notificationSummaryResponse{
		TotalCount:         sum.TotalCount,
		UnreadCount:        sum.UnreadCount,
		TaskCompletedCount: sum.TaskCompletedCount,
		TaskFailedCount:    sum.TaskFailedCount,
		SystemCount:        sum.SystemCount,
	})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Notifications.MarkAllAsRead(r.Context()); err != nil {
		s.writeRepoError(w, err, "mark notifications read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Notifications.Get(r.Context(), chi.URLParam(r, "notificationID"))
	if err != nil {
		s.writeRepoError(w, err, "load notification")
		return
	}
	writeJSON(w, http.StatusOK, notificationToResponse(n))
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Notifications.MarkAsRead(r.Context(), chi.URLParam(r, "notificationID")); err != nil {
		s.writeRepoError(w, err, "mark notification read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Notifications.Delete(r.Context(), chi.URLParam(r, "notificationID")); err != nil {
		s.writeRepoError(w, err, "delete notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func notificationToResponse(n core.AppNotification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		TaskID:    n.TaskID,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
		ReadAt:    n.ReadAt,
	}
}
