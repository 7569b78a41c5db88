package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tcron/internal/core"
	"tcron/internal/repository"
)

const maxImportBytes = 10 << 20

type updateTaskRequest struct {
	Name          *string                         `json:"name"`
	Description   *string                         `json:"description"`
	Type          *string                         `json:"type"`
	ScriptContent *string                         `json:"script_content"`
	Permissions   *repository.PermissionsDocument `json:"permissions"`
	Schedule      *repository.ScheduleDocument    `json:"schedule"`
	ClearSchedule bool                            `json:"clear_schedule"`
	IsEnabled     *bool                           `json:"is_enabled"`
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type runAcceptedResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type statusResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type nextRunsResponse struct {
	TaskID    string   `json:"task_id"`
	NextTimes []string `json:"next_times"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var doc repository.TaskDocument
	if !decodeJSON(w, r, &doc) {
		return
	}
	task := doc.ToTask()
	id, err := s.deps.Tasks.Insert(r.Context(), task)
	if err != nil {
		s.writeRepoError(w, err, "insert task")
		return
	}
	created, err := s.deps.Tasks.Get(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, err, "load task")
		return
	}
	writeJSON(w, http.StatusCreated, repository.ToTaskDocument(created))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var filter core.TaskFilter
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("type")); raw != "" {
		t, err := core.ParseTaskType(strings.ToUpper(raw))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "type must be shell, python or combined")
			return
		}
		filter.Type = &t
	}
	if raw := strings.TrimSpace(q.Get("enabled")); raw != "" {
		enabled := parseBoolParam(raw)
		filter.Enabled = &enabled
	}
	filter.Query = q.Get("q")

	tasks, err := s.deps.Tasks.List(r.Context(), filter)
	if err != nil {
		s.writeRepoError(w, err, "list tasks")
		return
	}
	writeJSON(w, http.StatusOK, taskDocuments(tasks))
}

func (s *Server) handleRunningTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.deps.Tasks.RunningTasks(r.Context())
	if err != nil {
		s.writeRepoError(w, err, "list running tasks")
		return
	}
	writeJSON(w, http.StatusOK, taskDocuments(tasks))
}

// handleStreamTasks sends a server-sent event with the full task list after every change.
func (s *Server) handleStreamTasks(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for res := range s.deps.Tasks.ObserveAll(r.Context()) {
		var err error
		if res.Err != nil {
			s.logger.Warn("task stream snapshot", "err", res.Err)
			err = writeEvent(w, "error", map[string]string{"message": res.Err.Error()})
		} else {
			err = writeEvent(w, "tasks", taskDocuments(res.Value))
		}
		if err != nil {
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w io.Writer, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.deps.Tasks.Get(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeRepoError(w, err, "load task")
		return
	}
	writeJSON(w, http.StatusOK, repository.ToTaskDocument(task))
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.deps.Tasks.Get(r.Context(), taskID)
	if err != nil {
		s.writeRepoError(w, err, "load task")
		return
	}

	var req updateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != nil {
		task.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Type != nil {
		task.Type = core.TaskType(strings.ToUpper(strings.TrimSpace(*req.Type)))
	}
	if req.ScriptContent != nil {
		task.ScriptContent = *req.ScriptContent
	}
	if req.Permissions != nil {
		task.Permissions = repository.TaskDocument{Permissions: *req.Permissions}.ToTask().Permissions
	}
	if req.ClearSchedule {
		task.Schedule = nil
	}
	if req.Schedule != nil {
		task.Schedule = repository.TaskDocument{Schedule: req.Schedule}.ToTask().Schedule
	}
	if req.IsEnabled != nil {
		task.IsEnabled = *req.IsEnabled
	}

	if err := s.deps.Tasks.Update(r.Context(), task); err != nil {
		s.writeRepoError(w, err, "update task")
		return
	}
	updated, err := s.deps.Tasks.Get(r.Context(), taskID)
	if err != nil {
		s.writeRepoError(w, err, "load task")
		return
	}
	writeJSON(w, http.StatusOK, repository.ToTaskDocument(updated))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Tasks.Delete(r.Context(), chi.URLParam(r, "taskID")); err != nil {
		s.writeRepoError(w, err, "delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "enabled is required")
		return
	}
	taskID := chi.URLParam(r, "taskID")
	if err := s.deps.Tasks.ToggleEnabled(r.Context(), taskID, *req.Enabled); err != nil {
		s.writeRepoError(w, err, "toggle task")
		return
	}
	task, err := s.deps.Tasks.Get(r.Context(), taskID)
	if err != nil {
		s.writeRepoError(w, err, "load task")
		return
	}
	writeJSON(w, http.StatusOK, repository.ToTaskDocument(task))
}

// handleRunTask runs the task. With ?wait=1 it answers with the finished execution,
// otherwise it starts the run in the background and answers 202.
func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if parseBoolParam(r.URL.Query().Get("wait")) {
		res, err := s.deps.Tasks.Execute(r.Context(), taskID)
		if err != nil && !(errors.Is(err, core.ErrExecution) && res.ID != "") {
			s.writeRepoError(w, err, "run task")
			return
		}
		writeJSON(w, http.StatusOK, repository.ToExecutionDocument(res))
		return
	}

	status, err := s.deps.Tasks.Status(r.Context(), taskID)
	if err != nil {
		s.writeRepoError(w, err, "load task status")
		return
	}
	if status == core.TaskStatusRunning {
		writeError(w, http.StatusConflict, "conflict", "task is already running")
		return
	}
	results := s.deps.Tasks.ExecuteAsync(s.background, taskID)
	go func() {
		res := <-results
		if res.Err != nil {
			s.logger.Warn("background run", "task_id", taskID, "err", res.Err)
		}
	}()
	writeJSON(w, http.StatusAccepted, runAcceptedResponse{TaskID: taskID, Status: string(core.TaskStatusRunning)})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if _, err := s.deps.Tasks.Status(r.Context(), taskID); err != nil {
		s.writeRepoError(w, err, "load task status")
		return
	}
	if err := s.deps.Tasks.CancelExecution(r.Context(), taskID); err != nil {
		s.writeRepoError(w, err, "cancel task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	status, err := s.deps.Tasks.Status(r.Context(), taskID)
	if err != nil {
		s.writeRepoError(w, err, "load task status")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{TaskID: taskID, Status: string(status)})
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	history, err := s.deps.Tasks.History(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeRepoError(w, err, "list executions")
		return
	}
	if limit := parseIntDefault(r.URL.Query().Get("limit"), 0); limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	resp := make([]repository.ExecutionDocument, 0, len(history))
	for _, e := range history {
		resp = append(resp, repository.ToExecutionDocument(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearExecutions(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Tasks.ClearHistory(r.Context(), chi.URLParam(r, "taskID")); err != nil {
		s.writeRepoError(w, err, "clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNextRuns(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	times, err := s.deps.Tasks.NextRuns(r.Context(), taskID, parseIntDefault(r.URL.Query().Get("count"), 5))
	if err != nil {
		s.writeRepoError(w, err, "preview runs")
		return
	}
	writeJSON(w, http.StatusOK, nextRunsResponse{TaskID: taskID, NextTimes: formatTimes(times)})
}

func (s *Server) handleExportTasks(w http.ResponseWriter, r *http.Request) {
	format, err := repository.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeRepoError(w, err, "export tasks")
		return
	}
	data, err := s.deps.Tasks.Export(r.Context(), format)
	if err != nil {
		s.writeRepoError(w, err, "export tasks")
		return
	}
	w.Header().Set("Content-Type", contentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="tasks.%s"`, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImportTasks(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "import payload is too large")
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" && strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = repository.FormatYAML
	}
	tasks, err := s.deps.Tasks.Import(r.Context(), data, format)
	if err != nil {
		s.writeRepoError(w, err, "import tasks")
		return
	}
	writeJSON(w, http.StatusCreated, taskDocuments(tasks))
}

func taskDocuments(tasks []core.Task) []repository.TaskDocument {
	docs := make([]repository.TaskDocument, 0, len(tasks))
	for _, t := range tasks {
		docs = append(docs, repository.ToTaskDocument(t))
	}
	return docs
}

func formatTimes(times []time.Time) []string {
	out := make([]string, 0, len(times))
	for _, t := range times {
		out = append(out, t.UTC().Format(time.RFC3339))
	}
	return out
}

func contentType(format string) string {
	if format == repository.FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}
