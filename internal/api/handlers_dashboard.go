package api

import (
	"net/http"
	"time"

	"tcron/internal/core"
	"tcron/internal/repository"
)

type dashboardResponse struct {
	TotalTasks           int       `json:"total_tasks"`
	ActiveTasks          int       `json:"active_tasks"`
	CompletedTasks       int       `json:"completed_tasks"`
	FailedTasks          int       `json:"failed_tasks"`
	AverageExecutionTime int64     `json:"average_execution_time_ms"`
	TotalExecutionTime   int64     `json:"total_execution_time_ms"`
	SuccessRate          float32   `json:"success_rate"`
	LastUpdateTime       time.Time `json:"last_update_time"`
}

type taskMetricsResponse struct {
	TaskID               string                        `json:"task_id"`
	TaskName             string                        `json:"task_name"`
	ExecutionCount       int                           `json:"execution_count"`
	SuccessCount         int                           `json:"success_count"`
	FailureCount         int                           `json:"failure_count"`
	AverageExecutionTime int64                         `json:"average_execution_time_ms"`
	LastExecutionTime    *time.Time                    `json:"last_execution_time,omitempty"`
	LastExecutionResult  *repository.ExecutionDocument `json:"last_execution_result,omitempty"`
}

type systemMetricsDocument struct {
	ID                 string    `json:"id,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	CPUUsage           float32   `json:"cpu_usage"`
	MemoryUsage        int64     `json:"memory_usage"`
	TotalMemory        int64     `json:"total_memory"`
	BatteryLevel       float32   `json:"battery_level"`
	BatteryTemperature float32   `json:"battery_temperature"`
	DiskUsage          int64     `json:"disk_usage"`
	TotalDisk          int64     `json:"total_disk"`
}

type settingsDocument struct {
	Theme            string `json:"theme"`
	AccentColor      string `json:"accent_color"`
	Language         string `json:"language"`
	AutoStartEnabled bool   `json:"auto_start_enabled"`
	BaseDirectory    string `json:"base_directory"`
	Notifications    struct {
		Enabled          bool `json:"enabled"`
		ShowTaskComplete bool `json:"show_task_complete"`
		ShowTaskFailed   bool `json:"show_task_failed"`
		ShowTaskStarted  bool `json:"show_task_started"`
	} `json:"notifications"`
	Dashboard struct {
		RefreshInterval int64 `json:"refresh_interval_ms"`
		MaxDataPoints   int   `json:"max_data_points"`
	} `json:"dashboard"`
}

func (s *Server) handleDashboardMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Dashboard.Metrics(r.Context())
	if err != nil {
		s.writeRepoError(w, err, "load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{
		TotalTasks:           m.TotalTasks,
		ActiveTasks:          m.ActiveTasks,
		CompletedTasks:       m.CompletedTasks,
		FailedTasks:          m.FailedTasks,
		AverageExecutionTime: m.AverageExecutionTime,
		TotalExecutionTime:   m.TotalExecutionTime,
		SuccessRate:          m.SuccessRate,
		LastUpdateTime:       m.LastUpdateTime,
	})
}

func (s *Server) handleDashboardTasks(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Dashboard.TaskMetrics(r.Context())
	if err != nil {
		s.writeRepoError(w, err, "load task metrics")
		return
	}
	resp := make([]taskMetricsResponse, 0, len(list))
	for _, m := range list {
		item := taskMetricsResponse{
			TaskID:               m.TaskID,
			TaskName:             m.TaskName,
			ExecutionCount:       m.ExecutionCount,
			SuccessCount:         m.SuccessCount,
			FailureCount:         m.FailureCount,
			AverageExecutionTime: m.AverageExecutionTime,
			LastExecutionTime:    m.LastExecutionTime,
		}
		if m.LastExecutionResult != nil {
			doc := repository.ToExecutionDocument(*m.LastExecutionResult)
			item.LastExecutionResult = &doc
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTypeDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := s.deps.Dashboard.TaskTypeDistribution(r.Context())
	if err != nil {
		s.writeRepoError(w, err, "load distribution")
		return
	}
	resp := make(map[string]int, len(dist))
	for t, n := range dist {
		resp[string(t)] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrentMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Dashboard.CurrentSystemStatus(r.Context())
	if err != nil {
		s.writeRepoError(w, err, "sample system metrics")
		return
	}
	writeJSON(w, http.StatusOK, toSystemMetricsDocument(m))
}

func (s *Server) handleMetricsHistory(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Dashboard.SystemMetricsHistory(r.Context(), parseIntDefault(r.URL.Query().Get("hours"), 24))
	if err != nil {
		s.writeRepoError(w, err, "load metrics history")
		return
	}
	resp := make([]systemMetricsDocument, 0, len(list))
	for _, m := range list {
		resp = append(resp, toSystemMetricsDocument(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordMetrics(w http.ResponseWriter, r *http.Request) {
	var doc systemMetricsDocument
	if !decodeJSON(w, r, &doc) {
		return
	}
	m := core.SystemMetrics{
		ID:                 doc.ID,
		Timestamp:          doc.Timestamp,
		CPUUsage:           doc.CPUUsage,
		MemoryUsage:        doc.MemoryUsage,
		TotalMemory:        doc.TotalMemory,
		BatteryLevel:       doc.BatteryLevel,
		BatteryTemperature: doc.BatteryTemperature,
		DiskUsage:          doc.DiskUsage,
		TotalDisk:          doc.TotalDisk,
	}
	if err := s.deps.Dashboard.RecordSystemMetrics(r.Context(), m); err != nil {
		s.writeRepoError(w, err, "record metrics")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearMetrics(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Dashboard.ClearMetricsHistory(r.Context()); err != nil {
		s.writeRepoError(w, err, "clear metrics")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Settings.Get(r.Context())
	if err != nil {
		s.writeRepoError(w, err, "load settings")
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDocument(settings))
}

// handleUpdateSettings merges the body onto the stored settings; omitted fields keep their value.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.deps.Settings.Get(r.Context())
	if err != nil {
		s.writeRepoError(w, err, "load settings")
		return
	}
	doc := toSettingsDocument(current)
	if !decodeJSON(w, r, &doc) {
		return
	}

	next := core.AppSettings{
		Theme:            core.AppTheme(doc.Theme),
		AccentColor:      doc.AccentColor,
		Language:         doc.Language,
		AutoStartEnabled: doc.AutoStartEnabled,
		BaseDirectory:    doc.BaseDirectory,
		Notifications: core.NotificationSettings{
			Enabled:          doc.Notifications.Enabled,
			ShowTaskComplete: doc.Notifications.ShowTaskComplete,
			ShowTaskFailed:   doc.Notifications.ShowTaskFailed,
			ShowTaskStarted:  doc.Notifications.ShowTaskStarted,
		},
		Dashboard: core.DashboardSettings{
			RefreshInterval: doc.Dashboard.RefreshInterval,
			MaxDataPoints:   doc.Dashboard.MaxDataPoints,
		},
	}
	if err := s.deps.Settings.Update(r.Context(), next); err != nil {
		s.writeRepoError(w, err, "update settings")
		return
	}
	s.handleGetSettings(w, r)
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Settings.Reset(r.Context()); err != nil {
		s.writeRepoError(w, err, "reset settings")
		return
	}
	s.handleGetSettings(w, r)
}

func toSystemMetricsDocument(m core.SystemMetrics) systemMetricsDocument {
	return systemMetricsDocument{
		ID:                 m.ID,
		Timestamp:          m.Timestamp,
		CPUUsage:           m.CPUUsage,
		MemoryUsage:        m.MemoryUsage,
		TotalMemory:        m.TotalMemory,
		BatteryLevel:       m.BatteryLevel,
		BatteryTemperature: m.BatteryTemperature,
		DiskUsage:          m.DiskUsage,
		TotalDisk:          m.TotalDisk,
	}
}

func toSettingsDocument(s core.AppSettings) settingsDocument {
	var doc settingsDocument
	doc.Theme = string(s.Theme)
	doc.AccentColor = s.AccentColor
	doc.Language = s.Language
	doc.AutoStartEnabled = s.AutoStartEnabled
	doc.BaseDirectory = s.BaseDirectory
	doc.Notifications.Enabled = s.Notifications.Enabled
	doc.Notifications.ShowTaskComplete = s.Notifications.ShowTaskComplete
	doc.Notifications.ShowTaskFailed = s.Notifications.ShowTaskFailed
	doc.Notifications.ShowTaskStarted = s.Notifications.ShowTaskStarted
	doc.Dashboard.RefreshInterval = s.Dashboard.RefreshInterval
	doc.Dashboard.MaxDataPoints = s.Dashboard.MaxDataPoints
	return doc
}
