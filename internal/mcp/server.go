package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"tcron/internal/core"
)

// MCPServer exposes task management as MCP tools.
type MCPServer struct {
	tasks  core.TaskRepository
	notes  core.NotificationRepository
	logger *slog.Logger
	server *server.MCPServer
}

// NewMCPServer creates a new MCP server instance with every tool registered.
func NewMCPServer(tasks core.TaskRepository, notes core.NotificationRepository, version string, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		tasks:  tasks,
		notes:  notes,
		logger: logger,
		server: server.NewMCPServer(
			"tcron",
			version,
			server.WithToolCapabilities(true),
		),
	}
	s.registerTools()
	return s
}

// Run serves MCP over stdio until stdin closes.
func (s *MCPServer) Run() error {
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(s.server)
}

// HTTPHandler serves MCP over streamable HTTP, for mounting under /mcp.
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.server)
}

func (s *MCPServer) registerTools() {
	s.server.AddTool(mcp.NewTool("task_create",
		mcp.WithDescription("Create a script task. Without repeat_type the task only runs on demand."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Task name"),
		),
		mcp.WithString("script",
			mcp.Required(),
			mcp.Description("Script content"),
		),
		mcp.WithString("type",
			mcp.Description("Script interpreter, SHELL by default"),
			mcp.Enum("SHELL", "PYTHON", "COMBINED"),
		),
		mcp.WithString("description",
			mcp.Description("Free-form description"),
		),
		mcp.WithString("repeat_type",
			mcp.Description("Recurrence of the schedule"),
			mcp.Enum("NONE", "DAILY", "WEEKLY", "MONTHLY", "CUSTOM"),
		),
		mcp.WithString("scheduled_time",
			mcp.Description("First run, RFC3339. Defaults to now"),
		),
		mcp.WithNumber("interval_minutes",
			mcp.Description("Repeat interval for CUSTOM schedules"),
			mcp.Min(1),
		),
		mcp.WithNumber("timeout_minutes",
			mcp.Description("Execution budget in minutes, default 0.5"),
			mcp.Min(0),
		),
		mcp.WithBoolean("enabled",
			mcp.Description("Whether the task is enabled, default true"),
		),
	), s.handleCreateTask)

	s.server.AddTool(mcp.NewTool("task_list",
		mcp.WithDescription("List tasks"),
		mcp.WithString("type",
			mcp.Description("Only tasks of this type"),
			mcp.Enum("SHELL", "PYTHON", "COMBINED"),
		),
		mcp.WithString("status",
			mcp.Description("Filter: enabled or disabled"),
			mcp.Enum("enabled", "disabled"),
		),
		mcp.WithString("query",
			mcp.Description("Substring of name or description"),
		),
	), s.handleListTasks)

	s.server.AddTool(mcp.NewTool("task_get",
		mcp.WithDescription("Show a task with its statistics"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleGetTask)

	s.server.AddTool(mcp.NewTool("task_update",
		mcp.WithDescription("Update a task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithString("name",
			mcp.Description("New name"),
		),
		mcp.WithString("script",
			mcp.Description("New script content"),
		),
		mcp.WithBoolean("enabled",
			mcp.Description("Enable or disable the task"),
		),
	), s.handleUpdateTask)

	s.server.AddTool(mcp.NewTool("task_toggle",
		mcp.WithDescription("Enable or disable a task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithBoolean("enabled",
			mcp.Required(),
			mcp.Description("true to enable, false to disable"),
		),
	), s.handleToggleTask)

	s.server.AddTool(mcp.NewTool("task_delete",
		mcp.WithDescription("Delete a task and its execution history"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleDeleteTask)

	s.server.AddTool(mcp.NewTool("task_run",
		mcp.WithDescription("Run a task now"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Wait for the run to finish, default true"),
		),
	), s.handleRunTask)

	s.server.AddTool(mcp.NewTool("task_cancel",
		mcp.WithDescription("Cancel the running execution of a task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleCancelTask)

	s.server.AddTool(mcp.NewTool("task_history",
		mcp.WithDescription("List past executions of a task, newest first"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of executions, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleHistory)

	s.server.AddTool(mcp.NewTool("task_execution_output",
		mcp.WithDescription("Show the output of one execution"),
		mcp.WithString("execution_id",
			mcp.Required(),
			mcp.Description("Execution ID"),
		),
		mcp.WithNumber("tail",
			mcp.Description("Only the last N lines, default all"),
			mcp.Min(0),
		),
	), s.handleExecutionOutput)

	s.server.AddTool(mcp.NewTool("schedule_preview",
		mcp.WithDescription("Preview the next run times of a schedule"),
		mcp.WithString("repeat_type",
			mcp.Required(),
			mcp.Enum("NONE", "DAILY", "WEEKLY", "MONTHLY", "CUSTOM"),
		),
		mcp.WithString("scheduled_time",
			mcp.Description("Anchor time, RFC3339. Defaults to now"),
		),
		mcp.WithNumber("interval_minutes",
			mcp.Description("Repeat interval for CUSTOM schedules"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of times, default 5"),
			mcp.Min(1),
			mcp.Max(10),
		),
	), s.handleSchedulePreview)

	s.server.AddTool(mcp.NewTool("notification_list",
		mcp.WithDescription("List in-app notifications"),
		mcp.WithBoolean("unread_only",
			mcp.Description("Only unread notifications"),
		),
	), s.handleListNotifications)

	s.logger.Info("MCP tools registered", "count", 11)
}

func (s *MCPServer) handleCreateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task := core.Task{
		Name:          mcp.ParseString(request, "name", ""),
		Description:   mcp.ParseString(request, "description", ""),
		Type:          core.TaskType(strings.ToUpper(mcp.ParseString(request, "type", string(core.TaskTypeShell)))),
		ScriptContent: mcp.ParseString(request, "script", ""),
		IsEnabled:     mcp.ParseBoolean(request, "enabled", true),
	}

	if repeat := mcp.ParseString(request, "repeat_type", ""); repeat != "" {
		sched, err := scheduleFromRequest(request, repeat)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		task.Schedule = &sched
	}
	if minutes := mcp.ParseFloat64(request, "timeout_minutes", 0); minutes > 0 {
		if task.Schedule == nil {
			task.Schedule = &core.TaskSchedule{ScheduledTime: time.Now().UTC(), RepeatType: core.RepeatNone, IsOneTime: true}
		}
		task.Schedule.MaxExecutionTime = int64(minutes * 60_000)
	}

	id, err := s.tasks.Insert(ctx, task)
	if err != nil {
		return s.toolError("create task", err), nil
	}
	s.logger.Info("task created", "task_id", id, "type", task.Type)

	result := fmt.Sprintf("Task created\nID: %s\n", id)
	if next, err := s.tasks.NextRuns(ctx, id, 1); err == nil && len(next) > 0 {
		result += fmt.Sprintf("Next run: %s\n", formatTime(&next[0]))
	}
	return mcp.NewToolResultText(result), nil
}

func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := core.TaskFilter{Query: mcp.ParseString(request, "query", "")}
	if raw := mcp.ParseString(request, "type", ""); raw != "" {
		t, err := core.ParseTaskType(strings.ToUpper(raw))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Type = &t
	}
	switch mcp.ParseString(request, "status", "") {
	case "enabled":
		enabled := true
		filter.Enabled = &enabled
	case "disabled":
		enabled := false
		filter.Enabled = &enabled
	}

	tasks, err := s.tasks.List(ctx, filter)
	if err != nil {
		return s.toolError("list tasks", err), nil
	}
	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tasks:\n\n", len(tasks))
	for _, t := range tasks {
		icon := "▶️"
		if !t.IsEnabled {
			icon = "⏸️"
		}
		fmt.Fprintf(&b, "%s %s\n", icon, t.ID)
		fmt.Fprintf(&b, "  Name: %s\n", t.Name)
		fmt.Fprintf(&b, "  Type: %s\n", t.Type)
		fmt.Fprintf(&b, "  Script: %s\n", truncateString(firstLine(t.ScriptContent), 60))
		if t.Schedule != nil {
			fmt.Fprintf(&b, "  Schedule: %s from %s\n", t.Schedule.RepeatType, formatTime(&t.Schedule.ScheduledTime))
		}
		fmt.Fprintf(&b, "  Runs: %d (%d ok, %d failed)\n", t.ExecutionCount, t.SuccessCount, t.FailureCount)
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return s.toolError("load task", err), nil
	}
	status, err := s.tasks.Status(ctx, taskID)
	if err != nil {
		return s.toolError("load task status", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task ID: %s\n", task.ID)
	fmt.Fprintf(&b, "Name: %s\n", task.Name)
	if task.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", task.Description)
	}
	fmt.Fprintf(&b, "Type: %s\n", task.Type)
	fmt.Fprintf(&b, "Enabled: %t\n", task.IsEnabled)
	fmt.Fprintf(&b, "Status: %s %s\n", statusToIcon(status), status)
	if task.Schedule != nil {
		fmt.Fprintf(&b, "Schedule: %s from %s\n", task.Schedule.RepeatType, formatTime(&task.Schedule.ScheduledTime))
	}
	fmt.Fprintf(&b, "Timeout: %s\n", task.MaxExecutionTime())
	fmt.Fprintf(&b, "Executions: %d (%d ok, %d failed)\n", task.ExecutionCount, task.SuccessCount, task.FailureCount)
	fmt.Fprintf(&b, "Average time: %d ms\n", task.AverageExecutionTime)
	if task.LastExecutionTime != nil {
		fmt.Fprintf(&b, "Last run: %s\n", formatTime(task.LastExecutionTime))
	}
	fmt.Fprintf(&b, "Created: %s\n", formatTime(&task.CreatedAt))
	fmt.Fprintf(&b, "\nScript:\n%s\n", task.ScriptContent)
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleUpdateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return s.toolError("load task", err), nil
	}

	if name := mcp.ParseString(request, "name", ""); name != "" {
		task.Name = name
	}
	if script := mcp.ParseString(request, "script", ""); script != "" {
		task.ScriptContent = script
	}
	if _, ok := request.GetArguments()["enabled"]; ok {
		task.IsEnabled = mcp.ParseBoolean(request, "enabled", task.IsEnabled)
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		return s.toolError("update task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task updated: %s\nEnabled: %t", task.ID, task.IsEnabled)), nil
}

func (s *MCPServer) handleToggleTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if _, ok := request.GetArguments()["enabled"]; !ok {
		return mcp.NewToolResultError("enabled is required"), nil
	}
	enabled := mcp.ParseBoolean(request, "enabled", false)
	if err := s.tasks.ToggleEnabled(ctx, taskID, enabled); err != nil {
		return s.toolError("toggle task", err), nil
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %s: %s", state, taskID)), nil
}

func (s *MCPServer) handleDeleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return s.toolError("load task", err), nil
	}
	if err := s.tasks.Delete(ctx, taskID); err != nil {
		return s.toolError("delete task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task deleted: %s", taskID)), nil
}

func (s *MCPServer) handleRunTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	if !mcp.ParseBoolean(request, "wait", true) {
		if _, err := s.tasks.Get(ctx, taskID); err != nil {
			return s.toolError("load task", err), nil
		}
		results := s.tasks.ExecuteAsync(context.WithoutCancel(ctx), taskID)
		go func() {
			if res := <-results; res.Err != nil {
				s.logger.Warn("background run", "task_id", taskID, "err", res.Err)
			}
		}()
		return mcp.NewToolResultText(fmt.Sprintf("Task started\nTask ID: %s", taskID)), nil
	}

	res, err := s.tasks.Execute(ctx, taskID)
	if err != nil && (res.ID == "" || !errors.Is(err, core.ErrExecution)) {
		return s.toolError("run task", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] Execution ID: %s\n", statusToIcon(res.Status), res.ID)
	fmt.Fprintf(&b, "Status: %s\n", res.Status)
	fmt.Fprintf(&b, "Exit code: %d\n", res.ExitCode)
	fmt.Fprintf(&b, "Duration: %d ms\n", res.ExecutionTime)
	if res.Output != "" {
		fmt.Fprintf(&b, "\nOutput:\n%s", res.Output)
	}
	if res.ErrorOutput != "" {
		fmt.Fprintf(&b, "\nErrors:\n%s", res.ErrorOutput)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleCancelTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	status, err := s.tasks.Status(ctx, taskID)
	if err != nil {
		return s.toolError("load task status", err), nil
	}
	if status != core.TaskStatusRunning {
		return mcp.NewToolResultText(fmt.Sprintf("Task is not running: %s", taskID)), nil
	}
	if err := s.tasks.CancelExecution(ctx, taskID); err != nil {
		return s.toolError("cancel task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Execution cancelled: %s", taskID)), nil
}

func (s *MCPServer) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	limit := int(mcp.ParseFloat64(request, "limit", 20))

	history, err := s.tasks.History(ctx, taskID)
	if err != nil {
		return s.toolError("load history", err), nil
	}
	if len(history) == 0 {
		return mcp.NewToolResultText("No executions recorded for this task"), nil
	}
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d executions:\n\n", len(history))
	for _, r := range history {
		fmt.Fprintf(&b, "[%s] Execution ID: %s\n", statusToIcon(r.Status), r.ID)
		fmt.Fprintf(&b, "    Status: %s\n", r.Status)
		fmt.Fprintf(&b, "    Start: %s\n", formatTime(&r.StartTime))
		if r.Status.IsTerminal() {
			fmt.Fprintf(&b, "    End: %s\n", formatTime(&r.EndTime))
			fmt.Fprintf(&b, "    Exit code: %d\n", r.ExitCode)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleExecutionOutput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	executionID := mcp.ParseString(request, "execution_id", "")
	res, err := s.tasks.ExecutionResult(ctx, executionID)
	if err != nil {
		return s.toolError("load execution", err), nil
	}

	content := res.Output
	if res.ErrorOutput != "" {
		content += res.ErrorOutput
	}
	if tail := int(mcp.ParseFloat64(request, "tail", 0)); tail > 0 {
		content = tailLines(content, tail)
	}
	return mcp.NewToolResultText(content), nil
}

func (s *MCPServer) handleSchedulePreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sched, err := scheduleFromRequest(request, mcp.ParseString(request, "repeat_type", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	schedule, err := core.ScheduleFor(sched)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid schedule: %v", err)), nil
	}

	count := int(mcp.ParseFloat64(request, "count", 5))
	if count <= 0 || count > 10 {
		count = 5
	}
	nextTimes := core.NextOccurrences(schedule, time.Now().UTC(), count)

	var b strings.Builder
	fmt.Fprintf(&b, "Repeat: %s\n", sched.RepeatType)
	fmt.Fprintf(&b, "Anchor: %s\n\n", formatTime(&sched.ScheduledTime))
	if len(nextTimes) == 0 {
		b.WriteString("No upcoming runs\n")
	} else {
		b.WriteString("Upcoming runs (UTC):\n")
	}
	for i, t := range nextTimes {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, formatTime(&t))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleListNotifications(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.notes.List(ctx, core.NotificationFilter{UnreadOnly: mcp.ParseBoolean(request, "unread_only", false)})
	if err != nil {
		return s.toolError("list notifications", err), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("No notifications"), nil
	}

	var b strings.Builder
	for _, n := range list {
		marker := " "
		if !n.IsRead {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s [%s] %s: %s\n", marker, formatTime(&n.CreatedAt), n.Type, n.Title, n.Message)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// toolError reports repository errors to the client. Only unexpected ones are logged.
func (s *MCPServer) toolError(action string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrTaskRunning):
	default:
		s.logger.Error(action, "err", err)
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
}

func scheduleFromRequest(request mcp.CallToolRequest, repeat string) (core.TaskSchedule, error) {
	repeatType, err := core.ParseRepeatType(strings.ToUpper(repeat))
	if err != nil {
		return core.TaskSchedule{}, err
	}
	start := time.Now().UTC().Truncate(time.Minute)
	if raw := mcp.ParseString(request, "scheduled_time", ""); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return core.TaskSchedule{}, fmt.Errorf("scheduled_time must be RFC3339: %w", err)
		}
		start = parsed.UTC()
	}
	return core.TaskSchedule{
		ScheduledTime:    start,
		RepeatType:       repeatType,
		RepeatInterval:   int64(mcp.ParseFloat64(request, "interval_minutes", 0) * 60_000),
		IsOneTime:        repeatType == core.RepeatNone,
		MaxExecutionTime: core.DefaultMaxExecutionTime,
	}, nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func tailLines(text string, n int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[len(lines)-n:], "\n") + "\n"
}

func statusToIcon(status core.TaskStatus) string {
	switch status {
	case core.TaskStatusCompleted:
		return "✅"
	case core.TaskStatusFailed:
		return "❌"
	case core.TaskStatusTimeout:
		return "⏱️"
	case core.TaskStatusCancelled:
		return "🚫"
	case core.TaskStatusRunning:
		return "▶️"
	case core.TaskStatusPending:
		return "⏳"
	default:
		return "❓"
	}
}
