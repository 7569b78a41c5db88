package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcron/internal/core"
	"tcron/internal/logging"
	"tcron/internal/repository"
	"tcron/internal/store"
)

type echoExecutor struct{}

func (echoExecutor) Run(ctx context.Context, req core.ScriptRequest) (core.ScriptOutcome, error) {
	return core.ScriptOutcome{ExitCode: 0, Stdout: "line1\nline2\nline3\n", Duration: 3 * time.Millisecond}, nil
}

func newTestMCPServer(t *testing.T) (*MCPServer, *repository.Tasks) {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := logging.Discard()
	notes := repository.NewNotifications(st, nil, logger)
	tasks := repository.NewTasks(st, echoExecutor{}, repository.TasksOptions{
		Notifications: notes,
		Settings:      repository.NewSettings(st),
		Logger:        logger,
	})
	return NewMCPServer(tasks, notes, "test", logger), tasks
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestCreateListAndGetTask(t *testing.T) {
	s, tasks := newTestMCPServer(t)
	ctx := context.Background()

	res, err := s.handleCreateTask(ctx, callRequest("task_create", map[string]any{
		"name":             "rotate logs",
		"script":           "logrotate /etc/logrotate.conf",
		"repeat_type":      "daily",
		"scheduled_time":   "2030-05-01T03:00:00Z",
		"timeout_minutes":  float64(2),
		"interval_minutes": float64(0),
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError, resultText(t, res))
	assert.Contains(t, resultText(t, res), "Next run: 2030-05-01 03:00:00")

	list, err := tasks.List(ctx, core.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	task := list[0]
	assert.Equal(t, core.TaskTypeShell, task.Type)
	require.NotNil(t, task.Schedule)
	assert.Equal(t, core.RepeatDaily, task.Schedule.RepeatType)
	assert.Equal(t, int64(120_000), task.Schedule.MaxExecutionTime)

	res, err = s.handleListTasks(ctx, callRequest("task_list", map[string]any{"status": "enabled"}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "Found 1 tasks")
	assert.Contains(t, text, "rotate logs")

	res, err = s.handleListTasks(ctx, callRequest("task_list", map[string]any{"status": "disabled"}))
	require.NoError(t, err)
	assert.Equal(t, "No tasks found", resultText(t, res))

	res, err = s.handleGetTask(ctx, callRequest("task_get", map[string]any{"task_id": task.ID}))
	require.NoError(t, err)
	text = resultText(t, res)
	assert.Contains(t, text, "Status: ⏳ PENDING")
	assert.Contains(t, text, "Timeout: 2m0s")
}

func TestCreateTaskRejectsBadInput(t *testing.T) {
	s, _ := newTestMCPServer(t)
	ctx := context.Background()

	res, err := s.handleCreateTask(ctx, callRequest("task_create", map[string]any{"name": "x", "script": "  "}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleCreateTask(ctx, callRequest("task_create", map[string]any{
		"name": "x", "script": "true", "repeat_type": "hourly",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleCreateTask(ctx, callRequest("task_create", map[string]any{
		"name": "x", "script": "true", "repeat_type": "daily", "scheduled_time": "tomorrow",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "RFC3339")
}

func TestRunHistoryAndOutput(t *testing.T) {
	s, tasks := newTestMCPServer(t)
	ctx := context.Background()
	id, err := tasks.Insert(ctx, core.Task{Name: "report", Type: core.TaskTypeShell, ScriptContent: "echo hi", IsEnabled: true})
	require.NoError(t, err)

	res, err := s.handleRunTask(ctx, callRequest("task_run", map[string]any{"task_id": id}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "Status: COMPLETED")
	assert.Contains(t, text, "line3")

	history, err := tasks.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)

	res, err = s.handleHistory(ctx, callRequest("task_history", map[string]any{"task_id": id}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "Found 1 executions")

	res, err = s.handleExecutionOutput(ctx, callRequest("task_execution_output", map[string]any{
		"execution_id": history[0].ID,
		"tail":         float64(1),
	}))
	require.NoError(t, err)
	assert.Equal(t, "line3\n", resultText(t, res))

	res, err = s.handleRunTask(ctx, callRequest("task_run", map[string]any{"task_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleCancelTask(ctx, callRequest("task_cancel", map[string]any{"task_id": id}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "not running")
}

func TestUpdateAndDeleteTask(t *testing.T) {
	s, tasks := newTestMCPServer(t)
	ctx := context.Background()
	id, err := tasks.Insert(ctx, core.Task{Name: "sync", Type: core.TaskTypeShell, ScriptContent: "rsync a b", IsEnabled: true})
	require.NoError(t, err)

	res, err := s.handleUpdateTask(ctx, callRequest("task_update", map[string]any{"task_id": id, "name": "sync all"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	got, err := tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "sync all", got.Name)
	assert.True(t, got.IsEnabled, "enabled flag untouched when omitted")

	res, err = s.handleUpdateTask(ctx, callRequest("task_update", map[string]any{"task_id": id, "enabled": false}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "Enabled: false")

	res, err = s.handleToggleTask(ctx, callRequest("task_toggle", map[string]any{"task_id": id, "enabled": true}))
	require.NoError(t, err)
	assert.Equal(t, "Task enabled: "+id, resultText(t, res))
	got, err = tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.IsEnabled)

	res, err = s.handleToggleTask(ctx, callRequest("task_toggle", map[string]any{"task_id": "missing", "enabled": true}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleDeleteTask(ctx, callRequest("task_delete", map[string]any{"task_id": id}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = s.handleDeleteTask(ctx, callRequest("task_delete", map[string]any{"task_id": id}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSchedulePreviewTool(t *testing.T) {
	s, _ := newTestMCPServer(t)
	ctx := context.Background()

	res, err := s.handleSchedulePreview(ctx, callRequest("schedule_preview", map[string]any{
		"repeat_type":      "custom",
		"scheduled_time":   "2099-01-01T00:00:00Z",
		"interval_minutes": float64(30),
		"count":            float64(3),
	}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "1. 2099-01-01 00:00:00")
	assert.Contains(t, text, "3. 2099-01-01 01:00:00")

	res, err = s.handleSchedulePreview(ctx, callRequest("schedule_preview", map[string]any{"repeat_type": "custom"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestNotificationListTool(t *testing.T) {
	s, _ := newTestMCPServer(t)
	ctx := context.Background()

	res, err := s.handleListNotifications(ctx, callRequest("notification_list", nil))
	require.NoError(t, err)
	assert.Equal(t, "No notifications", resultText(t, res))

	_, err = s.notes.Create(ctx, "Backup", "finished", core.NotificationTaskCompleted, nil)
	require.NoError(t, err)
	res, err = s.handleListNotifications(ctx, callRequest("notification_list", map[string]any{"unread_only": true}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "* ")
	assert.Contains(t, resultText(t, res), "[TASK_COMPLETED] Backup: finished")
}

func TestHTTPHandlerIsMountable(t *testing.T) {
	s, _ := newTestMCPServer(t)
	assert.NotNil(t, s.HTTPHandler())
}
