package core

import (
	"context"
	"time"
)

// TaskFilter narrows a task listing. Zero value lists everything.
type TaskFilter struct {
	Type    *TaskType
	Enabled *bool
	Query   string
}

// TaskRepository is the task-facing port used by every surface of the daemon.
// Observe* streams emit a fresh snapshot after each committed change and close when ctx ends.
type TaskRepository interface {
	ObserveAll(ctx context.Context) <-chan Result[[]Task]
	ObserveByID(ctx context.Context, id string) <-chan Result[*Task]
	ObserveByType(ctx context.Context, taskType TaskType) <-chan Result[[]Task]
	ObserveEnabled(ctx context.Context) <-chan Result[[]Task]
	ObserveScheduled(ctx context.Context) <-chan Result[[]Task]
	ObserveBoot(ctx context.Context) <-chan Result[[]Task]

	List(ctx context.Context, filter TaskFilter) ([]Task, error)
	Search(ctx context.Context, query string) ([]Task, error)
	Get(ctx context.Context, id string) (Task, error)
	Insert(ctx context.Context, task Task) (string, error)
	Update(ctx context.Context, task Task) error
	Delete(ctx context.Context, id string) error
	ToggleEnabled(ctx context.Context, id string, enabled bool) error

	Execute(ctx context.Context, id string) (TaskExecutionResult, error)
	ExecuteAsync(ctx context.Context, id string) <-chan Result[TaskExecutionResult]
	CancelExecution(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (TaskStatus, error)
	RunningTasks(ctx context.Context) ([]Task, error)

	History(ctx context.Context, id string) ([]TaskExecutionResult, error)
	ExecutionResult(ctx context.Context, executionID string) (TaskExecutionResult, error)
	ClearHistory(ctx context.Context, id string) error
	NextRuns(ctx context.Context, id string, n int) ([]time.Time, error)

	Export(ctx context.Context, format string) ([]byte, error)
	Import(ctx context.Context, data []byte, format string) ([]Task, error)
}

// TerminalRepository manages terminal sessions and the commands run in them.
type TerminalRepository interface {
	ObserveActive(ctx context.Context) <-chan Result[[]TerminalSession]
	ObserveSession(ctx context.Context, id string) <-chan Result[*TerminalSession]

	ListSessions(ctx context.Context, activeOnly bool) ([]TerminalSession, error)
	GetSession(ctx context.Context, id string) (TerminalSession, error)
	CreateSession(ctx context.Context, name, workingDirectory string) (TerminalSession, error)
	CloseSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error

	ExecuteCommand(ctx context.Context, id, command string) (TerminalCommand, error)
	ExecuteCommandWithRoot(ctx context.Context, id, command string) (TerminalCommand, error)
	KillProcess(ctx context.Context, id string) error
	IsRootAvailable() bool

	History(ctx context.Context, id string) ([]TerminalCommand, error)
	ClearHistory(ctx context.Context, id string) error
	ClearOutput(ctx context.Context, id string) error
	ChangeWorkingDirectory(ctx context.Context, id, dir string) error
	Environment(ctx context.Context, id string) (map[string]string, error)
	SetEnvironmentVariable(ctx context.Context, id, key, value string) error
	SaveAsScript(ctx context.Context, id, fileName string) (string, error)
	Export(ctx context.Context, id, format string) ([]byte, error)
}

// NotificationFilter narrows a notification listing.
type NotificationFilter struct {
	UnreadOnly bool
	Type       *NotificationType
	TaskID     *string
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	ObserveAll(ctx context.Context) <-chan Result[[]AppNotification]
	ObserveUnread(ctx context.Context) <-chan Result[[]AppNotification]
	ObserveSummary(ctx context.Context) <-chan Result[NotificationSummary]

	List(ctx context.Context, filter NotificationFilter) ([]AppNotification, error)
	Get(ctx context.Context, id string) (AppNotification, error)
	ByType(ctx context.Context, notificationType NotificationType) ([]AppNotification, error)
	ByTask(ctx context.Context, taskID string) ([]AppNotification, error)
	Summary(ctx context.Context) (NotificationSummary, error)
	Create(ctx context.Context, title, message string, notificationType NotificationType, taskID *string) (AppNotification, error)
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	DeleteRead(ctx context.Context) error
}

// DashboardRepository aggregates task statistics and host metrics.
type DashboardRepository interface {
	Metrics(ctx context.Context) (DashboardMetrics, error)
	ObserveMetrics(ctx context.Context) <-chan Result[DashboardMetrics]
	TaskMetrics(ctx context.Context) ([]TaskMetrics, error)
	TaskTypeDistribution(ctx context.Context) (map[TaskType]int, error)

	RecordSystemMetrics(ctx context.Context, m SystemMetrics) error
	CurrentSystemStatus(ctx context.Context) (SystemMetrics, error)
	SystemMetricsHistory(ctx context.Context, hours int) ([]SystemMetrics, error)
	ClearMetricsHistory(ctx context.Context) error
}

// SettingsRepository is the key-value preference store and its aggregated view.
type SettingsRepository interface {
	Get(ctx context.Context) (AppSettings, error)
	Update(ctx context.Context, settings AppSettings) error
	Reset(ctx context.Context) error

	GetString(ctx context.Context, key, def string) (string, error)
	SetString(ctx context.Context, key, value string) error
	GetBool(ctx context.Context, key string, def bool) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error
	GetInt(ctx context.Context, key string, def int) (int, error)
	SetInt(ctx context.Context, key string, value int) error
}
