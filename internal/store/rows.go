package store

import (
	"database/sql"
	"time"
)

// CurrentBlobVersion is the version of the JSON encodings written into blob columns.
const CurrentBlobVersion = 1

// TaskRow is the flattened storage form of core.Task. Timestamps are epoch milliseconds,
// nested structures are JSON text and enums are their canonical names.
type TaskRow struct {
	ID                   string
	Name                 string
	Description          string
	Type                 string
	ScriptContent        string
	RequiresRoot         bool
	RequiresNetwork      bool
	RequiresStorage      bool
	CustomPermissions    string
	ScheduledTime        sql.NullInt64
	RepeatType           string
	RepeatInterval       int64
	IsOneTime            bool
	ExecuteOnBoot        bool
	DelayAfterBoot       int64
	MaxExecutionTime     int64
	IsEnabled            bool
	LastExecutionTime    sql.NullInt64
	LastExecutionResult  sql.NullString
	ExecutionCount       int
	SuccessCount         int
	FailureCount         int
	AverageExecutionTime int64
	CreatedAt            int64
	UpdatedAt            int64
	BlobVersion          int
}

// ExecutionRow is the storage form of core.TaskExecutionResult.
type ExecutionRow struct {
	ID            string
	TaskID        string
	Status        string
	StartTime     int64
	EndTime       int64
	ExitCode      int
	Output        string
	ErrorOutput   string
	IsSuccess     bool
	ExecutionTime int64
	CPUUsage      float64
	MemoryUsage   int64
	BatteryUsage  float64
}

// SessionRow is the storage form of core.TerminalSession without its command history.
type SessionRow struct {
	ID               string
	Name             string
	IsActive         bool
	WorkingDirectory string
	Environment      string
	Output           string
	CreatedAt        int64
	LastUsedAt       int64
	BlobVersion      int
}

// CommandRow is the storage form of core.TerminalCommand.
type CommandRow struct {
	ID               string
	SessionID        string
	Command          string
	WorkingDirectory string
	ExitCode         int
	Output           string
	ErrorOutput      string
	ExecutionTime    int64
	Timestamp        int64
	IsSuccess        bool
}

// NotificationRow is the storage form of core.AppNotification.
type NotificationRow struct {
	ID        string
	Title     string
	Message   string
	Type      string
	TaskID    sql.NullString
	IsRead    bool
	CreatedAt int64
	ReadAt    sql.NullInt64
}

// MetricsRow is the storage form of core.SystemMetrics.
type MetricsRow struct {
	ID                 string
	Timestamp          int64
	CPUUsage           float64
	MemoryUsage        int64
	TotalMemory        int64
	BatteryLevel       float64
	BatteryTemperature float64
	DiskUsage          int64
	TotalDisk          int64
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timeFromNullable(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullableString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func stringFromNullable(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
