package core

import (
	"fmt"
	"time"
)

// TaskType selects the interpreter used to run a task's script.
type TaskType string

const (
	TaskTypeShell    TaskType = "SHELL"
	TaskTypePython   TaskType = "PYTHON"
	TaskTypeCombined TaskType = "COMBINED"
)

// ParseTaskType returns the TaskType with the given canonical name.
func ParseTaskType(name string) (TaskType, error) {
	switch t := TaskType(name); t {
	case TaskTypeShell, TaskTypePython, TaskTypeCombined:
		return t, nil
	default:
		return "", fmt.Errorf("unknown task type %q", name)
	}
}

// RepeatType describes how a schedule recurs.
type RepeatType string

const (
	RepeatNone    RepeatType = "NONE"
	RepeatDaily   RepeatType = "DAILY"
	RepeatWeekly  RepeatType = "WEEKLY"
	RepeatMonthly RepeatType = "MONTHLY"
	RepeatCustom  RepeatType = "CUSTOM"
)

// ParseRepeatType returns the RepeatType with the given canonical name.
func ParseRepeatType(name string) (RepeatType, error) {
	switch r := RepeatType(name); r {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatCustom:
		return r, nil
	default:
		return "", fmt.Errorf("unknown repeat type %q", name)
	}
}

// DefaultMaxExecutionTime is the execution budget, in milliseconds, assumed when a task has no schedule.
const DefaultMaxExecutionTime int64 = 30000

// TaskPermissions lists what a script needs from the host.
type TaskPermissions struct {
	RequiresRoot      bool
	RequiresNetwork   bool
	RequiresStorage   bool
	CustomPermissions []string
}

// TaskSchedule is the recurrence rule attached to a task. Durations are milliseconds.
type TaskSchedule struct {
	ScheduledTime    time.Time
	RepeatType       RepeatType
	RepeatInterval   int64
	IsOneTime        bool
	ExecuteOnBoot    bool
	DelayAfterBoot   int64
	MaxExecutionTime int64
}

// Task is a stored automation script together with its execution statistics.
type Task struct {
	ID            string
	Name          string
	Description   string
	Type          TaskType
	ScriptContent string
	Permissions   TaskPermissions
	Schedule      *TaskSchedule
	IsEnabled     bool

	LastExecutionTime    *time.Time
	LastExecutionResult  *TaskExecutionResult
	ExecutionCount       int
	SuccessCount         int
	FailureCount         int
	AverageExecutionTime int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MaxExecutionTime returns the execution budget for the task.
func (t Task) MaxExecutionTime() time.Duration {
	if t.Schedule != nil && t.Schedule.MaxExecutionTime > 0 {
		return time.Duration(t.Schedule.MaxExecutionTime) * time.Millisecond
	}
	return time.Duration(DefaultMaxExecutionTime) * time.Millisecond
}

// TaskExecutionResult records one execution of a task.
type TaskExecutionResult struct {
	ID            string
	TaskID        string
	Status        TaskStatus
	StartTime     time.Time
	EndTime       time.Time
	ExitCode      int
	Output        string
	ErrorOutput   string
	IsSuccess     bool
	ExecutionTime int64
	CPUUsage      float32
	MemoryUsage   int64
	BatteryUsage  float32
}

// NowMillis returns the current UTC time truncated to millisecond precision,
// which is the precision records are stored with.
func NowMillis() time.Time {
	return time.UnixMilli(time.Now().UnixMilli()).UTC()
}
