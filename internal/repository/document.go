package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tcron/internal/core"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ParseFormat normalizes an export format name. Empty means JSON.
func ParseFormat(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", core.Invalid("format", fmt.Sprintf("unsupported format %q", name))
	}
}

// PermissionsDocument is the external form of core.TaskPermissions.
type PermissionsDocument struct {
	RequiresRoot      bool     `json:"requires_root" yaml:"requires_root"`
	RequiresNetwork   bool     `json:"requires_network" yaml:"requires_network"`
	RequiresStorage   bool     `json:"requires_storage" yaml:"requires_storage"`
	CustomPermissions []string `json:"custom_permissions,omitempty" yaml:"custom_permissions,omitempty"`
}

// ScheduleDocument is the external form of core.TaskSchedule. Durations are milliseconds.
type ScheduleDocument struct {
	ScheduledTime    time.Time `json:"scheduled_time" yaml:"scheduled_time"`
	RepeatType       string    `json:"repeat_type" yaml:"repeat_type"`
	RepeatInterval   int64     `json:"repeat_interval_ms,omitempty" yaml:"repeat_interval_ms,omitempty"`
	IsOneTime        bool      `json:"is_one_time" yaml:"is_one_time"`
	ExecuteOnBoot    bool      `json:"execute_on_boot" yaml:"execute_on_boot"`
	DelayAfterBoot   int64     `json:"delay_after_boot_ms,omitempty" yaml:"delay_after_boot_ms,omitempty"`
	MaxExecutionTime int64     `json:"max_execution_time_ms" yaml:"max_execution_time_ms"`
}

// ExecutionDocument is the external form of core.TaskExecutionResult.
type ExecutionDocument struct {
	ID            string    `json:"id" yaml:"id"`
	TaskID        string    `json:"task_id" yaml:"task_id"`
	Status        string    `json:"status" yaml:"status"`
	StartTime     time.Time `json:"start_time" yaml:"start_time"`
	EndTime       time.Time `json:"end_time" yaml:"end_time"`
	ExitCode      int       `json:"exit_code" yaml:"exit_code"`
	Output        string    `json:"output" yaml:"output"`
	ErrorOutput   string    `json:"error_output" yaml:"error_output"`
	IsSuccess     bool      `json:"is_success" yaml:"is_success"`
	ExecutionTime int64     `json:"execution_time_ms" yaml:"execution_time_ms"`
	CPUUsage      float32   `json:"cpu_usage" yaml:"cpu_usage"`
	MemoryUsage   int64     `json:"memory_usage" yaml:"memory_usage"`
	BatteryUsage  float32   `json:"battery_usage" yaml:"battery_usage"`
}

// TaskDocument is the external form of core.Task used by export files and the HTTP API.
type TaskDocument struct {
	ID                   string              `json:"id" yaml:"id"`
	Name                 string              `json:"name" yaml:"name"`
	Description          string              `json:"description,omitempty" yaml:"description,omitempty"`
	Type                 string              `json:"type" yaml:"type"`
	ScriptContent        string              `json:"script_content" yaml:"script_content"`
	Permissions          PermissionsDocument `json:"permissions" yaml:"permissions"`
	Schedule             *ScheduleDocument   `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	IsEnabled            bool                `json:"is_enabled" yaml:"is_enabled"`
	LastExecutionTime    *time.Time          `json:"last_execution_time,omitempty" yaml:"last_execution_time,omitempty"`
	LastExecutionResult  *ExecutionDocument  `json:"last_execution_result,omitempty" yaml:"last_execution_result,omitempty"`
	ExecutionCount       int                 `json:"execution_count" yaml:"execution_count"`
	SuccessCount         int                 `json:"success_count" yaml:"success_count"`
	FailureCount         int                 `json:"failure_count" yaml:"failure_count"`
	AverageExecutionTime int64               `json:"average_execution_time_ms" yaml:"average_execution_time_ms"`
	CreatedAt            time.Time           `json:"created_at" yaml:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at" yaml:"updated_at"`
}

// ExportFile is the top-level export document.
type ExportFile struct {
	Version    int            `json:"version" yaml:"version"`
	ExportedAt time.Time      `json:"exported_at" yaml:"exported_at"`
	Tasks      []TaskDocument `json:"tasks" yaml:"tasks"`
}

const exportVersion = 1

func ToExecutionDocument(r core.TaskExecutionResult) ExecutionDocument {
	return ExecutionDocument{
		ID:            r.ID,
		TaskID:        r.TaskID,
		Status:        string(r.Status),
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		ExitCode:      r.ExitCode,
		Output:        r.Output,
		ErrorOutput:   r.ErrorOutput,
		IsSuccess:     r.IsSuccess,
		ExecutionTime: r.ExecutionTime,
		CPUUsage:      r.CPUUsage,
		MemoryUsage:   r.MemoryUsage,
		BatteryUsage:  r.BatteryUsage,
	}
}

func ToTaskDocument(t core.Task) TaskDocument {
	doc := TaskDocument{
		ID:            t.ID,
		Name:          t.Name,
		Description:   t.Description,
		Type:          string(t.Type),
		ScriptContent: t.ScriptContent,
		Permissions: PermissionsDocument{
			RequiresRoot:      t.Permissions.RequiresRoot,
			RequiresNetwork:   t.Permissions.RequiresNetwork,
			RequiresStorage:   t.Permissions.RequiresStorage,
			CustomPermissions: t.Permissions.CustomPermissions,
		},
		IsEnabled:            t.IsEnabled,
		LastExecutionTime:    t.LastExecutionTime,
		ExecutionCount:       t.ExecutionCount,
		SuccessCount:         t.SuccessCount,
		FailureCount:         t.FailureCount,
		AverageExecutionTime: t.AverageExecutionTime,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
	if s := t.Schedule; s != nil {
		doc.Schedule = &ScheduleDocument{
			ScheduledTime:    s.ScheduledTime,
			RepeatType:       string(s.RepeatType),
			RepeatInterval:   s.RepeatInterval,
			IsOneTime:        s.IsOneTime,
			ExecuteOnBoot:    s.ExecuteOnBoot,
			DelayAfterBoot:   s.DelayAfterBoot,
			MaxExecutionTime: s.MaxExecutionTime,
		}
	}
	if r := t.LastExecutionResult; r != nil {
		d := ToExecutionDocument(*r)
		doc.LastExecutionResult = &d
	}
	return doc
}

// ToTask converts the definition part of a document back to a task. Statistics are not
// carried over; enum names are checked by ValidateTask when the task is stored.
func (d TaskDocument) ToTask() core.Task {
	t := core.Task{
		ID:            d.ID,
		Name:          d.Name,
		Description:   d.Description,
		Type:          core.TaskType(strings.ToUpper(d.Type)),
		ScriptContent: d.ScriptContent,
		Permissions: core.TaskPermissions{
			RequiresRoot:      d.Permissions.RequiresRoot,
			RequiresNetwork:   d.Permissions.RequiresNetwork,
			RequiresStorage:   d.Permissions.RequiresStorage,
			CustomPermissions: d.Permissions.CustomPermissions,
		},
		IsEnabled: d.IsEnabled,
		CreatedAt: d.CreatedAt,
	}
	if s := d.Schedule; s != nil {
		repeat := core.RepeatType(strings.ToUpper(s.RepeatType))
		if repeat == "" {
			repeat = core.RepeatNone
		}
		maxExec := s.MaxExecutionTime
		if maxExec == 0 {
			maxExec = core.DefaultMaxExecutionTime
		}
		t.Schedule = &core.TaskSchedule{
			ScheduledTime:    s.ScheduledTime,
			RepeatType:       repeat,
			RepeatInterval:   s.RepeatInterval,
			IsOneTime:        s.IsOneTime,
			ExecuteOnBoot:    s.ExecuteOnBoot,
			DelayAfterBoot:   s.DelayAfterBoot,
			MaxExecutionTime: maxExec,
		}
	}
	return t
}

func encodeDocument(v any, format string) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(v)
	default:
		return json.MarshalIndent(v, "", "  ")
	}
}

func decodeDocument(data []byte, format string, v any) error {
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return core.Invalid("data", err.Error())
	}
	return nil
}

// CommandDocument is the external form of core.TerminalCommand.
type CommandDocument struct {
	ID               string    `json:"id" yaml:"id"`
	Command          string    `json:"command" yaml:"command"`
	WorkingDirectory string    `json:"working_directory" yaml:"working_directory"`
	ExitCode         int       `json:"exit_code" yaml:"exit_code"`
	Output           string    `json:"output" yaml:"output"`
	ErrorOutput      string    `json:"error_output" yaml:"error_output"`
	ExecutionTime    int64     `json:"execution_time_ms" yaml:"execution_time_ms"`
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
	IsSuccess        bool      `json:"is_success" yaml:"is_success"`
}

// SessionDocument is the external form of core.TerminalSession.
type SessionDocument struct {
	ID               string            `json:"id" yaml:"id"`
	Name             string            `json:"name" yaml:"name"`
	IsActive         bool              `json:"is_active" yaml:"is_active"`
	WorkingDirectory string            `json:"working_directory" yaml:"working_directory"`
	Environment      map[string]string `json:"environment" yaml:"environment"`
	History          []CommandDocument `json:"history" yaml:"history"`
	Output           string            `json:"output" yaml:"output"`
	CreatedAt        time.Time         `json:"created_at" yaml:"created_at"`
	LastUsedAt       time.Time         `json:"last_used_at" yaml:"last_used_at"`
}

func ToCommandDocument(c core.TerminalCommand) CommandDocument {
	return CommandDocument{
		ID:               c.ID,
		Command:          c.Command,
		WorkingDirectory: c.WorkingDirectory,
		ExitCode:         c.ExitCode,
		Output:           c.Output,
		ErrorOutput:      c.ErrorOutput,
		ExecutionTime:    c.ExecutionTime,
		Timestamp:        c.Timestamp,
		IsSuccess:        c.IsSuccess,
	}
}

func ToSessionDocument(s core.TerminalSession) SessionDocument {
	doc := SessionDocument{
		ID:               s.ID,
		Name:             s.Name,
		IsActive:         s.IsActive,
		WorkingDirectory: s.WorkingDirectory,
		Environment:      s.Environment,
		History:          make([]CommandDocument, 0, len(s.History)),
		Output:           s.Output,
		CreatedAt:        s.CreatedAt,
		LastUsedAt:       s.LastUsedAt,
	}
	if doc.Environment == nil {
		doc.Environment = map[string]string{}
	}
	for _, c := range s.History {
		doc.History = append(doc.History, ToCommandDocument(c))
	}
	return doc
}
