package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"tcron/internal/core"
)

// decoder accumulates column failures for one row. In strict mode the first failure
// is returned; in lenient mode the caller gets defaults plus the joined failures.
type decoder struct {
	table    string
	id       string
	problems []error
}

func (d *decoder) fail(column string, err error) {
	d.problems = append(d.problems, &core.MalformedRecordError{Table: d.table, ID: d.id, Column: column, Err: err})
}

func (d *decoder) first() error {
	if len(d.problems) == 0 {
		return nil
	}
	return d.problems[0]
}

func (d *decoder) joined() error {
	return errors.Join(d.problems...)
}

func (d *decoder) checkVersion(version int) {
	if version > CurrentBlobVersion {
		d.fail("blob_version", fmt.Errorf("unsupported version %d (max %d)", version, CurrentBlobVersion))
	}
}

// executionBlob is the JSON shape of tasks.last_execution_result.
type executionBlob struct {
	ID            string  `json:"id"`
	TaskID        string  `json:"taskId"`
	Status        string  `json:"status"`
	StartTime     int64   `json:"startTime"`
	EndTime       int64   `json:"endTime"`
	ExitCode      int     `json:"exitCode"`
	Output        string  `json:"output"`
	ErrorOutput   string  `json:"errorOutput"`
	IsSuccess     bool    `json:"isSuccess"`
	ExecutionTime int64   `json:"executionTime"`
	CPUUsage      float32 `json:"cpuUsage"`
	MemoryUsage   int64   `json:"memoryUsage"`
	BatteryUsage  float32 `json:"batteryUsage"`
}

// TaskToRow flattens a task. It is defined for every task value.
func TaskToRow(t core.Task) TaskRow {
	row := TaskRow{
		ID:                   t.ID,
		Name:                 t.Name,
		Description:          t.Description,
		Type:                 string(t.Type),
		ScriptContent:        t.ScriptContent,
		RequiresRoot:         t.Permissions.RequiresRoot,
		RequiresNetwork:      t.Permissions.RequiresNetwork,
		RequiresStorage:      t.Permissions.RequiresStorage,
		CustomPermissions:    encodeStrings(t.Permissions.CustomPermissions),
		RepeatType:           string(core.RepeatNone),
		IsOneTime:            true,
		MaxExecutionTime:     core.DefaultMaxExecutionTime,
		IsEnabled:            t.IsEnabled,
		LastExecutionTime:    nullableMillis(t.LastExecutionTime),
		ExecutionCount:       t.ExecutionCount,
		SuccessCount:         t.SuccessCount,
		FailureCount:         t.FailureCount,
		AverageExecutionTime: t.AverageExecutionTime,
		CreatedAt:            toMillis(t.CreatedAt),
		UpdatedAt:            toMillis(t.UpdatedAt),
		BlobVersion:          CurrentBlobVersion,
	}
	if s := t.Schedule; s != nil {
		row.ScheduledTime = sql.NullInt64{Int64: toMillis(s.ScheduledTime), Valid: true}
		row.RepeatType = string(s.RepeatType)
		row.RepeatInterval = s.RepeatInterval
		row.IsOneTime = s.IsOneTime
		row.ExecuteOnBoot = s.ExecuteOnBoot
		row.DelayAfterBoot = s.DelayAfterBoot
		row.MaxExecutionTime = s.MaxExecutionTime
	}
	if r := t.LastExecutionResult; r != nil {
		row.LastExecutionResult = sql.NullString{String: encodeExecutionBlob(*r), Valid: true}
	}
	return row
}

// TaskFromRow rebuilds a task, failing with *core.MalformedRecordError on the first
// column that cannot be decoded.
func TaskFromRow(row TaskRow) (core.Task, error) {
	d := &decoder{table: TableTasks, id: row.ID}
	t := decodeTask(row, d)
	if err := d.first(); err != nil {
		return core.Task{}, err
	}
	return t, nil
}

// TaskFromRowLenient rebuilds a task, substituting defaults for columns that cannot be
// decoded. The returned error lists what was substituted and is nil for a clean row.
func TaskFromRowLenient(row TaskRow) (core.Task, error) {
	d := &decoder{table: TableTasks, id: row.ID}
	t := decodeTask(row, d)
	return t, d.joined()
}

func decodeTask(row TaskRow, d *decoder) core.Task {
	d.checkVersion(row.BlobVersion)

	taskType, err := core.ParseTaskType(row.Type)
	if err != nil {
		d.fail("type", err)
		taskType = core.TaskTypeShell
	}
	custom, err := decodeStrings(row.CustomPermissions)
	if err != nil {
		d.fail("custom_permissions", err)
		custom = nil
	}
	t := core.Task{
		ID:            row.ID,
		Name:          row.Name,
		Description:   row.Description,
		Type:          taskType,
		ScriptContent: row.ScriptContent,
		Permissions: core.TaskPermissions{
			RequiresRoot:      row.RequiresRoot,
			RequiresNetwork:   row.RequiresNetwork,
			RequiresStorage:   row.RequiresStorage,
			CustomPermissions: custom,
		},
		IsEnabled:            row.IsEnabled,
		LastExecutionTime:    timeFromNullable(row.LastExecutionTime),
		ExecutionCount:       row.ExecutionCount,
		SuccessCount:         row.SuccessCount,
		FailureCount:         row.FailureCount,
		AverageExecutionTime: row.AverageExecutionTime,
		CreatedAt:            fromMillis(row.CreatedAt),
		UpdatedAt:            fromMillis(row.UpdatedAt),
	}
	if row.ScheduledTime.Valid {
		repeat := core.RepeatNone
		if row.RepeatType != "" {
			if repeat, err = core.ParseRepeatType(row.RepeatType); err != nil {
				d.fail("repeat_type", err)
				repeat = core.RepeatNone
			}
		}
		t.Schedule = &core.TaskSchedule{
			ScheduledTime:    fromMillis(row.ScheduledTime.Int64),
			RepeatType:       repeat,
			RepeatInterval:   row.RepeatInterval,
			IsOneTime:        row.IsOneTime,
			ExecuteOnBoot:    row.ExecuteOnBoot,
			DelayAfterBoot:   row.DelayAfterBoot,
			MaxExecutionTime: row.MaxExecutionTime,
		}
	}
	if row.LastExecutionResult.Valid && row.LastExecutionResult.String != "" {
		r, err := decodeExecutionBlob(row.LastExecutionResult.String)
		if err != nil {
			d.fail("last_execution_result", err)
		} else {
			t.LastExecutionResult = &r
		}
	}
	return t
}

// ExecutionToRow flattens an execution record.
func ExecutionToRow(r core.TaskExecutionResult) ExecutionRow {
	return ExecutionRow{
		ID:            r.ID,
		TaskID:        r.TaskID,
		Status:        string(r.Status),
		StartTime:     toMillis(r.StartTime),
		EndTime:       toMillis(r.EndTime),
		ExitCode:      r.ExitCode,
		Output:        r.Output,
		ErrorOutput:   r.ErrorOutput,
		IsSuccess:     r.IsSuccess,
		ExecutionTime: r.ExecutionTime,
		CPUUsage:      float64(r.CPUUsage),
		MemoryUsage:   r.MemoryUsage,
		BatteryUsage:  float64(r.BatteryUsage),
	}
}

// ExecutionFromRow rebuilds an execution record.
func ExecutionFromRow(row ExecutionRow) (core.TaskExecutionResult, error) {
	status, err := parseStatus(row.Status)
	if err != nil {
		return core.TaskExecutionResult{}, &core.MalformedRecordError{Table: TableTaskExecutions, ID: row.ID, Column: "status", Err: err}
	}
	return core.TaskExecutionResult{
		ID:            row.ID,
		TaskID:        row.TaskID,
		Status:        status,
		StartTime:     fromMillis(row.StartTime),
		EndTime:       fromMillis(row.EndTime),
		ExitCode:      row.ExitCode,
		Output:        row.Output,
		ErrorOutput:   row.ErrorOutput,
		IsSuccess:     row.IsSuccess,
		ExecutionTime: row.ExecutionTime,
		CPUUsage:      float32(row.CPUUsage),
		MemoryUsage:   row.MemoryUsage,
		BatteryUsage:  float32(row.BatteryUsage),
	}, nil
}

func parseStatus(name string) (core.TaskStatus, error) {
	if name == "" {
		return "", nil
	}
	return core.ParseTaskStatus(name)
}

// encodeStrings writes nil as "" and an empty list as "[]" so both survive a round trip.
func encodeStrings(values []string) string {
	if values == nil {
		return ""
	}
	data, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if out == nil {
		// "null"
		return nil, nil
	}
	return out, nil
}

func encodeExecutionBlob(r core.TaskExecutionResult) string {
	row := ExecutionToRow(r)
	data, err := json.Marshal(executionBlob{
		ID:            row.ID,
		TaskID:        row.TaskID,
		Status:        row.Status,
		StartTime:     row.StartTime,
		EndTime:       row.EndTime,
		ExitCode:      row.ExitCode,
		Output:        row.Output,
		ErrorOutput:   row.ErrorOutput,
		IsSuccess:     row.IsSuccess,
		ExecutionTime: row.ExecutionTime,
		CPUUsage:      r.CPUUsage,
		MemoryUsage:   row.MemoryUsage,
		BatteryUsage:  r.BatteryUsage,
	})
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeExecutionBlob(raw string) (core.TaskExecutionResult, error) {
	var b executionBlob
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return core.TaskExecutionResult{}, err
	}
	status, err := parseStatus(b.Status)
	if err != nil {
		return core.TaskExecutionResult{}, err
	}
	return core.TaskExecutionResult{
		ID:            b.ID,
		TaskID:        b.TaskID,
		Status:        status,
		StartTime:     fromMillis(b.StartTime),
		EndTime:       fromMillis(b.EndTime),
		ExitCode:      b.ExitCode,
		Output:        b.Output,
		ErrorOutput:   b.ErrorOutput,
		IsSuccess:     b.IsSuccess,
		ExecutionTime: b.ExecutionTime,
		CPUUsage:      b.CPUUsage,
		MemoryUsage:   b.MemoryUsage,
		BatteryUsage:  b.BatteryUsage,
	}, nil
}
