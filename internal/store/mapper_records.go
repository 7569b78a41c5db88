package store

import (
	"encoding/json"

	"tcron/internal/core"
)

// SessionToRow flattens a session. The command history is stored separately, see CommandToRow.
func SessionToRow(s core.TerminalSession) SessionRow {
	return SessionRow{
		ID:               s.ID,
		Name:             s.Name,
		IsActive:         s.IsActive,
		WorkingDirectory: s.WorkingDirectory,
		Environment:      encodeEnvironment(s.Environment),
		Output:           s.Output,
		CreatedAt:        toMillis(s.CreatedAt),
		LastUsedAt:       toMillis(s.LastUsedAt),
		BlobVersion:      CurrentBlobVersion,
	}
}

// SessionFromRow rebuilds a session with the given command history.
func SessionFromRow(row SessionRow, history []core.TerminalCommand) (core.TerminalSession, error) {
	d := &decoder{table: TableTerminalSessions, id: row.ID}
	s := decodeSession(row, history, d)
	if err := d.first(); err != nil {
		return core.TerminalSession{}, err
	}
	return s, nil
}

// SessionFromRowLenient is SessionFromRow with an empty environment substituted for an
// unreadable one.
func SessionFromRowLenient(row SessionRow, history []core.TerminalCommand) (core.TerminalSession, error) {
	d := &decoder{table: TableTerminalSessions, id: row.ID}
	s := decodeSession(row, history, d)
	return s, d.joined()
}

func decodeSession(row SessionRow, history []core.TerminalCommand, d *decoder) core.TerminalSession {
	d.checkVersion(row.BlobVersion)
	env, err := decodeEnvironment(row.Environment)
	if err != nil {
		d.fail("environment", err)
		env = map[string]string{}
	}
	return core.TerminalSession{
		ID:               row.ID,
		Name:             row.Name,
		IsActive:         row.IsActive,
		WorkingDirectory: row.WorkingDirectory,
		Environment:      env,
		History:          history,
		Output:           row.Output,
		CreatedAt:        fromMillis(row.CreatedAt),
		LastUsedAt:       fromMillis(row.LastUsedAt),
	}
}

func CommandToRow(c core.TerminalCommand, sessionID string) CommandRow {
	return CommandRow{
		ID:               c.ID,
		SessionID:        sessionID,
		Command:          c.Command,
		WorkingDirectory: c.WorkingDirectory,
		ExitCode:         c.ExitCode,
		Output:           c.Output,
		ErrorOutput:      c.ErrorOutput,
		ExecutionTime:    c.ExecutionTime,
		Timestamp:        toMillis(c.Timestamp),
		IsSuccess:        c.IsSuccess,
	}
}

func CommandFromRow(row CommandRow) core.TerminalCommand {
	return core.TerminalCommand{
		ID:               row.ID,
		Command:          row.Command,
		WorkingDirectory: row.WorkingDirectory,
		ExitCode:         row.ExitCode,
		Output:           row.Output,
		ErrorOutput:      row.ErrorOutput,
		ExecutionTime:    row.ExecutionTime,
		Timestamp:        fromMillis(row.Timestamp),
		IsSuccess:        row.IsSuccess,
	}
}

func NotificationToRow(n core.AppNotification) NotificationRow {
	return NotificationRow{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		TaskID:    nullableString(n.TaskID),
		IsRead:    n.IsRead,
		CreatedAt: toMillis(n.CreatedAt),
		ReadAt:    nullableMillis(n.ReadAt),
	}
}

func NotificationFromRow(row NotificationRow) (core.AppNotification, error) {
	t, err := core.ParseNotificationType(row.Type)
	if err != nil {
		return core.AppNotification{}, &core.MalformedRecordError{Table: TableNotifications, ID: row.ID, Column: "type", Err: err}
	}
	return core.AppNotification{
		ID:        row.ID,
		Title:     row.Title,
		Message:   row.Message,
		Type:      t,
		TaskID:    stringFromNullable(row.TaskID),
		IsRead:    row.IsRead,
		CreatedAt: fromMillis(row.CreatedAt),
		ReadAt:    timeFromNullable(row.ReadAt),
	}, nil
}

func MetricsToRow(m core.SystemMetrics) MetricsRow {
	return MetricsRow{
		ID:                 m.ID,
		Timestamp:          toMillis(m.Timestamp),
		CPUUsage:           float64(m.CPUUsage),
		MemoryUsage:        m.MemoryUsage,
		TotalMemory:        m.TotalMemory,
		BatteryLevel:       float64(m.BatteryLevel),
		BatteryTemperature: float64(m.BatteryTemperature),
		DiskUsage:          m.DiskUsage,
		TotalDisk:          m.TotalDisk,
	}
}

func MetricsFromRow(row MetricsRow) core.SystemMetrics {
	return core.SystemMetrics{
		ID:                 row.ID,
		Timestamp:          fromMillis(row.Timestamp),
		CPUUsage:           float32(row.CPUUsage),
		MemoryUsage:        row.MemoryUsage,
		TotalMemory:        row.TotalMemory,
		BatteryLevel:       float32(row.BatteryLevel),
		BatteryTemperature: float32(row.BatteryTemperature),
		DiskUsage:          row.DiskUsage,
		TotalDisk:          row.TotalDisk,
	}
}

func encodeEnvironment(env map[string]string) string {
	if env == nil {
		return ""
	}
	data, err := json.Marshal(env)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeEnvironment(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var env map[string]string
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, err
	}
	return env, nil
}
