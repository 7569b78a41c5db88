package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tcron/internal/core"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// TaskQuery narrows ListTaskRows. Zero value lists every task.
type TaskQuery struct {
	Type      *core.TaskType
	Enabled   *bool
	Scheduled bool
	Boot      bool
	Search    string
}

const taskColumns = `id, name, description, type, script_content,
	requires_root, requires_network, requires_storage, custom_permissions,
	scheduled_time, repeat_type, repeat_interval, is_one_time, execute_on_boot, delay_after_boot, max_execution_time,
	is_enabled, last_execution_time, last_execution_result,
	execution_count, success_count, failure_count, average_execution_time,
	created_at, updated_at, blob_version`

func (s *Store) InsertTask(ctx context.Context, task core.Task) error {
	row := TaskToRow(task)
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.Name, row.Description, row.Type, row.ScriptContent,
		row.RequiresRoot, row.RequiresNetwork, row.RequiresStorage, row.CustomPermissions,
		row.ScheduledTime, row.RepeatType, row.RepeatInterval, row.IsOneTime, row.ExecuteOnBoot, row.DelayAfterBoot, row.MaxExecutionTime,
		row.IsEnabled, row.LastExecutionTime, row.LastExecutionResult,
		row.ExecutionCount, row.SuccessCount, row.FailureCount, row.AverageExecutionTime,
		row.CreatedAt, row.UpdatedAt, row.BlobVersion)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	s.notify(TableTasks)
	return nil
}

// UpdateTask stores the editable fields of an existing task. Statistics, last-execution
// fields and created_at are left as stored.
func (s *Store) UpdateTask(ctx context.Context, task core.Task) error {
	if err := updateTaskDefinition(ctx, s.DB, task); err != nil {
		return err
	}
	s.notify(TableTasks)
	return nil
}

func updateTaskDefinition(ctx context.Context, q querier, task core.Task) error {
	row := TaskToRow(task)
	res, err := q.ExecContext(ctx, `
		UPDATE tasks
		SET name = ?, description = ?, type = ?, script_content = ?,
			requires_root = ?, requires_network = ?, requires_storage = ?, custom_permissions = ?,
			scheduled_time = ?, repeat_type = ?, repeat_interval = ?, is_one_time = ?, execute_on_boot = ?,
			delay_after_boot = ?, max_execution_time = ?,
			is_enabled = ?, updated_at = ?, blob_version = ?
		WHERE id = ?
	`, row.Name, row.Description, row.Type, row.ScriptContent,
		row.RequiresRoot, row.RequiresNetwork, row.RequiresStorage, row.CustomPermissions,
		row.ScheduledTime, row.RepeatType, row.RepeatInterval, row.IsOneTime, row.ExecuteOnBoot,
		row.DelayAfterBoot, row.MaxExecutionTime,
		row.IsEnabled, row.UpdatedAt, row.BlobVersion, row.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireRow(res, task.ID)
}

// updateTaskStatistics writes only the statistic and last-execution columns.
func updateTaskStatistics(ctx context.Context, q querier, task core.Task) error {
	row := TaskToRow(task)
	res, err := q.ExecContext(ctx, `
		UPDATE tasks
		SET last_execution_time = ?, last_execution_result = ?,
			execution_count = ?, success_count = ?, failure_count = ?, average_execution_time = ?,
			updated_at = ?
		WHERE id = ?
	`, row.LastExecutionTime, row.LastExecutionResult,
		row.ExecutionCount, row.SuccessCount, row.FailureCount, row.AverageExecutionTime,
		row.UpdatedAt, row.ID)
	if err != nil {
		return fmt.Errorf("update task statistics: %w", err)
	}
	return requireRow(res, task.ID)
}

func requireRow(res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task rows: %w", err)
	}
	if rows == 0 {
		return core.NotFound("task", id)
	}
	return nil
}

// DeleteTask removes a task and, through the foreign key, its executions.
// Deleting an unknown id is not an error; the bool reports whether a row went away.
func (s *Store) DeleteTask(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		s.notify(TableTasks, TableTaskExecutions)
	}
	return rows > 0, nil
}

// SetTaskEnabled flips is_enabled and refreshes updated_at.
func (s *Store) SetTaskEnabled(ctx context.Context, id string, enabled bool, now time.Time) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks SET is_enabled = ?, updated_at = ? WHERE id = ?
	`, enabled, toMillis(now), id)
	if err != nil {
		return fmt.Errorf("set task enabled: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.NotFound("task", id)
	}
	s.notify(TableTasks)
	return nil
}

// GetTaskRow returns the stored row without decoding it.
func (s *Store) GetTaskRow(ctx context.Context, id string) (TaskRow, error) {
	row, err := scanTaskRow(s.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TaskRow{}, core.NotFound("task", id)
		}
		return TaskRow{}, err
	}
	return row, nil
}

// ListTaskRows returns rows matching q. Scheduled listings are ordered by scheduled time,
// everything else most recently updated first.
func (s *Store) ListTaskRows(ctx context.Context, q TaskQuery) ([]TaskRow, error) {
	var (
		where []string
		args  []any
	)
	if q.Type != nil {
		where = append(where, "type = ?")
		args = append(args, string(*q.Type))
	}
	if q.Enabled != nil {
		where = append(where, "is_enabled = ?")
		args = append(args, *q.Enabled)
	}
	if q.Scheduled {
		where = append(where, "scheduled_time IS NOT NULL")
	}
	if q.Boot {
		where = append(where, "scheduled_time IS NOT NULL AND execute_on_boot = 1")
	}
	if term := strings.TrimSpace(q.Search); term != "" {
		where = append(where, "(name LIKE ? ESCAPE '\\' OR description LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(term) + "%"
		args = append(args, pattern, pattern)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if q.Scheduled {
		query += ` ORDER BY scheduled_time ASC, id ASC`
	} else {
		query += ` ORDER BY updated_at DESC, id ASC`
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	var out []TaskRow
	for rows.Next() {
		row, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordExecutionOutcome stores the final state of an execution and, when task is not nil,
// the task statistics it produced, in one transaction. Only the statistic columns of task are written.
func (s *Store) RecordExecutionOutcome(ctx context.Context, result core.TaskExecutionResult, task *core.Task) error {
	tables := []string{TableTaskExecutions}
	if task != nil {
		tables = append(tables, TableTasks)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateExecution(ctx, tx, result); err != nil {
			return err
		}
		if task != nil {
			return updateTaskStatistics(ctx, tx, *task)
		}
		return nil
	}, tables...)
}

// ResetTaskHistory deletes the task's executions and stores its reset statistics.
func (s *Store) ResetTaskHistory(ctx context.Context, task core.Task) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_executions WHERE task_id = ?`, task.ID); err != nil {
			return fmt.Errorf("delete executions: %w", err)
		}
		return updateTaskStatistics(ctx, tx, task)
	}, TableTasks, TableTaskExecutions)
}

func scanTaskRow(sc scanner) (TaskRow, error) {
	var r TaskRow
	err := sc.Scan(&r.ID, &r.Name, &r.Description, &r.Type, &r.ScriptContent,
		&r.RequiresRoot, &r.RequiresNetwork, &r.RequiresStorage, &r.CustomPermissions,
		&r.ScheduledTime, &r.RepeatType, &r.RepeatInterval, &r.IsOneTime, &r.ExecuteOnBoot, &r.DelayAfterBoot, &r.MaxExecutionTime,
		&r.IsEnabled, &r.LastExecutionTime, &r.LastExecutionResult,
		&r.ExecutionCount, &r.SuccessCount, &r.FailureCount, &r.AverageExecutionTime,
		&r.CreatedAt, &r.UpdatedAt, &r.BlobVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TaskRow{}, err
		}
		return TaskRow{}, fmt.Errorf("scan task: %w", err)
	}
	if r.BlobVersion == 0 {
		r.BlobVersion = 1
	}
	return r, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
