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

const executionColumns = `id, task_id, status, start_time, end_time, exit_code, output, error_output,
	is_success, execution_time, cpu_usage, memory_usage, battery_usage`

func (s *Store) InsertExecution(ctx context.Context, result core.TaskExecutionResult) error {
	row := ExecutionToRow(result)
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO task_executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.TaskID, row.Status, row.StartTime, row.EndTime, row.ExitCode, row.Output, row.ErrorOutput,
		row.IsSuccess, row.ExecutionTime, row.CPUUsage, row.MemoryUsage, row.BatteryUsage)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return core.NotFound("task", result.TaskID)
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	s.notify(TableTaskExecutions)
	return nil
}

func (s *Store) UpdateExecution(ctx context.Context, result core.TaskExecutionResult) error {
	if err := updateExecution(ctx, s.DB, result); err != nil {
		return err
	}
	s.notify(TableTaskExecutions)
	return nil
}

func updateExecution(ctx context.Context, q querier, result core.TaskExecutionResult) error {
	row := ExecutionToRow(result)
	res, err := q.ExecContext(ctx, `
		UPDATE task_executions
		SET status = ?, start_time = ?, end_time = ?, exit_code = ?, output = ?, error_output = ?,
			is_success = ?, execution_time = ?, cpu_usage = ?, memory_usage = ?, battery_usage = ?
		WHERE id = ?
	`, row.Status, row.StartTime, row.EndTime, row.ExitCode, row.Output, row.ErrorOutput,
		row.IsSuccess, row.ExecutionTime, row.CPUUsage, row.MemoryUsage, row.BatteryUsage, row.ID)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update execution rows: %w", err)
	}
	if rows == 0 {
		return core.NotFound("execution", result.ID)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (core.TaskExecutionResult, error) {
	row, err := scanExecutionRow(s.DB.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM task_executions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.TaskExecutionResult{}, core.NotFound("execution", id)
		}
		return core.TaskExecutionResult{}, err
	}
	return ExecutionFromRow(row)
}

// ListExecutions returns a task's executions, most recent first. limit <= 0 means no limit.
func (s *Store) ListExecutions(ctx context.Context, taskID string, limit int) ([]core.TaskExecutionResult, error) {
	query := `SELECT ` + executionColumns + ` FROM task_executions WHERE task_id = ? ORDER BY start_time DESC, id DESC`
	args := []any{taskID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()
	var out []core.TaskExecutionResult
	for rows.Next() {
		row, err := scanExecutionRow(rows)
		if err != nil {
			return nil, err
		}
		result, err := ExecutionFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountExecutions returns how many execution rows belong to the task.
func (s *Store) CountExecutions(ctx context.Context, taskID string) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM task_executions WHERE task_id = ?`, taskID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count executions: %w", err)
	}
	return n, nil
}

// FailDanglingExecutions marks executions left PENDING or RUNNING by a previous process as
// FAILED. It returns the number of rows changed.
func (s *Store) FailDanglingExecutions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE task_executions
		SET status = ?, end_time = MAX(start_time, ?), is_success = 0, error_output = 'interrupted by restart'
		WHERE status IN (?, ?)
	`, string(core.TaskStatusFailed), toMillis(now), string(core.TaskStatusPending), string(core.TaskStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("fail dangling executions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.notify(TableTaskExecutions)
	}
	return n, nil
}

// PruneHistory removes finished executions and metric samples older than before.
func (s *Store) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM task_executions
			WHERE end_time < ? AND status NOT IN (?, ?)
		`, toMillis(before), string(core.TaskStatusPending), string(core.TaskStatusRunning))
		if err != nil {
			return fmt.Errorf("prune executions: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		total += n
		res, err = tx.ExecContext(ctx, `DELETE FROM system_metrics WHERE timestamp < ?`, toMillis(before))
		if err != nil {
			return fmt.Errorf("prune metrics: %w", err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return err
		}
		total += n
		return nil
	}, TableTaskExecutions, TableSystemMetrics)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func scanExecutionRow(sc scanner) (ExecutionRow, error) {
	var r ExecutionRow
	err := sc.Scan(&r.ID, &r.TaskID, &r.Status, &r.StartTime, &r.EndTime, &r.ExitCode, &r.Output, &r.ErrorOutput,
		&r.IsSuccess, &r.ExecutionTime, &r.CPUUsage, &r.MemoryUsage, &r.BatteryUsage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ExecutionRow{}, err
		}
		return ExecutionRow{}, fmt.Errorf("scan execution: %w", err)
	}
	return r, nil
}
