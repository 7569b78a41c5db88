package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tcron/internal/core"
)

const sessionColumns = `id, name, is_active, working_directory, environment, output, created_at, last_used_at, blob_version`

const commandColumns = `id, session_id, command, working_directory, exit_code, output, error_output,
	execution_time, timestamp, is_success`

func (s *Store) InsertSession(ctx context.Context, session core.TerminalSession) error {
	row := SessionToRow(session)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO terminal_sessions (`+sessionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, row.ID, row.Name, row.IsActive, row.WorkingDirectory, row.Environment, row.Output,
			row.CreatedAt, row.LastUsedAt, row.BlobVersion); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		for _, cmd := range session.History {
			if err := insertCommand(ctx, tx, CommandToRow(cmd, session.ID)); err != nil {
				return err
			}
		}
		return nil
	}, TableTerminalSessions, TableTerminalCommands)
	return err
}

// UpdateSession stores the session columns. History rows are left untouched.
func (s *Store) UpdateSession(ctx context.Context, session core.TerminalSession) error {
	if err := updateSession(ctx, s.DB, session); err != nil {
		return err
	}
	s.notify(TableTerminalSessions)
	return nil
}

func updateSession(ctx context.Context, q querier, session core.TerminalSession) error {
	row := SessionToRow(session)
	res, err := q.ExecContext(ctx, `
		UPDATE terminal_sessions
		SET name = ?, is_active = ?, working_directory = ?, environment = ?, output = ?,
			created_at = ?, last_used_at = ?, blob_version = ?
		WHERE id = ?
	`, row.Name, row.IsActive, row.WorkingDirectory, row.Environment, row.Output,
		row.CreatedAt, row.LastUsedAt, row.BlobVersion, row.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session rows: %w", err)
	}
	if rows == 0 {
		return core.NotFound("session", session.ID)
	}
	return nil
}

// AppendCommand stores a command together with the session state it left behind.
func (s *Store) AppendCommand(ctx context.Context, session core.TerminalSession, cmd core.TerminalCommand) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateSession(ctx, tx, session); err != nil {
			return err
		}
		return insertCommand(ctx, tx, CommandToRow(cmd, session.ID))
	}, TableTerminalSessions, TableTerminalCommands)
}

func insertCommand(ctx context.Context, q querier, row CommandRow) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO terminal_commands (`+commandColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.SessionID, row.Command, row.WorkingDirectory, row.ExitCode, row.Output, row.ErrorOutput,
		row.ExecutionTime, row.Timestamp, row.IsSuccess)
	if err != nil {
		return fmt.Errorf("insert command: %w", err)
	}
	return nil
}

// DeleteSession removes a session and its commands. Unknown ids are ignored.
func (s *Store) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM terminal_sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		s.notify(TableTerminalSessions, TableTerminalCommands)
	}
	return rows > 0, nil
}

// ClearCommands deletes a session's command history.
func (s *Store) ClearCommands(ctx context.Context, sessionID string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM terminal_commands WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear commands: %w", err)
	}
	s.notify(TableTerminalCommands)
	return nil
}

func (s *Store) GetSessionRow(ctx context.Context, id string) (SessionRow, error) {
	row, err := scanSessionRow(s.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM terminal_sessions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRow{}, core.NotFound("session", id)
		}
		return SessionRow{}, err
	}
	return row, nil
}

// ListSessionRows returns sessions ordered by most recent use.
func (s *Store) ListSessionRows(ctx context.Context, activeOnly bool) ([]SessionRow, error) {
	query := `SELECT ` + sessionColumns + ` FROM terminal_sessions`
	var args []any
	if activeOnly {
		query += ` WHERE is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY last_used_at DESC, id ASC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()
	var out []SessionRow
	for rows.Next() {
		row, err := scanSessionRow(rows)
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

// ListCommands returns a session's commands in execution order.
func (s *Store) ListCommands(ctx context.Context, sessionID string) ([]core.TerminalCommand, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+commandColumns+` FROM terminal_commands
		WHERE session_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()
	var out []core.TerminalCommand
	for rows.Next() {
		var r CommandRow
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Command, &r.WorkingDirectory, &r.ExitCode, &r.Output, &r.ErrorOutput,
			&r.ExecutionTime, &r.Timestamp, &r.IsSuccess); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		out = append(out, CommandFromRow(r))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanSessionRow(sc scanner) (SessionRow, error) {
	var r SessionRow
	err := sc.Scan(&r.ID, &r.Name, &r.IsActive, &r.WorkingDirectory, &r.Environment, &r.Output,
		&r.CreatedAt, &r.LastUsedAt, &r.BlobVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRow{}, err
		}
		return SessionRow{}, fmt.Errorf("scan session: %w", err)
	}
	if r.BlobVersion == 0 {
		r.BlobVersion = 1
	}
	return r, nil
}
