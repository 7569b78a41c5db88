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

const notificationColumns = `id, title, message, type, task_id, is_read, created_at, read_at`

func (s *Store) InsertNotification(ctx context.Context, n core.AppNotification) error {
	row := NotificationToRow(n)
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.Title, row.Message, row.Type, row.TaskID, row.IsRead, row.CreatedAt, row.ReadAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	s.notify(TableNotifications)
	return nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (core.AppNotification, error) {
	row, err := scanNotificationRow(s.DB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.AppNotification{}, core.NotFound("notification", id)
		}
		return core.AppNotification{}, err
	}
	return NotificationFromRow(row)
}

// ListNotifications returns notifications matching filter, newest first.
func (s *Store) ListNotifications(ctx context.Context, filter core.NotificationFilter) ([]core.AppNotification, error) {
	var (
		where []string
		args  []any
	)
	if filter.UnreadOnly {
		where = append(where, "is_read = 0")
	}
	if filter.Type != nil {
		where = append(where, "type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.TaskID != nil {
		where = append(where, "task_id = ?")
		args = append(args, *filter.TaskID)
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()
	var out []core.AppNotification
	for rows.Next() {
		row, err := scanNotificationRow(rows)
		if err != nil {
			return nil, err
		}
		n, err := NotificationFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkNotificationsRead marks one notification, or all unread ones when id is empty.
func (s *Store) MarkNotificationsRead(ctx context.Context, id string, now time.Time) error {
	var (
		res sql.Result
		err error
	)
	if id == "" {
		res, err = s.DB.ExecContext(ctx, `UPDATE notifications SET is_read = 1, read_at = ? WHERE is_read = 0`, toMillis(now))
	} else {
		res, err = s.DB.ExecContext(ctx, `
			UPDATE notifications SET is_read = 1, read_at = COALESCE(read_at, ?) WHERE id = ?
		`, toMillis(now), id)
	}
	if err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if id != "" && rows == 0 {
		return core.NotFound("notification", id)
	}
	if rows > 0 {
		s.notify(TableNotifications)
	}
	return nil
}

// DeleteNotifications removes one notification by id, every read one when readOnly is set,
// or everything when id is empty and readOnly is false.
func (s *Store) DeleteNotifications(ctx context.Context, id string, readOnly bool) (int64, error) {
	var (
		res sql.Result
		err error
	)
	switch {
	case id != "":
		res, err = s.DB.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	case readOnly:
		res, err = s.DB.ExecContext(ctx, `DELETE FROM notifications WHERE is_read = 1`)
	default:
		res, err = s.DB.ExecContext(ctx, `DELETE FROM notifications`)
	}
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows > 0 {
		s.notify(TableNotifications)
	}
	return rows, nil
}

func scanNotificationRow(sc scanner) (NotificationRow, error) {
	var r NotificationRow
	err := sc.Scan(&r.ID, &r.Title, &r.Message, &r.Type, &r.TaskID, &r.IsRead, &r.CreatedAt, &r.ReadAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotificationRow{}, err
		}
		return NotificationRow{}, fmt.Errorf("scan notification: %w", err)
	}
	return r, nil
}
