package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tcron/internal/core"
)

const metricsColumns = `id, timestamp, cpu_usage, memory_usage, total_memory, battery_level, battery_temperature,
	disk_usage, total_disk`

func (s *Store) InsertMetrics(ctx context.Context, m core.SystemMetrics) error {
	row := MetricsToRow(m)
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO system_metrics (`+metricsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.Timestamp, row.CPUUsage, row.MemoryUsage, row.TotalMemory, row.BatteryLevel,
		row.BatteryTemperature, row.DiskUsage, row.TotalDisk)
	if err != nil {
		return fmt.Errorf("insert metrics: %w", err)
	}
	s.notify(TableSystemMetrics)
	return nil
}

// LatestMetrics returns the most recent sample.
func (s *Store) LatestMetrics(ctx context.Context) (core.SystemMetrics, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+metricsColumns+` FROM system_metrics ORDER BY timestamp DESC LIMIT 1`)
	m, err := scanMetrics(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.SystemMetrics{}, core.NotFound("metrics", "latest")
		}
		return core.SystemMetrics{}, err
	}
	return m, nil
}

// ListMetricsSince returns samples taken at or after since, oldest first, at most limit
// of the newest when limit > 0.
func (s *Store) ListMetricsSince(ctx context.Context, since time.Time, limit int) ([]core.SystemMetrics, error) {
	query := `SELECT ` + metricsColumns + ` FROM system_metrics WHERE timestamp >= ? ORDER BY timestamp DESC`
	args := []any{toMillis(since)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()
	var out []core.SystemMetrics
	for rows.Next() {
		m, err := scanMetrics(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) ClearMetrics(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM system_metrics`); err != nil {
		return fmt.Errorf("clear metrics: %w", err)
	}
	s.notify(TableSystemMetrics)
	return nil
}

func scanMetrics(sc scanner) (core.SystemMetrics, error) {
	var r MetricsRow
	err := sc.Scan(&r.ID, &r.Timestamp, &r.CPUUsage, &r.MemoryUsage, &r.TotalMemory, &r.BatteryLevel,
		&r.BatteryTemperature, &r.DiskUsage, &r.TotalDisk)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.SystemMetrics{}, err
		}
		return core.SystemMetrics{}, fmt.Errorf("scan metrics: %w", err)
	}
	return MetricsFromRow(r), nil
}
