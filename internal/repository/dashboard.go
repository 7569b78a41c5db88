package repository

import (
	"context"
	"log/slog"
	"time"

	"tcron/internal/core"
	"tcron/internal/store"
)

// Dashboard implements core.DashboardRepository. Task aggregates are computed from the
// statistics stored on each task; host samples come from the system_metrics table.
type Dashboard struct {
	store   *store.Store
	tasks   *Tasks
	sampler core.MetricsSampler
	logger  *slog.Logger
	now     func() time.Time
}

var _ core.DashboardRepository = (*Dashboard)(nil)

// NewDashboard builds the dashboard. sampler may be nil, in which case CurrentSystemStatus
// only reports stored samples.
func NewDashboard(st *store.Store, tasks *Tasks, sampler core.MetricsSampler, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{store: st, tasks: tasks, sampler: sampler, logger: logger, now: core.NowMillis}
}

// Metrics aggregates every task. AverageExecutionTime averages the per-task averages of
// tasks that ran at least once; SuccessRate is a percentage of finished executions.
func (d *Dashboard) Metrics(ctx context.Context) (core.DashboardMetrics, error) {
	tasks, err := d.tasks.List(ctx, core.TaskFilter{})
	if err != nil {
		return core.DashboardMetrics{}, err
	}
	m := core.DashboardMetrics{TotalTasks: len(tasks), LastUpdateTime: d.now()}
	var (
		ran        int64
		averageSum int64
	)
	for _, t := range tasks {
		if t.IsEnabled {
			m.ActiveTasks++
		}
		m.CompletedTasks += t.SuccessCount
		m.FailedTasks += t.FailureCount
		m.TotalExecutionTime += t.AverageExecutionTime * int64(t.ExecutionCount)
		if t.ExecutionCount > 0 {
			ran++
			averageSum += t.AverageExecutionTime
		}
	}
	if ran > 0 {
		m.AverageExecutionTime = averageSum / ran
	}
	if finished := m.CompletedTasks + m.FailedTasks; finished > 0 {
		m.SuccessRate = float32(m.CompletedTasks) / float32(finished) * 100
	}
	return m, nil
}

func (d *Dashboard) ObserveMetrics(ctx context.Context) <-chan core.Result[core.DashboardMetrics] {
	return observe(ctx, d.store, []string{store.TableTasks}, d.Metrics)
}

func (d *Dashboard) TaskMetrics(ctx context.Context) ([]core.TaskMetrics, error) {
	tasks, err := d.tasks.List(ctx, core.TaskFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]core.TaskMetrics, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, core.MetricsForTask(t))
	}
	return out, nil
}

func (d *Dashboard) TaskTypeDistribution(ctx context.Context) (map[core.TaskType]int, error) {
	tasks, err := d.tasks.List(ctx, core.TaskFilter{})
	if err != nil {
		return nil, err
	}
	dist := map[core.TaskType]int{
		core.TaskTypeShell:    0,
		core.TaskTypePython:   0,
		core.TaskTypeCombined: 0,
	}
	for _, t := range tasks {
		dist[t.Type]++
	}
	return dist, nil
}

func (d *Dashboard) RecordSystemMetrics(ctx context.Context, m core.SystemMetrics) error {
	if m.ID == "" {
		m.ID = core.NewID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = d.now()
	}
	return d.store.InsertMetrics(ctx, m)
}

// CurrentSystemStatus samples the host when a sampler is available and falls back to the
// latest stored sample otherwise.
func (d *Dashboard) CurrentSystemStatus(ctx context.Context) (core.SystemMetrics, error) {
	if d.sampler != nil {
		m, err := d.sampler.Sample(ctx)
		if err == nil {
			return m, nil
		}
		d.logger.Warn("sample system metrics", "err", err)
	}
	return d.store.LatestMetrics(ctx)
}

// SystemMetricsHistory returns samples from the last hours, oldest first.
func (d *Dashboard) SystemMetricsHistory(ctx context.Context, hours int) ([]core.SystemMetrics, error) {
	if hours <= 0 {
		return nil, core.Invalid("hours", "must be positive")
	}
	since := d.now().Add(-time.Duration(hours) * time.Hour)
	list, err := d.store.ListMetricsSince(ctx, since, 0)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []core.SystemMetrics{}
	}
	return list, nil
}

func (d *Dashboard) ClearMetricsHistory(ctx context.Context) error {
	return d.store.ClearMetrics(ctx)
}

// PruneHistory deletes finished executions and samples older than before.
func (d *Dashboard) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	return d.store.PruneHistory(ctx, before)
}
