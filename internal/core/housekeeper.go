package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// MetricsSampler reads the current host resource usage.
type MetricsSampler interface {
	Sample(ctx context.Context) (SystemMetrics, error)
}

// MetricsRecorder persists a metrics sample.
type MetricsRecorder interface {
	RecordSystemMetrics(ctx context.Context, m SystemMetrics) error
}

// HistoryPruner deletes execution and metric rows older than a cutoff.
type HistoryPruner interface {
	PruneHistory(ctx context.Context, before time.Time) (int64, error)
}

// Housekeeper periodically samples system metrics and prunes old history.
// It never dispatches tasks.
type Housekeeper struct {
	sampler   MetricsSampler
	recorder  MetricsRecorder
	pruner    HistoryPruner
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration

	cron *cron.Cron

	mu  sync.Mutex
	ctx context.Context
}

// NewHousekeeper constructs a housekeeper. A zero interval disables sampling; a zero retention disables pruning.
func NewHousekeeper(sampler MetricsSampler, recorder MetricsRecorder, pruner HistoryPruner, logger *slog.Logger, interval, retention time.Duration) *Housekeeper {
	return &Housekeeper{
		sampler:   sampler,
		recorder:  recorder,
		pruner:    pruner,
		logger:    logger,
		interval:  interval,
		retention: retention,
		cron:      cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start registers the periodic jobs and starts the loop. ctx is used for the jobs' store calls.
func (h *Housekeeper) Start(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()
	if h.interval > 0 && h.sampler != nil && h.recorder != nil {
		h.cron.Schedule(cron.Every(h.interval), cron.FuncJob(h.SampleOnce))
	}
	if h.retention > 0 && h.pruner != nil {
		h.cron.Schedule(cron.Every(time.Hour), cron.FuncJob(h.PruneOnce))
	}
	h.cron.Start()
}

// Stop stops the loop; the returned context is done once running jobs finish.
func (h *Housekeeper) Stop() context.Context {
	return h.cron.Stop()
}

// SampleOnce records one metrics sample.
func (h *Housekeeper) SampleOnce() {
	ctx := h.ctxOrBackground()
	m, err := h.sampler.Sample(ctx)
	if err != nil {
		h.logger.Warn("sample system metrics", "err", err)
		return
	}
	if err := h.recorder.RecordSystemMetrics(ctx, m); err != nil {
		h.logger.Error("record system metrics", "err", err)
	}
}

// PruneOnce deletes history older than the retention window.
func (h *Housekeeper) PruneOnce() {
	ctx := h.ctxOrBackground()
	cutoff := time.Now().UTC().Add(-h.retention)
	n, err := h.pruner.PruneHistory(ctx, cutoff)
	if err != nil {
		h.logger.Error("prune history", "err", err)
		return
	}
	if n > 0 {
		h.logger.Info("pruned history", "rows", n, "before", cutoff)
	}
}

func (h *Housekeeper) ctxOrBackground() context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx != nil {
		return h.ctx
	}
	return context.Background()
}
