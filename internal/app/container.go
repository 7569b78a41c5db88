// Package app provides the dependency injection container shared by tcrond and tcron.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"tcron/internal/config"
	"tcron/internal/core"
	"tcron/internal/notify"
	"tcron/internal/repository"
	"tcron/internal/store"
)

// Container holds the opened store and every repository bound to it.
type Container struct {
	Store         *store.Store
	Tasks         *repository.Tasks
	Terminal      *repository.Terminal
	Notifications *repository.Notifications
	Dashboard     *repository.Dashboard
	Settings      *repository.Settings
	Housekeeper   *core.Housekeeper

	Logger *slog.Logger
	Config *config.Config
}

// New opens the store under cfg.StateDir and wires the repositories. The housekeeper is
// built but not started.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	st, err := store.Open(ctx, cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var notifier notify.Notifier
	if cfg.Notification.Bark.Enabled {
		bark, err := notify.NewBarkNotifier(cfg.Notification.Bark.URL)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("configure bark: %w", err)
		}
		notifier = bark
		logger.Info("bark notifications enabled")
	}

	executor := core.NewCommandExecutor(core.ExecutorOptions{
		Shell:  cfg.Exec.Shell,
		Python: cfg.Exec.Python,
	}, logger)

	settings := repository.NewSettings(st)
	notes := repository.NewNotifications(st, notifier, logger)
	tasks := repository.NewTasks(st, executor, repository.TasksOptions{
		Notifications: notes,
		Settings:      settings,
		Policy:        cfg.MalformedPolicy,
		Logger:        logger,
	})
	dashboard := repository.NewDashboard(st, tasks, core.NewRuntimeSampler(cfg.StateDir), logger)

	return &Container{
		Store:         st,
		Tasks:         tasks,
		Terminal:      repository.NewTerminal(st, executor, cfg.MalformedPolicy, logger),
		Notifications: notes,
		Dashboard:     dashboard,
		Settings:      settings,
		Housekeeper: core.NewHousekeeper(core.NewRuntimeSampler(cfg.StateDir), dashboard, dashboard, logger,
			cfg.Housekeeping.MetricsInterval, cfg.Housekeeping.HistoryRetention),
		Logger: logger,
		Config: cfg,
	}, nil
}

// RecoverInterrupted fails executions a previous daemon left PENDING or RUNNING.
// Only the daemon calls it; a CLI invocation may run next to a live daemon.
func (c *Container) RecoverInterrupted(ctx context.Context) error {
	n, err := c.Store.FailDanglingExecutions(ctx, core.NowMillis())
	if err != nil {
		return err
	}
	if n > 0 {
		c.Logger.Warn("failed interrupted executions", "count", n)
	}
	return nil
}

// Close closes the store.
func (c *Container) Close() error {
	return c.Store.Close()
}
