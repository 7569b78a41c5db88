package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcron/internal/config"
	"tcron/internal/core"
	"tcron/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:          config.ServerConfig{Mode: config.ModeHTTP},
		Exec:            config.ExecConfig{Shell: "/bin/sh", Python: "python3"},
		Housekeeping:    config.HousekeepingConfig{MetricsInterval: time.Minute, HistoryRetention: time.Hour},
		StateDir:        t.TempDir(),
		MalformedPolicy: core.PolicyFail,
	}
}

func TestNewWiresRepositories(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, testConfig(t), logging.Discard())
	require.NoError(t, err)
	defer c.Close()

	id, err := c.Tasks.Insert(ctx, core.Task{Name: "hello", Type: core.TaskTypeShell, ScriptContent: "echo hi"})
	require.NoError(t, err)

	metrics, err := c.Dashboard.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TotalTasks)

	settings, err := c.Settings.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.Config.StateDir, settings.BaseDirectory)

	status, err := c.Tasks.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusPending, status)
}

func TestNewRejectsBarkWithoutURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notification.Bark.Enabled = true
	_, err := New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

func TestRecoverInterruptedFailsDanglingRuns(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, testConfig(t), logging.Discard())
	require.NoError(t, err)
	defer c.Close()

	id, err := c.Tasks.Insert(ctx, core.Task{Name: "stuck", Type: core.TaskTypeShell, ScriptContent: "sleep 100"})
	require.NoError(t, err)
	start := core.NowMillis()
	require.NoError(t, c.Store.InsertExecution(ctx, core.TaskExecutionResult{
		ID:        core.NewID(),
		TaskID:    id,
		Status:    core.TaskStatusRunning,
		StartTime: start,
		EndTime:   start,
	}))

	require.NoError(t, c.RecoverInterrupted(ctx))
	status, err := c.Tasks.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusFailed, status)
}
