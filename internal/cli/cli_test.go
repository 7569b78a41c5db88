package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcron/internal/app"
	"tcron/internal/config"
	"tcron/internal/core"
	"tcron/internal/logging"
)

func newTestContainer(t *testing.T) *app.Container {
	t.Helper()
	cfg := &config.Config{
		Server:          config.ServerConfig{Mode: config.ModeHTTP},
		Exec:            config.ExecConfig{Shell: "/bin/sh", Python: "python3"},
		Housekeeping:    config.HousekeepingConfig{MetricsInterval: time.Minute, HistoryRetention: time.Hour},
		StateDir:        t.TempDir(),
		MalformedPolicy: core.PolicyFail,
	}
	c, err := app.New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func execute(t *testing.T, c *app.Container, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(c, "test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTaskAddAndList(t *testing.T) {
	c := newTestContainer(t)

	out, err := execute(t, c, "task", "add", "--name", "cleanup", "--script", "rm -rf /tmp/x")
	require.NoError(t, err)
	assert.Contains(t, out, "Created task ")

	_, err = execute(t, c, "task", "add", "--name", "report", "--type", "python", "--script", "print(1)",
		"--repeat", "daily", "--at", "2030-01-01T03:00:00Z", "--timeout", "2m", "--disabled")
	require.NoError(t, err)

	out, err = execute(t, c, "task", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "cleanup")
	assert.Contains(t, out, "report")
	assert.Contains(t, out, "DAILY")

	out, err = execute(t, c, "task", "list", "--enabled=false")
	require.NoError(t, err)
	assert.Contains(t, out, "report")
	assert.NotContains(t, out, "cleanup")

	tasks, err := c.Tasks.List(context.Background(), core.TaskFilter{Query: "report"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, core.TaskTypePython, tasks[0].Type)
	assert.Equal(t, int64(120_000), tasks[0].Schedule.MaxExecutionTime)
	assert.False(t, tasks[0].IsEnabled)

	out, err = execute(t, c, "task", "show", tasks[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Next:")
	assert.Contains(t, out, "2030-01-01T03:00:00Z")
}

func TestTaskAddValidation(t *testing.T) {
	c := newTestContainer(t)

	_, err := execute(t, c, "task", "add", "--script", "true")
	assert.Error(t, err)

	_, err = execute(t, c, "task", "add", "--name", "x", "--script", "  ")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = execute(t, c, "task", "add", "--name", "x", "--script", "true", "--repeat", "hourly")
	assert.Error(t, err)

	_, err = execute(t, c, "task", "list", "--type", "perl")
	assert.Error(t, err)
}

func TestTaskToggleAndRemove(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()
	id, err := c.Tasks.Insert(ctx, core.Task{Name: "job", Type: core.TaskTypeShell, ScriptContent: "true", IsEnabled: true})
	require.NoError(t, err)

	out, err := execute(t, c, "task", "disable", id)
	require.NoError(t, err)
	assert.Contains(t, out, "disabled")
	task, err := c.Tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, task.IsEnabled)

	_, err = execute(t, c, "task", "enable", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	out, err = execute(t, c, "task", "rm", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted task "+id)
	_, err = c.Tasks.Get(ctx, id)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestExportImport(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()
	_, err := c.Tasks.Insert(ctx, core.Task{Name: "alpha", Type: core.TaskTypeShell, ScriptContent: "echo a"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tasks.yaml")
	_, err = execute(t, c, "export", "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: alpha")

	out, err := execute(t, c, "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 tasks")

	tasks, err := c.Tasks.List(ctx, core.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	out, err = execute(t, c, "export")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": 1`)

	_, err = execute(t, c, "import", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, "yaml", formatFromPath("a.YML"))
	assert.Equal(t, "yaml", formatFromPath("dir/a.yaml"))
	assert.Equal(t, "json", formatFromPath("a.json"))
	assert.Equal(t, "json", formatFromPath(""))
}
