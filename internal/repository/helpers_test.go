package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tcron/internal/core"
	"tcron/internal/logging"
	"tcron/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC).UnixMilli()).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeExecutor returns scripted outcomes in order, repeating the last one. A blocking
// executor waits for its context instead.
type fakeExecutor struct {
	mu       sync.Mutex
	clock    *fakeClock
	outcomes []core.ScriptOutcome
	err      error
	block    bool
	started  chan struct{}
	requests []core.ScriptRequest
}

func (f *fakeExecutor) Run(ctx context.Context, req core.ScriptRequest) (core.ScriptOutcome, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	var out core.ScriptOutcome
	if len(f.outcomes) > 0 {
		i := n - 1
		if i >= len(f.outcomes) {
			i = len(f.outcomes) - 1
		}
		out = f.outcomes[i]
	}
	block, started, err := f.block, f.started, f.err
	f.mu.Unlock()

	if block {
		if started != nil {
			started <- struct{}{}
		}
		<-ctx.Done()
		return core.ScriptOutcome{ExitCode: -1}, fmt.Errorf("script interrupted: %w", ctx.Err())
	}
	if f.clock != nil {
		f.clock.Advance(out.Duration)
	}
	return out, err
}

func (f *fakeExecutor) Requests() []core.ScriptRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.ScriptRequest(nil), f.requests...)
}

type fixture struct {
	store    *store.Store
	clock    *fakeClock
	exec     *fakeExecutor
	tasks    *Tasks
	notes    *Notifications
	settings *Settings
	terminal *Terminal
	dash     *Dashboard
}

func newFixture(t *testing.T, policy core.MalformedPolicy) *fixture {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clock := newFakeClock()
	exec := &fakeExecutor{clock: clock}
	logger := logging.Discard()
	notes := NewNotifications(st, nil, logger)
	notes.now = clock.Now
	settings := NewSettings(st)
	settings.now = clock.Now
	tasks := NewTasks(st, exec, TasksOptions{Notifications: notes, Settings: settings, Policy: policy, Logger: logger})
	tasks.now = clock.Now
	terminal := NewTerminal(st, exec, policy, logger)
	terminal.now = clock.Now
	dash := NewDashboard(st, tasks, nil, logger)
	dash.now = clock.Now
	return &fixture{store: st, clock: clock, exec: exec, tasks: tasks, notes: notes, settings: settings, terminal: terminal, dash: dash}
}

func newTask(name string) core.Task {
	return core.Task{
		Name:          name,
		Type:          core.TaskTypeShell,
		ScriptContent: "echo " + name,
		IsEnabled:     true,
	}
}

// waitFor reads snapshots until pred accepts one or the deadline passes.
func waitFor[T any](t *testing.T, ch <-chan core.Result[T], pred func(T) bool) T {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case r, ok := <-ch:
			require.True(t, ok, "stream closed early")
			require.NoError(t, r.Err)
			if pred(r.Value) {
				return r.Value
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}
