package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcron/internal/core"
	"tcron/internal/logging"
)

func TestTasksObserveAllSeesInsert(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := f.tasks.ObserveAll(ctx)
	first := waitFor(t, stream, func([]core.Task) bool { return true })
	assert.Empty(t, first)

	task := newTask("backup")
	task.Description = "nightly rsync"
	task.Permissions = core.TaskPermissions{RequiresNetwork: true, CustomPermissions: []string{"net.raw"}}
	task.Schedule = &core.TaskSchedule{
		ScheduledTime:    f.clock.Now().Add(time.Hour),
		RepeatType:       core.RepeatDaily,
		MaxExecutionTime: 60000,
	}
	id, err := f.tasks.Insert(ctx, task)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got := waitFor(t, stream, func(ts []core.Task) bool { return len(ts) == 1 })
	task.ID = id
	task.CreatedAt = f.clock.Now()
	task.UpdatedAt = f.clock.Now()
	assert.Equal(t, task, got[0])
}

func TestTasksObserveByIDEmitsNilUntilInserted(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := f.tasks.ObserveByID(ctx, "fixed")
	assert.Nil(t, waitFor(t, stream, func(*core.Task) bool { return true }))

	task := newTask("pinned")
	task.ID = "fixed"
	_, err := f.tasks.Insert(ctx, task)
	require.NoError(t, err)

	got := waitFor(t, stream, func(p *core.Task) bool { return p != nil })
	assert.Equal(t, "pinned", got.Name)
}

func TestTasksToggleEnabled(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := f.tasks.Insert(ctx, newTask("a"))
	require.NoError(t, err)
	b, err := f.tasks.Insert(ctx, newTask("b"))
	require.NoError(t, err)

	stream := f.tasks.ObserveEnabled(ctx)
	waitFor(t, stream, func(ts []core.Task) bool { return len(ts) == 2 })

	require.NoError(t, f.tasks.ToggleEnabled(ctx, a, false))
	got := waitFor(t, stream, func(ts []core.Task) bool { return len(ts) == 1 })
	assert.Equal(t, b, got[0].ID)

	stored, err := f.tasks.Get(ctx, a)
	require.NoError(t, err)
	assert.False(t, stored.IsEnabled)

	err = f.tasks.ToggleEnabled(ctx, "missing", true)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTasksInsertValidation(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()

	cases := map[string]func(*core.Task){
		"blank name":   func(t *core.Task) { t.Name = "  " },
		"blank script": func(t *core.Task) { t.ScriptContent = "" },
		"bad type":     func(t *core.Task) { t.Type = "RUBY" },
		"custom interval": func(t *core.Task) {
			t.Schedule = &core.TaskSchedule{ScheduledTime: time.Now(), RepeatType: core.RepeatCustom, RepeatInterval: 10}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			task := newTask("x")
			mutate(&task)
			_, err := f.tasks.Insert(ctx, task)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}

	all, err := f.tasks.List(ctx, core.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTasksInsertDuplicateID(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()

	task := newTask("a")
	task.ID = "same"
	_, err := f.tasks.Insert(ctx, task)
	require.NoError(t, err)
	_, err = f.tasks.Insert(ctx, task)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestTasksUpdate(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()

	id, err := f.tasks.Insert(ctx, newTask("a"))
	require.NoError(t, err)
	task, err := f.tasks.Get(ctx, id)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	task.Name = "renamed"
	require.NoError(t, f.tasks.Update(ctx, task))

	got, err := f.tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, task.CreatedAt, got.CreatedAt)
	assert.Equal(t, f.clock.Now(), got.UpdatedAt)

	missing := newTask("ghost")
	missing.ID = "missing"
	assert.ErrorIs(t, f.tasks.Update(ctx, missing), core.ErrNotFound)
}

func TestTasksUpdateKeepsStatistics(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	f.exec.outcomes = []core.ScriptOutcome{{ExitCode: 0, Duration: 10 * time.Millisecond}}

	id, err := f.tasks.Insert(ctx, newTask("backup"))
	require.NoError(t, err)
	before, err := f.tasks.Get(ctx, id)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = f.tasks.Execute(ctx, id)
		require.NoError(t, err)
	}

	edit := newTask("backup renamed")
	edit.ID = id
	require.NoError(t, f.tasks.Update(ctx, edit))

	got, err := f.tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "backup renamed", got.Name)
	assert.Equal(t, 2, got.ExecutionCount)
	assert.Equal(t, 2, got.SuccessCount)
	assert.Equal(t, int64(10), got.AverageExecutionTime)
	require.NotNil(t, got.LastExecutionResult)
	assert.Equal(t, before.CreatedAt, got.CreatedAt)

	history, err := f.tasks.History(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestTasksDeleteIsIdempotent(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	f.exec.outcomes = []core.ScriptOutcome{{ExitCode: 0, Duration: 5 * time.Millisecond}}

	id, err := f.tasks.Insert(ctx, newTask("a"))
	require.NoError(t, err)
	res, err := f.tasks.Execute(ctx, id)
	require.NoError(t, err)

	require.NoError(t, f.tasks.Delete(ctx, id))
	require.NoError(t, f.tasks.Delete(ctx, id))
	require.NoError(t, f.tasks.Delete(ctx, "never-existed"))

	_, err = f.tasks.Get(ctx, id)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.tasks.ExecutionResult(ctx, res.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTasksExecuteStatistics(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	f.exec.outcomes = []core.ScriptOutcome{
		{ExitCode: 0, Stdout: "ok\n", Duration: 10 * time.Millisecond},
		{ExitCode: 0, Stdout: "ok\n", Duration: 20 * time.Millisecond},
		{ExitCode: 3, Stderr: "disk full\n", Duration: 30 * time.Millisecond},
	}

	id, err := f.tasks.Insert(ctx, newTask("a"))
	require.NoError(t, err)
	status, err := f.tasks.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusPending, status)

	var last core.TaskExecutionResult
	for i := 0; i < 3; i++ {
		last, err = f.tasks.Execute(ctx, id)
		require.NoError(t, err)
	}
	assert.Equal(t, core.TaskStatusFailed, last.Status)
	assert.Equal(t, 3, last.ExitCode)
	assert.Equal(t, int64(30), last.ExecutionTime)
	assert.False(t, last.IsSuccess)

	task, err := f.tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, task.ExecutionCount)
	assert.Equal(t, 2, task.SuccessCount)
	assert.Equal(t, 1, task.FailureCount)
	assert.Equal(t, int64(20), task.AverageExecutionTime)
	require.NotNil(t, task.LastExecutionResult)
	assert.Equal(t, last.ID, task.LastExecutionResult.ID)
	require.NotNil(t, task.LastExecutionTime)
	assert.Equal(t, last.EndTime, *task.LastExecutionTime)

	history, err := f.tasks.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, last.ID, history[0].ID)
	assert.Equal(t, "disk full\n", history[0].ErrorOutput)
	assert.Equal(t, "ok\n", history[2].Output)

	status, err = f.tasks.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusFailed, status)

	reqs := f.exec.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "echo a", reqs[0].Script)
	assert.Equal(t, 30*time.Second, reqs[0].Timeout)
}

func TestTasksExecuteTimeoutCountsAsFailure(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	f.exec.outcomes = []core.ScriptOutcome{{ExitCode: -1, TimedOut: true, Duration: 50 * time.Millisecond}}

	task := newTask("slow")
	task.Schedule = &core.TaskSchedule{ScheduledTime: f.clock.Now(), RepeatType: core.RepeatNone, IsOneTime: true, MaxExecutionTime: 50}
	id, err := f.tasks.Insert(ctx, task)
	require.NoError(t, err)

	res, err := f.tasks.Execute(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusTimeout, res.Status)
	assert.Equal(t, 50*time.Millisecond, f.exec.Requests()[0].Timeout)

	got, err := f.tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ExecutionCount)
	assert.Equal(t, 1, got.FailureCount)
}

func TestTasksExecuteStartFailureLeavesStatistics(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	f.exec.err = fmt.Errorf("start /bin/sh: no such file: %w", core.ErrExecution)

	id, err := f.tasks.Insert(ctx, newTask("a"))
	require.NoError(t, err)

	res, err := f.tasks.Execute(ctx, id)
	assert.ErrorIs(t, err, core.ErrExecution)
	assert.Equal(t, core.TaskStatusFailed, res.Status)
	assert.Equal(t, -1, res.ExitCode)
	assert.Contains(t, res.ErrorOutput, "no such file")

	got, err := f.tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, got.ExecutionCount)

	stored, err := f.tasks.ExecutionResult(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusFailed, stored.Status)
}

func TestTasksExecuteStartFailureMarksExecutionFailed(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	id, err := f.tasks.Insert(ctx, newTask("a"))
	require.NoError(t, err)

	_, err = f.store.DB.Exec(`
		CREATE TRIGGER reject_running BEFORE UPDATE OF status ON task_executions
		WHEN NEW.status = 'RUNNING'
		BEGIN SELECT RAISE(ABORT, 'disk I/O error'); END;
	`)
	require.NoError(t, err)

	_, err = f.tasks.Execute(ctx, id)
	require.Error(t, err)
	assert.Empty(t, f.exec.Requests())

	history, err := f.tasks.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, core.TaskStatusFailed, history[0].Status)
	assert.Contains(t, history[0].ErrorOutput, "disk I/O error")

	task, err := f.tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, task.ExecutionCount)
	status, err := f.tasks.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusFailed, status)
}

func TestTasksExecuteUnknownTask(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	_, err := f.tasks.Execute(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.tasks.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTasksCancelExecution(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	f.exec.block = true
	f.exec.started = make(chan struct{}, 1)

	id, err := f.tasks.Insert(ctx, newTask("long"))
	require.NoError(t, err)

	results := f.tasks.ExecuteAsync(ctx, id)
	<-f.exec.started

	status, err := f.tasks.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusRunning, status)

	running, err := f.tasks.RunningTasks(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, id, running[0].ID)

	_, err = f.tasks.Execute(ctx, id)
	assert.ErrorIs(t, err, core.ErrTaskRunning)
	assert.ErrorIs(t, f.tasks.ClearHistory(ctx, id), core.ErrTaskRunning)

	require.NoError(t, f.tasks.CancelExecution(ctx, id))

	var res core.Result[core.TaskExecutionResult]
	select {
	case res = <-results:
	case <-time.After(3 * time.Second):
		t.Fatal("execution did not finish")
	}
	require.NoError(t, res.Err)
	assert.Equal(t, core.TaskStatusCancelled, res.Value.Status)

	got, err := f.tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, got.ExecutionCount)

	status, err = f.tasks.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusCancelled, status)

	// Nothing is running any more.
	require.NoError(t, f.tasks.CancelExecution(ctx, id))
}

func TestTasksDeleteCancelsRunningExecution(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	f.exec.block = true
	f.exec.started = make(chan struct{}, 1)

	id, err := f.tasks.Insert(ctx, newTask("long"))
	require.NoError(t, err)
	results := f.tasks.ExecuteAsync(ctx, id)
	<-f.exec.started

	require.NoError(t, f.tasks.Delete(ctx, id))
	res := <-results
	require.NoError(t, res.Err)
	assert.Equal(t, core.TaskStatusCancelled, res.Value.Status)

	_, err = f.tasks.Get(ctx, id)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTasksClearHistory(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	f.exec.outcomes = []core.ScriptOutcome{{ExitCode: 0, Duration: 10 * time.Millisecond}}

	id, err := f.tasks.Insert(ctx, newTask("a"))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := f.tasks.Execute(ctx, id)
		require.NoError(t, err)
	}

	require.NoError(t, f.tasks.ClearHistory(ctx, id))

	got, err := f.tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, got.ExecutionCount)
	assert.Zero(t, got.SuccessCount)
	assert.Zero(t, got.AverageExecutionTime)
	assert.Nil(t, got.LastExecutionResult)
	assert.Nil(t, got.LastExecutionTime)

	history, err := f.tasks.History(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.ErrorIs(t, f.tasks.ClearHistory(ctx, "missing"), core.ErrNotFound)
}

func TestTasksMalformedPolicies(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()

	good, err := f.tasks.Insert(ctx, newTask("good"))
	require.NoError(t, err)
	bad, err := f.tasks.Insert(ctx, newTask("bad"))
	require.NoError(t, err)
	_, err = f.store.DB.ExecContext(ctx, `UPDATE tasks SET custom_permissions = '{oops' WHERE id = ?`, bad)
	require.NoError(t, err)

	_, err = f.tasks.List(ctx, core.TaskFilter{})
	require.ErrorIs(t, err, core.ErrMalformedRecord)
	var malformed *core.MalformedRecordError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "custom_permissions", malformed.Column)
	assert.Equal(t, bad, malformed.ID)

	_, err = f.tasks.Get(ctx, bad)
	assert.ErrorIs(t, err, core.ErrMalformedRecord)

	skip := NewTasks(f.store, f.exec, TasksOptions{Policy: core.PolicySkip, Logger: logging.Discard()})
	list, err := skip.List(ctx, core.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, good, list[0].ID)

	lenient := NewTasks(f.store, f.exec, TasksOptions{Policy: core.PolicyDefault, Logger: logging.Discard()})
	list, err = lenient.List(ctx, core.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	repaired, err := lenient.Get(ctx, bad)
	require.NoError(t, err)
	assert.Nil(t, repaired.Permissions.CustomPermissions)
	assert.Equal(t, "bad", repaired.Name)
}

func TestTasksListFilters(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()

	shell := newTask("disk report")
	py := newTask("cleanup")
	py.Type = core.TaskTypePython
	py.ScriptContent = "print('hi')"
	py.IsEnabled = false
	_, err := f.tasks.Insert(ctx, shell)
	require.NoError(t, err)
	_, err = f.tasks.Insert(ctx, py)
	require.NoError(t, err)

	pyType := core.TaskTypePython
	list, err := f.tasks.List(ctx, core.TaskFilter{Type: &pyType})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "cleanup", list[0].Name)

	enabled := true
	list, err = f.tasks.List(ctx, core.TaskFilter{Enabled: &enabled})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "disk report", list[0].Name)

	list, err = f.tasks.List(ctx, core.TaskFilter{Query: "DISK"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = f.tasks.Search(ctx, "clean")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "cleanup", list[0].Name)
}

func TestTasksNextRuns(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()

	start := f.clock.Now().Add(time.Hour)
	task := newTask("daily")
	task.Schedule = &core.TaskSchedule{ScheduledTime: start, RepeatType: core.RepeatDaily, MaxExecutionTime: 1000}
	id, err := f.tasks.Insert(ctx, task)
	require.NoError(t, err)

	runs, err := f.tasks.NextRuns(ctx, id, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for i, run := range runs {
		assert.True(t, start.AddDate(0, 0, i).Equal(run), "run %d: %s", i, run)
	}

	runs, err = f.tasks.NextRuns(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 5)

	plain, err := f.tasks.Insert(ctx, newTask("manual"))
	require.NoError(t, err)
	runs, err = f.tasks.NextRuns(ctx, plain, 3)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestTasksNotificationsFollowSettings(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	f.exec.outcomes = []core.ScriptOutcome{{ExitCode: 0, Duration: time.Millisecond}}

	id, err := f.tasks.Insert(ctx, newTask("a"))
	require.NoError(t, err)
	_, err = f.tasks.Execute(ctx, id)
	require.NoError(t, err)

	list, err := f.notes.List(ctx, core.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, core.NotificationTaskCompleted, list[0].Type)
	require.NotNil(t, list[0].TaskID)
	assert.Equal(t, id, *list[0].TaskID)

	require.NoError(t, f.settings.SetBool(ctx, KeyNotifyStarted, true))
	_, err = f.tasks.Execute(ctx, id)
	require.NoError(t, err)
	startedType := core.NotificationTaskStarted
	started, err := f.notes.List(ctx, core.NotificationFilter{Type: &startedType})
	require.NoError(t, err)
	assert.Len(t, started, 1)

	require.NoError(t, f.settings.SetBool(ctx, KeyNotifyEnabled, false))
	_, err = f.tasks.Execute(ctx, id)
	require.NoError(t, err)
	list, err = f.notes.List(ctx, core.NotificationFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestTasksExportImport(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatYAML} {
		t.Run(format, func(t *testing.T) {
			src := newFixture(t, core.PolicyFail)
			ctx := context.Background()
			src.exec.outcomes = []core.ScriptOutcome{{ExitCode: 0, Duration: 10 * time.Millisecond}}

			scheduled := newTask("nightly")
			scheduled.Permissions.CustomPermissions = []string{"net.raw"}
			scheduled.Schedule = &core.TaskSchedule{
				ScheduledTime:    src.clock.Now().Add(2 * time.Hour),
				RepeatType:       core.RepeatWeekly,
				ExecuteOnBoot:    true,
				DelayAfterBoot:   5000,
				MaxExecutionTime: 120000,
			}
			id, err := src.tasks.Insert(ctx, scheduled)
			require.NoError(t, err)
			_, err = src.tasks.Insert(ctx, newTask("manual"))
			require.NoError(t, err)
			_, err = src.tasks.Execute(ctx, id)
			require.NoError(t, err)

			data, err := src.tasks.Export(ctx, format)
			require.NoError(t, err)

			dst := newFixture(t, core.PolicyFail)
			imported, err := dst.tasks.Import(ctx, data, format)
			require.NoError(t, err)
			require.Len(t, imported, 2)

			got, err := dst.tasks.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "nightly", got.Name)
			assert.Equal(t, []string{"net.raw"}, got.Permissions.CustomPermissions)
			require.NotNil(t, got.Schedule)
			assert.Equal(t, core.RepeatWeekly, got.Schedule.RepeatType)
			assert.True(t, got.Schedule.ExecuteOnBoot)
			assert.Equal(t, int64(5000), got.Schedule.DelayAfterBoot)
			assert.True(t, scheduled.Schedule.ScheduledTime.Equal(got.Schedule.ScheduledTime))
			assert.Zero(t, got.ExecutionCount)
			assert.Nil(t, got.LastExecutionResult)

			// Importing again into the source replaces the taken ids.
			again, err := src.tasks.Import(ctx, data, format)
			require.NoError(t, err)
			for _, task := range again {
				assert.NotEqual(t, id, task.ID)
			}
			all, err := src.tasks.List(ctx, core.TaskFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 4)
		})
	}
}

func TestTasksImportRejectsBadInput(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()

	_, err := f.tasks.Import(ctx, []byte(`{"version": 2, "tasks": []}`), FormatJSON)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.tasks.Import(ctx, []byte(`not json`), FormatJSON)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.tasks.Import(ctx, []byte(`{}`), "xml")
	assert.ErrorIs(t, err, core.ErrValidation)

	payload := `{"version":1,"tasks":[
		{"name":"ok","type":"shell","script_content":"true","is_enabled":true},
		{"name":"","type":"SHELL","script_content":"true"}
	]}`
	_, err = f.tasks.Import(ctx, []byte(payload), FormatJSON)
	assert.ErrorIs(t, err, core.ErrValidation)

	all, err := f.tasks.List(ctx, core.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}
