package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tcron/internal/core"
	"tcron/internal/store"
)

// Tasks implements core.TaskRepository over the SQLite store and a script executor.
type Tasks struct {
	store    *store.Store
	exec     core.Executor
	notes    core.NotificationRepository
	settings core.SettingsRepository
	policy   core.MalformedPolicy
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running map[string]*runningExecution
}

type runningExecution struct {
	executionID string
	cancel      context.CancelFunc
	done        chan struct{}
}

var _ core.TaskRepository = (*Tasks)(nil)

// TasksOptions carries the optional collaborators of Tasks.
type TasksOptions struct {
	Notifications core.NotificationRepository
	Settings      core.SettingsRepository
	Policy        core.MalformedPolicy
	Logger        *slog.Logger
}

func NewTasks(st *store.Store, exec core.Executor, opts TasksOptions) *Tasks {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.Policy
	if policy == "" {
		policy = core.PolicyFail
	}
	return &Tasks{
		store:    st,
		exec:     exec,
		notes:    opts.Notifications,
		settings: opts.Settings,
		policy:   policy,
		logger:   logger,
		now:      core.NowMillis,
		running:  make(map[string]*runningExecution),
	}
}

func (r *Tasks) ObserveAll(ctx context.Context) <-chan core.Result[[]core.Task] {
	return r.observeList(ctx, store.TaskQuery{})
}

func (r *Tasks) ObserveByID(ctx context.Context, id string) <-chan core.Result[*core.Task] {
	return observe(ctx, r.store, []string{store.TableTasks}, func(ctx context.Context) (*core.Task, error) {
		t, err := r.Get(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &t, nil
	})
}

func (r *Tasks) ObserveByType(ctx context.Context, taskType core.TaskType) <-chan core.Result[[]core.Task] {
	return r.observeList(ctx, store.TaskQuery{Type: &taskType})
}

func (r *Tasks) ObserveEnabled(ctx context.Context) <-chan core.Result[[]core.Task] {
	enabled := true
	return r.observeList(ctx, store.TaskQuery{Enabled: &enabled})
}

func (r *Tasks) ObserveScheduled(ctx context.Context) <-chan core.Result[[]core.Task] {
	enabled := true
	return r.observeList(ctx, store.TaskQuery{Enabled: &enabled, Scheduled: true})
}

func (r *Tasks) ObserveBoot(ctx context.Context) <-chan core.Result[[]core.Task] {
	enabled := true
	return r.observeList(ctx, store.TaskQuery{Enabled: &enabled, Boot: true})
}

func (r *Tasks) observeList(ctx context.Context, q store.TaskQuery) <-chan core.Result[[]core.Task] {
	return observe(ctx, r.store, []string{store.TableTasks}, func(ctx context.Context) ([]core.Task, error) {
		return r.list(ctx, q)
	})
}

func (r *Tasks) List(ctx context.Context, filter core.TaskFilter) ([]core.Task, error) {
	return r.list(ctx, store.TaskQuery{Type: filter.Type, Enabled: filter.Enabled, Search: filter.Query})
}

// Search matches query against task names and descriptions.
func (r *Tasks) Search(ctx context.Context, query string) ([]core.Task, error) {
	return r.List(ctx, core.TaskFilter{Query: query})
}

func (r *Tasks) list(ctx context.Context, q store.TaskQuery) ([]core.Task, error) {
	rows, err := r.store.ListTaskRows(ctx, q)
	if err != nil {
		return nil, err
	}
	return decodeAll(rows, r.decode, r.policy, r.logger)
}

func (r *Tasks) decode(row store.TaskRow) (core.Task, error) {
	if r.policy == core.PolicyDefault {
		t, err := store.TaskFromRowLenient(row)
		if err != nil {
			r.logger.Warn("substituted defaults in malformed task", "task_id", row.ID, "err", err)
		}
		return t, nil
	}
	return store.TaskFromRow(row)
}

func (r *Tasks) Get(ctx context.Context, id string) (core.Task, error) {
	row, err := r.store.GetTaskRow(ctx, id)
	if err != nil {
		return core.Task{}, err
	}
	return r.decode(row)
}

// Insert validates and stores a new task and returns its id. An empty id is generated.
func (r *Tasks) Insert(ctx context.Context, task core.Task) (string, error) {
	now := r.now()
	task.CreatedAt = now
	task.UpdatedAt = now
	return r.insert(ctx, task)
}

func (r *Tasks) insert(ctx context.Context, task core.Task) (string, error) {
	if err := core.ValidateTask(task); err != nil {
		return "", err
	}
	if task.ID == "" {
		task.ID = core.NewID()
	}
	if err := r.store.InsertTask(ctx, task); err != nil {
		if isUniqueViolation(err) {
			return "", core.Invalid("id", fmt.Sprintf("task %s already exists", task.ID))
		}
		return "", err
	}
	r.logger.Info("task created", "task_id", task.ID, "name", task.Name)
	return task.ID, nil
}

// Update stores the editable fields of task. Statistics and createdAt keep their stored values;
// only executions and ClearHistory change them.
func (r *Tasks) Update(ctx context.Context, task core.Task) error {
	if err := core.ValidateTask(task); err != nil {
		return err
	}
	task.UpdatedAt = r.now()
	return r.store.UpdateTask(ctx, task)
}

// Delete removes the task and its history. A running execution is cancelled first.
func (r *Tasks) Delete(ctx context.Context, id string) error {
	if run := r.lookup(id); run != nil {
		run.cancel()
		<-run.done
	}
	removed, err := r.store.DeleteTask(ctx, id)
	if err != nil {
		return err
	}
	if removed {
		r.logger.Info("task deleted", "task_id", id)
	}
	return nil
}

func (r *Tasks) ToggleEnabled(ctx context.Context, id string, enabled bool) error {
	return r.store.SetTaskEnabled(ctx, id, enabled, r.now())
}

// Execute runs the task once on ctx and returns the stored execution record.
// Exit codes other than zero are reported through the record, not as an error.
func (r *Tasks) Execute(ctx context.Context, id string) (core.TaskExecutionResult, error) {
	task, err := r.Get(ctx, id)
	if err != nil {
		return core.TaskExecutionResult{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	run := &runningExecution{executionID: core.NewID(), cancel: cancel, done: make(chan struct{})}
	if !r.claim(task.ID, run) {
		return core.TaskExecutionResult{}, fmt.Errorf("task %s: %w", task.ID, core.ErrTaskRunning)
	}
	defer r.release(task.ID, run)

	// Bookkeeping must survive the caller cancelling ctx.
	persistCtx := context.WithoutCancel(ctx)
	logger := r.logger.With("task_id", task.ID, "execution_id", run.executionID)

	start := r.now()
	result := core.TaskExecutionResult{
		ID:        run.executionID,
		TaskID:    task.ID,
		Status:    core.TaskStatusPending,
		StartTime: start,
		EndTime:   start,
	}
	if err := r.store.InsertExecution(persistCtx, result); err != nil {
		return core.TaskExecutionResult{}, err
	}
	running := result
	if running.Status, err = result.Status.Transition(core.TaskStatusRunning); err != nil {
		return core.TaskExecutionResult{}, err
	}
	if err := r.store.UpdateExecution(persistCtx, running); err != nil {
		// Do not leave a PENDING row behind for startup recovery to find.
		result.Status = core.TaskStatusFailed
		result.ExitCode = -1
		result.ErrorOutput = err.Error()
		result.EndTime = r.now()
		if ferr := r.store.UpdateExecution(persistCtx, result); ferr != nil {
			logger.Warn("mark execution failed", "err", ferr)
		}
		return result, fmt.Errorf("start execution: %w", err)
	}
	result = running
	r.announce(persistCtx, task, core.NotificationTaskStarted, fmt.Sprintf("%s started", task.Name))
	logger.Info("execution started")

	outcome, runErr := r.exec.Run(runCtx, core.ScriptRequest{
		Script:      task.ScriptContent,
		Type:        task.Type,
		Permissions: task.Permissions,
		Timeout:     task.MaxExecutionTime(),
	})

	end := r.now()
	if end.Before(start) {
		end = start
	}
	result.EndTime = end
	result.ExecutionTime = end.Sub(start).Milliseconds()
	result.ExitCode = outcome.ExitCode
	result.Output = outcome.Stdout
	result.ErrorOutput = outcome.Stderr

	var next core.TaskStatus
	countsTowardStats := false
	switch {
	case runCtx.Err() != nil && !outcome.TimedOut:
		next = core.TaskStatusCancelled
	case runErr != nil:
		next = core.TaskStatusFailed
		result.ErrorOutput = appendLine(result.ErrorOutput, runErr.Error())
		if result.ExitCode == 0 {
			result.ExitCode = -1
		}
	case outcome.TimedOut:
		next = core.TaskStatusTimeout
		countsTowardStats = true
	case outcome.ExitCode == 0:
		next = core.TaskStatusCompleted
		countsTowardStats = true
	default:
		next = core.TaskStatusFailed
		countsTowardStats = true
	}
	if result.Status, err = result.Status.Transition(next); err != nil {
		return core.TaskExecutionResult{}, err
	}
	result.IsSuccess = result.Status == core.TaskStatusCompleted

	var updated *core.Task
	if countsTowardStats {
		// Re-read so edits made while the script ran are not overwritten.
		current, err := r.Get(persistCtx, task.ID)
		if err == nil {
			t := core.ApplyExecution(current, result, end)
			updated = &t
		} else if !errors.Is(err, core.ErrNotFound) {
			logger.Warn("reload task for statistics", "err", err)
		}
	}
	if err := r.store.RecordExecutionOutcome(persistCtx, result, updated); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			logger.Info("task deleted while running; result dropped")
		} else {
			return result, err
		}
	}
	logger.Info("execution finished", "status", result.Status, "exit_code", result.ExitCode, "duration_ms", result.ExecutionTime)

	switch result.Status {
	case core.TaskStatusCompleted:
		r.announce(persistCtx, task, core.NotificationTaskCompleted, fmt.Sprintf("%s completed in %d ms", task.Name, result.ExecutionTime))
	case core.TaskStatusCancelled:
		r.announce(persistCtx, task, core.NotificationTaskCancelled, fmt.Sprintf("%s was cancelled", task.Name))
	case core.TaskStatusTimeout:
		r.announce(persistCtx, task, core.NotificationTaskFailed, fmt.Sprintf("%s timed out after %s", task.Name, task.MaxExecutionTime()))
	default:
		r.announce(persistCtx, task, core.NotificationTaskFailed, fmt.Sprintf("%s failed with exit code %d", task.Name, result.ExitCode))
	}

	if runErr != nil && result.Status == core.TaskStatusFailed {
		return result, fmt.Errorf("run task %s: %w", task.ID, runErr)
	}
	return result, nil
}

// ExecuteAsync runs Execute in the background and delivers its single result.
func (r *Tasks) ExecuteAsync(ctx context.Context, id string) <-chan core.Result[core.TaskExecutionResult] {
	out := make(chan core.Result[core.TaskExecutionResult], 1)
	go func() {
		defer close(out)
		res, err := r.Execute(ctx, id)
		if err != nil {
			out <- core.Result[core.TaskExecutionResult]{Value: res, Err: err}
			return
		}
		out <- core.Ok(res)
	}()
	return out
}

// CancelExecution stops the task's running execution and waits for it to be recorded.
// It does nothing when the task is not running.
func (r *Tasks) CancelExecution(ctx context.Context, id string) error {
	run := r.lookup(id)
	if run == nil {
		return nil
	}
	run.cancel()
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status is RUNNING while an execution is in flight, otherwise the status of the latest
// execution, or PENDING for a task that never ran.
func (r *Tasks) Status(ctx context.Context, id string) (core.TaskStatus, error) {
	if r.lookup(id) != nil {
		return core.TaskStatusRunning, nil
	}
	if _, err := r.store.GetTaskRow(ctx, id); err != nil {
		return "", err
	}
	latest, err := r.store.ListExecutions(ctx, id, 1)
	if err != nil {
		return "", err
	}
	if len(latest) == 0 {
		return core.TaskStatusPending, nil
	}
	return latest[0].Status, nil
}

func (r *Tasks) RunningTasks(ctx context.Context) ([]core.Task, error) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	tasks := make([]core.Task, 0, len(ids))
	for _, id := range ids {
		t, err := r.Get(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (r *Tasks) History(ctx context.Context, id string) ([]core.TaskExecutionResult, error) {
	if _, err := r.store.GetTaskRow(ctx, id); err != nil {
		return nil, err
	}
	return r.store.ListExecutions(ctx, id, 0)
}

func (r *Tasks) ExecutionResult(ctx context.Context, executionID string) (core.TaskExecutionResult, error) {
	return r.store.GetExecution(ctx, executionID)
}

// ClearHistory deletes the task's executions and resets its statistics.
func (r *Tasks) ClearHistory(ctx context.Context, id string) error {
	if r.lookup(id) != nil {
		return fmt.Errorf("clear history of %s: %w", id, core.ErrTaskRunning)
	}
	task, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return r.store.ResetTaskHistory(ctx, core.ResetStatistics(task, r.now()))
}

const maxPreviewRuns = 100

// NextRuns previews up to n upcoming occurrences of the task's schedule. Nothing is dispatched.
func (r *Tasks) NextRuns(ctx context.Context, id string, n int) ([]time.Time, error) {
	task, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Schedule == nil {
		return []time.Time{}, nil
	}
	if n <= 0 {
		n = 5
	}
	if n > maxPreviewRuns {
		n = maxPreviewRuns
	}
	schedule, err := core.ScheduleFor(*task.Schedule)
	if err != nil {
		return nil, core.Invalid("schedule", err.Error())
	}
	return core.NextOccurrences(schedule, r.now(), n), nil
}

// Export writes every task definition and its statistics as JSON or YAML.
func (r *Tasks) Export(ctx context.Context, format string) ([]byte, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	tasks, err := r.list(ctx, store.TaskQuery{})
	if err != nil {
		return nil, err
	}
	file := ExportFile{Version: exportVersion, ExportedAt: r.now(), Tasks: make([]TaskDocument, 0, len(tasks))}
	for _, t := range tasks {
		file.Tasks = append(file.Tasks, ToTaskDocument(t))
	}
	data, err := encodeDocument(file, format)
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return data, nil
}

// Import stores the task definitions from an export. Statistics start at zero and ids that
// are taken are replaced. Either every task is stored or none is.
func (r *Tasks) Import(ctx context.Context, data []byte, format string) ([]core.Task, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	var file ExportFile
	if err := decodeDocument(data, format, &file); err != nil {
		return nil, err
	}
	if file.Version > exportVersion {
		return nil, core.Invalid("version", fmt.Sprintf("export version %d is newer than %d", file.Version, exportVersion))
	}
	now := r.now()
	tasks := make([]core.Task, 0, len(file.Tasks))
	for i, doc := range file.Tasks {
		t := doc.ToTask()
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.CreatedAt = time.UnixMilli(t.CreatedAt.UnixMilli()).UTC()
		t.UpdatedAt = now
		if err := core.ValidateTask(t); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		if t.ID != "" {
			if _, err := r.store.GetTaskRow(ctx, t.ID); err == nil {
				t.ID = ""
			}
		}
		if t.ID == "" {
			t.ID = core.NewID()
		}
		tasks = append(tasks, t)
	}
	var stored []core.Task
	for _, t := range tasks {
		if _, err := r.insert(ctx, t); err != nil {
			for _, s := range stored {
				if _, derr := r.store.DeleteTask(ctx, s.ID); derr != nil {
					r.logger.Warn("roll back import", "task_id", s.ID, "err", derr)
				}
			}
			return nil, err
		}
		stored = append(stored, t)
	}
	return stored, nil
}

// announce records a task notification when the user's settings allow it.
func (r *Tasks) announce(ctx context.Context, task core.Task, kind core.NotificationType, message string) {
	if r.notes == nil {
		return
	}
	settings := core.DefaultSettings().Notifications
	if r.settings != nil {
		s, err := r.settings.Get(ctx)
		if err != nil {
			r.logger.Warn("load notification settings", "err", err)
		} else {
			settings = s.Notifications
		}
	}
	if !settings.Allows(kind) {
		return
	}
	taskID := task.ID
	if _, err := r.notes.Create(ctx, task.Name, message, kind, &taskID); err != nil {
		r.logger.Warn("record notification", "task_id", task.ID, "err", err)
	}
}

func (r *Tasks) claim(id string, run *runningExecution) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.running[id]; busy {
		return false
	}
	r.running[id] = run
	return true
}

func (r *Tasks) release(id string, run *runningExecution) {
	r.mu.Lock()
	if r.running[id] == run {
		delete(r.running, id)
	}
	r.mu.Unlock()
	close(run.done)
}

func (r *Tasks) lookup(id string) *runningExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[id]
}

func appendLine(s, line string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s + line
	}
	return s + "\n" + line
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
