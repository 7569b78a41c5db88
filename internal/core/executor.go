package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ScriptRequest describes one script to run.
type ScriptRequest struct {
	Script      string
	Type        TaskType
	Permissions TaskPermissions
	WorkingDir  string
	Env         map[string]string
	Timeout     time.Duration
}

// ScriptOutcome is what a finished script produced.
type ScriptOutcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Executor runs scripts. A cancelled ctx must end the script and return an error wrapping ctx.Err().
type Executor interface {
	Run(ctx context.Context, req ScriptRequest) (ScriptOutcome, error)
}

// ExecutorOptions configures a CommandExecutor.
type ExecutorOptions struct {
	Shell       string
	Python      string
	RootPrefix  []string
	OutputLimit int
}

// CommandExecutor runs scripts as child processes of the daemon.
type CommandExecutor struct {
	opts   ExecutorOptions
	logger *slog.Logger
}

// NewCommandExecutor creates a new executor.
func NewCommandExecutor(opts ExecutorOptions, logger *slog.Logger) *CommandExecutor {
	if opts.Shell == "" {
		opts.Shell = "/bin/sh"
	}
	if opts.Python == "" {
		opts.Python = "python3"
	}
	if opts.RootPrefix == nil {
		opts.RootPrefix = []string{"sudo", "-n"}
	}
	if opts.OutputLimit <= 0 {
		opts.OutputLimit = 1 << 20
	}
	return &CommandExecutor{opts: opts, logger: logger}
}

// Run executes the script, enforcing req.Timeout with SIGTERM followed by a kill 5s later.
func (e *CommandExecutor) Run(ctx context.Context, req ScriptRequest) (ScriptOutcome, error) {
	args, err := e.commandLine(req)
	if err != nil {
		return ScriptOutcome{}, err
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...) // #nosec G204
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(req.Env)...)
	}
	stdout := &cappedBuffer{limit: e.opts.OutputLimit}
	stderr := &cappedBuffer{limit: e.opts.OutputLimit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Grandchildren may keep the pipes open after the shell is gone.
	cmd.WaitDelay = time.Second

	var timeoutTriggered atomic.Bool
	var watchdog *time.Timer
	started := time.Now()
	if err := cmd.Start(); err != nil {
		return ScriptOutcome{}, fmt.Errorf("start %s: %v: %w", args[0], err, ErrExecution)
	}
	if req.Timeout > 0 {
		watchdog = time.AfterFunc(req.Timeout, func() {
			timeoutTriggered.Store(true)
			e.logger.Warn("script exceeded timeout, sending termination", "pid", cmd.Process.Pid, "timeout", req.Timeout)
			sendTermination(cmd.Process)
			time.AfterFunc(5*time.Second, func() {
				_ = cmd.Process.Kill()
			})
		})
	}
	waitErr := cmd.Wait()
	if watchdog != nil {
		watchdog.Stop()
	}

	outcome := ScriptOutcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		outcome.ExitCode = -1
		return outcome, fmt.Errorf("script interrupted: %w", ctxErr)
	}
	if timeoutTriggered.Load() {
		outcome.TimedOut = true
		outcome.ExitCode = -1
		return outcome, nil
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		waitErr = nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return outcome, fmt.Errorf("wait: %v: %w", waitErr, ErrExecution)
		}
		outcome.ExitCode = exitErr.ExitCode()
	}
	return outcome, nil
}

func (e *CommandExecutor) commandLine(req ScriptRequest) ([]string, error) {
	var args []string
	switch req.Type {
	case TaskTypeShell, TaskTypeCombined, "":
		if runtime.GOOS == "windows" {
			args = []string{"cmd", "/C", req.Script}
		} else {
			args = []string{e.opts.Shell, "-c", req.Script}
		}
	case TaskTypePython:
		args = []string{e.opts.Python, "-c", req.Script}
	default:
		return nil, fmt.Errorf("unsupported task type %q: %w", req.Type, ErrExecution)
	}
	if req.Permissions.RequiresRoot && os.Geteuid() != 0 {
		if runtime.GOOS == "windows" || len(e.opts.RootPrefix) == 0 {
			return nil, fmt.Errorf("root required but unavailable: %w", ErrExecution)
		}
		args = append(append([]string{}, e.opts.RootPrefix...), args...)
	}
	return args, nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// cappedBuffer keeps the first limit bytes written and discards the rest.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func sendTermination(process *os.Process) {
	if process == nil {
		return
	}
	if runtime.GOOS == "windows" {
		_ = process.Kill()
		return
	}
	_ = process.Signal(syscall.SIGTERM)
}
