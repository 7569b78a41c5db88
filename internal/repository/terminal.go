package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tcron/internal/core"
	"tcron/internal/store"
)

const commandTimeout = 5 * time.Minute

// Terminal implements core.TerminalRepository. Commands run one at a time per session
// through the shell executor; there is no pseudo-terminal.
type Terminal struct {
	store  *store.Store
	exec   core.Executor
	policy core.MalformedPolicy
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

var _ core.TerminalRepository = (*Terminal)(nil)

func NewTerminal(st *store.Store, exec core.Executor, policy core.MalformedPolicy, logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = core.PolicyFail
	}
	return &Terminal{
		store:   st,
		exec:    exec,
		policy:  policy,
		logger:  logger,
		now:     core.NowMillis,
		running: make(map[string]context.CancelFunc),
	}
}

var terminalTables = []string{store.TableTerminalSessions, store.TableTerminalCommands}

func (r *Terminal) ObserveActive(ctx context.Context) <-chan core.Result[[]core.TerminalSession] {
	return observe(ctx, r.store, terminalTables, func(ctx context.Context) ([]core.TerminalSession, error) {
		return r.ListSessions(ctx, true)
	})
}

func (r *Terminal) ObserveSession(ctx context.Context, id string) <-chan core.Result[*core.TerminalSession] {
	return observe(ctx, r.store, terminalTables, func(ctx context.Context) (*core.TerminalSession, error) {
		s, err := r.GetSession(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &s, nil
	})
}

func (r *Terminal) ListSessions(ctx context.Context, activeOnly bool) ([]core.TerminalSession, error) {
	rows, err := r.store.ListSessionRows(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	return decodeAll(rows, func(row store.SessionRow) (core.TerminalSession, error) {
		return r.load(ctx, row)
	}, r.policy, r.logger)
}

func (r *Terminal) GetSession(ctx context.Context, id string) (core.TerminalSession, error) {
	row, err := r.store.GetSessionRow(ctx, id)
	if err != nil {
		return core.TerminalSession{}, err
	}
	return r.load(ctx, row)
}

func (r *Terminal) load(ctx context.Context, row store.SessionRow) (core.TerminalSession, error) {
	history, err := r.store.ListCommands(ctx, row.ID)
	if err != nil {
		return core.TerminalSession{}, err
	}
	if r.policy == core.PolicyDefault {
		s, err := store.SessionFromRowLenient(row, history)
		if err != nil {
			r.logger.Warn("substituted defaults in malformed session", "session_id", row.ID, "err", err)
		}
		return s, nil
	}
	return store.SessionFromRow(row, history)
}

// CreateSession opens a session in workingDirectory, or the home directory when empty.
func (r *Terminal) CreateSession(ctx context.Context, name, workingDirectory string) (core.TerminalSession, error) {
	if strings.TrimSpace(name) == "" {
		name = "Terminal"
	}
	if workingDirectory == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = r.store.StateDir
		}
		workingDirectory = home
	}
	dir, err := resolveDir("", workingDirectory)
	if err != nil {
		return core.TerminalSession{}, err
	}
	now := r.now()
	s := core.TerminalSession{
		ID:               core.NewID(),
		Name:             name,
		IsActive:         true,
		WorkingDirectory: dir,
		Environment:      map[string]string{},
		CreatedAt:        now,
		LastUsedAt:       now,
	}
	if err := r.store.InsertSession(ctx, s); err != nil {
		return core.TerminalSession{}, err
	}
	return s, nil
}

func (r *Terminal) CloseSession(ctx context.Context, id string) error {
	r.kill(id)
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return err
	}
	s.IsActive = false
	s.LastUsedAt = r.now()
	return r.store.UpdateSession(ctx, s)
}

// DeleteSession removes the session and its history. Unknown ids are ignored.
func (r *Terminal) DeleteSession(ctx context.Context, id string) error {
	r.kill(id)
	_, err := r.store.DeleteSession(ctx, id)
	return err
}

// ExecuteCommand runs command in the session and records it. The cd builtin changes the
// session directory without spawning a process.
func (r *Terminal) ExecuteCommand(ctx context.Context, id, command string) (core.TerminalCommand, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return core.TerminalCommand{}, core.Invalid("command", "must not be blank")
	}
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return core.TerminalCommand{}, err
	}
	if !s.IsActive {
		return core.TerminalCommand{}, core.Invalid("session", "session is closed")
	}

	started := r.now()
	cmd := core.TerminalCommand{
		ID:               core.NewID(),
		Command:          command,
		WorkingDirectory: s.WorkingDirectory,
		Timestamp:        started,
	}

	var (
		runErr error
		newDir string
	)
	if target, ok := parseCD(command); ok {
		dir, err := resolveDir(s.WorkingDirectory, target)
		if err != nil {
			cmd.ExitCode = 1
			cmd.ErrorOutput = err.Error()
		} else {
			newDir = dir
		}
	} else {
		runCtx, cancel := context.WithCancel(ctx)
		if !r.claim(id, cancel) {
			cancel()
			return core.TerminalCommand{}, fmt.Errorf("session %s: %w", id, core.ErrTaskRunning)
		}
		outcome, err := r.exec.Run(runCtx, core.ScriptRequest{
			Script:     command,
			Type:       core.TaskTypeShell,
			WorkingDir: s.WorkingDirectory,
			Env:        s.Environment,
			Timeout:    commandTimeout,
		})
		r.release(id)
		cancel()
		cmd.ExitCode = outcome.ExitCode
		cmd.Output = outcome.Stdout
		cmd.ErrorOutput = outcome.Stderr
		if err != nil {
			runErr = err
			cmd.ErrorOutput = appendLine(cmd.ErrorOutput, err.Error())
			if cmd.ExitCode == 0 {
				cmd.ExitCode = -1
			}
		}
	}
	end := r.now()
	cmd.ExecutionTime = end.Sub(started).Milliseconds()
	cmd.IsSuccess = cmd.ExitCode == 0 && runErr == nil

	// The command may have run for minutes; apply its effects to the current session state.
	persistCtx := context.WithoutCancel(ctx)
	current, err := r.GetSession(persistCtx, id)
	if err != nil {
		return cmd, err
	}
	if newDir != "" {
		current.WorkingDirectory = newDir
	}
	current.Output = appendTranscript(current.Output, cmd)
	current.LastUsedAt = end
	if err := r.store.AppendCommand(persistCtx, current, cmd); err != nil {
		return cmd, err
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return cmd, fmt.Errorf("run command: %w", runErr)
	}
	return cmd, nil
}

// ExecuteCommandWithRoot is not provided: the daemon never elevates privileges itself.
func (r *Terminal) ExecuteCommandWithRoot(ctx context.Context, id, command string) (core.TerminalCommand, error) {
	return core.TerminalCommand{}, fmt.Errorf("root terminal commands: %w", core.ErrNotImplemented)
}

// KillProcess stops the command running in the session, if any.
func (r *Terminal) KillProcess(ctx context.Context, id string) error {
	if _, err := r.store.GetSessionRow(ctx, id); err != nil {
		return err
	}
	r.kill(id)
	return nil
}

// IsRootAvailable reports false because ExecuteCommandWithRoot is not provided.
func (r *Terminal) IsRootAvailable() bool {
	return false
}

func (r *Terminal) History(ctx context.Context, id string) ([]core.TerminalCommand, error) {
	if _, err := r.store.GetSessionRow(ctx, id); err != nil {
		return nil, err
	}
	history, err := r.store.ListCommands(ctx, id)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []core.TerminalCommand{}
	}
	return history, nil
}

func (r *Terminal) ClearHistory(ctx context.Context, id string) error {
	if _, err := r.store.GetSessionRow(ctx, id); err != nil {
		return err
	}
	return r.store.ClearCommands(ctx, id)
}

func (r *Terminal) ClearOutput(ctx context.Context, id string) error {
	return r.mutate(ctx, id, func(s *core.TerminalSession) error {
		s.Output = ""
		return nil
	})
}

func (r *Terminal) ChangeWorkingDirectory(ctx context.Context, id, dir string) error {
	return r.mutate(ctx, id, func(s *core.TerminalSession) error {
		resolved, err := resolveDir(s.WorkingDirectory, dir)
		if err != nil {
			return err
		}
		s.WorkingDirectory = resolved
		return nil
	})
}

func (r *Terminal) Environment(ctx context.Context, id string) (map[string]string, error) {
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	env := make(map[string]string, len(s.Environment))
	for k, v := range s.Environment {
		env[k] = v
	}
	return env, nil
}

func (r *Terminal) SetEnvironmentVariable(ctx context.Context, id, key, value string) error {
	if key == "" || strings.ContainsAny(key, "= \t\n") {
		return core.Invalid("key", "must be a non-empty name without '=' or whitespace")
	}
	return r.mutate(ctx, id, func(s *core.TerminalSession) error {
		if s.Environment == nil {
			s.Environment = map[string]string{}
		}
		s.Environment[key] = value
		return nil
	})
}

// SaveAsScript writes the session's successful commands as a shell script under the
// scripts directory and returns its path.
func (r *Terminal) SaveAsScript(ctx context.Context, id, fileName string) (string, error) {
	name := filepath.Base(strings.TrimSpace(fileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", core.Invalid("fileName", "must name a file")
	}
	if filepath.Ext(name) == "" {
		name += ".sh"
	}
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "# saved from session %q\n", s.Name)
	fmt.Fprintf(&b, "cd %s || exit 1\n", shellQuote(firstDirectory(s)))
	for _, c := range s.History {
		if !c.IsSuccess {
			continue
		}
		b.WriteString(c.Command)
		b.WriteByte('\n')
	}
	dir := r.store.ScriptsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scripts dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o755); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}
	r.logger.Info("session saved as script", "session_id", id, "path", path)
	return path, nil
}

// Export writes the session and its history as JSON or YAML.
func (r *Terminal) Export(ctx context.Context, id, format string) ([]byte, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := encodeDocument(ToSessionDocument(s), format)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return data, nil
}

func (r *Terminal) mutate(ctx context.Context, id string, fn func(*core.TerminalSession) error) error {
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(&s); err != nil {
		return err
	}
	s.LastUsedAt = r.now()
	return r.store.UpdateSession(ctx, s)
}

func (r *Terminal) claim(id string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.running[id]; busy {
		return false
	}
	r.running[id] = cancel
	return true
}

func (r *Terminal) release(id string) {
	r.mu.Lock()
	delete(r.running, id)
	r.mu.Unlock()
}

func (r *Terminal) kill(id string) {
	r.mu.Lock()
	cancel := r.running[id]
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// parseCD recognizes "cd" and "cd <dir>". Anything more complex goes to the shell.
func parseCD(command string) (string, bool) {
	fields := strings.Fields(command)
	if len(fields) == 0 || fields[0] != "cd" || len(fields) > 2 {
		return "", false
	}
	if len(fields) == 1 {
		return "~", true
	}
	if strings.ContainsAny(fields[1], "&|;$`") {
		return "", false
	}
	return fields[1], true
}

func resolveDir(base, dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", core.Invalid("workingDirectory", "home directory is unknown")
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	if !filepath.IsAbs(dir) {
		if base == "" {
			abs, err := filepath.Abs(dir)
			if err != nil {
				return "", core.Invalid("workingDirectory", err.Error())
			}
			dir = abs
		} else {
			dir = filepath.Join(base, dir)
		}
	}
	dir = filepath.Clean(dir)
	info, err := os.Stat(dir)
	if err != nil {
		return "", core.Invalid("workingDirectory", fmt.Sprintf("cd: %s: no such directory", dir))
	}
	if !info.IsDir() {
		return "", core.Invalid("workingDirectory", fmt.Sprintf("cd: %s: not a directory", dir))
	}
	return dir, nil
}

// appendTranscript adds the command and its output to the transcript and keeps the last
// core.TerminalBufferSize characters.
func appendTranscript(transcript string, cmd core.TerminalCommand) string {
	var b strings.Builder
	b.WriteString(transcript)
	b.WriteString("$ ")
	b.WriteString(cmd.Command)
	b.WriteByte('\n')
	for _, part := range []string{cmd.Output, cmd.ErrorOutput} {
		if part == "" {
			continue
		}
		b.WriteString(part)
		if !strings.HasSuffix(part, "\n") {
			b.WriteByte('\n')
		}
	}
	out := b.String()
	if runes := []rune(out); len(runes) > core.TerminalBufferSize {
		out = string(runes[len(runes)-core.TerminalBufferSize:])
	}
	return out
}

func firstDirectory(s core.TerminalSession) string {
	if len(s.History) > 0 {
		return s.History[0].WorkingDirectory
	}
	return s.WorkingDirectory
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
