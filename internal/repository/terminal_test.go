package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcron/internal/core"
)

func TestTerminalSessionLifecycle(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	dir := t.TempDir()

	s, err := f.terminal.CreateSession(ctx, "", dir)
	require.NoError(t, err)
	assert.Equal(t, "Terminal", s.Name)
	assert.True(t, s.IsActive)
	assert.Equal(t, dir, s.WorkingDirectory)

	_, err = f.terminal.CreateSession(ctx, "bad", filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, core.ErrValidation)

	active, err := f.terminal.ListSessions(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, f.terminal.CloseSession(ctx, s.ID))
	active, err = f.terminal.ListSessions(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = f.terminal.ExecuteCommand(ctx, s.ID, "ls")
	assert.ErrorIs(t, err, core.ErrValidation)

	require.NoError(t, f.terminal.DeleteSession(ctx, s.ID))
	require.NoError(t, f.terminal.DeleteSession(ctx, s.ID))
	_, err = f.terminal.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTerminalExecuteCommand(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	f.exec.outcomes = []core.ScriptOutcome{{ExitCode: 0, Stdout: "a.txt\n"}}

	s, err := f.terminal.CreateSession(ctx, "work", dir)
	require.NoError(t, err)
	require.NoError(t, f.terminal.SetEnvironmentVariable(ctx, s.ID, "FOO", "bar"))

	cd, err := f.terminal.ExecuteCommand(ctx, s.ID, "cd sub")
	require.NoError(t, err)
	assert.True(t, cd.IsSuccess)
	assert.Equal(t, dir, cd.WorkingDirectory)
	assert.Empty(t, f.exec.Requests(), "cd must not spawn a process")

	failed, err := f.terminal.ExecuteCommand(ctx, s.ID, "cd nowhere")
	require.NoError(t, err)
	assert.False(t, failed.IsSuccess)
	assert.Equal(t, 1, failed.ExitCode)
	assert.Contains(t, failed.ErrorOutput, "no such directory")

	ls, err := f.terminal.ExecuteCommand(ctx, s.ID, "ls")
	require.NoError(t, err)
	assert.True(t, ls.IsSuccess)
	assert.Equal(t, "a.txt\n", ls.Output)

	reqs := f.exec.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, filepath.Join(dir, "sub"), reqs[0].WorkingDir)
	assert.Equal(t, map[string]string{"FOO": "bar"}, reqs[0].Env)
	assert.Equal(t, core.TaskTypeShell, reqs[0].Type)

	got, err := f.terminal.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sub"), got.WorkingDirectory)
	require.Len(t, got.History, 3)
	assert.Equal(t, "cd sub", got.History[0].Command)
	assert.Equal(t, "ls", got.History[2].Command)
	assert.Contains(t, got.Output, "$ ls\na.txt\n")

	_, err = f.terminal.ExecuteCommand(ctx, s.ID, "   ")
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = f.terminal.ExecuteCommand(ctx, "missing", "ls")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTerminalCommandKeepsConcurrentSessionEdits(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	dir := t.TempDir()
	f.exec.block = true
	f.exec.started = make(chan struct{}, 1)

	s, err := f.terminal.CreateSession(ctx, "long", dir)
	require.NoError(t, err)

	done := make(chan core.TerminalCommand, 1)
	go func() {
		cmd, _ := f.terminal.ExecuteCommand(ctx, s.ID, "sleep 60")
		done <- cmd
	}()
	<-f.exec.started

	require.NoError(t, f.terminal.SetEnvironmentVariable(ctx, s.ID, "FOO", "bar"))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, f.terminal.ChangeWorkingDirectory(ctx, s.ID, sub))
	require.NoError(t, f.terminal.KillProcess(ctx, s.ID))
	cmd := <-done
	assert.False(t, cmd.IsSuccess)

	got, err := f.terminal.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"FOO": "bar"}, got.Environment)
	assert.Equal(t, sub, got.WorkingDirectory)
	require.Len(t, got.History, 1)
	assert.Contains(t, got.Output, "$ sleep 60")
}

func TestTerminalTranscriptIsCapped(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	f.exec.outcomes = []core.ScriptOutcome{{Stdout: strings.Repeat("x", 6000) + "\n"}}

	s, err := f.terminal.CreateSession(ctx, "noisy", t.TempDir())
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := f.terminal.ExecuteCommand(ctx, s.ID, "yes | head")
		require.NoError(t, err)
	}

	got, err := f.terminal.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, []rune(got.Output), core.TerminalBufferSize)
	assert.True(t, strings.HasSuffix(got.Output, "x\n"))

	require.NoError(t, f.terminal.ClearOutput(ctx, s.ID))
	got, err = f.terminal.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Output)
	assert.Len(t, got.History, 2)

	require.NoError(t, f.terminal.ClearHistory(ctx, s.ID))
	history, err := f.terminal.History(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTerminalEnvironment(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()

	s, err := f.terminal.CreateSession(ctx, "env", t.TempDir())
	require.NoError(t, err)
	require.NoError(t, f.terminal.SetEnvironmentVariable(ctx, s.ID, "PATH_EXTRA", "/opt/bin"))
	assert.ErrorIs(t, f.terminal.SetEnvironmentVariable(ctx, s.ID, "A=B", "x"), core.ErrValidation)

	env, err := f.terminal.Environment(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PATH_EXTRA": "/opt/bin"}, env)

	env["INJECTED"] = "1"
	again, err := f.terminal.Environment(ctx, s.ID)
	require.NoError(t, err)
	assert.NotContains(t, again, "INJECTED")
}

func TestTerminalChangeWorkingDirectory(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "logs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), nil, 0o644))

	s, err := f.terminal.CreateSession(ctx, "cd", dir)
	require.NoError(t, err)

	require.NoError(t, f.terminal.ChangeWorkingDirectory(ctx, s.ID, "logs"))
	got, err := f.terminal.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "logs"), got.WorkingDirectory)

	require.NoError(t, f.terminal.ChangeWorkingDirectory(ctx, s.ID, ".."))
	assert.ErrorIs(t, f.terminal.ChangeWorkingDirectory(ctx, s.ID, "file"), core.ErrValidation)
	assert.ErrorIs(t, f.terminal.ChangeWorkingDirectory(ctx, "missing", dir), core.ErrNotFound)

	got, err = f.terminal.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, dir, got.WorkingDirectory)
}

func TestTerminalSaveAsScriptAndExport(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()
	dir := t.TempDir()
	f.exec.outcomes = []core.ScriptOutcome{{ExitCode: 0}, {ExitCode: 2, Stderr: "boom"}}

	s, err := f.terminal.CreateSession(ctx, "deploy", dir)
	require.NoError(t, err)
	_, err = f.terminal.ExecuteCommand(ctx, s.ID, "make build")
	require.NoError(t, err)
	_, err = f.terminal.ExecuteCommand(ctx, s.ID, "make broken")
	require.NoError(t, err)

	path, err := f.terminal.SaveAsScript(ctx, s.ID, "../deploy")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.store.ScriptsDir(), "deploy.sh"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	script := string(data)
	assert.True(t, strings.HasPrefix(script, "#!/bin/sh\n"))
	assert.Contains(t, script, "cd '"+dir+"' || exit 1\n")
	assert.Contains(t, script, "make build\n")
	assert.NotContains(t, script, "make broken")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100)

	_, err = f.terminal.SaveAsScript(ctx, s.ID, "  ")
	assert.ErrorIs(t, err, core.ErrValidation)

	exported, err := f.terminal.Export(ctx, s.ID, FormatJSON)
	require.NoError(t, err)
	var doc SessionDocument
	require.NoError(t, json.Unmarshal(exported, &doc))
	assert.Equal(t, "deploy", doc.Name)
	require.Len(t, doc.History, 2)
	assert.Equal(t, 2, doc.History[1].ExitCode)
	assert.NotNil(t, doc.Environment)
}

func TestTerminalRootCommandsAreNotProvided(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()

	s, err := f.terminal.CreateSession(ctx, "root", t.TempDir())
	require.NoError(t, err)

	assert.False(t, f.terminal.IsRootAvailable())
	_, err = f.terminal.ExecuteCommandWithRoot(ctx, s.ID, "id")
	assert.ErrorIs(t, err, core.ErrNotImplemented)

	require.NoError(t, f.terminal.KillProcess(ctx, s.ID))
	assert.ErrorIs(t, f.terminal.KillProcess(ctx, "missing"), core.ErrNotFound)
}

func TestTerminalMalformedEnvironment(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()

	s, err := f.terminal.CreateSession(ctx, "broken", t.TempDir())
	require.NoError(t, err)
	_, err = f.store.DB.ExecContext(ctx, `UPDATE terminal_sessions SET environment = '[1,2' WHERE id = ?`, s.ID)
	require.NoError(t, err)

	_, err = f.terminal.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, core.ErrMalformedRecord)

	skip := NewTerminal(f.store, f.exec, core.PolicySkip, nil)
	list, err := skip.ListSessions(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, list)

	lenient := NewTerminal(f.store, f.exec, core.PolicyDefault, nil)
	got, err := lenient.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{}, got.Environment)
}
