package core

import "time"

// TerminalSession is a named shell context with its own working directory and environment.
type TerminalSession struct {
	ID               string
	Name             string
	IsActive         bool
	WorkingDirectory string
	Environment      map[string]string
	History          []TerminalCommand
	Output           string
	CreatedAt        time.Time
	LastUsedAt       time.Time
}

// TerminalCommand is one command executed inside a session.
type TerminalCommand struct {
	ID               string
	Command          string
	WorkingDirectory string
	ExitCode         int
	Output           string
	ErrorOutput      string
	ExecutionTime    int64
	Timestamp        time.Time
	IsSuccess        bool
}

// TerminalBufferSize caps the characters kept in a session transcript.
const TerminalBufferSize = 10000
