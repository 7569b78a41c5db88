package core

import "fmt"

// TaskStatus is the state of a single execution.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusFailed    TaskStatus = "FAILED"
	TaskStatusCancelled TaskStatus = "CANCELLED"
	TaskStatusTimeout   TaskStatus = "TIMEOUT"
)

// ParseTaskStatus returns the TaskStatus with the given canonical name.
func ParseTaskStatus(name string) (TaskStatus, error) {
	switch s := TaskStatus(name); s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusTimeout:
		return s, nil
	default:
		return "", fmt.Errorf("unknown task status %q", name)
	}
}

// IsTerminal reports whether no further transition is allowed from s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusTimeout:
		return true
	}
	return false
}

// CanTransitionTo reports whether PENDING -> RUNNING -> {terminal} allows moving from s to next.
// A pending execution may also be cancelled or fail before it starts running.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusRunning || next == TaskStatusCancelled || next == TaskStatusFailed
	case TaskStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// Transition validates a status change and returns the new status.
func (s TaskStatus) Transition(next TaskStatus) (TaskStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%s -> %s: %w", s, next, ErrInvalidTransition)
	}
	return next, nil
}
