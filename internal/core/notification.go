package core

import (
	"fmt"
	"time"
)

// NotificationType classifies an AppNotification.
type NotificationType string

const (
	NotificationTaskStarted   NotificationType = "TASK_STARTED"
	NotificationTaskCompleted NotificationType = "TASK_COMPLETED"
	NotificationTaskFailed    NotificationType = "TASK_FAILED"
	NotificationTaskCancelled NotificationType = "TASK_CANCELLED"
	NotificationSystemInfo    NotificationType = "SYSTEM_INFO"
	NotificationSystemWarning NotificationType = "SYSTEM_WARNING"
	NotificationSystemError   NotificationType = "SYSTEM_ERROR"
)

// ParseNotificationType returns the NotificationType with the given canonical name.
func ParseNotificationType(name string) (NotificationType, error) {
	switch n := NotificationType(name); n {
	case NotificationTaskStarted, NotificationTaskCompleted, NotificationTaskFailed, NotificationTaskCancelled,
		NotificationSystemInfo, NotificationSystemWarning, NotificationSystemError:
		return n, nil
	default:
		return "", fmt.Errorf("unknown notification type %q", name)
	}
}

// IsSystem reports whether the type is one of the SYSTEM_* kinds.
func (n NotificationType) IsSystem() bool {
	switch n {
	case NotificationSystemInfo, NotificationSystemWarning, NotificationSystemError:
		return true
	}
	return false
}

// AppNotification is an in-app notification. TaskID is a weak reference: the task may no longer exist.
type AppNotification struct {
	ID        string
	Title     string
	Message   string
	Type      NotificationType
	TaskID    *string
	IsRead    bool
	CreatedAt time.Time
	ReadAt    *time.Time
}

// NotificationSummary aggregates notification counts.
type NotificationSummary struct {
	TotalCount         int
	UnreadCount        int
	TaskCompletedCount int
	TaskFailedCount    int
	SystemCount        int
}

// Summarize computes a NotificationSummary over the given notifications.
func Summarize(notifications []AppNotification) NotificationSummary {
	var s NotificationSummary
	for _, n := range notifications {
		s.TotalCount++
		if !n.IsRead {
			s.UnreadCount++
		}
		switch {
		case n.Type == NotificationTaskCompleted:
			s.TaskCompletedCount++
		case n.Type == NotificationTaskFailed:
			s.TaskFailedCount++
		case n.Type.IsSystem():
			s.SystemCount++
		}
	}
	return s
}
