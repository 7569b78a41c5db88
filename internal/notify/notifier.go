package notify

import (
	"context"
	"errors"

	"tcron/internal/core"
)

// Message is what a Notifier delivers.
type Message struct {
	Title string
	Body  string
	// Level is a delivery hint: "active", "timeSensitive" or "passive".
	Level string
}

// Notifier delivers messages outside the process.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// FromNotification builds the outbound message for a stored notification.
func FromNotification(n core.AppNotification) Message {
	level := "active"
	switch n.Type {
	case core.NotificationTaskFailed, core.NotificationSystemError:
		level = "timeSensitive"
	case core.NotificationTaskStarted, core.NotificationSystemInfo:
		level = "passive"
	}
	return Message{Title: n.Title, Body: n.Message, Level: level}
}

// MultiNotifier combines multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send delivers to every notifier and joins their errors.
func (m *MultiNotifier) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoOpNotifier does nothing.
type NoOpNotifier struct{}

func (n NoOpNotifier) Send(ctx context.Context, msg Message) error {
	return nil
}
