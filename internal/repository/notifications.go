package repository

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"tcron/internal/core"
	"tcron/internal/notify"
	"tcron/internal/store"
)

// Notifications implements core.NotificationRepository. Created notifications are also
// forwarded to an outbound notifier, such as Bark, when one is configured.
type Notifications struct {
	store    *store.Store
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
	timeout  time.Duration
}

var _ core.NotificationRepository = (*Notifications)(nil)

func NewNotifications(st *store.Store, notifier notify.Notifier, logger *slog.Logger) *Notifications {
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifications{
		store:    st,
		notifier: notifier,
		logger:   logger,
		now:      core.NowMillis,
		timeout:  15 * time.Second,
	}
}

func (r *Notifications) ObserveAll(ctx context.Context) <-chan core.Result[[]core.AppNotification] {
	return r.observeList(ctx, core.NotificationFilter{})
}

func (r *Notifications) ObserveUnread(ctx context.Context) <-chan core.Result[[]core.AppNotification] {
	return r.observeList(ctx, core.NotificationFilter{UnreadOnly: true})
}

func (r *Notifications) ObserveSummary(ctx context.Context) <-chan core.Result[core.NotificationSummary] {
	return observe(ctx, r.store, []string{store.TableNotifications}, r.Summary)
}

func (r *Notifications) observeList(ctx context.Context, filter core.NotificationFilter) <-chan core.Result[[]core.AppNotification] {
	return observe(ctx, r.store, []string{store.TableNotifications}, func(ctx context.Context) ([]core.AppNotification, error) {
		return r.List(ctx, filter)
	})
}

func (r *Notifications) List(ctx context.Context, filter core.NotificationFilter) ([]core.AppNotification, error) {
	list, err := r.store.ListNotifications(ctx, filter)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []core.AppNotification{}
	}
	return list, nil
}

func (r *Notifications) ByType(ctx context.Context, notificationType core.NotificationType) ([]core.AppNotification, error) {
	return r.List(ctx, core.NotificationFilter{Type: &notificationType})
}

func (r *Notifications) ByTask(ctx context.Context, taskID string) ([]core.AppNotification, error) {
	return r.List(ctx, core.NotificationFilter{TaskID: &taskID})
}

func (r *Notifications) Get(ctx context.Context, id string) (core.AppNotification, error) {
	return r.store.GetNotification(ctx, id)
}

func (r *Notifications) Summary(ctx context.Context) (core.NotificationSummary, error) {
	list, err := r.store.ListNotifications(ctx, core.NotificationFilter{})
	if err != nil {
		return core.NotificationSummary{}, err
	}
	return core.Summarize(list), nil
}

func (r *Notifications) Create(ctx context.Context, title, message string, notificationType core.NotificationType, taskID *string) (core.AppNotification, error) {
	if strings.TrimSpace(title) == "" {
		return core.AppNotification{}, core.Invalid("title", "must not be blank")
	}
	if _, err := core.ParseNotificationType(string(notificationType)); err != nil {
		return core.AppNotification{}, core.Invalid("type", err.Error())
	}
	n := core.AppNotification{
		ID:        core.NewID(),
		Title:     title,
		Message:   message,
		Type:      notificationType,
		TaskID:    taskID,
		CreatedAt: r.now(),
	}
	if err := r.store.InsertNotification(ctx, n); err != nil {
		return core.AppNotification{}, err
	}
	go r.forward(n)
	return n, nil
}

// forward pushes n to the outbound notifier. Failures are logged only; the stored
// notification is the source of truth.
func (r *Notifications) forward(n core.AppNotification) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.notifier.Send(ctx, notify.FromNotification(n)); err != nil {
		r.logger.Warn("forward notification", "notification_id", n.ID, "err", err)
	}
}

func (r *Notifications) MarkAsRead(ctx context.Context, id string) error {
	return r.store.MarkNotificationsRead(ctx, id, r.now())
}

func (r *Notifications) MarkAllAsRead(ctx context.Context) error {
	return r.store.MarkNotificationsRead(ctx, "", r.now())
}

// Delete removes one notification. Unknown ids are ignored.
func (r *Notifications) Delete(ctx context.Context, id string) error {
	if id == "" {
		return core.Invalid("id", "must not be blank")
	}
	_, err := r.store.DeleteNotifications(ctx, id, false)
	return err
}

func (r *Notifications) DeleteAll(ctx context.Context) error {
	_, err := r.store.DeleteNotifications(ctx, "", false)
	return err
}

func (r *Notifications) DeleteRead(ctx context.Context) error {
	_, err := r.store.DeleteNotifications(ctx, "", true)
	return err
}
