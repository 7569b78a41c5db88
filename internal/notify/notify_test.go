package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcron/internal/core"
)

func TestBarkNotifierSend(t *testing.T) {
	var got url.Values
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		got = r.URL.Query()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBarkNotifier(srv.URL + "/device-key/")
	require.NoError(t, err)
	require.NoError(t, b.Send(context.Background(), Message{Title: "backup", Body: "done & dusted", Level: "passive"}))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "backup", got.Get("title"))
	assert.Equal(t, "done & dusted", got.Get("body"))
	assert.Equal(t, "tcron", got.Get("group"))
	assert.Equal(t, "passive", got.Get("level"))
}

func TestBarkNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	b, err := NewBarkNotifier(srv.URL)
	require.NoError(t, err)
	assert.Error(t, b.Send(context.Background(), Message{Title: "x"}))
}

func TestNewBarkNotifierRejectsEmpty(t *testing.T) {
	_, err := NewBarkNotifier("  ")
	assert.Error(t, err)
}

type recordingNotifier struct {
	sent []Message
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, msg Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func TestMultiNotifierDeliversToAll(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("down")}
	ok := &recordingNotifier{}
	m := NewMultiNotifier(failing, ok)

	err := m.Send(context.Background(), Message{Title: "t"})
	assert.ErrorContains(t, err, "down")
	assert.Len(t, failing.sent, 1)
	assert.Len(t, ok.sent, 1)
}

func TestFromNotificationLevel(t *testing.T) {
	assert.Equal(t, "timeSensitive", FromNotification(core.AppNotification{Type: core.NotificationTaskFailed}).Level)
	assert.Equal(t, "active", FromNotification(core.AppNotification{Type: core.NotificationTaskCompleted}).Level)
	assert.Equal(t, "passive", FromNotification(core.AppNotification{Type: core.NotificationSystemInfo}).Level)
}
