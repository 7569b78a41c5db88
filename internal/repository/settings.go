package repository

import (
	"context"
	"strconv"
	"time"

	"tcron/internal/core"
	"tcron/internal/store"
)

// Preference keys of the aggregated settings view.
const (
	KeyTheme               = "theme"
	KeyAccentColor         = "accent_color"
	KeyLanguage            = "language"
	KeyAutoStart           = "auto_start_enabled"
	KeyBaseDirectory       = "base_directory"
	KeyNotifyEnabled       = "notifications_enabled"
	KeyNotifyComplete      = "notify_task_complete"
	KeyNotifyFailed        = "notify_task_failed"
	KeyNotifyStarted       = "notify_task_started"
	KeyDashboardRefresh    = "dashboard_refresh_interval"
	KeyDashboardDataPoints = "dashboard_max_data_points"
)

// Settings implements core.SettingsRepository over the preferences table.
type Settings struct {
	store    *store.Store
	defaults core.AppSettings
	now      func() time.Time
}

var _ core.SettingsRepository = (*Settings)(nil)

// NewSettings builds the settings repository. The default base directory is the state directory.
func NewSettings(st *store.Store) *Settings {
	defaults := core.DefaultSettings()
	defaults.BaseDirectory = st.StateDir
	return &Settings{store: st, defaults: defaults, now: core.NowMillis}
}

// Get assembles AppSettings from stored keys. Values that do not parse fall back to defaults.
func (r *Settings) Get(ctx context.Context) (core.AppSettings, error) {
	values, err := r.store.AllPreferences(ctx)
	if err != nil {
		return core.AppSettings{}, err
	}
	d := r.defaults
	s := core.AppSettings{
		Theme:            d.Theme,
		AccentColor:      stringValue(values, KeyAccentColor, d.AccentColor),
		Language:         stringValue(values, KeyLanguage, d.Language),
		AutoStartEnabled: boolValue(values, KeyAutoStart, d.AutoStartEnabled),
		BaseDirectory:    stringValue(values, KeyBaseDirectory, d.BaseDirectory),
		Notifications: core.NotificationSettings{
			Enabled:          boolValue(values, KeyNotifyEnabled, d.Notifications.Enabled),
			ShowTaskComplete: boolValue(values, KeyNotifyComplete, d.Notifications.ShowTaskComplete),
			ShowTaskFailed:   boolValue(values, KeyNotifyFailed, d.Notifications.ShowTaskFailed),
			ShowTaskStarted:  boolValue(values, KeyNotifyStarted, d.Notifications.ShowTaskStarted),
		},
		Dashboard: core.DashboardSettings{
			RefreshInterval: int64(intValue(values, KeyDashboardRefresh, int(d.Dashboard.RefreshInterval))),
			MaxDataPoints:   intValue(values, KeyDashboardDataPoints, d.Dashboard.MaxDataPoints),
		},
	}
	if raw, ok := values[KeyTheme]; ok {
		if theme, err := core.ParseAppTheme(raw); err == nil {
			s.Theme = theme
		}
	}
	return s, nil
}

func (r *Settings) Update(ctx context.Context, s core.AppSettings) error {
	if _, err := core.ParseAppTheme(string(s.Theme)); err != nil {
		return core.Invalid("theme", err.Error())
	}
	if s.Dashboard.RefreshInterval < 0 {
		return core.Invalid("dashboard.refreshInterval", "must be non-negative")
	}
	if s.Dashboard.MaxDataPoints < 0 {
		return core.Invalid("dashboard.maxDataPoints", "must be non-negative")
	}
	return r.store.SetPreferences(ctx, map[string]string{
		KeyTheme:               string(s.Theme),
		KeyAccentColor:         s.AccentColor,
		KeyLanguage:            s.Language,
		KeyAutoStart:           strconv.FormatBool(s.AutoStartEnabled),
		KeyBaseDirectory:       s.BaseDirectory,
		KeyNotifyEnabled:       strconv.FormatBool(s.Notifications.Enabled),
		KeyNotifyComplete:      strconv.FormatBool(s.Notifications.ShowTaskComplete),
		KeyNotifyFailed:        strconv.FormatBool(s.Notifications.ShowTaskFailed),
		KeyNotifyStarted:       strconv.FormatBool(s.Notifications.ShowTaskStarted),
		KeyDashboardRefresh:    strconv.FormatInt(s.Dashboard.RefreshInterval, 10),
		KeyDashboardDataPoints: strconv.Itoa(s.Dashboard.MaxDataPoints),
	}, r.now())
}

// Reset removes every stored preference.
func (r *Settings) Reset(ctx context.Context) error {
	return r.store.ClearPreferences(ctx)
}

func (r *Settings) GetString(ctx context.Context, key, def string) (string, error) {
	v, ok, err := r.store.GetPreference(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

func (r *Settings) SetString(ctx context.Context, key, value string) error {
	if key == "" {
		return core.Invalid("key", "must not be blank")
	}
	return r.store.SetPreferences(ctx, map[string]string{key: value}, r.now())
}

func (r *Settings) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := r.store.GetPreference(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, nil
	}
	return b, nil
}

func (r *Settings) SetBool(ctx context.Context, key string, value bool) error {
	return r.SetString(ctx, key, strconv.FormatBool(value))
}

func (r *Settings) GetInt(ctx context.Context, key string, def int) (int, error) {
	v, ok, err := r.store.GetPreference(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, nil
	}
	return i, nil
}

func (r *Settings) SetInt(ctx context.Context, key string, value int) error {
	return r.SetString(ctx, key, strconv.Itoa(value))
}

func stringValue(values map[string]string, key, def string) string {
	if v, ok := values[key]; ok {
		return v
	}
	return def
}

func boolValue(values map[string]string, key string, def bool) bool {
	if v, ok := values[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func intValue(values map[string]string, key string, def int) int {
	if v, ok := values[key]; ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
