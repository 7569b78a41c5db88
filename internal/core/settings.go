package core

import "fmt"

// AppTheme is the UI theme preference.
type AppTheme string

const (
	ThemeLight  AppTheme = "LIGHT"
	ThemeDark   AppTheme = "DARK"
	ThemeAmoled AppTheme = "AMOLED"
	ThemeSystem AppTheme = "SYSTEM"
)

// ParseAppTheme returns the AppTheme with the given canonical name.
func ParseAppTheme(name string) (AppTheme, error) {
	switch t := AppTheme(name); t {
	case ThemeLight, ThemeDark, ThemeAmoled, ThemeSystem:
		return t, nil
	default:
		return "", fmt.Errorf("unknown theme %q", name)
	}
}

// NotificationSettings controls which task events produce notifications.
type NotificationSettings struct {
	Enabled          bool
	ShowTaskComplete bool
	ShowTaskFailed   bool
	ShowTaskStarted  bool
}

// Allows reports whether a notification of type t should be recorded.
func (n NotificationSettings) Allows(t NotificationType) bool {
	if !n.Enabled {
		return false
	}
	switch t {
	case NotificationTaskStarted:
		return n.ShowTaskStarted
	case NotificationTaskCompleted:
		return n.ShowTaskComplete
	case NotificationTaskFailed, NotificationTaskCancelled:
		return n.ShowTaskFailed
	}
	return true
}

// DashboardSettings controls dashboard refresh and history depth.
type DashboardSettings struct {
	RefreshInterval int64
	MaxDataPoints   int
}

// AppSettings is the aggregated preference view.
type AppSettings struct {
	Theme            AppTheme
	AccentColor      string
	Language         string
	AutoStartEnabled bool
	BaseDirectory    string
	Notifications    NotificationSettings
	Dashboard        DashboardSettings
}

// DefaultSettings returns the settings used before anything was stored.
func DefaultSettings() AppSettings {
	return AppSettings{
		Theme:       ThemeSystem,
		AccentColor: "#FF6200EE",
		Language:    "en",
		Notifications: NotificationSettings{
			Enabled:          true,
			ShowTaskComplete: true,
			ShowTaskFailed:   true,
		},
		Dashboard: DashboardSettings{
			RefreshInterval: 5000,
			MaxDataPoints:   100,
		},
	}
}
