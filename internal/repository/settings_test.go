package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcron/internal/core"
)

func TestSettingsDefaults(t *testing.T) {
	f := newFixture(t, core.PolicyFail)

	got, err := f.settings.Get(context.Background())
	require.NoError(t, err)
	want := core.DefaultSettings()
	want.BaseDirectory = f.store.StateDir
	assert.Equal(t, want, got)
}

func TestSettingsUpdateAndReset(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()

	s := core.AppSettings{
		Theme:            core.ThemeAmoled,
		AccentColor:      "#FF00FF00",
		Language:         "de",
		AutoStartEnabled: true,
		BaseDirectory:    "/srv/scripts",
		Notifications:    core.NotificationSettings{Enabled: true, ShowTaskStarted: true},
		Dashboard:        core.DashboardSettings{RefreshInterval: 1000, MaxDataPoints: 50},
	}
	require.NoError(t, f.settings.Update(ctx, s))

	got, err := f.settings.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	bad := s
	bad.Theme = "NEON"
	assert.ErrorIs(t, f.settings.Update(ctx, bad), core.ErrValidation)
	bad = s
	bad.Dashboard.MaxDataPoints = -1
	assert.ErrorIs(t, f.settings.Update(ctx, bad), core.ErrValidation)

	require.NoError(t, f.settings.Reset(ctx))
	got, err = f.settings.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.ThemeSystem, got.Theme)
	assert.Equal(t, f.store.StateDir, got.BaseDirectory)
}

func TestSettingsTypedValues(t *testing.T) {
	f := newFixture(t, core.PolicyFail)
	ctx := context.Background()

	v, err := f.settings.GetString(ctx, "custom", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	require.NoError(t, f.settings.SetInt(ctx, "retries", 4))
	n, err := f.settings.GetInt(ctx, "retries", 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, f.settings.SetBool(ctx, KeyAutoStart, true))
	b, err := f.settings.GetBool(ctx, KeyAutoStart, false)
	require.NoError(t, err)
	assert.True(t, b)

	// Unparseable values read back as the default.
	require.NoError(t, f.settings.SetString(ctx, KeyNotifyEnabled, "maybe"))
	b, err = f.settings.GetBool(ctx, KeyNotifyEnabled, true)
	require.NoError(t, err)
	assert.True(t, b)
	n, err = f.settings.GetInt(ctx, KeyNotifyEnabled, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	s, err := f.settings.Get(ctx)
	require.NoError(t, err)
	assert.True(t, s.Notifications.Enabled)

	require.NoError(t, f.settings.SetString(ctx, KeyTheme, "NEON"))
	s, err = f.settings.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.ThemeSystem, s.Theme)

	assert.ErrorIs(t, f.settings.SetString(ctx, "", "x"), core.ErrValidation)
}
