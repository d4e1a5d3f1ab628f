// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoader_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader("", "v1.0.0").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.0.0", cfg.Version)
	assert.Equal(t, DefaultBackendURL, cfg.Backend.DefaultURL)
	assert.Equal(t, DefaultBackendHost, cfg.Backend.Host)
	assert.Equal(t, time.Second, cfg.Health.Interval)
	assert.Equal(t, 30, cfg.Health.FailureThreshold)
	assert.Equal(t, 20, cfg.History.PageSize)
	assert.Equal(t, "fr", cfg.Locale)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
}

func TestLoader_FileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
backend:
  defaultURL: http://127.0.0.1:9000
  port: 8123
  timeout: 10s
history:
  pageSize: 50
locale: en
`)
	t.Setenv(EnvPageSize, "25")

	l := NewLoader(path, "dev")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9000", cfg.Backend.DefaultURL)
	assert.Equal(t, 8123, cfg.Backend.Port)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 25, cfg.History.PageSize, "ENV wins over file")
	assert.Equal(t, "en", cfg.Locale)
	assert.Contains(t, l.ConsumedEnvKeys, EnvPageSize)
}

func TestLoader_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "backend:\n  baseUrl: http://x\n")
	_, err := NewLoader(path, "dev").Load()
	require.Error(t, err)
}

func TestLoader_InvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv(EnvHealthThreshold, "many")
	cfg, err := NewLoader("", "dev").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultFailureThreshold, cfg.Health.FailureThreshold)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"bad scheme", func(c *AppConfig) { c.Backend.DefaultURL = "ftp://127.0.0.1:8000" }},
		{"empty host", func(c *AppConfig) { c.Backend.Host = " " }},
		{"port out of range", func(c *AppConfig) { c.Backend.Port = 70000 }},
		{"zero interval", func(c *AppConfig) { c.Health.Interval = 0 }},
		{"zero page size", func(c *AppConfig) { c.History.PageSize = 0 }},
		{"bad listen", func(c *AppConfig) { c.Dashboard.ListenAddr = "nope" }},
		{"bad locale", func(c *AppConfig) { c.Locale = "de" }},
		{"bad exporter", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	require.NoError(t, Validate(Defaults()))
}

func TestHolder_ReloadNotifiesListeners(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "backend:\n  port: 8123\n")
	loader := NewLoader(path, "dev")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	writeConfig(t, dir, "backend:\n  port: 9001\n")
	require.NoError(t, h.Reload(context.Background()))

	select {
	case got := <-ch:
		assert.Equal(t, 9001, got.Backend.Port)
		assert.True(t, EndpointChanged(initial, got))
	default:
		t.Fatal("listener was not notified")
	}
	assert.Equal(t, 9001, h.Get().Backend.Port)
}

func TestHolder_ReloadFailureKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "backend:\n  port: 8123\n")
	loader := NewLoader(path, "dev")
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	writeConfig(t, dir, "backend:\n  port: -4\n")
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 8123, h.Get().Backend.Port)
}

func TestHolder_WatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "backend:\n  port: 8123\n")
	loader := NewLoader(path, "dev")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	ch := make(chan AppConfig, 4)
	h.RegisterListener(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))

	require.NoError(t, os.WriteFile(path, []byte("backend:\n  port: 8124\n"), 0600))

	select {
	case got := <-ch:
		assert.Equal(t, 8124, got.Backend.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload config")
	}
}

func TestHolder_StartWatcherWithoutFileIsNoop(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader("", "dev"))
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
