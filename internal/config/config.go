// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads and hot-reloads the client configuration.
//
// Precedence is ENV > YAML file > defaults. A Holder keeps the active configuration
// and notifies listeners when the file changes; a changed backend address is what
// the session treats as an endpoint change.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// AppConfig is the complete client configuration.
type AppConfig struct {
	Version   string          `yaml:"-"`
	DataDir   string          `yaml:"dataDir"`
	Locale    string          `yaml:"locale"`
	Backend   BackendConfig   `yaml:"backend"`
	Health    HealthConfig    `yaml:"health"`
	History   HistoryConfig   `yaml:"history"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BackendConfig describes how the export backend is reached.
type BackendConfig struct {
	// DefaultURL is used when no port can be discovered from the host.
	DefaultURL string `yaml:"defaultURL"`
	// Host is the loopback host combined with a discovered port.
	Host string `yaml:"host"`
	// Port is a port handed over by the desktop shell (0 = not provided).
	Port int `yaml:"port"`
	// PortFile is a file the desktop shell writes the backend port into.
	PortFile string `yaml:"portFile"`
	// Timeout bounds request/response calls. Streams are not bounded by it.
	Timeout time.Duration `yaml:"timeout"`
	// CommandRate caps job commands per second sent to the backend.
	CommandRate float64 `yaml:"commandRate"`
}

// HealthConfig controls the backend readiness guard.
type HealthConfig struct {
	Interval         time.Duration `yaml:"interval"`
	FailureThreshold int           `yaml:"failureThreshold"`
}

// HistoryConfig controls the download history paginator.
type HistoryConfig struct {
	PageSize int `yaml:"pageSize"`
}

// DashboardConfig controls the local web dashboard.
type DashboardConfig struct {
	ListenAddr   string `yaml:"listenAddr"`
	CommandLimit int    `yaml:"commandLimit"` // commands per minute per client
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // http, grpc
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

const (
	DefaultBackendURL       = "http://127.0.0.1:8000"
	DefaultBackendHost      = "127.0.0.1"
	DefaultBackendTimeout   = 30 * time.Second
	DefaultCommandRate      = 5.0
	DefaultHealthInterval   = time.Second
	DefaultFailureThreshold = 30
	DefaultPageSize         = 20
	DefaultListenAddr       = "127.0.0.1:8470"
	DefaultCommandLimit     = 30
	DefaultLocale           = "fr"
)

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir: defaultDataDir(),
		Locale:  DefaultLocale,
		Backend: BackendConfig{
			DefaultURL:  DefaultBackendURL,
			Host:        DefaultBackendHost,
			Timeout:     DefaultBackendTimeout,
			CommandRate: DefaultCommandRate,
		},
		Health: HealthConfig{
			Interval:         DefaultHealthInterval,
			FailureThreshold: DefaultFailureThreshold,
		},
		History: HistoryConfig{PageSize: DefaultPageSize},
		Dashboard: DashboardConfig{
			ListenAddr:   DefaultListenAddr,
			CommandLimit: DefaultCommandLimit,
		},
		Log: LogConfig{Level: "info", Service: "snapexport"},
		Telemetry: TelemetryConfig{
			Exporter:     "http",
			Endpoint:     "localhost:4318",
			SamplingRate: 1.0,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "snapexport")
	}
	return filepath.Join(home, ".snapexport")
}
