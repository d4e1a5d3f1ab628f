// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment keys consumed by the loader.
const (
	EnvBackendURL       = "SNAPEXPORT_BACKEND_URL"
	EnvBackendHost      = "SNAPEXPORT_BACKEND_HOST"
	EnvBackendPort      = "SNAPEXPORT_BACKEND_PORT"
	EnvBackendPortFile  = "SNAPEXPORT_BACKEND_PORT_FILE"
	EnvBackendTimeout   = "SNAPEXPORT_BACKEND_TIMEOUT"
	EnvCommandRate      = "SNAPEXPORT_COMMAND_RATE"
	EnvHealthInterval   = "SNAPEXPORT_HEALTH_INTERVAL"
	EnvHealthThreshold  = "SNAPEXPORT_HEALTH_THRESHOLD"
	EnvPageSize         = "SNAPEXPORT_PAGE_SIZE"
	EnvListen           = "SNAPEXPORT_LISTEN"
	EnvCommandLimit     = "SNAPEXPORT_COMMAND_LIMIT"
	EnvDataDir          = "SNAPEXPORT_DATA"
	EnvLocale           = "SNAPEXPORT_LOCALE"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogService       = "LOG_SERVICE"
	EnvTelemetryEnabled = "SNAPEXPORT_TELEMETRY_ENABLED"
	EnvTelemetryExport  = "SNAPEXPORT_TELEMETRY_EXPORTER"
	EnvTelemetryTarget  = "SNAPEXPORT_TELEMETRY_ENDPOINT"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty configPath means ENV + defaults.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path the loader reads, if any.
func (l *Loader) Path() string {
	return l.configPath
}

// Load loads configuration with precedence: ENV > File > Defaults, then validates it.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		if err := l.mergeFile(&cfg, l.configPath); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// mergeFile decodes the YAML file on top of cfg. Unknown keys are rejected.
func (l *Loader) mergeFile(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.Backend.DefaultURL = l.envString(EnvBackendURL, cfg.Backend.DefaultURL)
	cfg.Backend.Host = l.envString(EnvBackendHost, cfg.Backend.Host)
	cfg.Backend.Port = l.envInt(EnvBackendPort, cfg.Backend.Port)
	cfg.Backend.PortFile = l.envString(EnvBackendPortFile, cfg.Backend.PortFile)
	cfg.Backend.Timeout = l.envDuration(EnvBackendTimeout, cfg.Backend.Timeout)
	cfg.Backend.CommandRate = l.envFloat(EnvCommandRate, cfg.Backend.CommandRate)

	cfg.Health.Interval = l.envDuration(EnvHealthInterval, cfg.Health.Interval)
	cfg.Health.FailureThreshold = l.envInt(EnvHealthThreshold, cfg.Health.FailureThreshold)

	cfg.History.PageSize = l.envInt(EnvPageSize, cfg.History.PageSize)

	cfg.Dashboard.ListenAddr = l.envString(EnvListen, cfg.Dashboard.ListenAddr)
	cfg.Dashboard.CommandLimit = l.envInt(EnvCommandLimit, cfg.Dashboard.CommandLimit)

	cfg.DataDir = l.envString(EnvDataDir, cfg.DataDir)
	cfg.Locale = l.envString(EnvLocale, cfg.Locale)

	cfg.Log.Level = l.envString(EnvLogLevel, cfg.Log.Level)
	cfg.Log.Service = l.envString(EnvLogService, cfg.Log.Service)

	cfg.Telemetry.Enabled = l.envBool(EnvTelemetryEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvTelemetryExport, cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvTelemetryTarget, cfg.Telemetry.Endpoint)
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}
