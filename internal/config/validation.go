// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks a fully merged configuration.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if u, err := url.Parse(cfg.Backend.DefaultURL); err != nil {
		add("backend.defaultURL: %v", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("backend.defaultURL: scheme must be http or https, got %q", u.Scheme)
	} else if u.Host == "" {
		add("backend.defaultURL: missing host")
	}
	if strings.TrimSpace(cfg.Backend.Host) == "" {
		add("backend.host: must not be empty")
	}
	if cfg.Backend.Port < 0 || cfg.Backend.Port > 65535 {
		add("backend.port: %d out of range", cfg.Backend.Port)
	}
	if cfg.Backend.Timeout <= 0 {
		add("backend.timeout: must be positive")
	}
	if cfg.Backend.CommandRate <= 0 {
		add("backend.commandRate: must be positive")
	}
	if cfg.Health.Interval <= 0 {
		add("health.interval: must be positive")
	}
	if cfg.Health.FailureThreshold <= 0 {
		add("health.failureThreshold: must be positive")
	}
	if cfg.History.PageSize <= 0 {
		add("history.pageSize: must be positive")
	}
	if _, _, err := net.SplitHostPort(cfg.Dashboard.ListenAddr); err != nil {
		add("dashboard.listenAddr: %v", err)
	}
	if cfg.Dashboard.CommandLimit <= 0 {
		add("dashboard.commandLimit: must be positive")
	}
	switch cfg.Locale {
	case "fr", "en":
	default:
		add("locale: unsupported %q (fr, en)", cfg.Locale)
	}
	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "http", "grpc":
		default:
			add("telemetry.exporter: unsupported %q (http, grpc)", cfg.Telemetry.Exporter)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
