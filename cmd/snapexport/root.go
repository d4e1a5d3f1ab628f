// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/snapexport/internal/config"
	xglog "github.com/ManuGH/snapexport/internal/log"
	"github.com/ManuGH/snapexport/internal/session"
	"github.com/ManuGH/snapexport/internal/telemetry"
	"github.com/ManuGH/snapexport/internal/version"
	"github.com/spf13/cobra"
)

const configFileName = "config.yaml"

// options are the global flags.
type options struct {
	configPath string
	output     string
	locale     string
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "snapexport",
		Short:         "Control a local Snapchat memories export",
		Long:          "snapexport resolves the local export backend, drives the export job and follows its progress.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", "", "config file (default is <dataDir>/"+configFileName+" when present)")
	root.PersistentFlags().StringVarP(&o.output, "output", "o", "text", "output format: text or json")
	root.PersistentFlags().StringVar(&o.locale, "locale", "", "override the display locale (fr, en)")

	root.AddCommand(
		newRunCmd(o),
		newStartCmd(o),
		newPauseCmd(o),
		newResumeCmd(o),
		newRestartCmd(o),
		newWatchCmd(o),
		newHistoryCmd(o),
		newResolveCmd(o),
		newOnboardingCmd(o),
	)
	return root
}

// loadConfig loads the configuration and configures logging from it. Without
// --config, <dataDir>/config.yaml is used when it exists.
func (o *options) loadConfig() (config.AppConfig, *config.Loader, error) {
	xglog.Configure(xglog.Config{Level: "warn", Service: "snapexport", Version: version.Version})

	path := strings.TrimSpace(o.configPath)
	if path == "" {
		dataDir := config.ParseString(config.EnvDataDir, config.Defaults().DataDir)
		auto := filepath.Join(dataDir, configFileName)
		if _, err := os.Stat(auto); err == nil {
			path = auto
		}
	}

	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	if o.locale != "" {
		cfg.Locale = o.locale
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.Log.Level,
		Service: cfg.Log.Service,
		Version: cfg.Version,
	})
	logger := xglog.WithComponent("cli")
	logger.Debug().
		Str(xglog.FieldEvent, "config.loaded").
		Str(xglog.FieldPath, path).
		Msg("configuration loaded")
	return cfg, loader, nil
}

// startTelemetry installs the tracer provider for session s; the returned func
// flushes it.
func startTelemetry(ctx context.Context, cfg config.AppConfig, s *session.Session) (func(), error) {
	tp, err := telemetry.NewProvider(ctx, telemetry.FromConfig(cfg.Telemetry, cfg.Version, s.ID()))
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger := xglog.WithComponent("cli")
			logger.Warn().Err(err).Str(xglog.FieldEvent, "telemetry.shutdown_failed").Msg("telemetry shutdown failed")
		}
	}, nil
}

// withSession runs fn against a running session and stops the session afterwards.
func (o *options) withSession(ctx context.Context, fn func(ctx context.Context, s *session.Session) error) error {
	cfg, _, err := o.loadConfig()
	if err != nil {
		return err
	}
	s := session.New(cfg)
	shutdown, err := startTelemetry(ctx, cfg, s)
	if err != nil {
		return err
	}
	defer shutdown()

	s.Connect(ctx)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.Run(runCtx) }()

	fnErr := s.AwaitReady(ctx)
	if fnErr == nil {
		fnErr = fn(ctx, s)
	}
	cancel()
	if err := <-done; err != nil && fnErr == nil {
		return err
	}
	return fnErr
}
