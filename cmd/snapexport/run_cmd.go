// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"github.com/ManuGH/snapexport/internal/config"
	"github.com/ManuGH/snapexport/internal/dashboard"
	xglog "github.com/ManuGH/snapexport/internal/log"
	"github.com/ManuGH/snapexport/internal/session"
	"github.com/ManuGH/snapexport/internal/version"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCmd(o *options) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the session and the local dashboard until interrupted",
		Long: `Resolves the backend, keeps the progress and error feeds attached and serves
the dashboard. The config file is watched; SIGHUP forces a reload.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, loader, err := o.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Dashboard.ListenAddr = listen
			}
			holder := config.NewHolder(cfg, loader)
			defer holder.Stop()

			sess := session.New(cfg, session.WithHolder(holder))
			shutdown, err := startTelemetry(ctx, cfg, sess)
			if err != nil {
				return err
			}
			defer shutdown()
			srv := dashboard.New(sess, dashboard.Config{
				ListenAddr:   cfg.Dashboard.ListenAddr,
				CommandLimit: cfg.Dashboard.CommandLimit,
				Service:      cfg.Log.Service,
			})

			logger := xglog.WithComponent("cli")
			logger.Info().
				Str(xglog.FieldEvent, "session.starting").
				Str("listen", cfg.Dashboard.ListenAddr).
				Str("version", version.Version).
				Str(xglog.FieldSessionID, sess.ID()).
				Msg("starting snapexport")

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return sess.Run(gctx) })
			g.Go(func() error { return srv.Serve(gctx) })
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "dashboard listen address (overrides config)")
	return cmd
}
