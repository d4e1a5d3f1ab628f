// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/snapexport/internal/config"
	"github.com/ManuGH/snapexport/internal/endpoint"
	"github.com/ManuGH/snapexport/internal/host"
	xglog "github.com/ManuGH/snapexport/internal/log"
	platformnet "github.com/ManuGH/snapexport/internal/platform/net"
	"github.com/ManuGH/snapexport/internal/view"
	"golang.org/x/sync/errgroup"
)

// Run connects the session and blocks until ctx is cancelled. It keeps the health
// guard polling, attaches the feeds once the backend is ready, and follows
// configuration reloads when a holder was given.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	s.Connect(ctx)
	s.mu.Lock()
	b := s.bind
	s.mu.Unlock()
	s.serve(ctx, g, b)

	if s.holder != nil {
		// Watcher is best-effort: the session runs fine on the startup config.
		if err := s.holder.StartWatcher(ctx); err != nil {
			s.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}

		applyCh := make(chan config.AppConfig, 1)
		s.holder.RegisterListener(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					s.apply(ctx, g, cfg)
				}
			}
		})

		g.Go(func() error {
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hup:
					s.logger.Info().Str(xglog.FieldEvent, "config.reload_signal").Msg("received reload signal, reloading config")
					if err := s.holder.Reload(ctx); err != nil {
						s.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.reload_failed").Msg("config reload failed")
					}
				}
			}
		})
	}

	<-ctx.Done()
	s.Close()
	return g.Wait()
}

// serve starts the guard of b and attaches the feeds to b once it is ready. Both
// loops stop when b is replaced or ctx ends.
func (s *Session) serve(ctx context.Context, g *errgroup.Group, b *binding) {
	bctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	b.cancel = cancel
	s.mu.Unlock()

	g.Go(func() error {
		if err := b.guard.Run(bctx); err != nil && bctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := b.guard.WaitReady(bctx); err != nil {
			return nil
		}
		s.attach(b)
		return nil
	})
}

// attach moves the feeds to b unless b was replaced while its guard was waiting.
func (s *Session) attach(b *binding) {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()
	s.mu.RLock()
	current := s.bind == b && !s.closed
	s.mu.RUnlock()
	if current {
		s.feeds.Attach(b.addr.BaseURL)
	}
}

// apply takes a reloaded configuration. A changed backend address starts a fresh
// resolution. The feeds of the old address are torn down at once and attached to
// the new one when its backend is ready.
func (s *Session) apply(ctx context.Context, g *errgroup.Group, cfg config.AppConfig) {
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	if cfg.Locale != old.Locale {
		s.renderer = view.NewRenderer(cfg.Locale)
	}
	caps := s.caps
	if !s.capsSet {
		caps = host.FromConfig(cfg.Backend, "")
		s.caps = caps
	}
	s.mu.Unlock()

	if !config.EndpointChanged(old, cfg) {
		return
	}

	addr := endpoint.NewResolver(caps, cfg.Backend.Host, cfg.Backend.DefaultURL).Resolve(ctx)

	s.mu.Lock()
	prev := s.bind
	if s.closed || (prev != nil && prev.addr.BaseURL == addr.BaseURL) {
		s.mu.Unlock()
		return
	}
	next := s.newBinding(addr, cfg)
	s.bind = next
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
	s.attachMu.Lock()
	s.feeds.Detach()
	s.attachMu.Unlock()
	if prev != nil {
		prev.client.CloseIdleConnections()
	}
	s.logger.Info().
		Str(xglog.FieldEvent, "session.endpoint_changed").
		Str(xglog.FieldBaseURL, platformnet.SanitizeURL(addr.BaseURL)).
		Msg("backend endpoint changed")
	s.serve(ctx, g, next)
}
