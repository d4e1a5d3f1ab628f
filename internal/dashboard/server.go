// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dashboard serves the local control surface of a session over HTTP.
//
// The dashboard is the headless rendition of the export UI: JSON state, job
// commands, the download history and the onboarding flag. Commands are rate
// limited per client and restart requires an explicit confirmation.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuGH/snapexport/internal/history"
	"github.com/ManuGH/snapexport/internal/job"
	xglog "github.com/ManuGH/snapexport/internal/log"
	"github.com/ManuGH/snapexport/internal/session"
	"github.com/ManuGH/snapexport/internal/settings"
	"github.com/ManuGH/snapexport/internal/view"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Session is the session surface the dashboard drives.
type Session interface {
	State() session.State
	Select(sel job.Selection)
	Selection() job.Selection
	Start(ctx context.Context, sel job.Selection) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Restart(ctx context.Context, outputPath string) error
	History(ctx context.Context, page int) (history.View, error)
	RetryHealth()
	Renderer() *view.Renderer
	Settings() *settings.Store
}

// Config configures the dashboard server.
type Config struct {
	ListenAddr   string
	CommandLimit int // commands per minute per client
	Service      string
}

const shutdownTimeout = 10 * time.Second

// Server is the dashboard HTTP server.
type Server struct {
	cfg    Config
	sess   Session
	router chi.Router
	logger zerolog.Logger
}

// New builds the dashboard for sess.
func New(sess Session, cfg Config) *Server {
	if cfg.CommandLimit <= 0 {
		cfg.CommandLimit = 30
	}
	if cfg.Service == "" {
		cfg.Service = "snapexport-dashboard"
	}
	s := &Server{
		cfg:    cfg,
		sess:   sess,
		logger: xglog.WithComponent("dashboard"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(securityHeaders)
	r.Use(observe)

	r.Get("/", s.handleIndex)
	r.Get("/onboarding", s.handleOnboardingPage)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/history", s.handleHistory)
		r.Get("/onboarding", s.handleOnboardingGet)
		r.Post("/onboarding", s.handleOnboardingSet)
		r.Post("/select", s.handleSelect)

		r.Group(func(r chi.Router) {
			r.Use(commandRateLimit(s.cfg.CommandLimit, time.Minute))
			r.Post("/start", s.handleStart)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/restart", s.handleRestart)
			r.Post("/health/retry", s.handleRetry)
		})
	})
	return r
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return tracing(s.cfg.Service)(s.router)
}

// Serve listens on the configured address until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str(xglog.FieldEvent, "dashboard.listening").
			Str("addr", s.cfg.ListenAddr).
			Msg("dashboard listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("dashboard server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("dashboard shutdown: %w", err)
		}
		return <-errCh
	}
}
