// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session owns one client session against the export backend.
//
// A session resolves the backend endpoint, guards on backend health, keeps exactly
// one progress feed and one error feed attached, and exposes the job commands and
// the download history. The shared stores are owned here and handed to every
// component explicitly.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/ManuGH/snapexport/internal/backend"
	"github.com/ManuGH/snapexport/internal/config"
	"github.com/ManuGH/snapexport/internal/endpoint"
	"github.com/ManuGH/snapexport/internal/failures"
	"github.com/ManuGH/snapexport/internal/feed"
	"github.com/ManuGH/snapexport/internal/history"
	"github.com/ManuGH/snapexport/internal/host"
	"github.com/ManuGH/snapexport/internal/job"
	xglog "github.com/ManuGH/snapexport/internal/log"
	"github.com/ManuGH/snapexport/internal/progress"
	"github.com/ManuGH/snapexport/internal/settings"
	"github.com/ManuGH/snapexport/internal/view"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotConnected is returned by backend operations before the endpoint is bound.
	ErrNotConnected = errors.New("session: backend not connected")
	// ErrBackendFailed is returned by AwaitReady once the health guard gave up.
	ErrBackendFailed = errors.New("session: backend did not become ready")
)

// Option configures a Session.
type Option func(*Session)

// WithHolder makes the session follow configuration reloads. A changed backend
// address re-resolves the endpoint and re-attaches the feeds.
func WithHolder(h *config.Holder) Option {
	return func(s *Session) { s.holder = h }
}

// WithCapabilities overrides the host capabilities derived from configuration.
func WithCapabilities(caps host.Capabilities) Option {
	return func(s *Session) {
		s.caps = caps
		s.capsSet = true
	}
}

// WithGuardOptions passes options to every health guard the session creates.
func WithGuardOptions(opts ...endpoint.GuardOption) Option {
	return func(s *Session) { s.guardOpts = append(s.guardOpts, opts...) }
}

// WithID sets the session id stamped on logs, command contexts and traces. New
// generates one otherwise.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithPreparer sets how selected export files are prepared before upload.
func WithPreparer(p job.FilePreparer) Option {
	return func(s *Session) { s.jobOpts = append(s.jobOpts, job.WithPreparer(p)) }
}

// binding is the backend of one resolved endpoint.
type binding struct {
	addr   endpoint.Address
	client *backend.Client
	guard  *endpoint.Guard
	cancel context.CancelFunc
}

// Session is one client session.
type Session struct {
	id        string
	holder    *config.Holder
	caps      host.Capabilities
	capsSet   bool
	guardOpts []endpoint.GuardOption
	jobOpts   []job.Option
	logger    zerolog.Logger

	progress *progress.Store
	failures *failures.Store
	settings *settings.Store
	feeds    *feed.Manager
	jobs     *job.Controller
	history  *history.Paginator

	ctx    context.Context
	cancel context.CancelFunc

	// attachMu orders feed attach and detach against binding swaps.
	attachMu sync.Mutex

	mu       sync.RWMutex
	cfg      config.AppConfig
	bind     *binding
	renderer *view.Renderer
	closed   bool
}

// New creates an unbound session. Call Connect or Run to resolve the backend.
func New(cfg config.AppConfig, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		progress: progress.NewStore(),
		failures: failures.NewStore(),
		settings: settings.NewStore(cfg.DataDir),
		cfg:      cfg,
		renderer: view.NewRenderer(cfg.Locale),
	}
	for _, opt := range opts {
		opt(s)
	}
	ctx, cancel := context.WithCancel(xglog.ContextWithSessionID(context.Background(), s.id))
	s.ctx, s.cancel = ctx, cancel
	s.logger = xglog.WithComponentFromContext(ctx, "session")
	if !s.capsSet {
		s.caps = host.FromConfig(cfg.Backend, "")
	}

	remote := currentBackend{s: s}
	s.feeds = feed.NewManager(ctx, s.openerFor, s.progress, s.failures)
	s.jobs = job.NewController(remote, s.progress, s.jobOpts...)
	s.history = history.NewPaginator(remote, cfg.History.PageSize)
	return s
}

// Connect resolves the endpoint and binds a backend client and health guard to it.
// Resolution happens once; later calls return the bound address.
func (s *Session) Connect(ctx context.Context) endpoint.Address {
	s.mu.RLock()
	if s.bind != nil {
		addr := s.bind.addr
		s.mu.RUnlock()
		return addr
	}
	cfg := s.cfg
	caps := s.caps
	s.mu.RUnlock()

	addr := endpoint.NewResolver(caps, cfg.Backend.Host, cfg.Backend.DefaultURL).Resolve(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bind == nil {
		s.bind = s.newBinding(addr, cfg)
	}
	return s.bind.addr
}

func (s *Session) newBinding(addr endpoint.Address, cfg config.AppConfig) *binding {
	client := backend.New(addr.BaseURL, backend.Options{
		Timeout:     cfg.Backend.Timeout,
		CommandRate: cfg.Backend.CommandRate,
	})
	return &binding{
		addr:   addr,
		client: client,
		guard:  endpoint.NewGuard(client, cfg.Health.Interval, cfg.Health.FailureThreshold, s.guardOpts...),
		cancel: func() {},
	}
}

func (s *Session) current() (*binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bind == nil {
		return nil, ErrNotConnected
	}
	return s.bind, nil
}

// openerFor is the feed manager's opener factory. It reuses the bound client when
// the base URL matches.
func (s *Session) openerFor(baseURL string) feed.Opener {
	s.mu.RLock()
	b := s.bind
	cfg := s.cfg
	s.mu.RUnlock()
	if b != nil && b.addr.BaseURL == baseURL {
		return feed.BackendOpener(b.client)
	}
	return feed.BackendOpener(backend.New(baseURL, backend.Options{Timeout: cfg.Backend.Timeout}))
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// scoped tags ctx with the session id so command logs and requests correlate.
func (s *Session) scoped(ctx context.Context) context.Context {
	return xglog.ContextWithSessionID(ctx, s.id)
}

// Config returns the configuration the session currently runs with.
func (s *Session) Config() config.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Address returns the bound address, or ErrNotConnected.
func (s *Session) Address() (endpoint.Address, error) {
	b, err := s.current()
	if err != nil {
		return endpoint.Address{}, err
	}
	return b.addr, nil
}

// Health reports the backend guard state. An unbound session is waiting.
func (s *Session) Health() endpoint.HealthStatus {
	b, err := s.current()
	if err != nil {
		return endpoint.HealthStatus{State: endpoint.HealthWaiting}
	}
	return b.guard.Status()
}

// RetryHealth is the manual retry after the guard has failed.
func (s *Session) RetryHealth() {
	if b, err := s.current(); err == nil {
		b.guard.Retry()
	}
}

// WaitReady blocks until the backend passed its health check or ctx is done.
func (s *Session) WaitReady(ctx context.Context) error {
	b, err := s.current()
	if err != nil {
		return err
	}
	return b.guard.WaitReady(ctx)
}

// AwaitReady is WaitReady for one-shot callers: it also returns ErrBackendFailed as
// soon as the guard reaches the failed state.
func (s *Session) AwaitReady(ctx context.Context) error {
	b, err := s.current()
	if err != nil {
		return err
	}
	changes := b.guard.Watch()
	for {
		switch b.guard.Status().State {
		case endpoint.HealthReady:
			return nil
		case endpoint.HealthFailed:
			return ErrBackendFailed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.guard.Ready():
			return nil
		case <-changes:
		}
	}
}

// Renderer returns the text renderer for the configured locale.
func (s *Session) Renderer() *view.Renderer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.renderer
}

// Progress returns the progress store.
func (s *Session) Progress() *progress.Store { return s.progress }

// Failures returns the failed-file store.
func (s *Session) Failures() *failures.Store { return s.failures }

// Settings returns the persisted client-local state.
func (s *Session) Settings() *settings.Store { return s.settings }

// Feeds reports the feed subscriptions.
func (s *Session) Feeds() feed.Status { return s.feeds.Status() }

// Selection returns the held job configuration.
func (s *Session) Selection() job.Selection { return s.jobs.Selection() }

// Select replaces the held job configuration.
func (s *Session) Select(sel job.Selection) { s.jobs.Select(sel) }

// Start submits sel as a new export job.
func (s *Session) Start(ctx context.Context, sel job.Selection) error {
	return s.jobs.Start(s.scoped(ctx), sel)
}

// Pause pauses the running job.
func (s *Session) Pause(ctx context.Context) error { return s.jobs.Pause(s.scoped(ctx)) }

// Resume resumes a paused job, or starts the held selection when idle.
func (s *Session) Resume(ctx context.Context) error { return s.jobs.Resume(s.scoped(ctx)) }

// Restart resets the job on the backend and reopens the progress feed if it ended
// on done, so the next push (normally idle) reaches the stores.
func (s *Session) Restart(ctx context.Context, outputPath string) error {
	if err := s.jobs.Restart(s.scoped(ctx), outputPath); err != nil {
		return err
	}
	s.attachMu.Lock()
	s.feeds.Reopen()
	s.attachMu.Unlock()
	return nil
}

// History loads the zero-based page and returns the paginator view.
func (s *Session) History(ctx context.Context, page int) (history.View, error) {
	cfg := s.Config()
	if _, err := s.history.LoadPage(s.scoped(ctx), page, cfg.History.PageSize); err != nil {
		return history.View{}, err
	}
	return s.history.View(), nil
}

// Close stops the feeds and every background loop. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.bind != nil {
		s.bind.cancel()
	}
	s.mu.Unlock()

	s.cancel()
	s.feeds.Close()

	if b, err := s.current(); err == nil {
		b.client.CloseIdleConnections()
	}
}
