// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package feed

import (
	"context"
	"sync"

	"github.com/ManuGH/snapexport/internal/failures"
	xglog "github.com/ManuGH/snapexport/internal/log"
	platformnet "github.com/ManuGH/snapexport/internal/platform/net"
	"github.com/ManuGH/snapexport/internal/progress"
	"github.com/rs/zerolog"
)

// OpenerFactory returns the opener for a backend base URL.
type OpenerFactory func(baseURL string) Opener

// State describes one feed for status reporting.
type State struct {
	Active bool   `json:"active"`
	Reason string `json:"reason,omitempty"`
}

// Status describes both feeds.
type Status struct {
	BaseURL  string `json:"baseURL"`
	Progress State  `json:"progress"`
	Errors   State  `json:"errors"`
}

// Manager keeps exactly one progress and one error subscription per endpoint.
type Manager struct {
	ctx      context.Context
	factory  OpenerFactory
	progress *progress.Store
	failures *failures.Store
	logger   zerolog.Logger

	mu       sync.Mutex
	baseURL  string
	progSub  *Subscription
	errSub   *Subscription
	isClosed bool
}

// NewManager creates a manager whose subscriptions live at most as long as ctx.
func NewManager(ctx context.Context, factory OpenerFactory, prog *progress.Store, fails *failures.Store) *Manager {
	return &Manager{
		ctx:      ctx,
		factory:  factory,
		progress: prog,
		failures: fails,
		logger:   xglog.WithComponentFromContext(ctx, "feed"),
	}
}

// Attach subscribes both feeds on baseURL. Attaching the current endpoint again is a
// no-op; a different endpoint tears the old subscriptions down first and drops the
// failure set reported by the old backend.
func (m *Manager) Attach(baseURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isClosed || (baseURL == m.baseURL && m.progSub != nil) {
		return
	}
	changed := m.baseURL != "" && m.baseURL != baseURL
	m.closeLocked()
	if changed {
		m.failures.Clear()
		m.logger.Info().
			Str(xglog.FieldEvent, "feed.endpoint_changed").
			Str(xglog.FieldBaseURL, platformnet.SanitizeURL(baseURL)).
			Msg("endpoint changed, re-subscribing")
	}
	m.baseURL = baseURL
	open := m.factory(baseURL)
	m.progSub = SubscribeProgress(m.ctx, open, m.progress)
	m.errSub = SubscribeErrors(m.ctx, open, m.failures)
}

// Detach tears both subscriptions down and forgets the endpoint, dropping the
// failure set it reported. Once Detach returns no message of the old endpoint is
// applied. Attach subscribes again.
func (m *Manager) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.baseURL == "" {
		return
	}
	m.closeLocked()
	m.failures.Clear()
	m.logger.Info().
		Str(xglog.FieldEvent, "feed.detached").
		Str(xglog.FieldBaseURL, platformnet.SanitizeURL(m.baseURL)).
		Msg("endpoint unavailable, feeds detached")
	m.baseURL = ""
}

// Reopen opens a fresh progress subscription when the previous one ended on a
// done message. A feed that ended on a disconnection or a malformed message stays
// closed, and the error feed is never reopened.
func (m *Manager) Reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isClosed || m.baseURL == "" || m.progSub == nil {
		return
	}
	if m.progSub.Active() || m.progSub.Err() != nil {
		return
	}
	m.progSub = SubscribeProgress(m.ctx, m.factory(m.baseURL), m.progress)
}

// Status reports the current endpoint and feed states.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		BaseURL:  m.baseURL,
		Progress: stateOf(m.progSub),
		Errors:   stateOf(m.errSub),
	}
}

// Close tears down all subscriptions and waits for them to exit. It is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	m.isClosed = true
	subs := []*Subscription{m.progSub, m.errSub}
	m.closeLocked()
	m.mu.Unlock()

	for _, s := range subs {
		if s != nil {
			<-s.Done()
		}
	}
}

func (m *Manager) closeLocked() {
	if m.progSub != nil {
		m.progSub.Close()
		m.progSub = nil
	}
	if m.errSub != nil {
		m.errSub.Close()
		m.errSub = nil
	}
}

func stateOf(s *Subscription) State {
	if s == nil {
		return State{}
	}
	st := State{Active: s.Active()}
	if !st.Active {
		if err := s.Err(); err != nil {
			st.Reason = err.Error()
		} else {
			st.Reason = "completed"
		}
	}
	return st
}
