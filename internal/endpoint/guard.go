// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package endpoint

import (
	"context"
	"sync"
	"time"

	xglog "github.com/ManuGH/snapexport/internal/log"
	"github.com/rs/zerolog"
)

// HealthState is the readiness of the backend as seen by the guard.
type HealthState string

const (
	HealthWaiting HealthState = "waiting"
	HealthReady   HealthState = "ready"
	HealthFailed  HealthState = "failed"
)

// HealthChecker checks backend liveness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// clock abstracts time operations for testability.
type clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithClock replaces the wall clock used between health checks.
func WithClock(c clock) GuardOption {
	return func(g *Guard) { g.clock = c }
}

// HealthStatus is a snapshot of the guard.
type HealthStatus struct {
	State    HealthState `json:"state"`
	Attempts int         `json:"attempts"`
}

// Guard polls the backend health route until it answers. Failures are retried
// silently on a fixed interval; once more than threshold consecutive checks have
// failed the state turns to failed while polling continues.
type Guard struct {
	check     HealthChecker
	interval  time.Duration
	threshold int
	clock     clock
	logger    zerolog.Logger

	mu       sync.Mutex
	state    HealthState
	failures int
	ready    chan struct{}
	retry    chan struct{}
	watchers []chan HealthStatus
}

// NewGuard creates a guard in the waiting state.
func NewGuard(check HealthChecker, interval time.Duration, threshold int, opts ...GuardOption) *Guard {
	if interval <= 0 {
		interval = time.Second
	}
	if threshold <= 0 {
		threshold = 30
	}
	g := &Guard{
		check:     check,
		interval:  interval,
		threshold: threshold,
		clock:     realClock{},
		logger:    xglog.WithComponent("health"),
		state:     HealthWaiting,
		ready:     make(chan struct{}),
		retry:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run polls until the backend is ready or ctx is canceled. After Retry it starts
// over, so Run only returns on ctx cancellation.
func (g *Guard) Run(ctx context.Context) error {
	for {
		if err := g.poll(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.retry:
		}
	}
}

func (g *Guard) poll(ctx context.Context) error {
	for {
		err := g.check.Health(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			g.markReady()
			return nil
		}
		g.markFailure(err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.clock.After(g.interval):
		}
	}
}

func (g *Guard) markReady() {
	g.mu.Lock()
	g.state = HealthReady
	g.failures = 0
	select {
	case <-g.ready:
	default:
		close(g.ready)
	}
	status := g.statusLocked()
	g.mu.Unlock()

	g.logger.Info().Str(xglog.FieldEvent, "health.ready").Msg("backend is ready")
	g.broadcast(status)
}

func (g *Guard) markFailure(err error) {
	g.mu.Lock()
	g.failures++
	changed := false
	if g.failures > g.threshold && g.state != HealthFailed {
		g.state = HealthFailed
		changed = true
	}
	status := g.statusLocked()
	g.mu.Unlock()

	if changed {
		g.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "health.failed").
			Int(xglog.FieldAttempts, status.Attempts).
			Msg("backend still unreachable")
		g.broadcast(status)
		return
	}
	g.logger.Debug().Err(err).Int(xglog.FieldAttempts, status.Attempts).Msg("waiting for backend")
}

// Retry resets the failure count and starts polling again. It is the manual reload
// action offered once the guard has failed.
func (g *Guard) Retry() {
	g.mu.Lock()
	if g.state == HealthReady {
		g.ready = make(chan struct{})
	}
	g.state = HealthWaiting
	g.failures = 0
	status := g.statusLocked()
	g.mu.Unlock()

	g.logger.Info().Str(xglog.FieldEvent, "health.retry").Msg("health polling restarted")
	g.broadcast(status)
	select {
	case g.retry <- struct{}{}:
	default:
	}
}

// Status returns the current state and consecutive failed attempts.
func (g *Guard) Status() HealthStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

func (g *Guard) statusLocked() HealthStatus {
	return HealthStatus{State: g.state, Attempts: g.failures}
}

// Ready returns a channel closed once the backend has answered.
func (g *Guard) Ready() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// WaitReady blocks until the backend is ready or ctx is done.
func (g *Guard) WaitReady(ctx context.Context) error {
	select {
	case <-g.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Watch returns a channel receiving state changes. Slow readers miss updates.
func (g *Guard) Watch() <-chan HealthStatus {
	ch := make(chan HealthStatus, 4)
	g.mu.Lock()
	g.watchers = append(g.watchers, ch)
	g.mu.Unlock()
	return ch
}

func (g *Guard) broadcast(s HealthStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ch := range g.watchers {
		select {
		case ch <- s:
		default:
		}
	}
}
