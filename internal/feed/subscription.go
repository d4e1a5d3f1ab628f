// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package feed runs the long-lived backend event subscriptions (progress and error
// feeds) and applies their messages to the session stores.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ManuGH/snapexport/internal/backend"
	xglog "github.com/ManuGH/snapexport/internal/log"
	"github.com/rs/zerolog"
)

// ErrClosed is the end reason of a subscription closed by its owner.
var ErrClosed = errors.New("feed: subscription closed")

// Events is an open event stream.
type Events interface {
	Next() (backend.Event, error)
	Close() error
}

// Opener opens the stream at path.
type Opener func(ctx context.Context, path string) (Events, error)

// BackendOpener opens streams on a backend client.
func BackendOpener(c *backend.Client) Opener {
	return func(ctx context.Context, path string) (Events, error) {
		return c.OpenStream(ctx, path)
	}
}

// Handler applies one message. stop ends the subscription normally; an error ends
// it as a contract violation.
type Handler func(data []byte) (stop bool, err error)

// Subscription is the handle of one running feed. It is never reconnected: once
// Done is closed, a new subscription has to be opened.
type Subscription struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
	events Events
	err    error

	closeOnce sync.Once
}

// Subscribe opens path and applies every message with handle, in arrival order,
// until a handler stops it, the stream ends, or Close is called.
func Subscribe(ctx context.Context, name, path string, open Opener, handle Handler) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: xglog.WithComponentFromContext(ctx, "feed").With().Str(xglog.FieldFeed, name).Logger(),
	}
	activeSubscriptions.WithLabelValues(name).Inc()
	go s.run(ctx, path, open, handle)
	return s
}

func (s *Subscription) run(ctx context.Context, path string, open Opener, handle Handler) {
	defer func() {
		s.cancel()
		activeSubscriptions.WithLabelValues(s.name).Dec()
		close(s.done)
	}()

	events, err := open(ctx, path)
	if err != nil {
		s.finish(fmt.Errorf("open %s: %w", path, err))
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = events.Close()
		return
	}
	s.events = events
	s.mu.Unlock()
	s.logger.Info().Str(xglog.FieldEvent, "feed.opened").Msg("subscription opened")

	for {
		ev, err := events.Next()
		if err != nil {
			s.finish(err)
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		stop, herr := handle(ev.Data)
		if herr != nil || stop {
			s.closed = true
			s.err = herr
		}
		s.mu.Unlock()

		if herr != nil {
			s.logger.Error().Err(herr).Str(xglog.FieldEvent, "feed.malformed").Msg("malformed message, closing subscription")
			_ = events.Close()
			return
		}
		messagesApplied.WithLabelValues(s.name).Inc()
		if stop {
			s.logger.Info().Str(xglog.FieldEvent, "feed.completed").Msg("terminal message received, closing subscription")
			_ = events.Close()
			return
		}
	}
}

// finish records why the stream ended on its own and releases it.
func (s *Subscription) finish(err error) {
	s.mu.Lock()
	wasClosed := s.closed
	s.closed = true
	events := s.events
	if !wasClosed {
		s.err = err
	}
	s.mu.Unlock()

	if events != nil {
		_ = events.Close()
	}
	if wasClosed {
		return
	}
	s.logger.Warn().Err(err).Str(xglog.FieldEvent, "feed.disconnected").Msg("stream ended, not reconnecting")
}

// Close tears the subscription down. Once it returns no further message is
// applied. It is safe to call any number of times.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		already := s.closed
		s.closed = true
		if !already {
			s.err = ErrClosed
		}
		events := s.events
		s.mu.Unlock()

		s.cancel()
		if events != nil {
			_ = events.Close()
		}
		if !already {
			s.logger.Info().Str(xglog.FieldEvent, "feed.closed").Msg("subscription closed")
		}
	})
}

// Done is closed when the subscription goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Active reports whether messages are still being applied.
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Err returns why the subscription ended: nil after a terminal message, ErrClosed
// after Close, io.EOF or a transport error after a disconnection, or the decode
// error of a malformed message.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
