// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package endpoint determines the backend base URL for a session and gates dependents
// on backend readiness.
package endpoint

import (
	"context"
	"errors"
	"sync"

	"github.com/ManuGH/snapexport/internal/host"
	xglog "github.com/ManuGH/snapexport/internal/log"
	platformnet "github.com/ManuGH/snapexport/internal/platform/net"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrNotResolved is returned by Address before resolution has completed.
var ErrNotResolved = errors.New("endpoint: not resolved")

// Source tells where a resolved address came from.
type Source string

const (
	SourceDiscovered Source = "discovered"
	SourceDefault    Source = "default"
)

// Address is a resolved backend base URL.
type Address struct {
	BaseURL string
	Source  Source
}

// Resolver resolves the backend address exactly once. Concurrent callers share the
// single attempt; later calls return the cached result without retrying.
type Resolver struct {
	caps         host.Capabilities
	loopbackHost string
	defaultURL   string
	logger       zerolog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	resolved bool
	addr     Address
}

// NewResolver creates a resolver. loopbackHost is combined with a discovered port;
// defaultURL is the fallback when discovery is absent or fails.
func NewResolver(caps host.Capabilities, loopbackHost, defaultURL string) *Resolver {
	return &Resolver{
		caps:         caps,
		loopbackHost: loopbackHost,
		defaultURL:   defaultURL,
		logger:       xglog.WithComponent("endpoint"),
	}
}

// Resolve returns the session's backend address. It never fails: every discovery
// problem degrades to the default address.
func (r *Resolver) Resolve(ctx context.Context) Address {
	if addr, err := r.Address(); err == nil {
		return addr
	}
	v, _, _ := r.group.Do("resolve", func() (any, error) {
		if addr, err := r.Address(); err == nil {
			return addr, nil
		}
		addr := r.discover(ctx)
		r.mu.Lock()
		r.addr = addr
		r.resolved = true
		r.mu.Unlock()

		r.logger.Info().
			Str(xglog.FieldEvent, "endpoint.resolved").
			Str(xglog.FieldBaseURL, platformnet.SanitizeURL(addr.BaseURL)).
			Str("source", string(addr.Source)).
			Msg("backend endpoint resolved")
		return addr, nil
	})
	return v.(Address)
}

// Address returns the resolved address, or ErrNotResolved.
func (r *Resolver) Address() (Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.resolved {
		return Address{}, ErrNotResolved
	}
	return r.addr, nil
}

func (r *Resolver) discover(ctx context.Context) Address {
	fallback := Address{BaseURL: r.defaultBaseURL(), Source: SourceDefault}
	if !r.caps.SupportsPortDiscovery() {
		r.logger.Debug().Str(xglog.FieldEvent, "endpoint.discovery_unsupported").Msg("no port discovery capability, using default")
		return fallback
	}

	port, err := r.caps.DiscoverPort(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Str(xglog.FieldEvent, "endpoint.discovery_failed").Msg("port discovery failed, using default")
		return fallback
	}
	baseURL, err := platformnet.LoopbackBaseURL(r.loopbackHost, port)
	if err != nil {
		r.logger.Warn().Err(err).Str(xglog.FieldEvent, "endpoint.discovery_failed").Msg("discovered port unusable, using default")
		return fallback
	}
	if err := platformnet.CheckLoopback(ctx, baseURL); err != nil {
		r.logger.Warn().Err(err).Str(xglog.FieldEvent, "endpoint.discovery_failed").Msg("discovered address is not loopback, using default")
		return fallback
	}
	return Address{BaseURL: baseURL, Source: SourceDiscovered}
}

func (r *Resolver) defaultBaseURL() string {
	if u, err := platformnet.ParseBaseURL(r.defaultURL); err == nil {
		return u
	}
	return r.defaultURL
}
