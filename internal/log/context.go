// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"context"

	"github.com/rs/zerolog"
)

// correlation holds the ids stamped on every log line of one operation.
type correlation struct {
	sessionID string
	requestID string
}

type correlationKey struct{}

func correlationFrom(ctx context.Context) correlation {
	if ctx == nil {
		return correlation{}
	}
	c, _ := ctx.Value(correlationKey{}).(correlation)
	return c
}

func withCorrelation(ctx context.Context, update func(*correlation)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := correlationFrom(ctx)
	update(&c)
	return context.WithValue(ctx, correlationKey{}, c)
}

// ContextWithRequestID tags ctx with the id of one backend command or dashboard request.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.requestID = id })
}

// ContextWithSessionID tags ctx with the client session it runs in. The request id
// already on ctx is kept.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.sessionID = id })
}

// RequestIDFromContext returns the request id of ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	return correlationFrom(ctx).requestID
}

// SessionIDFromContext returns the session id of ctx, or "".
func SessionIDFromContext(ctx context.Context) string {
	return correlationFrom(ctx).sessionID
}

// WithContext adds the ids carried by ctx to logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	c := correlationFrom(ctx)
	if c == (correlation{}) {
		return logger
	}
	lc := logger.With()
	if c.sessionID != "" {
		lc = lc.Str(FieldSessionID, c.sessionID)
	}
	if c.requestID != "" {
		lc = lc.Str(FieldRequestID, c.requestID)
	}
	return lc.Logger()
}

// WithComponentFromContext is WithComponent plus the ids carried by ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}

// FromContext returns the logger attached to ctx with zerolog, or the base logger
// carrying the ids of ctx.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			return l
		}
	}
	l := WithContext(ctx, Base())
	return &l
}
