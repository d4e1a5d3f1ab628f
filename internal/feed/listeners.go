// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package feed

import (
	"context"

	"github.com/ManuGH/snapexport/internal/backend"
	"github.com/ManuGH/snapexport/internal/failures"
	"github.com/ManuGH/snapexport/internal/progress"
	"github.com/ManuGH/snapexport/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Feed names.
const (
	NameProgress = "progress"
	NameErrors   = "errors"
)

// applySpan starts the span of one applied feed message.
func applySpan(feed string) trace.Span {
	_, span := telemetry.Tracer("snapexport.feed").Start(context.Background(), "feed."+feed+".apply",
		trace.WithSpanKind(trace.SpanKindConsumer))
	return span
}

func malformed(span trace.Span, err error) {
	span.SetAttributes(telemetry.ErrorAttributes("malformed_message")...)
	span.SetStatus(codes.Error, err.Error())
}

// ProgressHandler replaces the progress record with every pushed message and stops
// once the job is done.
func ProgressHandler(store *progress.Store) Handler {
	return func(data []byte) (bool, error) {
		span := applySpan(NameProgress)
		defer span.End()

		rec, err := progress.Decode(data)
		if err != nil {
			malformed(span, err)
			return false, err
		}
		span.SetAttributes(telemetry.ProgressAttributes(string(rec.Status), rec.Downloaded, rec.Total)...)
		store.Apply(rec)
		return rec.Status.Terminal(), nil
	}
}

// FailuresHandler replaces the failure set with every pushed snapshot.
func FailuresHandler(store *failures.Store) Handler {
	return func(data []byte) (bool, error) {
		span := applySpan(NameErrors)
		defer span.End()

		set, err := failures.Decode(data)
		if err != nil {
			malformed(span, err)
			return false, err
		}
		span.SetAttributes(attribute.Int(telemetry.FailedFilesKey, len(set)))
		store.Replace(set)
		return false, nil
	}
}

// SubscribeProgress opens the progress feed.
func SubscribeProgress(ctx context.Context, open Opener, store *progress.Store) *Subscription {
	return Subscribe(ctx, NameProgress, backend.PathProgressStream, open, ProgressHandler(store))
}

// SubscribeErrors opens the error feed.
func SubscribeErrors(ctx context.Context, open Opener, store *failures.Store) *Subscription {
	return Subscribe(ctx, NameErrors, backend.PathErrorStream, open, FailuresHandler(store))
}
