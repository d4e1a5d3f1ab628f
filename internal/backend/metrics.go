// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapexport_backend_request_total",
			Help: "Total number of backend requests",
		},
		[]string{"operation", "status_class"},
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapexport_backend_request_duration_seconds",
			Help:    "Duration of backend requests",
			Buckets: prometheus.ExponentialBuckets(0.005, 2.0, 10),
		},
		[]string{"operation", "status_class"},
	)
	requestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapexport_backend_request_errors_total",
			Help: "Number of backend requests that failed",
		},
		[]string{"operation", "status_class"},
	)
	streamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapexport_backend_stream_events_total",
			Help: "Server-sent events received per stream",
		},
		[]string{"stream"},
	)
)

func statusClass(err error, status int) string {
	if err != nil {
		return "error"
	}
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	case status > 0:
		return "1xx"
	}
	return "unknown"
}

func recordRequestMetrics(op string, status int, duration time.Duration, err error) {
	class := statusClass(err, status)
	requestTotal.WithLabelValues(op, class).Inc()
	requestDuration.WithLabelValues(op, class).Observe(duration.Seconds())
	if class != "2xx" {
		requestErrors.WithLabelValues(op, class).Inc()
	}
}
