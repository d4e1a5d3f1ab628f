// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "snapexport_feed_subscriptions_active",
		Help: "Running feed subscriptions",
	}, []string{"feed"})

	messagesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapexport_feed_messages_applied_total",
		Help: "Feed messages handed to the session stores",
	}, []string{"feed"})
)
