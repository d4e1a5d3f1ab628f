// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package job

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "snapexport_job_commands_total",
	Help: "Job commands issued by the client",
}, []string{"command", "result"}) // result: ok|rejected|unavailable|skipped|error

func observeCommand(command, result string) {
	commandsTotal.WithLabelValues(command, result).Inc()
}
