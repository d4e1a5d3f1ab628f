// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package progress holds the export progress record shared by the job controller and
// the progress feed.
package progress

import (
	"encoding/json"
	"fmt"
	"math"
)

// Status is the job state reported by the backend.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusDone    Status = "done"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusPaused, StatusDone:
		return true
	}
	return false
}

// Terminal reports whether s is done.
func (s Status) Terminal() bool { return s == StatusDone }

// Record is the progress of the export job.
type Record struct {
	Status     Status `json:"status"`
	Downloaded int64  `json:"downloaded"`
	Total      int64  `json:"total"`
	// ETA is HH:MM:SS, empty when unknown. A null from the backend decodes to "".
	ETA string `json:"eta"`
}

// Idle is the record a client starts with.
func Idle() Record {
	return Record{Status: StatusIdle}
}

// Percent is round(100 * downloaded / total), or 0 while total is unknown.
func (r Record) Percent() int {
	if r.Total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(r.Downloaded) / float64(r.Total)))
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("unknown status %q", r.Status)
	}
	if r.Downloaded < 0 || r.Total < 0 {
		return fmt.Errorf("negative counts %d/%d", r.Downloaded, r.Total)
	}
	if r.Total > 0 && r.Downloaded > r.Total {
		return fmt.Errorf("downloaded %d exceeds total %d", r.Downloaded, r.Total)
	}
	return nil
}

// Decode parses one progress message.
func Decode(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode progress: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Record{}, fmt.Errorf("decode progress: %w", err)
	}
	return r, nil
}

// CanTransition reports whether the client may optimistically move from one status
// to another. done is terminal; only a backend push after restart leaves it.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusIdle:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusPaused
	case StatusPaused:
		return to == StatusRunning
	}
	return false
}
