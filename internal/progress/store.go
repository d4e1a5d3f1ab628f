// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package progress

import (
	"sync"

	xglog "github.com/ManuGH/snapexport/internal/log"
	"github.com/rs/zerolog"
)

// Snapshot is a record with the store revision it was read at.
type Snapshot struct {
	Record
	Revision uint64 `json:"revision"`
}

// Store is the single progress record of a session. Writes are serialized; the most
// recently applied write wins.
type Store struct {
	mu       sync.Mutex
	rec      Record
	rev      uint64
	nextID   int
	watchers map[int]chan Snapshot
	logger   zerolog.Logger
}

// NewStore returns a store holding the idle record.
func NewStore() *Store {
	return &Store{
		rec:      Idle(),
		watchers: make(map[int]chan Snapshot),
		logger:   xglog.WithComponent("progress"),
	}
}

// Snapshot returns the current record.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Record: s.rec, Revision: s.rev}
}

// Apply replaces the record wholesale with an authoritative backend push.
func (s *Store) Apply(rec Record) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.rec.Status
	s.rec = rec
	snap := s.commitLocked()
	if old != rec.Status {
		s.logger.Info().
			Str(xglog.FieldEvent, "progress.applied").
			Str(xglog.FieldOldState, string(old)).
			Str(xglog.FieldNewState, string(rec.Status)).
			Uint64(xglog.FieldRevision, snap.Revision).
			Msg("progress status changed")
	}
	return snap
}

// Transition optimistically sets the status, keeping counts and ETA. It reports
// false and leaves the record untouched when the move is not allowed.
func (s *Store) Transition(to Status) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.rec.Status
	if !CanTransition(from, to) {
		return Snapshot{Record: s.rec, Revision: s.rev}, false
	}
	s.rec.Status = to
	snap := s.commitLocked()
	s.logger.Debug().
		Str(xglog.FieldEvent, "progress.optimistic").
		Str(xglog.FieldOldState, string(from)).
		Str(xglog.FieldNewState, string(to)).
		Uint64(xglog.FieldRevision, snap.Revision).
		Msg("optimistic transition")
	return snap, true
}

// Watch returns a channel that always holds the latest snapshot not yet read, and a
// function that stops the watch.
func (s *Store) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) commitLocked() Snapshot {
	s.rev++
	snap := Snapshot{Record: s.rec, Revision: s.rev}
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
	return snap
}
