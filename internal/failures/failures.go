// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package failures keeps the backend-reported set of items that failed to export.
package failures

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Set maps an item filename to the reason it failed.
type Set map[string]string

// Names returns the failed filenames in sorted order.
func (s Set) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// Decode parses one error-feed message. The backend sends either an object of
// filename to reason, or a bare array of filenames.
func Decode(data []byte) (Set, error) {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("[")) {
		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			return nil, fmt.Errorf("decode failures: %w", err)
		}
		set := make(Set, len(names))
		for _, n := range names {
			set[n] = ""
		}
		return set, nil
	}
	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode failures: %w", err)
	}
	if set == nil {
		set = Set{}
	}
	return set, nil
}

// Snapshot is a copy of the set with the store revision.
type Snapshot struct {
	Items    Set    `json:"items"`
	Revision uint64 `json:"revision"`
}

// Store holds the current failure set. Every push replaces it wholesale.
type Store struct {
	mu       sync.Mutex
	set      Set
	rev      uint64
	nextID   int
	watchers map[int]chan Snapshot
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{set: Set{}, watchers: make(map[int]chan Snapshot)}
}

// Replace swaps the whole set.
func (s *Store) Replace(set Set) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = maps.Clone(set)
	if s.set == nil {
		s.set = Set{}
	}
	return s.commitLocked()
}

// Clear empties the set.
func (s *Store) Clear() Snapshot {
	return s.Replace(nil)
}

// Snapshot returns a copy of the current set.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Items: maps.Clone(s.set), Revision: s.rev}
}

// Watch returns a channel holding the latest unread snapshot and a stop function.
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
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- Snapshot{Items: maps.Clone(s.set), Revision: s.rev}
	}
	return Snapshot{Items: maps.Clone(s.set), Revision: s.rev}
}
