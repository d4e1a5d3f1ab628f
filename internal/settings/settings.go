// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package settings persists the small amount of client-local state: whether the
// onboarding walkthrough has been completed.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	xglog "github.com/ManuGH/snapexport/internal/log"
	"github.com/ManuGH/snapexport/internal/platform/paths"
	"github.com/google/renameio/v2"
)

// FileName is the state file inside the data directory.
const FileName = "state.json"

// State is the persisted client state.
type State struct {
	OnboardingDone bool `json:"onboardingDone"`
}

// Store reads and writes State under a data directory.
type Store struct {
	dataDir string
	path    string
	mu      sync.Mutex
}

// NewStore creates a store for dataDir.
func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir, path: filepath.Join(dataDir, FileName)}
}

// Path returns the state file path.
func (s *Store) Path() string { return s.path }

// Load returns the persisted state; a missing file is the zero State.
func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parse state %s: %w", s.path, err)
	}
	return st, nil
}

// SetOnboardingDone records whether onboarding is complete.
func (s *Store) SetOnboardingDone(ctx context.Context, done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		// a corrupt file is replaced rather than blocking the flag
		xglog.FromContext(ctx).Warn().Err(err).Str(xglog.FieldPath, s.path).Msg("replacing unreadable state file")
		st = State{}
	}
	st.OnboardingDone = done
	return s.writeLocked(ctx, st)
}

func (s *Store) writeLocked(ctx context.Context, st State) error {
	logger := xglog.FromContext(ctx)
	if err := os.MkdirAll(s.dataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	target, err := paths.DataFile(s.dataDir, FileName)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(target, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending state file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending state file")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace state file: %w", err)
	}
	logger.Info().
		Str(xglog.FieldEvent, "settings.saved").
		Str(xglog.FieldPath, s.path).
		Bool("onboarding_done", st.OnboardingDone).
		Msg("client state saved")
	return nil
}
