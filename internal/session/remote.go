// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"

	"github.com/ManuGH/snapexport/internal/backend"
)

// currentBackend forwards job commands and history reads to the currently bound
// client once its health guard reports ready.
type currentBackend struct {
	s *Session
}

func (r currentBackend) ready(ctx context.Context) (*backend.Client, error) {
	b, err := r.s.current()
	if err != nil {
		return nil, err
	}
	if err := b.guard.WaitReady(ctx); err != nil {
		return nil, err
	}
	return b.client, nil
}

func (r currentBackend) Run(ctx context.Context, req backend.RunRequest) error {
	c, err := r.ready(ctx)
	if err != nil {
		return err
	}
	return c.Run(ctx, req)
}

func (r currentBackend) Pause(ctx context.Context) error {
	c, err := r.ready(ctx)
	if err != nil {
		return err
	}
	return c.Pause(ctx)
}

func (r currentBackend) Resume(ctx context.Context) error {
	c, err := r.ready(ctx)
	if err != nil {
		return err
	}
	return c.Resume(ctx)
}

func (r currentBackend) Restart(ctx context.Context, outputPath string) error {
	c, err := r.ready(ctx)
	if err != nil {
		return err
	}
	return c.Restart(ctx, outputPath)
}

func (r currentBackend) Downloads(ctx context.Context, offset, limit int) (backend.DownloadsPage, error) {
	c, err := r.ready(ctx)
	if err != nil {
		return backend.DownloadsPage{}, err
	}
	return c.Downloads(ctx, offset, limit)
}
