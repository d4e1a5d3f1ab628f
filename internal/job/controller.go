// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package job drives the export job on the backend and applies optimistic status
// transitions to the shared progress store.
package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ManuGH/snapexport/internal/backend"
	"github.com/ManuGH/snapexport/internal/exportfile"
	xglog "github.com/ManuGH/snapexport/internal/log"
	"github.com/ManuGH/snapexport/internal/progress"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotRunning is returned by Pause when no job is running.
	ErrNotRunning = errors.New("job: not running")
	// ErrFinished is returned by Resume once the job is done; only restart leaves done.
	ErrFinished = errors.New("job: already finished")
	// ErrNoOutputDir is returned by Restart when no output directory is known.
	ErrNoOutputDir = errors.New("job: no output directory")
)

// Commander is the backend surface the controller drives.
type Commander interface {
	Run(ctx context.Context, req backend.RunRequest) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Restart(ctx context.Context, outputPath string) error
}

// FilePreparer turns the selected export data into an uploadable file.
type FilePreparer interface {
	Prepare(ctx context.Context, src string) (exportfile.Prepared, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithPreparer sets how selected files are prepared before upload.
func WithPreparer(p FilePreparer) Option {
	return func(c *Controller) { c.prep = p }
}

// Controller issues job commands. Optimistic status changes are applied as soon as a
// command is issued and are never rolled back; the next progress push corrects them.
type Controller struct {
	cmd    Commander
	store  *progress.Store
	prep   FilePreparer
	logger zerolog.Logger

	mu  sync.Mutex
	sel Selection
}

// NewController creates a controller writing to store.
func NewController(cmd Commander, store *progress.Store, opts ...Option) *Controller {
	c := &Controller{
		cmd:    cmd,
		store:  store,
		prep:   exportfile.Preparer{},
		logger: xglog.WithComponent("job"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Selection returns the held job configuration.
func (c *Controller) Selection() Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sel
}

// Select replaces the held job configuration.
func (c *Controller) Select(sel Selection) {
	c.mu.Lock()
	c.sel = sel
	c.mu.Unlock()
}

// Start holds sel and submits it. An incomplete selection is a silent no-op: nothing
// is sent and nil is returned.
func (c *Controller) Start(ctx context.Context, sel Selection) error {
	c.Select(sel)
	ctx, logger := c.commandContext(ctx, "start")

	if !sel.Ready() {
		logger.Debug().Str(xglog.FieldEvent, "job.start_skipped").Msg("file or output directory missing, not starting")
		observeCommand("start", "skipped")
		return nil
	}

	prepared, err := c.prep.Prepare(ctx, sel.FilePath)
	if err != nil {
		observeCommand("start", "error")
		return fmt.Errorf("prepare export file: %w", err)
	}
	defer prepared.Cleanup()

	c.transition(logger, progress.StatusRunning)
	err = c.cmd.Run(ctx, backend.RunRequest{
		FilePath:     prepared.Path,
		OutputPath:   sel.OutputDir,
		MergeOverlay: sel.MergeOverlay,
	})
	return c.done(logger, "start", err)
}

// Pause pauses a running job.
func (c *Controller) Pause(ctx context.Context) error {
	ctx, logger := c.commandContext(ctx, "pause")
	if st := c.store.Snapshot().Status; st != progress.StatusRunning {
		observeCommand("pause", "skipped")
		return fmt.Errorf("%w (status %s)", ErrNotRunning, st)
	}
	c.transition(logger, progress.StatusPaused)
	return c.done(logger, "pause", c.cmd.Pause(ctx))
}

// Resume is the single entry point for beginning and continuing: from idle it starts
// the job with the held selection, otherwise it asks the backend to resume.
func (c *Controller) Resume(ctx context.Context) error {
	switch st := c.store.Snapshot().Status; st {
	case progress.StatusIdle:
		return c.Start(ctx, c.Selection())
	case progress.StatusDone:
		observeCommand("resume", "skipped")
		return ErrFinished
	}

	ctx, logger := c.commandContext(ctx, "resume")
	c.transition(logger, progress.StatusRunning)
	return c.done(logger, "resume", c.cmd.Resume(ctx))
}

// Restart asks the backend to discard prior output and clears the held selection
// once the call returns, whatever the outcome. An empty outputPath falls back
// to the held output directory; with neither, the selection is still cleared and
// ErrNoOutputDir returned. The status is left to the next progress push.
func (c *Controller) Restart(ctx context.Context, outputPath string) error {
	ctx, logger := c.commandContext(ctx, "restart")
	if strings.TrimSpace(outputPath) == "" {
		outputPath = c.Selection().OutputDir
	}
	if strings.TrimSpace(outputPath) == "" {
		c.clearSelection(logger)
		observeCommand("restart", "skipped")
		return ErrNoOutputDir
	}

	err := c.cmd.Restart(ctx, outputPath)
	c.clearSelection(logger)
	return c.done(logger, "restart", err)
}

func (c *Controller) clearSelection(logger zerolog.Logger) {
	c.Select(Selection{})
	logger.Info().Str(xglog.FieldEvent, "job.selection_cleared").Msg("job configuration cleared")
}

func (c *Controller) commandContext(ctx context.Context, command string) (context.Context, zerolog.Logger) {
	if xglog.RequestIDFromContext(ctx) == "" {
		ctx = xglog.ContextWithRequestID(ctx, uuid.NewString())
	}
	logger := xglog.WithContext(ctx, c.logger).With().
		Str(xglog.FieldOperation, command).
		Logger()
	return ctx, logger
}

func (c *Controller) transition(logger zerolog.Logger, to progress.Status) {
	snap, ok := c.store.Transition(to)
	if !ok {
		logger.Debug().
			Str(xglog.FieldEvent, "job.transition_skipped").
			Str(xglog.FieldOldState, string(snap.Status)).
			Str(xglog.FieldNewState, string(to)).
			Msg("optimistic transition not applicable")
		return
	}
	logger.Info().
		Str(xglog.FieldEvent, "job.optimistic_transition").
		Str(xglog.FieldNewState, string(to)).
		Uint64(xglog.FieldRevision, snap.Revision).
		Msg("status set optimistically")
}

func (c *Controller) done(logger zerolog.Logger, command string, err error) error {
	switch {
	case err == nil:
		observeCommand(command, "ok")
		logger.Info().Str(xglog.FieldEvent, "job.command_ok").Msg("command accepted")
		return nil
	case errors.Is(err, backend.ErrRejected):
		observeCommand(command, "rejected")
	case errors.Is(err, backend.ErrUnavailable):
		observeCommand(command, "unavailable")
	default:
		observeCommand(command, "error")
	}
	logger.Warn().Err(err).Str(xglog.FieldEvent, "job.command_failed").Msg("command failed, optimistic state kept")
	return fmt.Errorf("%s: %w", command, err)
}
