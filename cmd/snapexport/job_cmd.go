// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ManuGH/snapexport/internal/job"
	"github.com/ManuGH/snapexport/internal/session"
	"github.com/spf13/cobra"
)

var errNotConfirmed = errors.New("restart not confirmed")

func newStartCmd(o *options) *cobra.Command {
	var (
		sel  job.Selection
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an export",
		Example: `  snapexport start --file ~/Downloads/mydata.zip --out ~/Pictures/snapchat
  snapexport start --file memories_history.json --out /exports --merge-overlay --wait`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !sel.Ready() {
				return fmt.Errorf("--file and --out are required")
			}
			return o.withSession(cmd.Context(), func(ctx context.Context, s *session.Session) error {
				if err := s.Start(ctx, sel); err != nil {
					return err
				}
				if !wait {
					return printState(cmd.OutOrStdout(), o.output, s.State())
				}
				return watchProgress(ctx, cmd.OutOrStdout(), o.output, s)
			})
		},
	}
	cmd.Flags().StringVar(&sel.FilePath, "file", "", "export data: a Snapchat ZIP, a folder or memories_history.json")
	cmd.Flags().StringVar(&sel.OutputDir, "out", "", "directory the backend writes the memories into")
	cmd.Flags().BoolVar(&sel.MergeOverlay, "merge-overlay", false, "merge caption overlays into images and videos")
	cmd.Flags().BoolVar(&wait, "wait", false, "follow progress until the export is done")
	return cmd
}

func newPauseCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the running export",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withSession(cmd.Context(), func(ctx context.Context, s *session.Session) error {
				if err := s.Pause(ctx); err != nil {
					return err
				}
				return printState(cmd.OutOrStdout(), o.output, s.State())
			})
		},
	}
}

func newResumeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused export",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withSession(cmd.Context(), func(ctx context.Context, s *session.Session) error {
				if err := s.Resume(ctx); err != nil {
					return err
				}
				return printState(cmd.OutOrStdout(), o.output, s.State())
			})
		},
	}
}

func newRestartCmd(o *options) *cobra.Command {
	var (
		out string
		yes bool
	)
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Discard the current export and reset the backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Restart the export? Downloaded progress is discarded. [y/N] ") {
				return errNotConfirmed
			}
			return o.withSession(cmd.Context(), func(ctx context.Context, s *session.Session) error {
				if err := s.Restart(ctx, out); err != nil {
					return err
				}
				return printState(cmd.OutOrStdout(), o.output, s.State())
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output directory sent with the restart")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func confirm(in io.Reader, prompt io.Writer, question string) bool {
	fmt.Fprint(prompt, question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "o", "oui":
		return true
	}
	return false
}
