// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ManuGH/snapexport/internal/progress"
	"github.com/ManuGH/snapexport/internal/session"
	"github.com/spf13/cobra"
)

func newWatchCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow export progress until it is done",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withSession(cmd.Context(), func(ctx context.Context, s *session.Session) error {
				return watchProgress(ctx, cmd.OutOrStdout(), o.output, s)
			})
		},
	}
}

// watchProgress prints every progress or failure change until the job is done or
// ctx ends.
func watchProgress(ctx context.Context, w io.Writer, format string, s *session.Session) error {
	prog, stopProg := s.Progress().Watch()
	defer stopProg()
	fails, stopFails := s.Failures().Watch()
	defer stopFails()

	if err := printState(w, format, s.State()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-prog:
			if err := printState(w, format, s.State()); err != nil {
				return err
			}
			if snap.Status == progress.StatusDone {
				return nil
			}
		case <-fails:
			if err := printState(w, format, s.State()); err != nil {
				return err
			}
		}
	}
}

func printState(w io.Writer, format string, st session.State) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(st)
	}
	if st.Text.Health != "" {
		fmt.Fprintf(w, "%s %s\n", st.Text.Health, st.Text.Detail)
	}
	_, err := fmt.Fprintf(w, "%s: %s\n", st.Text.Status, st.Text.Progress)
	if err != nil {
		return err
	}
	if len(st.Failures.Items) > 0 {
		for _, line := range st.Text.Failures {
			fmt.Fprintf(w, "  ✗ %s\n", line)
		}
	}
	return nil
}
