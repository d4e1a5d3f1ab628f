// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ManuGH/snapexport/internal/history"
	"github.com/ManuGH/snapexport/internal/session"
	"github.com/ManuGH/snapexport/internal/view"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newHistoryCmd(o *options) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List downloaded memories page by page",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if page < 1 {
				return fmt.Errorf("--page must be 1 or more")
			}
			return o.withSession(cmd.Context(), func(ctx context.Context, s *session.Session) error {
				v, err := s.History(ctx, page-1)
				if err != nil {
					return err
				}
				if o.output == "json" {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(v)
				}
				renderHistory(cmd.OutOrStdout(), s.Renderer(), v)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number (1-based)")
	return cmd
}

func renderHistory(w io.Writer, r *view.Renderer, v history.View) {
	if len(v.Page.Items) == 0 {
		fmt.Fprintln(w, r.NoDownloads())
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("#", "Memory")
	for i, it := range v.Page.Items {
		table.Append(strconv.Itoa(v.Page.Offset+i+1), r.HistoryItem(it))
	}
	table.Render()

	fmt.Fprintf(w, "\n%s   %s\n", r.PageOf(v.Current, v.TotalPages), strings.Join(r.PageLabels(v.PagesToShow, v.Current), " "))
}
