// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/ManuGH/snapexport/internal/session"
	"github.com/spf13/cobra"
)

func newResolveCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Print the backend address this host resolves to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := o.loadConfig()
			if err != nil {
				return err
			}
			s := session.New(cfg)
			defer s.Close()
			addr := s.Connect(cmd.Context())

			if o.output == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"baseURL": addr.BaseURL,
					"source":  string(addr.Source),
				})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", addr.BaseURL, addr.Source)
			return err
		},
	}
}
