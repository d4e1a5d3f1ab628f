// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"

	"github.com/ManuGH/snapexport/internal/settings"
	"github.com/spf13/cobra"
)

func newOnboardingCmd(o *options) *cobra.Command {
	var done, reset bool
	cmd := &cobra.Command{
		Use:   "onboarding",
		Short: "Show or change the onboarding walkthrough flag",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if done && reset {
				return fmt.Errorf("--done and --reset are mutually exclusive")
			}
			cfg, _, err := o.loadConfig()
			if err != nil {
				return err
			}
			store := settings.NewStore(cfg.DataDir)
			if done || reset {
				if err := store.SetOnboardingDone(cmd.Context(), done); err != nil {
					return err
				}
			}
			st, err := store.Load()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "onboarding done: %t (%s)\n", st.OnboardingDone, store.Path())
			return err
		},
	}
	cmd.Flags().BoolVar(&done, "done", false, "mark the walkthrough as completed")
	cmd.Flags().BoolVar(&reset, "reset", false, "show the walkthrough again on next launch")
	return cmd
}
