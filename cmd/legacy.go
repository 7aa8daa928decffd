// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/retrolink/pkg/companion"
)

var legacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Send one v1 transaction to the watch",
	Long: `Send a single legacy v1 transaction (START CMD ... END) from the phone side.

  retrolink legacy add normal|emergency|user ID ICON TEXT
  retrolink legacy time [RFC3339]        (default: now)
  retrolink legacy style analog|digit|mix
  retrolink legacy indicator on|off
  retrolink legacy reset normal|emergency|user
  retrolink legacy delete normal|emergency|user
  retrolink legacy control ping|awake|sleep|reboot

ID and ICON accept decimal or 0x-prefixed hex. Text is cut to 13 bytes.
v1 has no acknowledgements.`,
}

func init() {
	rootCmd.AddCommand(legacyCmd)

	for _, sub := range []struct {
		use, short string
		args       cobra.PositionalArgs
	}{
		{"add CLASS ID ICON TEXT", "Store a message", cobra.MinimumNArgs(4)},
		{"time [RFC3339]", "Set the watch clock", cobra.MaximumNArgs(1)},
		{"style analog|digit|mix", "Select the clock face", cobra.ExactArgs(1)},
		{"indicator on|off", "Enable or disable the indicator", cobra.ExactArgs(1)},
		{"reset CLASS", "Clear a message buffer", cobra.ExactArgs(1)},
		{"delete CLASS", "Send a delete command", cobra.ExactArgs(1)},
	} {
		legacyCmd.AddCommand(&cobra.Command{
			Use:   sub.use,
			Short: sub.short,
			Args:  sub.args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runLegacy(cmd, append([]string{"legacy", cmd.Name()}, args...))
			},
		})
	}

	legacyCmd.AddCommand(&cobra.Command{
		Use:       "control ping|awake|sleep|reboot",
		Short:     "Send a single-byte control command",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"ping", "awake", "sleep", "reboot"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLegacy(cmd, []string{"legacy", args[0]})
		},
	})
}

func runLegacy(cmd *cobra.Command, fields []string) error {
	return withRunner(cmd.Context(), func(ctx context.Context, r *companion.Runner) error {
		if err := r.RunFields(ctx, fields); err != nil {
			return err
		}
		fmt.Printf("sent legacy %s\n", fields[1])
		return nil
	})
}
