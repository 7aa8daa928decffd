// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file,
RETROLINK_* environment variables and command-line flags, as YAML.

The output can be saved as retrolink.yaml and edited.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cfg.Dump(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
