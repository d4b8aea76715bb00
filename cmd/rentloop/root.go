// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/rentloop/rentloop/internal/config"
)

// NewRootCmd creates the root command for the rentloop CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rentloop",
		Short: "Rentloop - property listing service",
		Long: `Rentloop manages rental property listings: owners draft and submit
listings with photo galleries, admins moderate them, and the public
browses what is published.`,
		SilenceUsage: true,
	}

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewTokenCmd())

	return cmd
}

// loadConfig reads configuration using the command's (inherited) flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.OptionsFromFlags(cmd.Flags()))
}
