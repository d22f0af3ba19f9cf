// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/celesteos/docaccess/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the docaccess CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = &Deps{}
	}

	cmd := &cobra.Command{
		Use:   "docaccess",
		Short: "Mint and refresh secure document links",
		Long: `docaccess exchanges document paths for short-lived secure streaming
URLs issued by an access authority, and keeps links stored in conversation
history usable by re-minting the ones whose tokens have expired.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/docaccess/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewURLCmd())
	cmd.AddCommand(NewOpenCmd(deps))
	cmd.AddCommand(NewInspectCmd())
	cmd.AddCommand(NewRefreshCmd())
	cmd.AddCommand(NewServeCmd(deps))
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}
