// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/celesteos/docaccess/internal/claims"
)

// NewInspectCmd creates the inspect subcommand.
func NewInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <url>...",
		Short: "Decode secure URLs and report their expiry",
		Long: `Decode the token embedded in each secure URL and report the document
path, expiry and whether the link should be refreshed. Works offline; the
token signature is not verified.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newInspectorApp(cmd)
			if err != nil {
				return err
			}
			reports := make([]claims.Report, 0, len(args))
			for _, raw := range args {
				reports = append(reports, a.inspector.Inspect(raw))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		},
	}
}
