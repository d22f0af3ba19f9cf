// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/celesteos/docaccess/internal/history"
	"github.com/celesteos/docaccess/internal/refresh"
)

// NewRefreshCmd creates the refresh subcommand.
func NewRefreshCmd() *cobra.Command {
	var (
		out  string
		auto bool
	)

	cmd := &cobra.Command{
		Use:   "refresh <snapshot>",
		Short: "Re-mint expired links in a history snapshot",
		Long: `Read a history snapshot (JSON or JSONC), re-mint every expired secure
link and write the result. The input file is left untouched unless --out
names it. Links that cannot be refreshed keep their original URL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			principal, role, err := a.principal()
			if err != nil {
				return err
			}

			snap, err := history.Load(args[0])
			if err != nil {
				return err
			}

			var result *history.Snapshot
			if auto {
				outcome := a.refresher.AutoRefreshIfNeeded(cmd.Context(), snap, principal, role)
				result = outcome.Snapshot
				if !outcome.Refreshed {
					cmd.PrintErrln("no expired links")
				}
			} else {
				var report refresh.Report
				result, report = a.refresher.RefreshHistoryReport(cmd.Context(), snap, principal, role)
				cmd.PrintErrf("refreshed %d of %d expired links (%d failed)\n",
					report.Refreshed, report.UniqueURLs, report.Failed)
			}

			if out == "" || out == "-" {
				return history.Encode(cmd.OutOrStdout(), result)
			}

			before, err := history.Digest(snap)
			if err != nil {
				return err
			}
			after, err := history.Digest(result)
			if err != nil {
				return err
			}
			if before == after && out == args[0] {
				cmd.PrintErrln("snapshot unchanged, not rewritten")
				return nil
			}
			return history.Save(out, result)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the refreshed snapshot here (default: stdout)")
	cmd.Flags().BoolVar(&auto, "auto", false, "only refresh when at least one secure link has expired")
	return cmd
}
