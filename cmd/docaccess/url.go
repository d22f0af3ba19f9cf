// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/celesteos/docaccess/internal/issuer"
)

// NewURLCmd creates the url subcommand.
func NewURLCmd() *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "url <path>",
		Short: "Print a secure streaming URL for a document",
		Long: `Exchange a document path or file URL for a short-lived secure
streaming URL and print it. Nothing is opened.`,
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
			u, err := a.issuer.GetSecureURLWithPage(cmd.Context(), args[0], page, principal, role)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), u)
			return err
		},
	}

	cmd.Flags().IntVar(&page, "page", 0, "page to anchor the URL at (0 = none)")
	return cmd
}

// NewOpenCmd creates the open subcommand.
func NewOpenCmd(deps *Deps) *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "open <path>",
		Short: "Open a document through the viewer",
		Long: `Mint a secure URL for a document and hand it to the viewer.
Failures are reported as a single user-facing message.`,
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

			viewer := deps.Viewer
			if viewer == nil {
				viewer = printViewer(cmd.OutOrStdout())
			}
			if _, err := a.issuer.OpenSecure(cmd.Context(), viewer, args[0], page, principal, role); err != nil {
				cmd.PrintErrln(oops.GetPublic(err, issuer.UserMessage(err)))
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 0, "page to open at (0 = first)")
	return cmd
}

// printViewer is the default viewer: it writes the URL for the user or a
// wrapping script to open.
func printViewer(w io.Writer) issuer.Viewer {
	return issuer.ViewerFunc(func(_ context.Context, secureURL string) error {
		_, err := fmt.Fprintln(w, secureURL)
		return err
	})
}
