// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package main

import (
	"context"
	"net"

	"github.com/celesteos/docaccess/internal/issuer"
	"github.com/celesteos/docaccess/internal/observability"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// Viewer receives URLs from the open command.
	// Default: prints the URL to the command's output.
	Viewer issuer.Viewer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ShutdownContext returns the context whose cancellation stops serve.
	// Default: cancelled on SIGINT or SIGTERM.
	ShutdownContext func(parent context.Context) (context.Context, context.CancelFunc)
}

// ObservabilityServer is the part of observability.Server that serve drives.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
