// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package main

import (
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/celesteos/docaccess/internal/authority"
	"github.com/celesteos/docaccess/internal/claims"
	"github.com/celesteos/docaccess/internal/config"
	"github.com/celesteos/docaccess/internal/docpath"
	"github.com/celesteos/docaccess/internal/issuer"
	"github.com/celesteos/docaccess/internal/logging"
	"github.com/celesteos/docaccess/internal/observability"
	"github.com/celesteos/docaccess/internal/refresh"
	"github.com/celesteos/docaccess/internal/session"
)

// app is the wired component graph a command runs against.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	inspector *claims.Inspector
	sessions  *session.Cache
	issuer    *issuer.Issuer
	refresher *refresh.Engine
}

// loadConfig resolves configuration for cmd and installs the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.LoadOptions{File: configFile, Flags: cmd.Flags()})
	if err != nil {
		return nil, nil, oops.Wrapf(err, "load configuration")
	}
	logger, err := logging.New(logging.Options{
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Version: version,
		Output:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, oops.Wrapf(err, "set up logging")
	}
	return cfg, logger, nil
}

// newInspectorApp builds only the offline parts: no authority is contacted.
func newInspectorApp(cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return inspectorApp(cfg, logger), nil
}

func inspectorApp(cfg *config.Config, logger *slog.Logger) *app {
	return &app{
		cfg:       cfg,
		logger:    logger,
		inspector: claims.NewInspector(claims.WithBuffer(cfg.Inspector.Buffer)),
	}
}

// newApp loads configuration for cmd and builds the full graph.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return buildApp(cfg, logger, nil)
}

// buildApp builds the full graph from an already loaded configuration.
// metrics may be nil.
func buildApp(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, oops.Wrapf(err, "invalid configuration")
	}
	a := inspectorApp(cfg, logger)

	client, err := authority.NewHTTPClient(cfg.Authority.BaseURL,
		authority.WithTimeout(cfg.Authority.Timeout),
		authority.WithMaxRetries(cfg.Authority.MaxRetries),
		authority.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}

	cacheOpts := []session.Option{
		session.WithBuffer(cfg.Session.Buffer),
		session.WithLogger(a.logger),
		session.WithMetrics(metrics),
	}
	if cfg.Session.SingleFlight {
		cacheOpts = append(cacheOpts, session.WithSingleFlight())
	}
	a.sessions, err = session.NewCache(client, cacheOpts...)
	if err != nil {
		return nil, err
	}

	a.issuer, err = issuer.New(a.sessions, client, cfg.Authority.ResolvedServiceURL(),
		issuer.WithNormalizer(docpath.NewNormalizer(cfg.Path.RootMarker)),
		issuer.WithLogger(a.logger),
		issuer.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	a.refresher, err = refresh.NewEngine(a.issuer,
		refresh.WithInspector(a.inspector),
		refresh.WithConcurrency(cfg.Refresh.Concurrency),
		refresh.WithLogger(a.logger),
		refresh.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// principal returns the configured identity, failing when none is set.
func (a *app) principal() (string, string, error) {
	p := strings.TrimSpace(a.cfg.Identity.Principal)
	if p == "" {
		return "", "", oops.Errorf("a principal is required (--principal or identity.principal)")
	}
	return p, a.cfg.Identity.Role, nil
}
