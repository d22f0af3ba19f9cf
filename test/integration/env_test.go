// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

//go:build integration

package integration

import (
	"net/http/httptest"
	"time"

	. "github.com/onsi/gomega" //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus"

	"github.com/celesteos/docaccess/internal/api"
	"github.com/celesteos/docaccess/internal/authority"
	"github.com/celesteos/docaccess/internal/authority/authoritytest"
	"github.com/celesteos/docaccess/internal/claims"
	"github.com/celesteos/docaccess/internal/issuer"
	"github.com/celesteos/docaccess/internal/observability"
	"github.com/celesteos/docaccess/internal/refresh"
	"github.com/celesteos/docaccess/internal/session"
)

const (
	principal = "user-1"
	role      = "user"
)

// testEnv is the full component graph wired against a fake authority.
type testEnv struct {
	fake      *authoritytest.Server
	sessions  *session.Cache
	issuer    *issuer.Issuer
	inspector *claims.Inspector
	refresher *refresh.Engine
	metrics   *observability.Metrics
	registry  *prometheus.Registry
	api       *httptest.Server
}

func setupTestEnv() *testEnv {
	env := &testEnv{fake: authoritytest.NewServer()}
	env.registry = prometheus.NewRegistry()
	env.metrics = observability.NewMetrics(env.registry)

	client, err := authority.NewHTTPClient(env.fake.URL, authority.WithTimeout(5*time.Second))
	Expect(err).NotTo(HaveOccurred())

	env.sessions, err = session.NewCache(client,
		session.WithMetrics(env.metrics),
		session.WithSingleFlight(),
	)
	Expect(err).NotTo(HaveOccurred())

	env.issuer, err = issuer.New(env.sessions, client, env.fake.ServiceURL(), issuer.WithMetrics(env.metrics))
	Expect(err).NotTo(HaveOccurred())

	env.inspector = claims.NewInspector()
	env.refresher, err = refresh.NewEngine(env.issuer,
		refresh.WithInspector(env.inspector),
		refresh.WithConcurrency(4),
		refresh.WithMetrics(env.metrics),
	)
	Expect(err).NotTo(HaveOccurred())

	srv, err := api.NewServer(api.Deps{
		Issuer:    env.issuer,
		Sessions:  env.sessions,
		Refresher: env.refresher,
		Inspector: env.inspector,
		Metrics:   env.metrics,
	})
	Expect(err).NotTo(HaveOccurred())
	env.api = httptest.NewServer(srv.Handler())

	return env
}

func (env *testEnv) cleanup() {
	if env.api != nil {
		env.api.Close()
	}
	if env.fake != nil {
		env.fake.Close()
	}
}

func (env *testEnv) streamURL(path string, exp time.Time) string {
	return env.fake.ServiceURL() + "/stream/" + authoritytest.MintToken(path, exp)
}
