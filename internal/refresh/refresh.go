// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

// Package refresh re-mints expired document links inside history snapshots.
//
// A refresh never fails as a whole. Each unique URL is refreshed at most
// once per batch, concurrently with the others; a URL that cannot be
// refreshed keeps its original value everywhere it appears, and the
// failure is reported in its Result rather than returned as an error.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/celesteos/docaccess/internal/claims"
	"github.com/celesteos/docaccess/internal/history"
	"github.com/celesteos/docaccess/internal/issuer"
	"github.com/celesteos/docaccess/internal/observability"
	"github.com/celesteos/docaccess/pkg/errutil"
)

// ErrPathUnresolved is the Result error when a link's document path is
// neither recorded nor recoverable from its token.
const ErrPathUnresolved = "path unresolved"

const tracerName = "github.com/celesteos/docaccess/internal/refresh"

// URLIssuer mints secure URLs. *issuer.Issuer is the production implementation.
type URLIssuer interface {
	GetSecureURL(ctx context.Context, raw, principal, role string) (string, error)
}

// Result is the outcome of refreshing one unique URL.
type Result struct {
	OriginalURL  string `json:"original_url"`
	RefreshedURL string `json:"refreshed_url"`
	DocumentPath string `json:"document_path,omitempty"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// Engine runs link refreshes.
type Engine struct {
	issuer      URLIssuer
	inspector   *claims.Inspector
	now         func() time.Time
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics
	tracer      trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithInspector sets the inspector used for expiry verdicts.
func WithInspector(i *claims.Inspector) Option {
	return func(e *Engine) {
		if i != nil {
			e.inspector = i
		}
	}
}

// WithClock replaces time.Now for refresh timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithConcurrency caps the number of refreshes in flight. Zero or less
// means one goroutine per unique URL.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		e.concurrency = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records batch outcomes on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an Engine that mints replacement URLs through iss.
func NewEngine(iss URLIssuer, opts ...Option) (*Engine, error) {
	if iss == nil {
		return nil, oops.Errorf("url issuer is required")
	}
	e := &Engine{
		issuer:    iss,
		inspector: claims.NewInspector(),
		now:       time.Now,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RefreshOne mints a replacement for link.URL. It never returns an error:
// on failure the Result keeps the original URL and says why.
func (e *Engine) RefreshOne(ctx context.Context, link history.Link, principal, role string) Result {
	res := Result{OriginalURL: link.URL, RefreshedURL: link.URL, DocumentPath: link.DocumentPath}

	if res.DocumentPath == "" {
		if c, ok := claims.Decode(link.URL); ok {
			res.DocumentPath = c.DocumentPath
		}
	}
	if res.DocumentPath == "" {
		res.Error = ErrPathUnresolved
		return res
	}

	u, err := e.issuer.GetSecureURL(ctx, res.DocumentPath, principal, role)
	if err != nil {
		errutil.LogWarnContext(ctx, e.logger, "link refresh failed", err)
		res.Error = err.Error()
		return res
	}

	res.RefreshedURL = issuer.WithPage(u, pageOf(link))
	res.Success = true
	return res
}

// pageOf is the page a link points at: its recorded page, else the page
// anchor on its URL, else 0.
func pageOf(link history.Link) int {
	if link.Page != nil {
		return *link.Page
	}
	if p, ok := claims.PageFromURL(link.URL); ok {
		return p
	}
	return 0
}

// RefreshMany refreshes every link concurrently and waits for all of them.
// Results are in input order.
func (e *Engine) RefreshMany(ctx context.Context, links []history.Link, principal, role string) []Result {
	results := make([]Result, len(links))
	if len(links) == 0 {
		return results
	}

	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, link := range links {
		g.Go(func() error {
			results[i] = e.RefreshOne(ctx, link, principal, role)
			return nil
		})
	}
	_ = g.Wait() // RefreshOne never fails

	return results
}
