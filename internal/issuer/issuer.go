// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

// Package issuer turns document references into secure access URLs.
//
// A secure URL is the service base, "/stream/", and a freshly minted
// capability token, optionally followed by "#page=N". URLs are never
// edited in place: every access mints a new one.
package issuer

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/samber/oops"

	"github.com/celesteos/docaccess/internal/authority"
	"github.com/celesteos/docaccess/internal/claims"
	"github.com/celesteos/docaccess/internal/docpath"
	"github.com/celesteos/docaccess/internal/observability"
	"github.com/celesteos/docaccess/pkg/errutil"
)

// SessionSource supplies a session id for a principal and role.
// *session.Cache is the production implementation.
type SessionSource interface {
	GetSession(ctx context.Context, principal, role string) (string, error)
}

// Viewer opens a secure URL for the user. It is supplied by the host.
type Viewer interface {
	Open(ctx context.Context, secureURL string) error
}

// ViewerFunc adapts a function to Viewer.
type ViewerFunc func(ctx context.Context, secureURL string) error

// Open implements Viewer.
func (f ViewerFunc) Open(ctx context.Context, secureURL string) error {
	return f(ctx, secureURL)
}

// Issuer mints secure URLs.
type Issuer struct {
	sessions   SessionSource
	tokens     authority.TokenIssuer
	serviceURL string
	normalizer *docpath.Normalizer
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithNormalizer replaces the default path normalizer.
func WithNormalizer(n *docpath.Normalizer) Option {
	return func(i *Issuer) {
		if n != nil {
			i.normalizer = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Issuer) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithMetrics records token requests on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(i *Issuer) {
		i.metrics = m
	}
}

// New creates an Issuer. serviceURL is the base secure URLs are built on,
// e.g. "https://svc/api/documents".
func New(sessions SessionSource, tokens authority.TokenIssuer, serviceURL string, opts ...Option) (*Issuer, error) {
	if sessions == nil {
		return nil, oops.Errorf("session source is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if !strings.Contains(serviceURL, "://") {
		return nil, oops.With("service_url", serviceURL).Errorf("service URL must be absolute")
	}

	i := &Issuer{
		sessions:   sessions,
		tokens:     tokens,
		serviceURL: strings.TrimRight(serviceURL, "/"),
		normalizer: docpath.NewNormalizer(docpath.DefaultRootMarker),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// ServiceURL returns the secure URL base.
func (i *Issuer) ServiceURL() string {
	return i.serviceURL
}

// GetSecureURL normalizes raw, obtains a session, mints a token and
// returns the secure URL. Errors carry the docpath, session or
// TOKEN_REQUEST_FAILED codes and are never retried here.
func (i *Issuer) GetSecureURL(ctx context.Context, raw, principal, role string) (string, error) {
	path, err := i.normalizer.Normalize(raw)
	if err != nil {
		return "", err //nolint:wrapcheck // already coded by docpath
	}

	sessionID, err := i.sessions.GetSession(ctx, principal, role)
	if err != nil {
		return "", err //nolint:wrapcheck // already coded by session
	}

	grant, err := i.tokens.RequestToken(ctx, authority.TokenRequest{SessionID: sessionID, DocumentPath: path})
	if err != nil {
		i.metrics.RecordTokenRequest(false)
		return "", ErrTokenRequest(path, err)
	}
	i.metrics.RecordTokenRequest(true)

	i.logger.DebugContext(ctx, "secure url issued",
		"document_path", path,
		"principal", principal,
		"expires_in", grant.ExpiresIn,
	)
	return i.serviceURL + claims.StreamMarker + grant.Token, nil
}

// GetSecureURLWithPage is GetSecureURL with a "#page=N" anchor for N > 0.
func (i *Issuer) GetSecureURLWithPage(ctx context.Context, raw string, page int, principal, role string) (string, error) {
	u, err := i.GetSecureURL(ctx, raw, principal, role)
	if err != nil {
		return "", err
	}
	return WithPage(u, page), nil
}

// WithPage appends a page anchor to u when page > 0.
func WithPage(u string, page int) string {
	if page <= 0 {
		return u
	}
	return u + "#page=" + strconv.Itoa(page)
}

// OpenSecure mints a secure URL for raw and hands it to viewer.
// It is a one-shot, user-initiated action: nothing is retried. On failure
// the raw error is logged and the returned error carries a user-facing
// message, available through oops.GetPublic or UserMessage.
func (i *Issuer) OpenSecure(ctx context.Context, viewer Viewer, raw string, page int, principal, role string) (string, error) {
	u, err := i.GetSecureURLWithPage(ctx, raw, page, principal, role)
	if err == nil && viewer != nil {
		if openErr := viewer.Open(ctx, u); openErr != nil {
			err = oops.Code(CodeViewerFailed).With("url", u).Wrapf(openErr, "open viewer")
		}
	}
	if err != nil {
		errutil.LogErrorContext(ctx, i.logger, "open secure document failed", err)
		return "", oops.Public(UserMessage(err)).With("path", raw).Wrap(err)
	}
	return u, nil
}
