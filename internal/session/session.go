// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

// Package session holds the process's single access session.
//
// A Cache is owned explicitly by whoever builds the token issuer; it is
// initialized lazily on first use and torn down with Clear (sign-out).
// Its only state is one atomic pointer. The check-then-acquire sequence in
// GetSession is not locked: two callers racing past an expired session may
// both acquire one and the last write wins. Sessions are fungible, so this
// is accepted. WithSingleFlight collapses concurrent acquisitions for hosts
// that want at most one in-flight session request.
package session

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sync/singleflight"

	"github.com/celesteos/docaccess/internal/authority"
	"github.com/celesteos/docaccess/internal/observability"
)

// DefaultBuffer is how long before real expiry a session stops being reused.
const DefaultBuffer = 60 * time.Second

// CodeAcquisitionFailed is the oops code for failed session acquisition.
const CodeAcquisitionFailed = "SESSION_ACQUISITION_FAILED"

// Session is a live credential issued by the access authority.
type Session struct {
	ID           string
	Principal    string
	Role         string
	AllowedPaths []string
	ExpiresAt    time.Time // real expiry as reported by the authority

	requestedRole string
}

// ValidAt reports whether the session may still be used at t, given buffer.
func (s *Session) ValidAt(t time.Time, buffer time.Duration) bool {
	return s != nil && t.Before(s.ExpiresAt.Add(-buffer))
}

// Cache lazily acquires and reuses one session.
type Cache struct {
	issuer  authority.SessionIssuer
	buffer  time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *observability.Metrics
	flight  *singleflight.Group

	current atomic.Pointer[Session]
}

// Option configures a Cache.
type Option func(*Cache)

// WithBuffer sets the safety margin before expiry.
func WithBuffer(d time.Duration) Option {
	return func(c *Cache) {
		if d >= 0 {
			c.buffer = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records acquisitions on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithSingleFlight makes concurrent acquisitions for the same principal
// and role share one authority call.
func WithSingleFlight() Option {
	return func(c *Cache) {
		c.flight = &singleflight.Group{}
	}
}

// NewCache creates an empty Cache backed by issuer.
func NewCache(issuer authority.SessionIssuer, opts ...Option) (*Cache, error) {
	if issuer == nil {
		return nil, oops.Errorf("session issuer is required")
	}
	c := &Cache{
		issuer: issuer,
		buffer: DefaultBuffer,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetSession returns a usable session id for principal and role.
// A cached session is reused only while it is valid and was issued to the
// same principal and role; otherwise a new one is acquired and cached.
func (c *Cache) GetSession(ctx context.Context, principal, role string) (string, error) {
	if s := c.current.Load(); s != nil && s.Principal == principal && s.requestedRole == role && s.ValidAt(c.now(), c.buffer) {
		return s.ID, nil
	}

	if c.flight == nil {
		s, err := c.acquire(ctx, principal, role)
		if err != nil {
			return "", err
		}
		return s.ID, nil
	}

	// The flight is shared, so one caller cancelling must not fail the others.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := c.flight.Do(principal+"\x00"+role, func() (any, error) {
		return c.acquire(flightCtx, principal, role)
	})
	if err != nil {
		return "", err //nolint:wrapcheck // already coded by acquire
	}
	return v.(*Session).ID, nil
}

func (c *Cache) acquire(ctx context.Context, principal, role string) (*Session, error) {
	start := c.now()
	grant, err := c.issuer.CreateSession(ctx, authority.SessionRequest{PrincipalID: principal, Role: role})
	if err != nil {
		c.metrics.RecordSessionAcquisition(false)
		builder := oops.Code(CodeAcquisitionFailed).
			With("principal", principal).
			With("role", role)
		if se, ok := authority.AsStatusError(err); ok {
			builder = builder.With("status", se.Status)
		}
		return nil, builder.Wrapf(err, "acquire session")
	}

	s := &Session{
		ID:           grant.SessionID,
		Principal:    principal,
		Role:         grant.Role,
		AllowedPaths: slices.Clone(grant.AllowedPaths),
		ExpiresAt:    start.Add(time.Duration(grant.ExpiresIn) * time.Second),

		requestedRole: role,
	}
	if s.Role == "" {
		s.Role = role
	}
	c.current.Store(s)
	c.metrics.RecordSessionAcquisition(true)

	c.logger.DebugContext(ctx, "session acquired",
		"principal", principal,
		"role", s.Role,
		"expires_at", s.ExpiresAt,
		"allowed_paths", len(s.AllowedPaths),
	)
	return s, nil
}

// Current returns a copy of the cached session, or nil if none is cached.
// The returned session may already be expired.
func (c *Cache) Current() *Session {
	s := c.current.Load()
	if s == nil {
		return nil
	}
	cp := *s
	cp.AllowedPaths = slices.Clone(s.AllowedPaths)
	return &cp
}

// Clear drops the cached session unconditionally.
func (c *Cache) Clear() {
	if c.current.Swap(nil) != nil {
		c.logger.Debug("session cleared")
	}
}

// IsAcquisitionError reports whether err is a session acquisition failure.
func IsAcquisitionError(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == CodeAcquisitionFailed
}
