// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Defaults for HTTPClient.
const (
	DefaultRetryBackoff = 200 * time.Millisecond
	maxErrorBody        = 64 << 10
)

const tracerName = "github.com/celesteos/docaccess/internal/authority"

// HTTPClient talks to the authority over HTTP JSON.
type HTTPClient struct {
	baseURL      string
	http         *http.Client
	timeout      time.Duration
	maxRetries   uint64
	retryBackoff time.Duration
	tracer       trace.Tracer
	logger       *slog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying transport client. The caller owns
// its timeout policy; WithTimeout leaves it untouched.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		if c != nil {
			h.http = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default transport client.
// It has no effect when WithHTTPClient supplies the client.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) {
		h.timeout = d
	}
}

// WithMaxRetries retries unreachable-transport failures up to n extra times.
// Non-2xx responses are never retried.
func WithMaxRetries(n int) Option {
	return func(h *HTTPClient) {
		if n > 0 {
			h.maxRetries = uint64(n)
		}
	}
}

// WithRetryBackoff sets the base of the exponential retry backoff.
func WithRetryBackoff(d time.Duration) Option {
	return func(h *HTTPClient) {
		if d > 0 {
			h.retryBackoff = d
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(h *HTTPClient) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHTTPClient creates a client for the authority at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, oops.With("base_url", baseURL).Errorf("authority base URL must be absolute")
	}

	c := &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		retryBackoff: DefaultRetryBackoff,
		tracer:       otel.Tracer(tracerName),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// BaseURL returns the authority base URL without a trailing slash.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// CreateSession implements SessionIssuer.
func (c *HTTPClient) CreateSession(ctx context.Context, req SessionRequest) (*SessionGrant, error) {
	ctx, span := c.tracer.Start(ctx, "authority.CreateSession", trace.WithAttributes(
		attribute.String("docaccess.principal", req.PrincipalID),
		attribute.String("docaccess.role", req.Role),
	))
	defer span.End()

	var grant SessionGrant
	if err := c.post(ctx, SessionPath, req, &grant); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if grant.SessionID == "" {
		err := oops.With("endpoint", SessionPath).Errorf("authority returned an empty session id")
		recordSpanError(span, err)
		return nil, err
	}
	return &grant, nil
}

// RequestToken implements TokenIssuer.
func (c *HTTPClient) RequestToken(ctx context.Context, req TokenRequest) (*TokenGrant, error) {
	ctx, span := c.tracer.Start(ctx, "authority.RequestToken", trace.WithAttributes(
		attribute.String("docaccess.document_path", req.DocumentPath),
	))
	defer span.End()

	var grant TokenGrant
	if err := c.post(ctx, TokenPath, req, &grant); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if grant.Token == "" {
		err := oops.With("endpoint", TokenPath).Errorf("authority returned an empty token")
		recordSpanError(span, err)
		return nil, err
	}
	return &grant, nil
}

// post sends in as JSON and decodes a 2xx body into out.
func (c *HTTPClient) post(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return oops.With("endpoint", endpoint).Wrapf(err, "encode request")
	}

	var resp *http.Response
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
		if reqErr != nil {
			return oops.With("endpoint", endpoint).Wrap(reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		r, doErr := c.http.Do(req)
		if doErr != nil {
			c.logger.DebugContext(ctx, "authority request failed", "endpoint", endpoint, "error", doErr)
			return retry.RetryableError(oops.With("endpoint", endpoint).
				Wrap(fmt.Errorf("%w: %w", ErrUnreachable, doErr)))
		}
		resp = r
		return nil
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oops.With("endpoint", endpoint).With("status", resp.StatusCode).Wrapf(err, "decode response")
	}
	return nil
}

func statusError(endpoint string, resp *http.Response) *StatusError {
	se := &StatusError{Endpoint: endpoint, Status: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		se.Reason = payload.Error
	}

	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			se.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return se
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if se, ok := AsStatusError(err); ok {
		span.SetAttributes(attribute.Int("http.response.status_code", se.Status))
	}
}

var _ Client = (*HTTPClient)(nil)
