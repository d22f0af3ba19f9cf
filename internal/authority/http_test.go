// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package authority_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celesteos/docaccess/internal/authority"
	"github.com/celesteos/docaccess/internal/authority/authoritytest"
)

func TestNewHTTPClient_RejectsRelativeURL(t *testing.T) {
	for _, base := range []string{"", "svc", "/api", "://x"} {
		_, err := authority.NewHTTPClient(base)
		assert.Error(t, err, "base %q", base)
	}
}

func TestWithTimeout_LeavesCallerClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: 2 * time.Second}
	_, err := authority.NewHTTPClient("https://auth.example.com",
		authority.WithHTTPClient(shared),
		authority.WithTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, shared.Timeout)

	// Option order does not matter either.
	_, err = authority.NewHTTPClient("https://auth.example.com",
		authority.WithTimeout(50*time.Millisecond),
		authority.WithHTTPClient(shared),
	)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, shared.Timeout)
}

func TestWithTimeout_AppliesToDefaultClient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	c, err := authority.NewHTTPClient(srv.URL, authority.WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = c.CreateSession(context.Background(), authority.SessionRequest{PrincipalID: "user-1", Role: "user"})
	require.Error(t, err)
	assert.ErrorIs(t, err, authority.ErrUnreachable)
}

func TestHTTPClient_CreateSession(t *testing.T) {
	fake := authoritytest.NewServer()
	defer fake.Close()
	fake.SessionTTL = 10 * time.Minute

	client, err := authority.NewHTTPClient(fake.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, fake.URL, client.BaseURL())

	grant, err := client.CreateSession(context.Background(), authority.SessionRequest{PrincipalID: "crew-1", Role: "engineer"})
	require.NoError(t, err)
	assert.NotEmpty(t, grant.SessionID)
	assert.Equal(t, int64(600), grant.ExpiresIn)
	assert.Equal(t, "engineer", grant.Role)
	assert.Equal(t, []string{"/ROOT/"}, grant.AllowedPaths)
}

func TestHTTPClient_RequestToken(t *testing.T) {
	fake := authoritytest.NewServer()
	defer fake.Close()

	client, err := authority.NewHTTPClient(fake.URL)
	require.NoError(t, err)

	ctx := context.Background()
	sess, err := client.CreateSession(ctx, authority.SessionRequest{PrincipalID: "crew-1", Role: "engineer"})
	require.NoError(t, err)

	grant, err := client.RequestToken(ctx, authority.TokenRequest{SessionID: sess.SessionID, DocumentPath: "/ROOT/a.pdf"})
	require.NoError(t, err)
	assert.NotEmpty(t, grant.Token)
	assert.Equal(t, "/ROOT/a.pdf", grant.DocumentPath)
	assert.Equal(t, int64(300), grant.ExpiresIn)
}

func TestHTTPClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		retryAfter string
		wantKind   string
		wantReason string
		wantAfter  time.Duration
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"session expired"}`, "", authority.KindUnauthorized, "session expired", 0},
		{"forbidden", http.StatusForbidden, `{"error":"role may not read manuals"}`, "", authority.KindForbidden, "role may not read manuals", 0},
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, "12", authority.KindRateLimited, "slow down", 12 * time.Second},
		{"server error without body", http.StatusBadGateway, "", "", authority.KindStatus, "", 0},
		{"non json body", http.StatusInternalServerError, "<html>oops</html>", "", authority.KindStatus, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := authority.NewHTTPClient(srv.URL)
			require.NoError(t, err)

			_, err = client.RequestToken(context.Background(), authority.TokenRequest{SessionID: "s", DocumentPath: "/ROOT/a.pdf"})
			require.Error(t, err)

			se, ok := authority.AsStatusError(err)
			require.True(t, ok, "expected *StatusError, got %T", err)
			assert.Equal(t, tt.status, se.Status)
			assert.Equal(t, tt.wantKind, se.Kind())
			assert.Equal(t, tt.wantReason, se.Reason)
			assert.Equal(t, tt.wantAfter, se.RetryAfter)
			assert.Equal(t, authority.TokenPath, se.Endpoint)
			assert.False(t, authority.IsUnreachable(err))
		})
	}
}

func TestHTTPClient_NonSuccessIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := authority.NewHTTPClient(srv.URL, authority.WithMaxRetries(3), authority.WithRetryBackoff(time.Millisecond))
	require.NoError(t, err)

	_, err = client.CreateSession(context.Background(), authority.SessionRequest{PrincipalID: "crew-1"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client, err := authority.NewHTTPClient(addr,
		authority.WithMaxRetries(2),
		authority.WithRetryBackoff(time.Millisecond),
		authority.WithTimeout(time.Second),
	)
	require.NoError(t, err)

	_, err = client.CreateSession(context.Background(), authority.SessionRequest{PrincipalID: "crew-1"})
	require.Error(t, err)
	assert.True(t, authority.IsUnreachable(err))
	_, isStatus := authority.AsStatusError(err)
	assert.False(t, isStatus)
}

func TestHTTPClient_RetriesTransportFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			// Drop the connection without a response.
			hj, ok := w.(http.Hijacker)
			if ok {
				conn, _, err := hj.Hijack()
				if err == nil {
					_ = conn.Close()
					return
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(authority.SessionGrant{SessionID: "sess-1", ExpiresIn: 60})
	}))
	defer srv.Close()

	client, err := authority.NewHTTPClient(srv.URL, authority.WithMaxRetries(2), authority.WithRetryBackoff(time.Millisecond))
	require.NoError(t, err)

	grant, err := client.CreateSession(context.Background(), authority.SessionRequest{PrincipalID: "crew-1"})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", grant.SessionID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPClient_EmptyGrantIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, err := authority.NewHTTPClient(srv.URL)
	require.NoError(t, err)

	_, err = client.CreateSession(context.Background(), authority.SessionRequest{PrincipalID: "crew-1"})
	assert.Error(t, err)
	_, err = client.RequestToken(context.Background(), authority.TokenRequest{SessionID: "s", DocumentPath: "/ROOT/a.pdf"})
	assert.Error(t, err)
}

func TestHTTPClient_MalformedSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client, err := authority.NewHTTPClient(srv.URL)
	require.NoError(t, err)

	_, err = client.CreateSession(context.Background(), authority.SessionRequest{PrincipalID: "crew-1"})
	require.Error(t, err)
	assert.False(t, authority.IsUnreachable(err))
}
