// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package authority

import "context"

// API endpoint paths, relative to the authority base URL.
const (
	SessionPath = "/api/auth/session"
	TokenPath   = "/api/documents/request"
	StreamPath  = "/api/documents/stream/"
)

// SessionRequest asks for a session on behalf of a principal.
type SessionRequest struct {
	PrincipalID string `json:"principalId"`
	Role        string `json:"role"`
}

// SessionGrant is the authority's answer to a SessionRequest.
type SessionGrant struct {
	SessionID    string   `json:"session_id"`
	ExpiresIn    int64    `json:"expires_in"`
	Role         string   `json:"role"`
	AllowedPaths []string `json:"allowed_paths"`
}

// TokenRequest asks for a capability token for one document.
type TokenRequest struct {
	SessionID    string `json:"session_id"`
	DocumentPath string `json:"document_path"`
}

// TokenGrant carries a freshly minted capability token.
type TokenGrant struct {
	Token        string `json:"projection_token"`
	ExpiresIn    int64  `json:"expires_in"`
	DocumentPath string `json:"document_path"`
}

// SessionIssuer creates sessions.
type SessionIssuer interface {
	CreateSession(ctx context.Context, req SessionRequest) (*SessionGrant, error)
}

// TokenIssuer mints capability tokens.
type TokenIssuer interface {
	RequestToken(ctx context.Context, req TokenRequest) (*TokenGrant, error)
}

// Client is the full access authority API.
type Client interface {
	SessionIssuer
	TokenIssuer
}
