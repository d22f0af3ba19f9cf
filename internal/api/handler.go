// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package api

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/celesteos/docaccess/internal/history"
	"github.com/celesteos/docaccess/internal/refresh"
)

// Identity names the principal a request acts for.
type Identity struct {
	PrincipalID string `json:"principal_id"`
	Role        string `json:"role"`
}

func (id Identity) valid() bool {
	return strings.TrimSpace(id.PrincipalID) != ""
}

// SecureURLRequest is the body of POST /v1/secure-url and /v1/open.
type SecureURLRequest struct {
	Identity
	Path string `json:"path"`
	Page int    `json:"page"`
}

// SecureURLResponse carries a freshly minted secure URL.
type SecureURLResponse struct {
	URL string `json:"url"`
}

// HistoryRequest is the body of the history endpoints.
type HistoryRequest struct {
	Identity
	Snapshot json.RawMessage `json:"snapshot"`
}

// RefreshResponse is returned by POST /v1/history/refresh.
type RefreshResponse struct {
	Snapshot *history.Snapshot `json:"snapshot"`
	Digest   string            `json:"digest"`
	Report   refresh.Report    `json:"report"`
}

// AutoRefreshResponse is returned by POST /v1/history/auto-refresh.
type AutoRefreshResponse struct {
	Refreshed bool              `json:"refreshed"`
	Snapshot  *history.Snapshot `json:"snapshot"`
}

func bindSecureURL(c *gin.Context) (SecureURLRequest, bool) {
	var req SecureURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be JSON")
		return req, false
	}
	if !req.valid() {
		badRequest(c, "principal_id is required")
		return req, false
	}
	if req.Path == "" {
		badRequest(c, "path is required")
		return req, false
	}
	if req.Page < 0 {
		badRequest(c, "page must not be negative")
		return req, false
	}
	return req, true
}

func (s *Server) secureURL(c *gin.Context) {
	req, ok := bindSecureURL(c)
	if !ok {
		return
	}
	u, err := s.issuer.GetSecureURLWithPage(requestContext(c), req.Path, req.Page, req.PrincipalID, req.Role)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, SecureURLResponse{URL: u})
}

// open runs the one-shot open flow. The caller is the viewer: the URL is
// returned for it to display.
func (s *Server) open(c *gin.Context) {
	req, ok := bindSecureURL(c)
	if !ok {
		return
	}
	u, err := s.issuer.OpenSecure(requestContext(c), nil, req.Path, req.Page, req.PrincipalID, req.Role)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, SecureURLResponse{URL: u})
}

func (s *Server) inspect(c *gin.Context) {
	raw := c.Query("url")
	if raw == "" {
		badRequest(c, "url is required")
		return
	}
	success(c, s.inspector.Inspect(raw))
}

func (s *Server) bindHistory(c *gin.Context) (HistoryRequest, *history.Snapshot, bool) {
	var req HistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be JSON")
		return req, nil, false
	}
	if !req.valid() {
		badRequest(c, "principal_id is required")
		return req, nil, false
	}
	if len(req.Snapshot) == 0 {
		badRequest(c, "snapshot is required")
		return req, nil, false
	}
	snap, err := history.Parse(req.Snapshot)
	if err != nil {
		s.fail(c, err)
		return req, nil, false
	}
	return req, snap, true
}

func (s *Server) refreshHistory(c *gin.Context) {
	req, snap, ok := s.bindHistory(c)
	if !ok {
		return
	}
	out, report := s.refresher.RefreshHistoryReport(requestContext(c), snap, req.PrincipalID, req.Role)
	digest, err := history.Digest(out)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, RefreshResponse{Snapshot: out, Digest: digest, Report: report})
}

func (s *Server) autoRefresh(c *gin.Context) {
	req, snap, ok := s.bindHistory(c)
	if !ok {
		return
	}
	got := s.refresher.AutoRefreshIfNeeded(requestContext(c), snap, req.PrincipalID, req.Role)
	success(c, AutoRefreshResponse{Refreshed: got.Refreshed, Snapshot: got.Snapshot})
}

func (s *Server) clearSession(c *gin.Context) {
	s.sessions.Clear()
	success(c, gin.H{"cleared": true})
}
