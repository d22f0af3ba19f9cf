// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

// Package api exposes docaccess operations to the host application over HTTP.
package api

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/celesteos/docaccess/internal/claims"
	"github.com/celesteos/docaccess/internal/issuer"
	"github.com/celesteos/docaccess/internal/observability"
	"github.com/celesteos/docaccess/internal/refresh"
)

// SessionStore is the part of the session cache the API controls.
type SessionStore interface {
	Clear()
}

// Deps are the collaborators the API serves.
type Deps struct {
	Issuer    *issuer.Issuer
	Sessions  SessionStore
	Refresher *refresh.Engine
	Inspector *claims.Inspector
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Server routes API requests.
type Server struct {
	router    *gin.Engine
	issuer    *issuer.Issuer
	sessions  SessionStore
	refresher *refresh.Engine
	inspector *claims.Inspector
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewServer creates the API router.
func NewServer(deps Deps) (*Server, error) {
	if deps.Issuer == nil || deps.Refresher == nil || deps.Sessions == nil {
		return nil, oops.Errorf("issuer, sessions and refresher are required")
	}
	s := &Server{
		router:    gin.New(),
		issuer:    deps.Issuer,
		sessions:  deps.Sessions,
		refresher: deps.Refresher,
		inspector: deps.Inspector,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
	if s.inspector == nil {
		s.inspector = claims.NewInspector()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.router.Use(gin.Recovery(), s.observe)
	s.registerRoutes()
	return s, nil
}

// Handler returns the gin engine.
func (s *Server) Handler() *gin.Engine { return s.router }

func (s *Server) registerRoutes() {
	v1 := s.router.Group("/v1")

	v1.POST("/secure-url", s.secureURL)
	v1.POST("/open", s.open)
	v1.GET("/inspect", s.inspect)
	v1.POST("/history/refresh", s.refreshHistory)
	v1.POST("/history/auto-refresh", s.autoRefresh)
	v1.DELETE("/session", s.clearSession)
}

// observe logs each request and counts it by route and status.
func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	status := c.Writer.Status()
	s.metrics.RecordHTTPRequest(route, strconv.Itoa(status))
	s.logger.DebugContext(c.Request.Context(), "api request",
		"method", c.Request.Method,
		"route", route,
		"status", status,
		"duration", time.Since(start),
	)
}

func requestContext(c *gin.Context) context.Context {
	return c.Request.Context()
}
