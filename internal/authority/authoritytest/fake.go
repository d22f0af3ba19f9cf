// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

// Package authoritytest provides an in-process access authority for tests.
package authoritytest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/celesteos/docaccess/internal/authority"
)

var signingKey = []byte("authoritytest-signing-key")

// MintToken builds a header.payload.signature token carrying the given
// document path and expiry. The signature is real HMAC but nothing in
// docaccess verifies it.
func MintToken(documentPath string, exp time.Time) string {
	return MintTokenWithClaims(map[string]any{
		"document_path": documentPath,
		"exp":           exp.Unix(),
		"iat":           time.Now().Unix(),
	})
}

// MintTokenWithClaims builds a token with an arbitrary claims payload.
func MintTokenWithClaims(claims map[string]any) string {
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, _ := json.Marshal(claims)
	signingInput := header + "." + enc.EncodeToString(payload)

	mac := hmac.New(sha256.New, signingKey)
	mac.Write([]byte(signingInput))
	return signingInput + "." + enc.EncodeToString(mac.Sum(nil))
}

// Server is a fake access authority backed by httptest.Server.
// All knobs are safe to set before the first request; counters are safe
// to read at any time.
type Server struct {
	*httptest.Server

	// SessionTTL is the expires_in reported for new sessions.
	SessionTTL time.Duration
	// TokenTTL is the lifetime baked into minted tokens.
	TokenTTL time.Duration
	// Now supplies the clock used for token expiry.
	Now func() time.Time
	// TokenDelay delays every token response, to observe fan-out.
	TokenDelay time.Duration

	mu           sync.Mutex
	sessionFail  int
	denied       map[string]int // document path -> status
	reasons      map[string]string
	sessions     map[string]bool
	tokenCalls   map[string]int
	sessionCalls atomic.Int64
	tokenTotal   atomic.Int64
	seq          atomic.Int64
	inFlight     atomic.Int64
	maxInFlight  atomic.Int64
}

// NewServer starts a fake authority. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		SessionTTL: time.Hour,
		TokenTTL:   5 * time.Minute,
		Now:        time.Now,
		denied:     make(map[string]int),
		reasons:    make(map[string]string),
		sessions:   make(map[string]bool),
		tokenCalls: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+authority.SessionPath, s.handleSession)
	mux.HandleFunc("POST "+authority.TokenPath, s.handleToken)
	s.Server = httptest.NewServer(mux)
	return s
}

// ServiceURL is the base that secure URLs are built on.
func (s *Server) ServiceURL() string {
	return s.URL + strings.TrimSuffix(authority.StreamPath, "/stream/")
}

// FailSessions makes the session endpoint answer with status.
// Zero restores normal behavior.
func (s *Server) FailSessions(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionFail = status
}

// Deny makes token requests for documentPath fail with status and reason.
func (s *Server) Deny(documentPath string, status int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied[documentPath] = status
	s.reasons[documentPath] = reason
}

// SessionCalls returns how many sessions were requested.
func (s *Server) SessionCalls() int {
	return int(s.sessionCalls.Load())
}

// TokenCalls returns how many tokens were requested in total.
func (s *Server) TokenCalls() int {
	return int(s.tokenTotal.Load())
}

// TokenCallsFor returns how many tokens were requested for documentPath.
func (s *Server) TokenCallsFor(documentPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenCalls[documentPath]
}

// MaxConcurrentTokenRequests reports the peak number of token requests in flight.
func (s *Server) MaxConcurrentTokenRequests() int {
	return int(s.maxInFlight.Load())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.sessionCalls.Add(1)

	var req authority.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PrincipalID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "principalId is required"})
		return
	}

	s.mu.Lock()
	fail := s.sessionFail
	s.mu.Unlock()
	if fail != 0 {
		writeJSON(w, fail, map[string]string{"error": "session refused"})
		return
	}

	id := fmt.Sprintf("sess-%s-%d", req.PrincipalID, s.seq.Add(1))
	s.mu.Lock()
	s.sessions[id] = true
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, authority.SessionGrant{
		SessionID:    id,
		ExpiresIn:    int64(s.SessionTTL / time.Second),
		Role:         req.Role,
		AllowedPaths: []string{"/ROOT/"},
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.tokenTotal.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.maxInFlight.Load()
		if n <= peak || s.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	var req authority.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request"})
		return
	}

	s.mu.Lock()
	s.tokenCalls[req.DocumentPath]++
	known := s.sessions[req.SessionID]
	status, denied := s.denied[req.DocumentPath]
	reason := s.reasons[req.DocumentPath]
	s.mu.Unlock()

	if s.TokenDelay > 0 {
		time.Sleep(s.TokenDelay)
	}

	switch {
	case !known:
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown session"})
		return
	case denied:
		if reason == "" {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, status, map[string]string{"error": reason})
		return
	}

	writeJSON(w, http.StatusOK, authority.TokenGrant{
		Token:        MintToken(req.DocumentPath, s.Now().Add(s.TokenTTL)),
		ExpiresIn:    int64(s.TokenTTL / time.Second),
		DocumentPath: req.DocumentPath,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
