// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

// Package claims reads the unverified claims out of secure document URLs.
//
// Decoding here is advisory expiry estimation, NOT a trust boundary. The
// client holds no verification key and never checks the token signature;
// the authority re-validates every token on every stream request. Nothing
// in this package may be used to decide whether a caller is authorized.
//
// Any URL whose claims cannot be read is treated as expired (fail closed),
// so an ambiguous link is refreshed rather than trusted.
package claims

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// StreamMarker separates the service base from the token in a secure URL.
const StreamMarker = "/stream/"

// DefaultBuffer is the safety margin applied by IsExpired.
const DefaultBuffer = 30 * time.Second

// Claims are the token payload fields docaccess consumes.
// Unknown payload fields are ignored.
type Claims struct {
	DocumentPath string
	// Exp is the absolute expiry in unix seconds; nil when the payload has none.
	Exp *int64
}

// ExpiresAt returns Exp as a time, and false when Exp is absent.
func (c *Claims) ExpiresAt() (time.Time, bool) {
	if c == nil || c.Exp == nil {
		return time.Time{}, false
	}
	return time.Unix(*c.Exp, 0), true
}

// SplitURL splits a secure URL into its service base and token.
// It reports false unless raw contains the stream marker exactly once
// with a non-empty token after it. Query and fragment are dropped from
// the token.
func SplitURL(raw string) (base, token string, ok bool) {
	parts := strings.Split(raw, StreamMarker)
	if len(parts) != 2 {
		return "", "", false
	}
	token = parts[1]
	if i := strings.IndexAny(token, "#?"); i >= 0 {
		token = token[:i]
	}
	if token == "" {
		return "", "", false
	}
	return parts[0], token, true
}

// HasSecureShape is the cheap shape test: does raw look like a secure URL?
// It does not decode anything.
func HasSecureShape(raw string) bool {
	_, _, ok := SplitURL(raw)
	return ok
}

// Decode returns the claims embedded in a secure URL.
// It reports false, never an error, for anything it cannot read.
func Decode(raw string) (*Claims, bool) {
	_, token, ok := SplitURL(raw)
	if !ok {
		return nil, false
	}

	fields := strings.Split(token, ".")
	if len(fields) != 3 {
		return nil, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(fields[1], "="))
	if err != nil {
		return nil, false
	}

	var body struct {
		DocumentPath string          `json:"document_path"`
		Exp          json.RawMessage `json:"exp"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, false
	}

	c := &Claims{DocumentPath: body.DocumentPath}
	if exp, ok := parseExp(body.Exp); ok {
		c.Exp = &exp
	}
	return c, true
}

// parseExp accepts integer, float and numeric-string exp values.
func parseExp(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	s := string(raw)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// PageFromURL returns the page anchor (#page=N) of raw, if any.
func PageFromURL(raw string) (int, bool) {
	i := strings.LastIndex(raw, "#page=")
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(raw[i+len("#page="):])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
