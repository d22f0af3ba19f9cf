// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package claims

import "time"

// Inspector computes expiry verdicts for secure URLs.
type Inspector struct {
	buffer time.Duration
	now    func() time.Time
}

// InspectorOption configures an Inspector.
type InspectorOption func(*Inspector)

// WithBuffer sets the default safety margin.
func WithBuffer(d time.Duration) InspectorOption {
	return func(i *Inspector) {
		if d >= 0 {
			i.buffer = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) InspectorOption {
	return func(i *Inspector) {
		if now != nil {
			i.now = now
		}
	}
}

// NewInspector creates an Inspector with DefaultBuffer and the wall clock.
func NewInspector(opts ...InspectorOption) *Inspector {
	i := &Inspector{buffer: DefaultBuffer, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IsExpired reports whether raw is expired or about to expire within the
// inspector's buffer. Undecodable URLs and tokens without exp count as expired.
func (i *Inspector) IsExpired(raw string) bool {
	return i.IsExpiredWithBuffer(raw, i.buffer)
}

// IsExpiredWithBuffer is IsExpired with an explicit buffer.
func (i *Inspector) IsExpiredWithBuffer(raw string, buffer time.Duration) bool {
	c, ok := Decode(raw)
	if !ok || c.Exp == nil {
		return true
	}
	nowSec := float64(i.now().UnixMilli()) / 1000
	return nowSec > float64(*c.Exp)-buffer.Seconds()
}

// Report is a human-oriented view of one URL's claims.
type Report struct {
	URL          string     `json:"url"`
	Decodable    bool       `json:"decodable"`
	DocumentPath string     `json:"document_path,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Remaining    string     `json:"remaining,omitempty"`
	Page         int        `json:"page,omitempty"`
	Expired      bool       `json:"expired"`
}

// Inspect decodes raw and reports its claims and verdict.
func (i *Inspector) Inspect(raw string) Report {
	r := Report{URL: raw, Expired: i.IsExpired(raw)}
	if page, ok := PageFromURL(raw); ok {
		r.Page = page
	}

	c, ok := Decode(raw)
	if !ok {
		return r
	}
	r.Decodable = true
	r.DocumentPath = c.DocumentPath
	if exp, ok := c.ExpiresAt(); ok {
		r.ExpiresAt = &exp
		if left := exp.Sub(i.now()); left > 0 {
			r.Remaining = left.Truncate(time.Second).String()
		} else {
			r.Remaining = "0s"
		}
	}
	return r
}
