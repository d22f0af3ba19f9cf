// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

// Package docpath canonicalizes document references into root-relative paths.
//
// A reference is either a bare path ("/ROOT/manuals/engine.pdf",
// "ROOT/manuals/engine.pdf") or a full URL whose path component carries
// the same form. The canonical form always starts with the root marker,
// and is the unit the access authority scopes tokens by.
package docpath

import (
	"net/url"
	"strings"

	"github.com/samber/oops"
)

// DefaultRootMarker is the prefix every canonical document path starts with.
const DefaultRootMarker = "/ROOT/"

// CodeInvalidPath is the oops code carried by normalization failures.
const CodeInvalidPath = "INVALID_PATH"

// Normalizer converts document references into canonical root-relative paths.
// The zero value is not usable; create one with NewNormalizer.
type Normalizer struct {
	marker string
}

// NewNormalizer returns a Normalizer for the given root marker.
// An empty marker selects DefaultRootMarker. Missing leading or trailing
// slashes are added so "ROOT" and "/ROOT/" are equivalent.
func NewNormalizer(marker string) *Normalizer {
	marker = strings.Trim(strings.TrimSpace(marker), "/")
	if marker == "" {
		return &Normalizer{marker: DefaultRootMarker}
	}
	return &Normalizer{marker: "/" + marker + "/"}
}

// Marker returns the canonical root marker, including both slashes.
func (n *Normalizer) Marker() string {
	return n.marker
}

// Normalize returns the canonical form of raw.
// Already-canonical input is returned unchanged.
func (n *Normalizer) Normalize(raw string) (string, error) {
	p := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", ErrInvalidPath(raw, err)
		}
		p = u.Path
	}

	switch {
	case strings.HasPrefix(p, n.marker):
		return p, nil
	case strings.HasPrefix(p, n.marker[1:]):
		return "/" + p, nil
	default:
		return "", ErrInvalidPath(raw, nil)
	}
}

var defaultNormalizer = NewNormalizer(DefaultRootMarker)

// Normalize canonicalizes raw using DefaultRootMarker.
func Normalize(raw string) (string, error) {
	return defaultNormalizer.Normalize(raw)
}

// ErrInvalidPath creates an error for a reference that cannot be normalized.
func ErrInvalidPath(raw string, cause error) error {
	builder := oops.Code(CodeInvalidPath).
		With("path", raw).
		Hint("document paths must start with the root marker")
	if cause != nil {
		return builder.Wrapf(cause, "invalid document path %q", raw)
	}
	return builder.Errorf("invalid document path %q", raw)
}

// IsInvalidPath reports whether err is a normalization failure.
func IsInvalidPath(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == CodeInvalidPath
}
