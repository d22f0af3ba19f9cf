// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package authority

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnreachable marks failures where no HTTP response was received.
var ErrUnreachable = errors.New("access authority unreachable")

// Failure kinds reported by StatusError.Kind.
const (
	KindUnauthorized = "unauthorized"
	KindForbidden    = "forbidden"
	KindRateLimited  = "rate_limited"
	KindStatus       = "status"
)

// StatusError is a non-2xx response from the authority.
type StatusError struct {
	Endpoint   string
	Status     int
	Reason     string        // the body's "error" field, if any
	RetryAfter time.Duration // parsed Retry-After, zero if absent
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("authority %s returned %d: %s", e.Endpoint, e.Status, e.Reason)
	}
	return fmt.Sprintf("authority %s returned %d", e.Endpoint, e.Status)
}

// Kind classifies the status into a coarse failure kind.
func (e *StatusError) Kind() string {
	switch e.Status {
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindStatus
	}
}

// AsStatusError extracts a *StatusError from err's chain.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsUnreachable reports whether err is a transport failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
