// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package issuer

import (
	"fmt"

	"github.com/samber/oops"

	"github.com/celesteos/docaccess/internal/authority"
	"github.com/celesteos/docaccess/internal/docpath"
	"github.com/celesteos/docaccess/internal/session"
)

// Error codes raised by the issuer itself. Path and session failures keep
// the codes of docpath and session.
const (
	CodeTokenRequestFailed = "TOKEN_REQUEST_FAILED"
	CodeViewerFailed       = "VIEWER_FAILED"
)

// ErrTokenRequest creates a TokenRequestError for documentPath.
func ErrTokenRequest(documentPath string, cause error) error {
	builder := oops.Code(CodeTokenRequestFailed).With("document_path", documentPath)
	if se, ok := authority.AsStatusError(cause); ok {
		builder = builder.With("status", se.Status)
		if se.Reason != "" {
			builder = builder.With("reason", se.Reason)
		}
	}
	return builder.Wrapf(cause, "request token for %s", documentPath)
}

// IsTokenRequestError reports whether err is a token request failure.
func IsTokenRequestError(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == CodeTokenRequestFailed
}

// UserMessage maps an issuer failure to a message fit for an error dialog.
func UserMessage(err error) string {
	if err == nil {
		return "The document could not be opened."
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "The document could not be opened."
	}

	switch oopsErr.Code() {
	case docpath.CodeInvalidPath:
		return "This document link is not valid."
	case session.CodeAcquisitionFailed:
		if authority.IsUnreachable(err) {
			return "The document service is unreachable. Check the connection and try again."
		}
		return "Could not start a secure document session. Try again."
	case CodeTokenRequestFailed:
		return tokenFailureMessage(err)
	case CodeViewerFailed:
		return "The document viewer could not be started."
	default:
		return "The document could not be opened."
	}
}

func tokenFailureMessage(err error) string {
	se, ok := authority.AsStatusError(err)
	if !ok {
		if authority.IsUnreachable(err) {
			return "The document service is unreachable. Check the connection and try again."
		}
		return "The document could not be opened."
	}
	switch se.Kind() {
	case authority.KindForbidden:
		return "You do not have access to this document."
	case authority.KindUnauthorized:
		return "Your document session has ended. Try again."
	case authority.KindRateLimited:
		if se.RetryAfter > 0 {
			return fmt.Sprintf("Too many document requests. Try again in %d seconds.", int(se.RetryAfter.Seconds()))
		}
		return "Too many document requests. Try again shortly."
	default:
		if se.Reason != "" {
			return "The document could not be opened: " + se.Reason
		}
		return "The document could not be opened."
	}
}
