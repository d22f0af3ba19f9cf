// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/celesteos/docaccess/internal/authority"
	"github.com/celesteos/docaccess/internal/docpath"
	"github.com/celesteos/docaccess/internal/history"
	"github.com/celesteos/docaccess/internal/issuer"
	"github.com/celesteos/docaccess/internal/session"
	"github.com/celesteos/docaccess/pkg/errutil"
)

// Error codes that only the API produces.
const (
	CodeBadRequest = "BAD_REQUEST"
	CodeInternal   = "INTERNAL"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errorBody{Code: CodeBadRequest, Message: message}})
}

// fail writes err as an error response. The status and code follow the
// error's code; the message is the user-facing one.
func (s *Server) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(requestContext(c), s.logger, "api request failed", err)
	} else {
		errutil.LogWarnContext(requestContext(c), s.logger, "api request rejected", err)
	}

	msg := oops.GetPublic(err, "")
	switch {
	case msg != "":
	case code == history.CodeInvalidSnapshot:
		msg = "The history snapshot is not valid."
	default:
		msg = issuer.UserMessage(err)
	}
	c.JSON(status, gin.H{"success": false, "error": errorBody{Code: code, Message: msg}})
}

func classify(err error) (int, string) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return http.StatusInternalServerError, CodeInternal
	}
	code, _ := oopsErr.Code().(string)
	switch code {
	case docpath.CodeInvalidPath, history.CodeInvalidSnapshot:
		return http.StatusBadRequest, code
	case session.CodeAcquisitionFailed:
		return http.StatusBadGateway, code
	case issuer.CodeTokenRequestFailed:
		if se, ok := authority.AsStatusError(err); ok {
			switch se.Kind() {
			case authority.KindForbidden:
				return http.StatusForbidden, code
			case authority.KindRateLimited:
				return http.StatusTooManyRequests, code
			}
		}
		return http.StatusBadGateway, code
	case "":
		return http.StatusInternalServerError, CodeInternal
	default:
		return http.StatusInternalServerError, code
	}
}
