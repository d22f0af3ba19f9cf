// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

// Package authority is the client side of the access authority's HTTP JSON API.
//
// The authority issues two kinds of credentials:
//   - sessions, for a principal and role (POST /api/auth/session)
//   - capability tokens, for one document path under a live session
//     (POST /api/documents/request)
//
// The client never decides authorization. Any non-2xx response is a hard
// failure reported as *StatusError; transport failures wrap ErrUnreachable
// and are the only failures eligible for retry.
package authority
