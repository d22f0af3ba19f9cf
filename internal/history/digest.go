// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
	"github.com/samber/oops"
)

// Digest returns the sha256 hex digest of s in RFC 8785 canonical form.
// Snapshots that differ only in member order or whitespace share a digest.
func Digest(s *Snapshot) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", oops.Wrapf(err, "encode snapshot")
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", oops.Wrapf(err, "canonicalize snapshot")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
