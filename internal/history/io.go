// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package history

import (
	"encoding/json"
	"io"
	"os"

	"github.com/samber/oops"
	"github.com/tidwall/jsonc"
)

// Parse decodes a snapshot. Comments and trailing commas (JSONC) are
// tolerated; the result must satisfy the snapshot schema.
func Parse(data []byte) (*Snapshot, error) {
	clean := jsonc.ToJSON(data)
	if err := Validate(clean); err != nil {
		return nil, err
	}

	var s Snapshot
	if err := json.Unmarshal(clean, &s); err != nil {
		return nil, oops.Code(CodeInvalidSnapshot).Wrapf(err, "decode snapshot")
	}
	return &s, nil
}

// Load reads and parses the snapshot file at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, oops.With("path", path).Wrapf(err, "read snapshot")
	}
	s, err := Parse(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return s, nil
}

// Encode writes s as indented JSON.
func Encode(w io.Writer, s *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return oops.In("history").Wrapf(err, "encode snapshot")
	}
	return nil
}

// Save writes s to path, replacing any existing file.
func Save(path string, s *Snapshot) error {
	f, err := os.Create(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return oops.With("path", path).Wrapf(err, "create snapshot file")
	}
	if err := Encode(f, s); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return oops.With("path", path).Wrapf(err, "close snapshot file")
	}
	return nil
}
