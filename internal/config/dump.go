// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package config

import (
	"io"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// MarshalYAML renders c with the same keys Load reads, durations as strings.
func (c Config) MarshalYAML() (any, error) {
	return map[string]map[string]any{
		"authority": {
			"base_url":    c.Authority.BaseURL,
			"service_url": c.Authority.ServiceURL,
			"timeout":     c.Authority.Timeout.String(),
			"max_retries": c.Authority.MaxRetries,
		},
		"session": {
			"buffer":        c.Session.Buffer.String(),
			"single_flight": c.Session.SingleFlight,
		},
		"inspector": {"buffer": c.Inspector.Buffer.String()},
		"refresh":   {"concurrency": c.Refresh.Concurrency},
		"path":      {"root_marker": c.Path.RootMarker},
		"identity": {
			"principal": c.Identity.Principal,
			"role":      c.Identity.Role,
		},
		"log": {
			"format": c.Log.Format,
			"level":  c.Log.Level,
		},
		"server":  {"addr": c.Server.Addr},
		"metrics": {"addr": c.Metrics.Addr},
	}, nil
}

// Write encodes c as a YAML config file.
func Write(w io.Writer, c *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return oops.Wrapf(err, "encode config")
	}
	return oops.Wrap(enc.Close())
}
