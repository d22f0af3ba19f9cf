// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

// Package config loads docaccess configuration.
//
// Values are layered: built-in defaults, then the YAML config file, then
// command-line flags the user actually set.
package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/celesteos/docaccess/internal/authority"
	"github.com/celesteos/docaccess/internal/claims"
	"github.com/celesteos/docaccess/internal/docpath"
	"github.com/celesteos/docaccess/internal/session"
	"github.com/celesteos/docaccess/internal/xdg"
)

// Config is the full docaccess configuration.
type Config struct {
	Authority AuthorityConfig `koanf:"authority"`
	Session   SessionConfig   `koanf:"session"`
	Inspector InspectorConfig `koanf:"inspector"`
	Refresh   RefreshConfig   `koanf:"refresh"`
	Path      PathConfig      `koanf:"path"`
	Identity  IdentityConfig  `koanf:"identity"`
	Log       LogConfig       `koanf:"log"`
	Server    ServerConfig    `koanf:"server"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// AuthorityConfig locates the access authority.
type AuthorityConfig struct {
	BaseURL string `koanf:"base_url"`
	// ServiceURL is the base secure URLs are built on. Empty means
	// BaseURL + /api/documents.
	ServiceURL string        `koanf:"service_url"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
}

// SessionConfig tunes the session cache.
type SessionConfig struct {
	Buffer       time.Duration `koanf:"buffer"`
	SingleFlight bool          `koanf:"single_flight"`
}

// InspectorConfig tunes expiry estimation.
type InspectorConfig struct {
	Buffer time.Duration `koanf:"buffer"`
}

// RefreshConfig tunes batch refresh.
type RefreshConfig struct {
	Concurrency int `koanf:"concurrency"`
}

// PathConfig controls document path normalization.
type PathConfig struct {
	RootMarker string `koanf:"root_marker"`
}

// IdentityConfig is the default principal for CLI commands.
type IdentityConfig struct {
	Principal string `koanf:"principal"`
	Role      string `koanf:"role"`
}

// LogConfig controls logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// ServerConfig controls the API server.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// MetricsConfig controls the metrics/health server. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Authority: AuthorityConfig{
			Timeout: 10 * time.Second,
		},
		Session:   SessionConfig{Buffer: session.DefaultBuffer},
		Inspector: InspectorConfig{Buffer: claims.DefaultBuffer},
		Refresh:   RefreshConfig{Concurrency: 0}, // unbounded fan-out
		Path:      PathConfig{RootMarker: docpath.DefaultRootMarker},
		Identity:  IdentityConfig{Role: "user"},
		Log:       LogConfig{Format: "json", Level: "info"},
		Server:    ServerConfig{Addr: "127.0.0.1:8480"},
		Metrics:   MetricsConfig{Addr: ""},
	}
}

// ResolvedServiceURL returns ServiceURL, or the default derived from BaseURL.
func (c *AuthorityConfig) ResolvedServiceURL() string {
	if c.ServiceURL != "" {
		return strings.TrimSuffix(c.ServiceURL, "/")
	}
	return strings.TrimSuffix(c.BaseURL, "/") + strings.TrimSuffix(authority.StreamPath, "/stream/")
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Authority.BaseURL == "" {
		return oops.Errorf("authority.base_url is required")
	}
	if err := absoluteURL("authority.base_url", c.Authority.BaseURL); err != nil {
		return err
	}
	if c.Authority.ServiceURL != "" {
		if err := absoluteURL("authority.service_url", c.Authority.ServiceURL); err != nil {
			return err
		}
	}
	if c.Authority.Timeout <= 0 {
		return oops.With("timeout", c.Authority.Timeout).Errorf("authority.timeout must be positive")
	}
	if c.Authority.MaxRetries < 0 {
		return oops.With("max_retries", c.Authority.MaxRetries).Errorf("authority.max_retries must not be negative")
	}
	if c.Session.Buffer < 0 {
		return oops.Errorf("session.buffer must not be negative")
	}
	if c.Inspector.Buffer < 0 {
		return oops.Errorf("inspector.buffer must not be negative")
	}
	if c.Refresh.Concurrency < 0 {
		return oops.Errorf("refresh.concurrency must not be negative")
	}
	if strings.Trim(c.Path.RootMarker, "/") == "" {
		return oops.Errorf("path.root_marker must name a directory")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return oops.With("format", c.Log.Format).Errorf("log.format must be json or text")
	}
	return nil
}

func absoluteURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return oops.With("key", key).Wrapf(err, "parse %s", key)
	}
	if u.Scheme == "" || u.Host == "" {
		return oops.With("key", key).With("url", raw).Errorf("%s must be an absolute URL", key)
	}
	return nil
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"authority-url":     "authority.base_url",
	"service-url":       "authority.service_url",
	"authority-timeout": "authority.timeout",
	"max-retries":       "authority.max_retries",
	"session-buffer":    "session.buffer",
	"single-flight":     "session.single_flight",
	"inspector-buffer":  "inspector.buffer",
	"concurrency":       "refresh.concurrency",
	"root-marker":       "path.root_marker",
	"principal":         "identity.principal",
	"role":              "identity.role",
	"log-format":        "log.format",
	"log-level":         "log.level",
	"addr":              "server.addr",
	"metrics-addr":      "metrics.addr",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("authority-url", d.Authority.BaseURL, "access authority base URL")
	fs.String("service-url", d.Authority.ServiceURL, "document service base URL (default: <authority-url>/api/documents)")
	fs.Duration("authority-timeout", d.Authority.Timeout, "per-request timeout for authority calls")
	fs.Int("max-retries", d.Authority.MaxRetries, "retries for unreachable authority (0 = none)")
	fs.Duration("session-buffer", d.Session.Buffer, "renew sessions this long before they expire")
	fs.Bool("single-flight", d.Session.SingleFlight, "share one in-flight session acquisition between callers")
	fs.Duration("inspector-buffer", d.Inspector.Buffer, "treat links as expired this long before exp")
	fs.Int("concurrency", d.Refresh.Concurrency, "max concurrent link refreshes (0 = unbounded)")
	fs.String("root-marker", d.Path.RootMarker, "path segment that anchors document paths")
	fs.String("principal", d.Identity.Principal, "principal id to act as")
	fs.String("role", d.Identity.Role, "role to request")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// RegisterServerFlags adds the serve-only flags to fs.
func RegisterServerFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("addr", d.Server.Addr, "API listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
}

// LoadOptions controls Load.
type LoadOptions struct {
	// File is an explicit config file. A missing explicit file is an error.
	File string
	// Flags are overlaid last; only flags the user changed apply.
	Flags *pflag.FlagSet
}

// Load builds a Config from defaults, the config file and flags.
// It does not validate; call Validate when the command needs a complete config.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")
	if err := setDefaults(k, Default()); err != nil {
		return nil, err
	}

	path, explicit := opts.File, true
	if path == "" {
		path, explicit = xdg.ConfigFile(), false
	}
	if _, err := os.Stat(path); err == nil || explicit {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.With("path", path).Wrapf(err, "load config file")
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Wrapf(err, "load flags")
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Wrapf(err, "decode config")
	}
	return &cfg, nil
}

func setDefaults(k *koanf.Koanf, d Config) error {
	defaults := map[string]any{
		"authority.base_url":    d.Authority.BaseURL,
		"authority.service_url": d.Authority.ServiceURL,
		"authority.timeout":     d.Authority.Timeout,
		"authority.max_retries": d.Authority.MaxRetries,
		"session.buffer":        d.Session.Buffer,
		"session.single_flight": d.Session.SingleFlight,
		"inspector.buffer":      d.Inspector.Buffer,
		"refresh.concurrency":   d.Refresh.Concurrency,
		"path.root_marker":      d.Path.RootMarker,
		"identity.principal":    d.Identity.Principal,
		"identity.role":         d.Identity.Role,
		"log.format":            d.Log.Format,
		"log.level":             d.Log.Level,
		"server.addr":           d.Server.Addr,
		"metrics.addr":          d.Metrics.Addr,
	}
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return oops.With("key", key).Wrapf(err, "set default")
		}
	}
	return nil
}
