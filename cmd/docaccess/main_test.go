// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celesteos/docaccess/internal/authority/authoritytest"
	"github.com/celesteos/docaccess/internal/claims"
	"github.com/celesteos/docaccess/internal/config"
	"github.com/celesteos/docaccess/internal/history"
	"github.com/celesteos/docaccess/internal/issuer"
)

// isolate keeps tests away from the developer's own config file.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	configFile = ""
}

func execute(t *testing.T, deps *Deps, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd(deps)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func authorityArgs(fake *authoritytest.Server, args ...string) []string {
	return append([]string{"--authority-url", fake.URL, "--principal", "user-1", "--log-format", "text", "--log-level", "error"}, args...)
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, nil, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"url", "open", "inspect", "refresh", "serve", "schema", "config"} {
		assert.Contains(t, out, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantFlag string
	}{
		{
			name:     "config flag",
			args:     []string{"--config", "/path/to/config.yaml", "--help"},
			wantFlag: "/path/to/config.yaml",
		},
		{
			name:     "config flag with equals",
			args:     []string{"--config=/etc/docaccess.yaml", "--help"},
			wantFlag: "/etc/docaccess.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, _, err := execute(t, nil, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFlag, configFile)
		})
	}
}

func TestURLCommand(t *testing.T) {
	isolate(t)
	fake := authoritytest.NewServer()
	defer fake.Close()

	out, _, err := execute(t, nil, authorityArgs(fake, "url", "--page", "5", "file:///ROOT/q1.pdf")...)
	require.NoError(t, err)

	u := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(u, fake.ServiceURL()+"/stream/"), u)
	assert.True(t, strings.HasSuffix(u, "#page=5"), u)
	c, ok := claims.Decode(u)
	require.True(t, ok)
	assert.Equal(t, "/ROOT/q1.pdf", c.DocumentPath)
}

func TestURLCommand_RequiresPrincipal(t *testing.T) {
	isolate(t)
	fake := authoritytest.NewServer()
	defer fake.Close()

	_, _, err := execute(t, nil, "--authority-url", fake.URL, "url", "/ROOT/a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "principal")
	assert.Zero(t, fake.SessionCalls())
}

func TestURLCommand_RequiresAuthority(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, nil, "--principal", "u", "url", "/ROOT/a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authority.base_url")
}

func TestURLCommand_FromConfigFile(t *testing.T) {
	isolate(t)
	fake := authoritytest.NewServer()
	defer fake.Close()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("authority:\n  base_url: "+fake.URL+"\nidentity:\n  principal: from-file\nlog:\n  level: error\n"), 0o600))

	out, _, err := execute(t, nil, "--config", path, "url", "/ROOT/a.pdf")
	require.NoError(t, err)
	assert.True(t, claims.HasSecureShape(strings.TrimSpace(out)))
}

func TestOpenCommand(t *testing.T) {
	isolate(t)
	fake := authoritytest.NewServer()
	defer fake.Close()

	var opened string
	deps := &Deps{Viewer: issuer.ViewerFunc(func(_ context.Context, u string) error {
		opened = u
		return nil
	})}

	_, _, err := execute(t, deps, authorityArgs(fake, "open", "/ROOT/a.pdf")...)
	require.NoError(t, err)
	assert.True(t, claims.HasSecureShape(opened))
}

func TestOpenCommand_DefaultViewerPrints(t *testing.T) {
	isolate(t)
	fake := authoritytest.NewServer()
	defer fake.Close()

	out, _, err := execute(t, nil, authorityArgs(fake, "open", "/ROOT/a.pdf")...)
	require.NoError(t, err)
	assert.True(t, claims.HasSecureShape(strings.TrimSpace(out)))
}

func TestOpenCommand_UserMessageOnFailure(t *testing.T) {
	isolate(t)
	fake := authoritytest.NewServer()
	defer fake.Close()
	fake.Deny("/ROOT/secret.pdf", http.StatusForbidden, "nope")

	_, stderr, err := execute(t, nil, authorityArgs(fake, "open", "/ROOT/secret.pdf")...)
	require.Error(t, err)
	assert.Contains(t, stderr, "You do not have access to this document.")
}

func TestOpenCommand_ViewerFailure(t *testing.T) {
	isolate(t)
	fake := authoritytest.NewServer()
	defer fake.Close()

	deps := &Deps{Viewer: issuer.ViewerFunc(func(context.Context, string) error {
		return errors.New("no display")
	})}
	_, stderr, err := execute(t, deps, authorityArgs(fake, "open", "/ROOT/a.pdf")...)
	require.Error(t, err)
	assert.Contains(t, stderr, "The document viewer could not be started.")
}

func TestInspectCommand(t *testing.T) {
	isolate(t)
	expired := "https://svc/api/documents/stream/" + authoritytest.MintToken("/ROOT/a.pdf", time.Now().Add(-time.Minute))
	fresh := "https://svc/api/documents/stream/" + authoritytest.MintToken("/ROOT/b.pdf", time.Now().Add(time.Hour))

	out, _, err := execute(t, nil, "inspect", expired, fresh+"#page=2", "https://example.com/plain")
	require.NoError(t, err)

	var reports []claims.Report
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 3)
	assert.True(t, reports[0].Expired)
	assert.False(t, reports[1].Expired)
	assert.Equal(t, 2, reports[1].Page)
	assert.False(t, reports[2].Decodable)
	assert.True(t, reports[2].Expired)
}

func writeSnapshot(t *testing.T, fake *authoritytest.Server) (string, string) {
	t.Helper()
	old := fake.ServiceURL() + "/stream/" + authoritytest.MintToken("/ROOT/a.pdf", time.Now().Add(-time.Minute))
	body := `{
  // exported from the chat store
  "conversation_id": "c1",
  "records": [
    {"id": "m1", "content": "first", "links": [{"url": "` + old + `"}]},
    {"id": "m2", "links": [{"url": "` + old + `", "page": 3}]},
  ]
}`
	path := filepath.Join(t.TempDir(), "history.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, old
}

func TestRefreshCommand(t *testing.T) {
	isolate(t)
	fake := authoritytest.NewServer()
	defer fake.Close()
	in, old := writeSnapshot(t, fake)
	outPath := filepath.Join(t.TempDir(), "out.json")

	_, stderr, err := execute(t, nil, authorityArgs(fake, "refresh", in, "--out", outPath)...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "refreshed 1 of 1 expired links (0 failed)")

	snap, err := history.Load(outPath)
	require.NoError(t, err)
	first := snap.Records[0].Links[0].URL
	assert.NotEqual(t, old, first)
	assert.True(t, strings.HasSuffix(snap.Records[1].Links[0].URL, "#page=3"))
	assert.Equal(t, 1, fake.TokenCalls())

	original, err := history.Load(in)
	require.NoError(t, err)
	assert.Equal(t, old, original.Records[0].Links[0].URL, "input must not be rewritten")
}

func TestRefreshCommand_AutoNothingToDo(t *testing.T) {
	isolate(t)
	fake := authoritytest.NewServer()
	defer fake.Close()

	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"records":[{"links":[{"url":"https://example.com/a"}]}]}`), 0o600))

	out, stderr, err := execute(t, nil, authorityArgs(fake, "refresh", "--auto", path)...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "no expired links")
	assert.Contains(t, out, "https://example.com/a")
	assert.Zero(t, fake.SessionCalls())
}

func TestRefreshCommand_InvalidSnapshot(t *testing.T) {
	isolate(t)
	fake := authoritytest.NewServer()
	defer fake.Close()

	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"records": 7}`), 0o600))

	_, _, err := execute(t, nil, authorityArgs(fake, "refresh", path)...)
	assert.Error(t, err)
}

func TestSchemaCommand(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, nil, "schema")
	require.NoError(t, err)
	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, history.SchemaID, schema["$id"])

	path := filepath.Join(t.TempDir(), "schemas", "history.schema.json")
	_, _, err = execute(t, nil, "schema", "--out", path)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestBuildApp_UsesLoadedConfigAndLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Authority.BaseURL = "https://auth.example.com"
	cfg.Refresh.Concurrency = 3
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := buildApp(&cfg, logger, nil)
	require.NoError(t, err)
	assert.Same(t, &cfg, a.cfg)
	assert.Same(t, logger, a.logger)
	assert.NotNil(t, a.issuer)
	assert.NotNil(t, a.refresher)
}

func TestBuildApp_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	_, err := buildApp(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authority.base_url")
}

func TestServeCommand(t *testing.T) {
	isolate(t)
	fake := authoritytest.NewServer()
	defer fake.Close()

	listeners := make(chan net.Listener, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := &Deps{
		ListenerFactory: func(network, _ string) (net.Listener, error) {
			l, err := net.Listen(network, "127.0.0.1:0")
			if err == nil {
				listeners <- l
			}
			return l, err
		},
		ShutdownContext: func(context.Context) (context.Context, context.CancelFunc) {
			return context.WithCancel(ctx)
		},
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := execute(t, deps, authorityArgs(fake, "serve")...)
		done <- err
	}()

	var l net.Listener
	select {
	case l = <-listeners:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not start listening")
	}

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://" + l.Addr().String() + "/v1/inspect?url=x")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 5*time.Second, 20*time.Millisecond)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"success":true`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestRefreshCommand_InPlaceUnchanged(t *testing.T) {
	isolate(t)
	fake := authoritytest.NewServer()
	defer fake.Close()

	fresh := fake.ServiceURL() + "/stream/" + authoritytest.MintToken("/ROOT/a.pdf", time.Now().Add(time.Hour))
	path := filepath.Join(t.TempDir(), "history.json")
	body := `{"records":[{"links":[{"url":"` + fresh + `"}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, stderr, err := execute(t, nil, authorityArgs(fake, "refresh", path, "--out", path)...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "snapshot unchanged")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}

func TestConfigCommand(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, nil, "--authority-url", "https://auth.example.com", "--session-buffer", "2m", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "base_url: https://auth.example.com")
	assert.Contains(t, out, "buffer: 2m0s")
}
