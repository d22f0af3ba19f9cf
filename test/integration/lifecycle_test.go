// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"

	"github.com/celesteos/docaccess/internal/claims"
	"github.com/celesteos/docaccess/internal/history"
	"github.com/celesteos/docaccess/internal/observability"
)

var _ = BeforeSuite(func() {
	gin.SetMode(gin.TestMode)
})

var _ = Describe("Secure URL lifecycle", func() {
	var (
		env *testEnv
		ctx context.Context
	)

	BeforeEach(func() {
		env = setupTestEnv()
		ctx = context.Background()
	})

	AfterEach(func() {
		env.cleanup()
	})

	Describe("issuing", func() {
		It("mints a fresh URL and reuses the session", func() {
			first, err := env.issuer.GetSecureURL(ctx, "/ROOT/a.pdf", principal, role)
			Expect(err).NotTo(HaveOccurred())
			second, err := env.issuer.GetSecureURL(ctx, "ROOT/b.pdf", principal, role)
			Expect(err).NotTo(HaveOccurred())

			Expect(claims.HasSecureShape(first)).To(BeTrue())
			Expect(env.inspector.IsExpired(first)).To(BeFalse())
			c, ok := claims.Decode(second)
			Expect(ok).To(BeTrue())
			Expect(c.DocumentPath).To(Equal("/ROOT/b.pdf"))

			Expect(env.fake.SessionCalls()).To(Equal(1))
			Expect(env.fake.TokenCalls()).To(Equal(2))
			Expect(testutil.ToFloat64(env.metrics.TokenRequests.WithLabelValues(observability.ResultSuccess))).To(BeEquivalentTo(2))
		})

		It("renews the session after it is cleared", func() {
			_, err := env.issuer.GetSecureURL(ctx, "/ROOT/a.pdf", principal, role)
			Expect(err).NotTo(HaveOccurred())
			env.sessions.Clear()
			_, err = env.issuer.GetSecureURL(ctx, "/ROOT/a.pdf", principal, role)
			Expect(err).NotTo(HaveOccurred())

			Expect(env.fake.SessionCalls()).To(Equal(2))
		})

		It("renews a session whose lifetime is inside the buffer", func() {
			env.fake.SessionTTL = 30 * time.Second
			_, err := env.issuer.GetSecureURL(ctx, "/ROOT/a.pdf", principal, role)
			Expect(err).NotTo(HaveOccurred())
			_, err = env.issuer.GetSecureURL(ctx, "/ROOT/a.pdf", principal, role)
			Expect(err).NotTo(HaveOccurred())

			Expect(env.fake.SessionCalls()).To(Equal(2))
		})

		It("reports a user-facing message when opening is refused", func() {
			env.fake.Deny("/ROOT/secret.pdf", http.StatusForbidden, "")

			_, err := env.issuer.OpenSecure(ctx, nil, "/ROOT/secret.pdf", 0, principal, role)
			Expect(err).To(HaveOccurred())
			Expect(oops.GetPublic(err, "")).To(Equal("You do not have access to this document."))
			Expect(env.fake.TokenCallsFor("/ROOT/secret.pdf")).To(Equal(1))
		})
	})

	Describe("refreshing history", func() {
		It("re-mints each expired URL once and leaves the rest alone", func() {
			expired := env.streamURL("/ROOT/a.pdf", time.Now().Add(-time.Hour))
			soon := env.streamURL("/ROOT/b.pdf", time.Now().Add(10*time.Second))
			fresh := env.streamURL("/ROOT/c.pdf", time.Now().Add(time.Hour))

			snap := &history.Snapshot{Records: []history.Record{
				{ID: "m1", Links: []history.Link{{URL: expired}, {URL: fresh}}},
				{ID: "m2", Links: []history.Link{{URL: soon}, {URL: expired}}},
				{ID: "m3", Links: []history.Link{{URL: "https://example.com/x"}}},
			}}

			out, report := env.refresher.RefreshHistoryReport(ctx, snap, principal, role)

			Expect(report.UniqueURLs).To(Equal(2))
			Expect(report.Locations).To(Equal(3))
			Expect(report.Refreshed).To(Equal(2))
			Expect(env.fake.TokenCallsFor("/ROOT/a.pdf")).To(Equal(1))
			Expect(env.fake.TokenCallsFor("/ROOT/b.pdf")).To(Equal(1))
			Expect(env.fake.TokenCallsFor("/ROOT/c.pdf")).To(BeZero())

			Expect(out.Records[0].Links[1].URL).To(Equal(fresh))
			Expect(out.Records[2].Links[0].URL).To(Equal("https://example.com/x"))
			Expect(out.Records[0].Links[0].URL).To(Equal(out.Records[1].Links[1].URL))
			Expect(env.inspector.IsExpired(out.Records[1].Links[0].URL)).To(BeFalse())

			Expect(snap.Records[0].Links[0].URL).To(Equal(expired), "input snapshot must be untouched")
		})

		It("keeps failed links and reports them", func() {
			env.fake.Deny("/ROOT/gone.pdf", http.StatusForbidden, "revoked")
			gone := env.streamURL("/ROOT/gone.pdf", time.Now().Add(-time.Hour))
			snap := &history.Snapshot{Records: []history.Record{{Links: []history.Link{{URL: gone}}}}}

			out, report := env.refresher.RefreshHistoryReport(ctx, snap, principal, role)

			Expect(report.Failed).To(Equal(1))
			Expect(report.Results[0].Error).NotTo(BeEmpty())
			Expect(out.Records[0].Links[0].URL).To(Equal(gone))
		})

		It("makes no network calls when nothing is expired", func() {
			snap := &history.Snapshot{Records: []history.Record{
				{Links: []history.Link{{URL: env.streamURL("/ROOT/a.pdf", time.Now().Add(time.Hour))}}},
			}}

			got := env.refresher.AutoRefreshIfNeeded(ctx, snap, principal, role)

			Expect(got.Refreshed).To(BeFalse())
			Expect(got.Snapshot).To(BeIdenticalTo(snap))
			Expect(env.fake.SessionCalls()).To(BeZero())
		})
	})

	Describe("HTTP API", func() {
		post := func(path string, body any) (*http.Response, map[string]any) {
			data, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.Post(env.api.URL+path, "application/json", bytes.NewReader(data))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			var out map[string]any
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			return resp, out
		}

		It("issues secure URLs", func() {
			resp, out := post("/v1/secure-url", map[string]any{"principal_id": principal, "path": "/ROOT/a.pdf", "page": 2})

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			data := out["data"].(map[string]any)
			Expect(data["url"]).To(HaveSuffix("#page=2"))
		})

		It("refreshes a posted snapshot", func() {
			expired := env.streamURL("/ROOT/a.pdf", time.Now().Add(-time.Hour))
			resp, out := post("/v1/history/auto-refresh", map[string]any{
				"principal_id": principal,
				"snapshot": map[string]any{
					"records": []any{map[string]any{"id": "m1", "links": []any{map[string]any{"url": expired}}}},
				},
			})

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			data := out["data"].(map[string]any)
			Expect(data["refreshed"]).To(BeTrue())
			Expect(env.fake.TokenCalls()).To(Equal(1))
		})

		It("rejects paths outside the document root", func() {
			resp, out := post("/v1/secure-url", map[string]any{"principal_id": principal, "path": "/etc/passwd"})

			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(out["error"].(map[string]any)["code"]).To(Equal("INVALID_PATH"))
			Expect(env.fake.SessionCalls()).To(BeZero())
		})
	})
})
