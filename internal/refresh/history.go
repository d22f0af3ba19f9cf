// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package refresh

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/celesteos/docaccess/internal/claims"
	"github.com/celesteos/docaccess/internal/history"
	"github.com/celesteos/docaccess/internal/issuer"
)

// Location addresses one link inside a snapshot.
type Location struct {
	Record int
	Link   int
}

// plan is the deduplicated work for one snapshot: each unique expired URL,
// the link it is refreshed from, and every location holding it.
type plan struct {
	order     []string
	links     map[string]history.Link
	locations map[string][]Location
}

func (p *plan) size() int { return len(p.order) }

// planRefresh walks snap once and groups expired secure links by URL.
func (e *Engine) planRefresh(snap *history.Snapshot) *plan {
	p := &plan{
		links:     make(map[string]history.Link),
		locations: make(map[string][]Location),
	}
	for ri, rec := range snap.Records {
		for li, link := range rec.Links {
			if !claims.HasSecureShape(link.URL) || !e.inspector.IsExpired(link.URL) {
				continue
			}
			if _, seen := p.locations[link.URL]; !seen {
				p.order = append(p.order, link.URL)
				p.links[link.URL] = link
			}
			p.locations[link.URL] = append(p.locations[link.URL], Location{Record: ri, Link: li})
		}
	}
	return p
}

// RefreshHistory returns a copy of snap with every expired secure link
// re-minted. The caller's snapshot is never modified. When nothing is
// expired, snap itself is returned and no authority call is made.
func (e *Engine) RefreshHistory(ctx context.Context, snap *history.Snapshot, principal, role string) *history.Snapshot {
	out, _ := e.refreshHistory(ctx, snap, principal, role)
	return out
}

// Report summarizes one RefreshHistory run.
type Report struct {
	BatchID    string        `json:"batch_id"`
	UniqueURLs int           `json:"unique_urls"`
	Locations  int           `json:"locations"`
	Refreshed  int           `json:"refreshed"`
	Failed     int           `json:"failed"`
	Results    []Result      `json:"results,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// RefreshHistoryReport is RefreshHistory that also returns the per-URL results.
func (e *Engine) RefreshHistoryReport(ctx context.Context, snap *history.Snapshot, principal, role string) (*history.Snapshot, Report) {
	return e.refreshHistory(ctx, snap, principal, role)
}

func (e *Engine) refreshHistory(ctx context.Context, snap *history.Snapshot, principal, role string) (*history.Snapshot, Report) {
	report := Report{BatchID: ulid.Make().String()}
	if snap == nil {
		return nil, report
	}

	work := e.planRefresh(snap)
	if work.size() == 0 {
		return snap, report
	}

	ctx, span := e.tracer.Start(ctx, "refresh.RefreshHistory")
	defer span.End()
	start := time.Now()

	out := snap.Clone()

	unique := make([]history.Link, work.size())
	for i, u := range work.order {
		unique[i] = work.links[u]
	}
	results := e.RefreshMany(ctx, unique, principal, role)

	stamp := e.now().UTC()
	for _, res := range results {
		locs := work.locations[res.OriginalURL]
		report.Locations += len(locs)
		if !res.Success {
			report.Failed++
			continue
		}
		report.Refreshed++
		base, _, _ := strings.Cut(res.RefreshedURL, "#")
		for _, loc := range locs {
			l := &out.Records[loc.Record].Links[loc.Link]
			l.URL = issuer.WithPage(base, pageOf(*l))
			if l.DocumentPath == "" {
				l.DocumentPath = res.DocumentPath
			}
			ts := stamp
			l.RefreshedAt = &ts
		}
	}

	report.UniqueURLs = work.size()
	report.Results = results
	report.Duration = time.Since(start)
	e.metrics.RecordRefreshBatch(report.Refreshed, report.Failed, report.Duration)

	span.SetAttributes(
		attribute.Int("docaccess.refresh.unique_urls", report.UniqueURLs),
		attribute.Int("docaccess.refresh.refreshed", report.Refreshed),
		attribute.Int("docaccess.refresh.failed", report.Failed),
	)
	e.logger.InfoContext(ctx, "history refresh complete",
		"batch_id", report.BatchID,
		"unique_urls", report.UniqueURLs,
		"locations", report.Locations,
		"refreshed", report.Refreshed,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return out, report
}

// Outcome is the result of AutoRefreshIfNeeded.
type Outcome struct {
	Refreshed bool
	Snapshot  *history.Snapshot
}

// AutoRefreshIfNeeded refreshes snap only when it holds at least one
// secure link and at least one of those is expired. The first check is a
// shape test; decoding happens only when secure links exist.
func (e *Engine) AutoRefreshIfNeeded(ctx context.Context, snap *history.Snapshot, principal, role string) Outcome {
	if !HasSecureLinks(snap) {
		return Outcome{Snapshot: snap}
	}
	if !e.HasExpiredLinks(snap) {
		return Outcome{Snapshot: snap}
	}
	return Outcome{Refreshed: true, Snapshot: e.RefreshHistory(ctx, snap, principal, role)}
}

// HasSecureLinks reports whether any link in snap has the secure URL shape.
func HasSecureLinks(snap *history.Snapshot) bool {
	if snap == nil {
		return false
	}
	for _, rec := range snap.Records {
		for _, link := range rec.Links {
			if claims.HasSecureShape(link.URL) {
				return true
			}
		}
	}
	return false
}

// HasExpiredLinks reports whether any secure link in snap is expired.
func (e *Engine) HasExpiredLinks(snap *history.Snapshot) bool {
	if snap == nil {
		return false
	}
	for _, rec := range snap.Records {
		for _, link := range rec.Links {
			if claims.HasSecureShape(link.URL) && e.inspector.IsExpired(link.URL) {
				return true
			}
		}
	}
	return false
}
