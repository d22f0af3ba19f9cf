// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics contains the Prometheus metrics for token lifecycle operations.
// All methods are safe on a nil *Metrics, so components can record
// unconditionally whether or not a registry was wired.
type Metrics struct {
	SessionAcquisitions  *prometheus.CounterVec
	TokenRequests        *prometheus.CounterVec
	RefreshLinks         *prometheus.CounterVec
	RefreshBatchDuration prometheus.Histogram
	HTTPRequests         *prometheus.CounterVec
}

// NewMetrics creates and registers the docaccess metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionAcquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docaccess_session_acquisitions_total",
				Help: "Total number of session acquisitions by result",
			},
			[]string{"result"},
		),
		TokenRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docaccess_token_requests_total",
				Help: "Total number of capability token requests by result",
			},
			[]string{"result"},
		),
		RefreshLinks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docaccess_refresh_links_total",
				Help: "Total number of unique expired links refreshed by result",
			},
			[]string{"result"},
		),
		RefreshBatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docaccess_refresh_batch_duration_seconds",
			Help:    "Histogram of history refresh batch latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docaccess_http_requests_total",
				Help: "Total number of API requests by route and status",
			},
			[]string{"route", "status"},
		),
	}

	reg.MustRegister(m.SessionAcquisitions)
	reg.MustRegister(m.TokenRequests)
	reg.MustRegister(m.RefreshLinks)
	reg.MustRegister(m.RefreshBatchDuration)
	reg.MustRegister(m.HTTPRequests)

	return m
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// RecordSessionAcquisition counts one session acquisition attempt.
func (m *Metrics) RecordSessionAcquisition(ok bool) {
	if m == nil {
		return
	}
	m.SessionAcquisitions.WithLabelValues(result(ok)).Inc()
}

// RecordTokenRequest counts one capability token request.
func (m *Metrics) RecordTokenRequest(ok bool) {
	if m == nil {
		return
	}
	m.TokenRequests.WithLabelValues(result(ok)).Inc()
}

// RecordRefreshBatch records the outcome of one history refresh.
func (m *Metrics) RecordRefreshBatch(succeeded, failed int, d time.Duration) {
	if m == nil {
		return
	}
	m.RefreshLinks.WithLabelValues(ResultSuccess).Add(float64(succeeded))
	m.RefreshLinks.WithLabelValues(ResultFailure).Add(float64(failed))
	m.RefreshBatchDuration.Observe(d.Seconds())
}

// RecordHTTPRequest counts one API request.
func (m *Metrics) RecordHTTPRequest(route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, status).Inc()
}
