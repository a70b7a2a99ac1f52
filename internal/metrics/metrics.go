// Package metrics exposes the Prometheus instrumentation for the scanner:
// scan outcomes, upstream call latency and cache behaviour.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybreak_scans_total",
			Help: "Completed scans by verdict",
		},
		[]string{"verdict"}, // CLEAN, SUSPICIOUS, SERIAL_RUGGER, error
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "daybreak_scan_duration_seconds",
			Help:    "End-to-end scan pipeline duration",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		},
	)

	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybreak_upstream_requests_total",
			Help: "Upstream HTTP calls by provider, method and outcome",
		},
		[]string{"provider", "method", "outcome"}, // outcome: ok, error
	)

	upstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "daybreak_upstream_latency_seconds",
			Help:    "Upstream HTTP call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	cacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybreak_cache_events_total",
			Help: "Cache lookups by cache name and result",
		},
		[]string{"cache", "result"}, // result: hit, miss
	)

	paymentsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybreak_payments_accepted_total",
			Help: "Verified payments by scheme",
		},
		[]string{"scheme"}, // onchain, claim
	)

	quotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybreak_quota_rejections_total",
			Help: "Scan requests rejected by the daily quota",
		},
		[]string{"kind"}, // wallet, ip
	)
)

// ObserveScan records one finished scan. Pass the verdict for successful
// scans and "error" for failed ones.
func ObserveScan(verdict string, d time.Duration) {
	scansTotal.WithLabelValues(verdict).Inc()
	scanDuration.Observe(d.Seconds())
}

// ObserveUpstream records one upstream HTTP call.
func ObserveUpstream(provider, method string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamRequests.WithLabelValues(provider, method, outcome).Inc()
	upstreamLatency.WithLabelValues(provider, method).Observe(d.Seconds())
}

// CacheHit records a lookup served from cache.
func CacheHit(name string) {
	cacheEvents.WithLabelValues(name, "hit").Inc()
}

// CacheMiss records a lookup that had to go upstream.
func CacheMiss(name string) {
	cacheEvents.WithLabelValues(name, "miss").Inc()
}

// PaymentAccepted records a verified payment.
func PaymentAccepted(scheme string) {
	paymentsAccepted.WithLabelValues(scheme).Inc()
}

// QuotaRejected records a scan blocked by the daily limit.
func QuotaRejected(kind string) {
	quotaRejections.WithLabelValues(kind).Inc()
}
