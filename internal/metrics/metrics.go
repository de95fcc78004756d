// Package metrics holds the service's Prometheus collectors. They register
// with the default registry and are served by promhttp at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "moneyloop"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	PlaidRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plaid_requests_total",
			Help:      "Plaid API calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	PlaidRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plaid_request_duration_seconds",
			Help:      "Plaid API call latency by operation",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	InstitutionSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "institution_syncs_total",
			Help:      "Per-institution sync attempts by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	RowsUpsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_upserted_total",
			Help:      "Rows written by table and kind (inserted, updated, failed)",
		},
		[]string{"table", "kind"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache name and result",
		},
		[]string{"cache", "result"},
	)
)

func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func RecordPlaidRequest(operation string, d time.Duration, err error) {
	PlaidRequestsTotal.WithLabelValues(operation, outcome(err)).Inc()
	PlaidRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func RecordInstitutionSync(operation string, err error) {
	InstitutionSyncsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

func RecordUpserts(table string, inserted, updated, failed int) {
	if inserted > 0 {
		RowsUpsertedTotal.WithLabelValues(table, "inserted").Add(float64(inserted))
	}
	if updated > 0 {
		RowsUpsertedTotal.WithLabelValues(table, "updated").Add(float64(updated))
	}
	if failed > 0 {
		RowsUpsertedTotal.WithLabelValues(table, "failed").Add(float64(failed))
	}
}

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

func RecordCacheLookup(cache, result string) {
	CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
