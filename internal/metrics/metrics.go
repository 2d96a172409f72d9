// Package metrics holds the Prometheus collectors of saudedash.
//
// Collectors are registered on the default registry through promauto and
// exposed on /metrics by the API router.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/koustreak/saudedash/internal/errs"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	// Warehouse Metrics
	WarehouseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "warehouse_query_duration_seconds",
			Help: "Duration of warehouse report queries in seconds",
			// reports run up to the 600s statement timeout
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180, 600},
		},
		[]string{"report"},
	)

	WarehouseQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warehouse_query_errors_total",
			Help: "Total number of failed warehouse report queries",
		},
		[]string{"report", "kind"},
	)

	DescriptionReResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warehouse_description_reresolutions_total",
			Help: "Times a description column was re-resolved after an undefined column error",
		},
		[]string{"table"},
	)

	// Identity Provider Metrics
	IdentityBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "identity_breaker_state",
			Help: "Identity provider circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	IdentityRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_requests_total",
			Help: "Total number of identity provider calls",
		},
		[]string{"operation", "result"}, // result: "success", "failure", "rejected"
	)

	// Export Metrics
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_exports_total",
			Help: "Total number of report exports written to object storage",
		},
		[]string{"report", "result"},
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordQuery records a warehouse report run. Failures are counted by
// error kind.
func RecordQuery(report string, duration time.Duration, err error) {
	WarehouseQueryDuration.WithLabelValues(report).Observe(duration.Seconds())
	if err != nil {
		WarehouseQueryErrors.WithLabelValues(report, errs.KindOf(err).String()).Inc()
	}
}

// RecordReResolution counts a description column cache invalidation.
func RecordReResolution(table string) {
	DescriptionReResolutions.WithLabelValues(table).Inc()
}

// SetBreakerState publishes a breaker state (0=closed, 1=half-open, 2=open).
func SetBreakerState(name string, state int) {
	IdentityBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordIdentityCall records the outcome of one identity provider call.
func RecordIdentityCall(operation, result string) {
	IdentityRequests.WithLabelValues(operation, result).Inc()
}

// RecordExport records the outcome of one report export.
func RecordExport(report string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	ExportsTotal.WithLabelValues(report, result).Inc()
}
