package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScanRunsTotal counts inactivity scan runs by trigger source and outcome
	ScanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discount_scan_runs_total",
			Help: "Number of inactivity scan runs",
		},
		[]string{"source", "outcome"}, // outcome: completed, disabled, failed, dry_run
	)

	// ScanDuration tracks how long a scan run takes
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "discount_scan_duration_seconds",
			Help: "Duration of inactivity scan runs in seconds",
			Buckets: []float64{
				0.1,  // 100ms
				0.5,  // 500ms
				1.0,  // 1s
				5.0,  // 5s
				15.0, // 15s
				30.0, // 30s
				60.0, // 1m
				300,  // 5m
				900,  // 15m
			},
		},
		[]string{"source"},
	)

	// CodesIssuedTotal counts issued discount codes by trigger source
	CodesIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discount_codes_issued_total",
			Help: "Number of discount codes issued",
		},
		[]string{"source"},
	)

	// EmailsTotal counts notification attempts by result
	EmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discount_emails_total",
			Help: "Number of discount code emails by result",
		},
		[]string{"result"}, // sent or failed
	)

	// HTTPRequestsTotal counts HTTP requests by method, route pattern and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RecordScanRun records the outcome and duration of a scan run
func RecordScanRun(source, outcome string, duration time.Duration) {
	ScanRunsTotal.WithLabelValues(source, outcome).Inc()
	ScanDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordCodeIssued records one issued discount code
func RecordCodeIssued(source string) {
	CodesIssuedTotal.WithLabelValues(source).Inc()
}

// RecordEmail records a notification attempt
func RecordEmail(sent bool) {
	result := "failed"
	if sent {
		result = "sent"
	}
	EmailsTotal.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records one served HTTP request
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
