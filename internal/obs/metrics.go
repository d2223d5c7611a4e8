package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Client-side HTTP metrics.
var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackerctl_requests_total",
			Help: "Total number of API requests issued by the client.",
		},
		[]string{"method", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackerctl_request_duration_seconds",
			Help:    "API request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackerctl_token_refresh_total",
			Help: "Credential refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	replaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trackerctl_request_replays_total",
			Help: "Requests replayed after a successful credential refresh.",
		},
	)
)

// Init registers the client metrics in the default registry.
func Init() {
	prometheus.MustRegister(requestsTotal, requestDuration, refreshTotal, replaysTotal)
}

// Handler exposes the default registry, for consoles that run long enough
// to be scraped.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one completed API request.
func ObserveRequest(method, status string, seconds float64) {
	requestsTotal.WithLabelValues(method, status).Inc()
	requestDuration.WithLabelValues(method, status).Observe(seconds)
}

// ObserveRefresh records a refresh attempt outcome ("success" or "failure").
func ObserveRefresh(outcome string) {
	refreshTotal.WithLabelValues(outcome).Inc()
}

// ObserveReplay records a request re-issued after refresh.
func ObserveReplay() {
	replaysTotal.Inc()
}
