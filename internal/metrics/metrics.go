package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
	// CheckoutsCleared counts checkout events applied to carts, by outcome.
	CheckoutsCleared *prometheus.CounterVec
}

// NewServerMetrics registers the storefront collectors with reg.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "method", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})
	cleared := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "checkout_events_total",
		Help:      "Checkout events consumed from Kafka.",
	}, []string{"outcome"})

	reg.MustRegister(requests, latency, cleared)
	return &ServerMetrics{Requests: requests, LatencyMS: latency, CheckoutsCleared: cleared}
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
