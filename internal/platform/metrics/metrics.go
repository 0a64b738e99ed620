package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the clearing service.
type Metrics struct {
	ClearingsCreated *prometheus.CounterVec
	ClearingsSettled *prometheus.CounterVec
	RequestLatency   prometheus.Histogram
}

// New creates all metrics and registers them with reg. Production passes
// prometheus.DefaultRegisterer; tests pass a fresh registry so repeated
// setup does not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ClearingsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_clearings_created_total",
			Help: "Clearing operations created, labelled by operation type",
		}, []string{"operation"}),
		ClearingsSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_clearings_settled_total",
			Help: "Clearing operations settled, labelled by terminal state",
		}, []string{"outcome"}),
		RequestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tranche_http_request_duration_ms",
			Help:    "Latency of clearing API requests in milliseconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}),
	}
}
