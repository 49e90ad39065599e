package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the pipeline's Prometheus instruments. Registered once
// at startup against the process registry.
type Metrics struct {
	EventsTotal       *prometheus.CounterVec
	SkipsTotal        *prometheus.CounterVec
	PricesUpdated     prometheus.Counter
	ProcessingSeconds prometheus.Histogram
	InFlight          prometheus.Gauge
}

// NewMetrics creates and registers the pipeline instruments.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repricer",
			Name:      "events_total",
			Help:      "Offer-change events processed, by platform and outcome.",
		}, []string{"platform", "outcome"}),
		SkipsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repricer",
			Name:      "skips_total",
			Help:      "Intentional skips, by reason.",
		}, []string{"reason"}),
		PricesUpdated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "repricer",
			Name:      "prices_updated_total",
			Help:      "Calculated prices persisted to the store.",
		}),
		ProcessingSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "repricer",
			Name:      "event_processing_seconds",
			Help:      "End-to-end latency of one event through the pipeline.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "repricer",
			Name:      "events_in_flight",
			Help:      "Events currently being processed by shard workers.",
		}),
	}
}
