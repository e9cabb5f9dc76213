// Package metrics holds the prometheus collectors for the map session.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapview_upstream_requests_total",
			Help: "Upstream fetches by target and outcome.",
		},
		[]string{"upstream", "outcome"},
	)

	upstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapview_upstream_latency_seconds",
			Help:    "Latency of upstream fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"upstream"},
	)

	layerLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapview_layer_loads_total",
			Help: "Lazy vector layer loads by final state.",
		},
		[]string{"state"},
	)

	registryMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapview_registry_mutations_total",
			Help: "Layer registry mutations by operation.",
		},
		[]string{"op"},
	)

	layersRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapview_layers",
		Help: "Number of layers currently registered.",
	})
)

// Upstream names used as label values.
const (
	UpstreamCapabilities = "capabilities"
	UpstreamFeatures     = "features"
	UpstreamProjection   = "projection"
)

// ObserveUpstream records one upstream fetch.
func ObserveUpstream(upstream, outcome string, seconds float64) {
	upstreamRequests.WithLabelValues(upstream, outcome).Inc()
	upstreamLatency.WithLabelValues(upstream).Observe(seconds)
}

// ObserveLayerLoad records the terminal state of a lazy load.
func ObserveLayerLoad(state string) {
	layerLoads.WithLabelValues(state).Inc()
}

// ObserveMutation records a registry mutation and the resulting layer count.
func ObserveMutation(op string, layers int) {
	registryMutations.WithLabelValues(op).Inc()
	layersRegistered.Set(float64(layers))
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
