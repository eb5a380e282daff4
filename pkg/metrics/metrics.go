// Package metrics exposes the control-plane's operational counters as
// Prometheus gauges, scraped from the /metrics endpoint both binaries serve
// alongside /health, mirroring how the rest of the corpus's services
// (erigon, the certen validator's batch subsystem) expose
// prometheus/client_golang collectors next to a plain health check rather
// than rolling a bespoke metrics format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OrchestratorOutcomes mirrors pkg/orchestrator.Stats' counter keys as a
// single labeled counter vector, so Inc(key) needs no per-key registration.
type OrchestratorOutcomes struct {
	counter *prometheus.CounterVec
}

// NewOrchestratorOutcomes registers the vector with reg.
func NewOrchestratorOutcomes(reg prometheus.Registerer) *OrchestratorOutcomes {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vamp",
		Subsystem: "orchestrator",
		Name:      "outcomes_total",
		Help:      "Count of clone/claim/submit outcomes by result key.",
	}, []string{"outcome"})
	reg.MustRegister(c)
	return &OrchestratorOutcomes{counter: c}
}

// Inc implements orchestrator.Recorder.
func (o *OrchestratorOutcomes) Inc(key string) {
	o.counter.WithLabelValues(key).Inc()
}

// IndexerTicks counts indexer tick outcomes per routing key.
type IndexerTicks struct {
	counter *prometheus.CounterVec
}

// NewIndexerTicks registers the vector with reg.
func NewIndexerTicks(reg prometheus.Registerer) *IndexerTicks {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vamp",
		Subsystem: "indexer",
		Name:      "ticks_total",
		Help:      "Count of indexer tick outcomes by routing key and result.",
	}, []string{"routing_key", "result"})
	reg.MustRegister(c)
	return &IndexerTicks{counter: c}
}

// Observe records one tick outcome.
func (t *IndexerTicks) Observe(routingKey, result string) {
	t.counter.WithLabelValues(routingKey, result).Inc()
}

// Handler returns the /metrics HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
