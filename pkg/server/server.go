package server

import "net/http"

// NewMux wires the orchestrator's HTTP surface: /health plus the
// submit-solution and stats RPC routes, registering handlers directly on
// a *http.ServeMux rather than pulling in a routing framework. metrics may
// be nil, in which case
// /metrics is not registered.
func NewMux(health *HealthHandlers, orch *OrchestratorHandlers, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.HandleHealth)
	mux.HandleFunc("/api/v1/solutions", orch.HandleSubmitSolution)
	mux.HandleFunc("/api/v1/stats", orch.HandleStats)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}

// NewIndexerMux wires the indexer's HTTP surface: /health plus /metrics.
func NewIndexerMux(health *HealthHandlers, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.HandleHealth)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}
