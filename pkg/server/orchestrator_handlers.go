package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/vamp-labs/control-plane/pkg/intent"
	"github.com/vamp-labs/control-plane/pkg/orchestrator"
)

// OrchestratorHandlers exposes the orchestrator's submit-solution RPC over
// plain net/http: manual routing, no web framework, status codes returned
// as a typed {status, message} envelope.
type OrchestratorHandlers struct {
	orchestrator *orchestrator.Orchestrator
	logger       *log.Logger
}

// NewOrchestratorHandlers wraps orch for HTTP exposure.
func NewOrchestratorHandlers(orch *orchestrator.Orchestrator, logger *log.Logger) *OrchestratorHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[OrchestratorAPI] ", log.LstdFlags)
	}
	return &OrchestratorHandlers{orchestrator: orch, logger: logger}
}

// submitSolutionBody is the wire shape of a POST /api/v1/solutions body.
type submitSolutionBody struct {
	SequenceID      uint64 `json:"sequence_id"`
	ClusterSelector string `json:"cluster_selector"`
	SignedTxBase64  string `json:"signed_tx_base64"`
}

// submitSolutionResponseBody mirrors orchestrator.SubmitSolutionResponse on
// the wire.
type submitSolutionResponseBody struct {
	Status  orchestrator.Status `json:"status"`
	Message string              `json:"message,omitempty"`
	TxID    string              `json:"tx_id,omitempty"`
}

// HandleSubmitSolution handles POST /api/v1/solutions.
func (h *OrchestratorHandlers) HandleSubmitSolution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	var body submitSolutionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not decode request body")
		return
	}
	if body.SignedTxBase64 == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_TRANSACTION", "signed_tx_base64 is required")
		return
	}

	resp := h.orchestrator.SubmitSolution(r.Context(), orchestrator.SubmitSolutionRequest{
		SequenceID:      intent.SequenceID(body.SequenceID),
		ClusterSelector: body.ClusterSelector,
		SignedTxBase64:  body.SignedTxBase64,
	})

	httpStatus := http.StatusOK
	switch resp.Status {
	case orchestrator.StatusEventNotFound:
		httpStatus = http.StatusNotFound
	case orchestrator.StatusInternal:
		httpStatus = http.StatusInternalServerError
		h.logger.Printf("submit solution failed: %s", resp.Message)
	}

	h.writeJSON(w, httpStatus, submitSolutionResponseBody{Status: resp.Status, Message: resp.Message, TxID: resp.TxID})
}

// HandleStats handles GET /api/v1/stats, exposing the orchestrator's
// advisory in-memory outcome counters.
func (h *OrchestratorHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	h.writeJSON(w, http.StatusOK, h.orchestrator.Stats())
}

func (h *OrchestratorHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("Error encoding response: %v", err)
	}
}

func (h *OrchestratorHandlers) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
