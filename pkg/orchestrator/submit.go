package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/vamp-labs/control-plane/pkg/intent"
	"github.com/vamp-labs/control-plane/pkg/store"
)

// Status is one of the well-known orchestrator RPC outcomes.
type Status string

const (
	StatusOk            Status = "Ok"
	StatusEventNotFound Status = "EventNotFound"
	StatusInternal      Status = "Internal"
)

// SubmitSolutionRequest carries a pre-built, already-signed transaction for
// the orchestrator to submit on behalf of the intent identified by
// SequenceID.
type SubmitSolutionRequest struct {
	SequenceID      intent.SequenceID
	ClusterSelector string
	SignedTxBase64  string
}

// SubmitSolutionResponse is the typed {status, message} envelope returned
// for every outcome; TxID is populated only on StatusOk.
type SubmitSolutionResponse struct {
	Status  Status
	Message string
	TxID    string
}

// SubmitSolution validates that the referenced intent is in {New,
// Validated}, submits the carried transaction to the appropriate cluster,
// and transitions it to UnderExecution. It never submits on behalf of an
// intent outside that set, and a response only carries StatusOk once the
// state CAS has actually succeeded — if a concurrent caller won the CAS
// first, this call reports EventNotFound even though its own transaction
// reached the chain.
func (o *Orchestrator) SubmitSolution(ctx context.Context, req SubmitSolutionRequest) SubmitSolutionResponse {
	i, err := o.store.GetBySequenceID(ctx, req.SequenceID)
	if err != nil {
		o.stats.Inc(statSubmitsDenied)
		if errors.Is(err, store.ErrMappingNotFound) || errors.Is(err, store.ErrNotFound) {
			return SubmitSolutionResponse{Status: StatusEventNotFound, Message: "no request for that sequence id"}
		}
		return SubmitSolutionResponse{Status: StatusInternal, Message: err.Error()}
	}

	if !isAdvanceEligible(i.State) {
		o.stats.Inc(statSubmitsDenied)
		return SubmitSolutionResponse{Status: StatusEventNotFound, Message: fmt.Sprintf("intent is in state %s", i.State)}
	}

	txID, err := o.destChain.SendAndConfirmTransaction(ctx, o.cluster(req.ClusterSelector), req.SignedTxBase64)
	if err != nil {
		o.stats.Inc(statSubmitsFailed)
		return SubmitSolutionResponse{Status: StatusInternal, Message: err.Error()}
	}

	ok, err := o.store.UpdateStateIf(ctx, i.ID, isAdvanceEligible, intent.StateUnderExecution)
	if err != nil {
		o.stats.Inc(statSubmitsFailed)
		return SubmitSolutionResponse{Status: StatusInternal, Message: err.Error()}
	}
	if !ok {
		o.stats.Inc(statSubmitsDenied)
		return SubmitSolutionResponse{Status: StatusEventNotFound, Message: "intent was advanced concurrently"}
	}

	o.stats.Inc(statSubmitsSucceeded)
	return SubmitSolutionResponse{Status: StatusOk, TxID: txID}
}
