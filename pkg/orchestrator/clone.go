package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vamp-labs/control-plane/pkg/intent"
	"github.com/vamp-labs/control-plane/pkg/pricing"
	"github.com/vamp-labs/control-plane/pkg/snapshot"
)

// CloneEvent is the decoded payload HandleClone acts on: the broker
// envelope's correlation and erc20 identity, plus the solver-wide pricing
// defaults (loaded once at startup via pricing.LoadDefaults) that get merged
// with any per-event override carried in the intent's stored request data.
type CloneEvent struct {
	JobID           uint64
	ChainID         int64
	Erc20Address    string
	PricingDefaults pricing.Params
}

// intentRequestData is the schema of Intent.Data for a clone request,
// carrying the fields the clone route needs beyond the broker envelope.
type intentRequestData struct {
	BlockNumber     uint64                 `json:"block_number"`
	DeploymentBlock uint64                 `json:"deployment_block"`
	Token           snapshot.TokenMetadata `json:"token"`
	PricingOverride pricing.Override       `json:"pricing_override"`
	SolverPubKey    string                 `json:"solver_pub_key"`
	ValidatorPubKey string                 `json:"validator_pub_key"`
	ClusterSelector string                 `json:"cluster_selector"`
}

// HandleClone looks up the intent by its event-derived identity, invokes
// the snapshot engine, and on success advances {New, Validated} ->
// UnderExecution and records the destination-chain transaction id. A
// quantization/Merkle/submission failure is a data-integrity failure: it
// is recorded in the advisory stats map and the state is NOT advanced,
// leaving the intent eligible for a later event redelivery.
func (o *Orchestrator) HandleClone(ctx context.Context, ev CloneEvent) error {
	i, err := o.resolveIntent(ctx, ev.JobID)
	if err != nil {
		o.stats.Inc(statClonesDenied)
		return err
	}
	if !isAdvanceEligible(i.State) {
		o.stats.Inc(statClonesDenied)
		return fmt.Errorf("%w: intent %x is in state %s", ErrEventNotFound, i.ID, i.State)
	}

	var data intentRequestData
	if len(i.Data) > 0 {
		if err := json.Unmarshal(i.Data, &data); err != nil {
			o.stats.Inc(statClonesFailed)
			return fmt.Errorf("orchestrator: decode intent data for clone %x: %w", i.ID, err)
		}
	}

	req := snapshot.Request{
		ChainID:         ev.ChainID,
		Erc20Address:    common.HexToAddress(ev.Erc20Address),
		BlockNumber:     data.BlockNumber,
		IntentID:        i.ID,
		DeploymentBlock: data.DeploymentBlock,
		Token:           data.Token,
		Pricing:         pricing.Merge(ev.PricingDefaults, data.PricingOverride),
		SolverPubKey:    data.SolverPubKey,
		ValidatorPubKey: data.ValidatorPubKey,
		ClusterSelector: o.cluster(data.ClusterSelector),
	}

	result, err := o.cloner.RunClone(ctx, req)
	if err != nil {
		o.stats.Inc(statClonesFailed)
		return fmt.Errorf("orchestrator: run clone for intent %x: %w", i.ID, err)
	}

	ok, err := o.store.UpdateStateIf(ctx, i.ID, isAdvanceEligible, intent.StateUnderExecution)
	if err != nil {
		o.stats.Inc(statClonesFailed)
		return fmt.Errorf("orchestrator: advance state for intent %x: %w", i.ID, err)
	}
	if !ok {
		// Lost a race with a concurrent redelivery or RPC submission; the
		// clone transaction already landed on-chain, but this call is not
		// the one that gets to record success.
		o.stats.Inc(statClonesDenied)
		return fmt.Errorf("%w: intent %x was advanced concurrently", ErrEventNotFound, i.ID)
	}

	_ = result // tx id already recorded by persistence.SaveResult in the snapshot engine
	o.stats.Inc(statClonesSucceeded)
	return nil
}
