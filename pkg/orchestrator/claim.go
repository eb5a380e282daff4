package orchestrator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vamp-labs/control-plane/pkg/intent"
	"github.com/vamp-labs/control-plane/pkg/signing"
)

// ClaimEvent is the decoded payload HandleClaim acts on, mirroring
// broker.ClaimRequested plus the cluster selector the event may carry.
type ClaimEvent struct {
	JobID                     uint64
	ClaimerAddress            common.Address
	Amount                    uint64
	Decimals                  uint8
	OwnerSignatureHex         string
	ClaimerDestinationAddress string
	ClusterSelector           string
}

// HandleClaim recomputes the balance hash, verifies the claimer's own
// signature recovers their address, co-signs as solver and validator,
// builds and submits the destination-chain claim instruction, then
// advances {New, Validated} -> UnderExecution. An invalid owner signature
// is a data-integrity failure: it is recorded and the route returns
// without ever reaching the destination chain or the store.
func (o *Orchestrator) HandleClaim(ctx context.Context, ev ClaimEvent) error {
	i, err := o.resolveIntent(ctx, ev.JobID)
	if err != nil {
		o.stats.Inc(statClaimsDenied)
		return err
	}
	if !isAdvanceEligible(i.State) {
		o.stats.Inc(statClaimsDenied)
		return fmt.Errorf("%w: intent %x is in state %s", ErrEventNotFound, i.ID, i.State)
	}

	ownerSig, err := signing.ParseSignature(ev.OwnerSignatureHex)
	if err != nil {
		o.stats.Inc(statClaimsFailed)
		return fmt.Errorf("orchestrator: parse owner signature for intent %x: %w", i.ID, err)
	}

	balanceHash := signing.BalanceHash(ev.ClaimerAddress, ev.Amount, i.ID)
	valid, err := signing.Verify(balanceHash, ownerSig, ev.ClaimerAddress)
	if err != nil {
		o.stats.Inc(statClaimsFailed)
		return fmt.Errorf("orchestrator: recover owner signature for intent %x: %w", i.ID, err)
	}
	if !valid {
		o.stats.Inc(statClaimsFailed)
		return fmt.Errorf("%w: intent %x", ErrInvalidOwnerSignature, i.ID)
	}

	// A single configured signer plays both the solver and validator role;
	// crypto.Sign is deterministic (RFC 6979), so these two signatures are
	// byte-identical. See Orchestrator's doc comment for why.
	solverSig, err := o.signer.Sign(balanceHash)
	if err != nil {
		o.stats.Inc(statClaimsFailed)
		return fmt.Errorf("orchestrator: solver co-sign for intent %x: %w", i.ID, err)
	}
	validatorSig, err := o.signer.Sign(balanceHash)
	if err != nil {
		o.stats.Inc(statClaimsFailed)
		return fmt.Errorf("orchestrator: validator co-sign for intent %x: %w", i.ID, err)
	}

	cluster := o.cluster(ev.ClusterSelector)
	blockhash, err := o.destChain.GetLatestBlockhash(ctx, cluster)
	if err != nil {
		o.stats.Inc(statClaimsFailed)
		return fmt.Errorf("orchestrator: get latest blockhash for intent %x: %w", i.ID, err)
	}

	auth := ClaimAuthorization{
		IntentID:                  i.ID,
		ClaimerAddress:            ev.ClaimerAddress,
		Amount:                    ev.Amount,
		Decimals:                  ev.Decimals,
		OwnerSig:                  ownerSig,
		SolverSig:                 solverSig,
		ValidatorSig:              validatorSig,
		ClaimerDestinationAddress: ev.ClaimerDestinationAddress,
	}
	signedTx, err := o.claimBuilder.BuildClaimTransaction(ctx, auth, blockhash)
	if err != nil {
		o.stats.Inc(statClaimsFailed)
		return fmt.Errorf("orchestrator: build claim transaction for intent %x: %w", i.ID, err)
	}

	if _, err := o.destChain.SendAndConfirmTransaction(ctx, cluster, signedTx); err != nil {
		o.stats.Inc(statClaimsFailed)
		return fmt.Errorf("orchestrator: submit claim transaction for intent %x: %w", i.ID, err)
	}

	ok, err := o.store.UpdateStateIf(ctx, i.ID, isAdvanceEligible, intent.StateUnderExecution)
	if err != nil {
		o.stats.Inc(statClaimsFailed)
		return fmt.Errorf("orchestrator: advance state for intent %x: %w", i.ID, err)
	}
	if !ok {
		o.stats.Inc(statClaimsDenied)
		return fmt.Errorf("%w: intent %x was advanced concurrently", ErrEventNotFound, i.ID)
	}

	o.stats.Inc(statClaimsSucceeded)
	return nil
}
