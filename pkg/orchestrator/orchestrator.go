// Package orchestrator implements the state-transition authority: it
// consumes clone/claim broker events, invokes the snapshot engine or signs a
// claim authorization, submits the resulting transaction to the destination
// chain, and advances the owning intent's lifecycle state.
package orchestrator

import (
	"context"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vamp-labs/control-plane/pkg/destchain"
	"github.com/vamp-labs/control-plane/pkg/intent"
	"github.com/vamp-labs/control-plane/pkg/signing"
	"github.com/vamp-labs/control-plane/pkg/snapshot"
	"github.com/vamp-labs/control-plane/pkg/store"
)

// CloneRunner is the narrow snapshot-engine capability the clone route
// needs, narrowed to an interface so tests can drive HandleClone without a
// live RPC-backed Engine.
type CloneRunner interface {
	RunClone(ctx context.Context, req snapshot.Request) (snapshot.Result, error)
}

var _ CloneRunner = (*snapshot.Engine)(nil)

// DestChainSubmitter is the narrow subset of *destchain.Client the claim
// route and the submit-solution RPC surface need.
type DestChainSubmitter interface {
	GetLatestBlockhash(ctx context.Context, clusterSelector string) (destchain.Blockhash, error)
	SendAndConfirmTransaction(ctx context.Context, clusterSelector string, signedTxBase64 string) (string, error)
}

var _ DestChainSubmitter = (*destchain.Client)(nil)

// ClaimAuthorization is the full triple-signed record authorizing a claim
// mint on the destination chain.
type ClaimAuthorization struct {
	IntentID                  [32]byte
	ClaimerAddress            common.Address
	Amount                    uint64
	Decimals                  uint8
	OwnerSig                  [65]byte
	SolverSig                 [65]byte
	ValidatorSig              [65]byte
	ClaimerDestinationAddress string
}

// ClaimTxBuilder encodes a ClaimAuthorization into a signed, base64-encoded
// destination-chain transaction. As with snapshot.TransactionBuilder, the
// on-chain instruction schema is treated as an external interface.
type ClaimTxBuilder interface {
	BuildClaimTransaction(ctx context.Context, auth ClaimAuthorization, blockhash destchain.Blockhash) (signedTxBase64 string, err error)
}

// Config carries the orchestrator's per-deployment settings: the default
// destination-chain cluster to submit to when an event carries no selector.
type Config struct {
	DefaultClusterSelector string
}

// Orchestrator ties together the request store, the clone/claim routes and
// the submit-solution RPC surface. A single configured signer acts as both
// the "solver" and "validator" signing authority for claim co-signatures;
// multi-validator consensus is out of scope, so there is no separate
// validator key or quorum here.
type Orchestrator struct {
	store        store.RequestStore
	cloner       CloneRunner
	destChain    DestChainSubmitter
	claimBuilder ClaimTxBuilder
	signer       *signing.Signer
	cfg          Config
	stats        *Stats
	logger       *log.Logger
}

// New validates its dependencies up front and returns a ready Orchestrator.
func New(st store.RequestStore, cloner CloneRunner, destChain DestChainSubmitter, claimBuilder ClaimTxBuilder, signer *signing.Signer, cfg Config, logger *log.Logger) (*Orchestrator, error) {
	if st == nil {
		return nil, ErrNilStore
	}
	if cloner == nil {
		return nil, ErrNilCloneRunner
	}
	if destChain == nil {
		return nil, ErrNilDestChain
	}
	if claimBuilder == nil {
		return nil, ErrNilClaimBuilder
	}
	if signer == nil {
		return nil, ErrNilSigner
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[Orchestrator] ", log.LstdFlags)
	}
	return &Orchestrator{
		store:        st,
		cloner:       cloner,
		destChain:    destChain,
		claimBuilder: claimBuilder,
		signer:       signer,
		cfg:          cfg,
		stats:        NewStats(),
		logger:       logger,
	}, nil
}

// Stats returns the orchestrator's advisory stats snapshot.
func (o *Orchestrator) Stats() map[string]int64 {
	return o.stats.Snapshot()
}

// SetMetricsRecorder mirrors every future outcome counter increment into r,
// in addition to the in-memory snapshot Stats already returns.
func (o *Orchestrator) SetMetricsRecorder(r Recorder) {
	o.stats.SetRecorder(r)
}

// isAdvanceEligible is the CAS predicate shared by every route: only an
// intent in New or Validated may advance to UnderExecution.
func isAdvanceEligible(s intent.State) bool {
	return s == intent.StateNew || s == intent.StateValidated
}

// resolveIntent looks up the intent correlated with a broker event's
// job_id, the event-derived identity used to correlate a chain event back
// to its originating intent. A missing mapping or missing intent is the
// logical-denial outcome ErrEventNotFound, never retried.
func (o *Orchestrator) resolveIntent(ctx context.Context, jobID uint64) (intent.Intent, error) {
	i, err := o.store.GetBySequenceID(ctx, intent.SequenceID(jobID))
	if err != nil {
		return intent.Intent{}, fmt.Errorf("%w: %v", ErrEventNotFound, err)
	}
	return i, nil
}

// cluster picks the event's cluster selector, falling back to the
// orchestrator's configured default when the event didn't carry one.
func (o *Orchestrator) cluster(selector string) string {
	if selector == "" {
		return o.cfg.DefaultClusterSelector
	}
	return selector
}
