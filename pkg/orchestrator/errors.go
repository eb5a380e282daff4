package orchestrator

import "errors"

// Sentinel errors returned by Orchestrator's clone/claim routes.
var (
	// ErrEventNotFound is the logical-denial outcome: the event's correlated
	// intent is missing, or not in an acceptable state to advance. It is
	// never retried by the caller.
	ErrEventNotFound = errors.New("orchestrator: event not found or not in an acceptable state")
	// ErrInvalidOwnerSignature is a data-integrity failure: the claimer's
	// supplied signature does not recover to the claimed address.
	ErrInvalidOwnerSignature = errors.New("orchestrator: owner signature does not recover to claimer address")
	ErrNilStore              = errors.New("orchestrator: request store cannot be nil")
	ErrNilCloneRunner        = errors.New("orchestrator: clone runner cannot be nil")
	ErrNilDestChain          = errors.New("orchestrator: destination chain client cannot be nil")
	ErrNilClaimBuilder       = errors.New("orchestrator: claim transaction builder cannot be nil")
	ErrNilSigner             = errors.New("orchestrator: signer cannot be nil")
)
