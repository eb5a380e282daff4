package snapshot

import "errors"

// Sentinel errors returned by Engine.RunClone.
var (
	ErrNilPersistence        = errors.New("snapshot: persistence cannot be nil")
	ErrNilChain              = errors.New("snapshot: chain reader cannot be nil")
	ErrNilSigner             = errors.New("snapshot: signer cannot be nil")
	ErrNilTransactionBuilder = errors.New("snapshot: transaction builder cannot be nil")
	ErrNilDestChain          = errors.New("snapshot: destination chain client cannot be nil")
)
