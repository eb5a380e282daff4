package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vamp-labs/control-plane/pkg/destchain"
	"github.com/vamp-labs/control-plane/pkg/intent"
	"github.com/vamp-labs/control-plane/pkg/signing"
	"github.com/vamp-labs/control-plane/pkg/snapshot"
	"github.com/vamp-labs/control-plane/pkg/store"
	"github.com/vamp-labs/control-plane/pkg/store/memstore"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362de"

type fakeCloneRunner struct {
	mu     sync.Mutex
	calls  int
	result snapshot.Result
	err    error
}

func (f *fakeCloneRunner) RunClone(ctx context.Context, req snapshot.Request) (snapshot.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return snapshot.Result{}, f.err
	}
	return f.result, nil
}

type fakeDestChain struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeDestChain) GetLatestBlockhash(ctx context.Context, clusterSelector string) (destchain.Blockhash, error) {
	return destchain.Blockhash{Blockhash: "fakehash", LastValidBlockHeight: 1}, nil
}

func (f *fakeDestChain) SendAndConfirmTransaction(ctx context.Context, clusterSelector string, signedTxBase64 string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "fake-tx-id", nil
}

type fakeClaimBuilder struct {
	lastAuth ClaimAuthorization
}

func (f *fakeClaimBuilder) BuildClaimTransaction(ctx context.Context, auth ClaimAuthorization, blockhash destchain.Blockhash) (string, error) {
	f.lastAuth = auth
	return "c2lnbmVkLWNsYWlt", nil
}

func newTestOrchestrator(t *testing.T, st store.RequestStore, cloner CloneRunner, dest DestChainSubmitter, builder ClaimTxBuilder) *Orchestrator {
	t.Helper()
	signer, err := signing.NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	o, err := New(st, cloner, dest, builder, signer, Config{DefaultClusterSelector: "devnet"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func putIntent(t *testing.T, st store.RequestStore, id intent.ID, seq intent.SequenceID, state intent.State, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal intent data: %v", err)
	}
	i := intent.Intent{ID: id, SequenceID: seq, State: state, Data: raw}
	if err := st.PutRequest(context.Background(), i); err != nil {
		t.Fatalf("PutRequest: %v", err)
	}
}

func TestHandleClone_SuccessAdvancesState(t *testing.T) {
	st := memstore.New()
	id := intent.ID{0x01}
	putIntent(t, st, id, 7, intent.StateNew, intentRequestData{
		BlockNumber: 100,
		Token:       snapshot.TokenMetadata{Name: "Vamp", Symbol: "VMP", Decimals: 9},
	})

	cloner := &fakeCloneRunner{result: snapshot.Result{TargetTxID: "tx1"}}
	o := newTestOrchestrator(t, st, cloner, &fakeDestChain{}, &fakeClaimBuilder{})

	err := o.HandleClone(context.Background(), CloneEvent{JobID: 7, ChainID: 1, Erc20Address: "0x1111111111111111111111111111111111111111"})
	if err != nil {
		t.Fatalf("HandleClone: %v", err)
	}
	if cloner.calls != 1 {
		t.Fatalf("RunClone calls = %d, want 1", cloner.calls)
	}

	got, err := st.GetByIntentID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByIntentID: %v", err)
	}
	if got.State != intent.StateUnderExecution {
		t.Fatalf("state = %s, want UnderExecution", got.State)
	}
	if o.Stats()[statClonesSucceeded] != 1 {
		t.Fatalf("clones_succeeded = %d, want 1", o.Stats()[statClonesSucceeded])
	}
}

func TestHandleClone_DeniedWhenAlreadyExecuting(t *testing.T) {
	st := memstore.New()
	id := intent.ID{0x02}
	putIntent(t, st, id, 9, intent.StateUnderExecution, intentRequestData{})

	cloner := &fakeCloneRunner{}
	o := newTestOrchestrator(t, st, cloner, &fakeDestChain{}, &fakeClaimBuilder{})

	err := o.HandleClone(context.Background(), CloneEvent{JobID: 9})
	if !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("err = %v, want ErrEventNotFound", err)
	}
	if cloner.calls != 0 {
		t.Fatalf("RunClone should not have been invoked, got %d calls", cloner.calls)
	}
}

func TestHandleClone_RunFailureLeavesStateUnchanged(t *testing.T) {
	st := memstore.New()
	id := intent.ID{0x03}
	putIntent(t, st, id, 11, intent.StateNew, intentRequestData{})

	cloner := &fakeCloneRunner{err: errors.New("boom")}
	o := newTestOrchestrator(t, st, cloner, &fakeDestChain{}, &fakeClaimBuilder{})

	if err := o.HandleClone(context.Background(), CloneEvent{JobID: 11}); err == nil {
		t.Fatal("expected an error")
	}

	got, err := st.GetByIntentID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByIntentID: %v", err)
	}
	if got.State != intent.StateNew {
		t.Fatalf("state = %s, want unchanged New", got.State)
	}
}

func TestHandleClaim_ValidSignatureAdvancesState(t *testing.T) {
	st := memstore.New()
	id := intent.ID{0x04}
	putIntent(t, st, id, 20, intent.StateValidated, intentRequestData{})

	signer, err := signing.NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	claimer := signer.Address()
	amount := uint64(1_000_000_000)
	balanceHash := signing.BalanceHash(claimer, amount, id)
	ownerSig, err := signer.Sign(balanceHash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	builder := &fakeClaimBuilder{}
	o := newTestOrchestrator(t, st, &fakeCloneRunner{}, &fakeDestChain{}, builder)

	err = o.HandleClaim(context.Background(), ClaimEvent{
		JobID:                     20,
		ClaimerAddress:            claimer,
		Amount:                    amount,
		Decimals:                  9,
		OwnerSignatureHex:         "0x" + common.Bytes2Hex(ownerSig[:]),
		ClaimerDestinationAddress: claimer.Hex(),
	})
	if err != nil {
		t.Fatalf("HandleClaim: %v", err)
	}

	if builder.lastAuth.OwnerSig != ownerSig {
		t.Fatal("claim builder did not receive the owner signature")
	}
	if builder.lastAuth.SolverSig != builder.lastAuth.ValidatorSig {
		t.Fatal("expected solver and validator co-signatures to match for a single-signer deployment")
	}

	got, err := st.GetByIntentID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByIntentID: %v", err)
	}
	if got.State != intent.StateUnderExecution {
		t.Fatalf("state = %s, want UnderExecution", got.State)
	}
}

func TestHandleClaim_WrongSignerDenied(t *testing.T) {
	st := memstore.New()
	id := intent.ID{0x05}
	putIntent(t, st, id, 21, intent.StateNew, intentRequestData{})

	signer, _ := signing.NewSigner(testKey)
	otherKey := "1111111111111111111111111111111111111111111111111111111111111111"[:64]
	other, err := signing.NewSigner(otherKey)
	if err != nil {
		t.Fatalf("NewSigner other: %v", err)
	}

	claimer := signer.Address()
	amount := uint64(500)
	balanceHash := signing.BalanceHash(claimer, amount, id)
	wrongSig, err := other.Sign(balanceHash) // signed by the wrong key
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	o := newTestOrchestrator(t, st, &fakeCloneRunner{}, &fakeDestChain{}, &fakeClaimBuilder{})

	err = o.HandleClaim(context.Background(), ClaimEvent{
		JobID:             21,
		ClaimerAddress:    claimer,
		Amount:            amount,
		OwnerSignatureHex: "0x" + common.Bytes2Hex(wrongSig[:]),
	})
	if !errors.Is(err, ErrInvalidOwnerSignature) {
		t.Fatalf("err = %v, want ErrInvalidOwnerSignature", err)
	}

	got, err := st.GetByIntentID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByIntentID: %v", err)
	}
	if got.State != intent.StateNew {
		t.Fatalf("state = %s, want unchanged New", got.State)
	}
}

func TestSubmitSolution_UnacceptableStateReturnsEventNotFound(t *testing.T) {
	st := memstore.New()
	id := intent.ID{0x06}
	putIntent(t, st, id, 30, intent.StateExecuted, intentRequestData{})

	o := newTestOrchestrator(t, st, &fakeCloneRunner{}, &fakeDestChain{}, &fakeClaimBuilder{})

	resp := o.SubmitSolution(context.Background(), SubmitSolutionRequest{SequenceID: 30})
	if resp.Status != StatusEventNotFound {
		t.Fatalf("status = %s, want EventNotFound", resp.Status)
	}
}

func TestSubmitSolution_UnknownSequenceReturnsEventNotFound(t *testing.T) {
	st := memstore.New()
	o := newTestOrchestrator(t, st, &fakeCloneRunner{}, &fakeDestChain{}, &fakeClaimBuilder{})

	resp := o.SubmitSolution(context.Background(), SubmitSolutionRequest{SequenceID: 999})
	if resp.Status != StatusEventNotFound {
		t.Fatalf("status = %s, want EventNotFound", resp.Status)
	}
}

// TestSubmitSolution_ConcurrentCAS_ExactlyOneWinner pins the compare-and-swap
// guarantee: starting from New, two concurrent submit calls race on the
// same intent; exactly one reports StatusOk, the other EventNotFound, and
// the final state is UnderExecution.
func TestSubmitSolution_ConcurrentCAS_ExactlyOneWinner(t *testing.T) {
	st := memstore.New()
	id := intent.ID{0x07}
	putIntent(t, st, id, 40, intent.StateNew, intentRequestData{})

	o := newTestOrchestrator(t, st, &fakeCloneRunner{}, &fakeDestChain{}, &fakeClaimBuilder{})

	var wg sync.WaitGroup
	responses := make([]SubmitSolutionResponse, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			responses[idx] = o.SubmitSolution(context.Background(), SubmitSolutionRequest{SequenceID: 40})
		}(i)
	}
	wg.Wait()

	okCount := 0
	deniedCount := 0
	for _, r := range responses {
		switch r.Status {
		case StatusOk:
			okCount++
		case StatusEventNotFound:
			deniedCount++
		default:
			t.Fatalf("unexpected status %s: %s", r.Status, r.Message)
		}
	}
	if okCount != 1 || deniedCount != 1 {
		t.Fatalf("ok = %d, denied = %d, want exactly one of each", okCount, deniedCount)
	}

	got, err := st.GetByIntentID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByIntentID: %v", err)
	}
	if got.State != intent.StateUnderExecution {
		t.Fatalf("final state = %s, want UnderExecution", got.State)
	}
}
