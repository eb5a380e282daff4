package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vamp-labs/control-plane/pkg/broker"
)

// Service wires an Orchestrator to its two broker subscriptions: one
// long-lived consumer per routing key, acking only after the state CAS has
// settled (or been classified as a non-retryable logical denial), matching
// pkg/broker.Delivery's doc contract.
type Service struct {
	orchestrator *Orchestrator
	subscriber   broker.Subscriber
}

// NewService returns a Service ready to Run.
func NewService(o *Orchestrator, subscriber broker.Subscriber) *Service {
	return &Service{orchestrator: o, subscriber: subscriber}
}

// Run subscribes to both routing keys and blocks until ctx is canceled.
// broker.Subscriber.Subscribe itself blocks its caller until ctx is done (see
// pkg/broker/amqp's Client.Subscribe), so the two routes run on their own
// goroutines rather than sequentially, the same one-goroutine-per-consumer
// shape as pkg/indexer's Supervisor.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.subscriber.Subscribe(ctx, broker.RoutingKeyClone, s.handleCloneDelivery); err != nil && ctx.Err() == nil {
			errs <- fmt.Errorf("orchestrator: subscribe clone: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := s.subscriber.Subscribe(ctx, broker.RoutingKeyClaim, s.handleClaimDelivery); err != nil && ctx.Err() == nil {
			errs <- fmt.Errorf("orchestrator: subscribe claim: %w", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		<-done
		return ctx.Err()
	case err := <-errs:
		return err
	}
}

func (s *Service) handleCloneDelivery(ctx context.Context, d broker.Delivery) error {
	c := d.Envelope.Clone
	if c == nil {
		return d.Nack(false)
	}
	err := s.orchestrator.HandleClone(ctx, CloneEvent{
		JobID:        c.JobID,
		ChainID:      c.ChainID,
		Erc20Address: c.Erc20Address,
	})
	return ackOrNack(d, err)
}

func (s *Service) handleClaimDelivery(ctx context.Context, d broker.Delivery) error {
	c := d.Envelope.Claim
	if c == nil {
		return d.Nack(false)
	}
	err := s.orchestrator.HandleClaim(ctx, ClaimEvent{
		JobID:                     c.JobID,
		ClaimerAddress:            common.HexToAddress(c.ClaimerAddress),
		Amount:                    c.Amount,
		Decimals:                  c.Decimals,
		OwnerSignatureHex:         c.OwnerSignature,
		ClaimerDestinationAddress: c.ClaimerDestinationAddress,
	})
	return ackOrNack(d, err)
}

// ackOrNack acks on success or on a classified logical denial (data
// already settled one way or another); it requeues on everything else
// (transient I/O).
func ackOrNack(d broker.Delivery, err error) error {
	if err == nil || errors.Is(err, ErrEventNotFound) || errors.Is(err, ErrInvalidOwnerSignature) {
		return d.Ack()
	}
	return d.Nack(true)
}
