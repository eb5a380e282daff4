package indexer

import (
	"context"
	"log"
	"sync"
	"time"
)

// Supervisor owns one goroutine per configured Indexer and restarts a
// crashed tuple's loop with backoff, recovered from the original
// event_indexer's main which spawns one task per listener. A tuple's loop
// only "crashes" when Run returns a non-context error; ctx cancellation
// propagates as a clean shutdown of every tuple.
type Supervisor struct {
	tuples []*Indexer
	logger *log.Logger
}

// NewSupervisor wraps the given Indexers.
func NewSupervisor(tuples []*Indexer, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.New(log.Writer(), "[IndexerSupervisor] ", log.LstdFlags)
	}
	return &Supervisor{tuples: tuples, logger: logger}
}

// Run starts all tuples and blocks until ctx is canceled, at which point it
// waits for every tuple's loop to exit before returning.
func (s *Supervisor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i, idx := range s.tuples {
		wg.Add(1)
		go func(i int, idx *Indexer) {
			defer wg.Done()
			s.superviseOne(ctx, i, idx)
		}(i, idx)
	}
	wg.Wait()
}

// superviseOne restarts idx.Run with its own backoff whenever it returns a
// non-context error, so one tuple's unexpected failure never takes down
// the others.
func (s *Supervisor) superviseOne(ctx context.Context, i int, idx *Indexer) {
	restartDelay := time.Second
	const maxRestartDelay = 30 * time.Second

	for {
		err := idx.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Printf("tuple %d exited unexpectedly, restarting in %s: %v", i, restartDelay, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}

		restartDelay *= 2
		if restartDelay > maxRestartDelay {
			restartDelay = maxRestartDelay
		}
	}
}
