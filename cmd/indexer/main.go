// Command indexer runs the source-chain event indexer: it scans
// CloneRequested/ClaimRequested logs, publishes them onto the broker and
// records them in the indexed_events table.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vamp-labs/control-plane/pkg/broker"
	brokeramqp "github.com/vamp-labs/control-plane/pkg/broker/amqp"
	"github.com/vamp-labs/control-plane/pkg/chain"
	"github.com/vamp-labs/control-plane/pkg/config"
	"github.com/vamp-labs/control-plane/pkg/indexedevents"
	"github.com/vamp-labs/control-plane/pkg/indexer"
	"github.com/vamp-labs/control-plane/pkg/metrics"
	"github.com/vamp-labs/control-plane/pkg/server"
	"github.com/vamp-labs/control-plane/pkg/store"
	"github.com/vamp-labs/control-plane/pkg/store/memstore"
	"github.com/vamp-labs/control-plane/pkg/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate("SourceChainRPCURLs", "ContractAddress", "CloneTopic0", "ClaimTopic0", "BrokerURL"); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chainClient, err := chain.DialFirstResponsive(ctx, cfg.SourceChainRPCURLs, cfg.SourceChainID)
	if err != nil {
		log.Fatalf("dial source chain: %v", err)
	}
	defer chainClient.Close()
	log.Printf("[Indexer] connected to source chain %d via %s", cfg.SourceChainID, chainClient.URL())

	st, eventsDB, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	var events indexer.EventInserter
	if eventsDB != nil {
		events = indexedevents.NewRepository(eventsDB)
	} else {
		events = noopEventInserter{}
		log.Printf("[Indexer] no DATABASE_URL configured, indexed_events rows will not be persisted")
	}

	publisher, err := brokeramqp.Dial(brokeramqp.Config{
		URL:        cfg.BrokerURL,
		Exchange:   cfg.BrokerExchange,
		CloneQueue: "",
		ClaimQueue: "",
	}, log.New(log.Writer(), "[BrokerPublisher] ", log.LstdFlags))
	if err != nil {
		log.Fatalf("dial broker: %v", err)
	}
	defer publisher.Close()

	contractAddress := common.HexToAddress(cfg.ContractAddress)

	cloneIndexer := indexer.New(chainClient, st, events, publisher,
		func(l types.Log) (broker.Envelope, error) { return indexer.DecodeCloneRequested(cfg.SourceChainID, l) },
		indexer.Config{
			ChainID:         cfg.SourceChainID,
			ContractAddress: contractAddress,
			Topic0:          common.HexToHash(cfg.CloneTopic0),
			RoutingKey:      broker.RoutingKeyClone,
			Confirmations:   cfg.Confirmations,
			OverlapBlocks:   cfg.OverlapBlocks,
			MaxBlockRange:   cfg.MaxBlockRange,
			PollInterval:    cfg.PollInterval,
			DeploymentBlock: cfg.DeploymentBlock,
		},
		log.New(log.Writer(), "[Indexer:clone] ", log.LstdFlags),
	)

	claimIndexer := indexer.New(chainClient, st, events, publisher,
		func(l types.Log) (broker.Envelope, error) { return indexer.DecodeClaimRequested(cfg.SourceChainID, l) },
		indexer.Config{
			ChainID:         cfg.SourceChainID,
			ContractAddress: contractAddress,
			Topic0:          common.HexToHash(cfg.ClaimTopic0),
			RoutingKey:      broker.RoutingKeyClaim,
			Confirmations:   cfg.Confirmations,
			OverlapBlocks:   cfg.OverlapBlocks,
			MaxBlockRange:   cfg.MaxBlockRange,
			PollInterval:    cfg.PollInterval,
			DeploymentBlock: cfg.DeploymentBlock,
		},
		log.New(log.Writer(), "[Indexer:claim] ", log.LstdFlags),
	)

	reg := prometheus.NewRegistry()
	ticks := metrics.NewIndexerTicks(reg)
	cloneIndexer.SetRecorder(ticks)
	claimIndexer.SetRecorder(ticks)

	supervisor := indexer.NewSupervisor([]*indexer.Indexer{cloneIndexer, claimIndexer}, log.New(log.Writer(), "[IndexerSupervisor] ", log.LstdFlags))

	var running atomic.Bool
	running.Store(true)
	mux := server.NewIndexerMux(server.NewHealthHandlers(&running, nil), metrics.Handler(reg))
	httpServer := &http.Server{Addr: cfg.HealthAddr, Handler: mux}

	go func() {
		log.Printf("[Indexer] health/metrics listening on %s", cfg.HealthAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("health server: %v", err)
		}
	}()

	go supervisor.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("[Indexer] shutting down")
	running.Store(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Indexer] health server shutdown: %v", err)
	}
	log.Printf("[Indexer] stopped")
}

// openStore picks the request-store backing from cfg: Postgres when
// DATABASE_URL is set (the production path, which also gives the indexer
// a *sql.DB for indexed_events), otherwise an in-memory store for local
// development — the operator is warned loudly since that path loses
// checkpoints and events on restart.
func openStore(ctx context.Context, cfg *config.Config) (store.RequestStore, *sql.DB, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Printf("[Indexer] WARNING: no DATABASE_URL configured, using an in-memory store (checkpoints are lost on restart)")
		return memstore.New(), nil, func() {}, nil
	}

	client, err := postgres.NewClient(ctx, postgres.Config{
		URL:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DatabaseMaxConns,
	}, log.New(log.Writer(), "[Postgres] ", log.LstdFlags))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := client.MigrateUp(ctx); err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	repo := postgres.NewRepository(client)
	return repo, client.DB(), func() { client.Close() }, nil
}

type noopEventInserter struct{}

func (noopEventInserter) Insert(ctx context.Context, ev indexedevents.Event) (bool, error) {
	return true, nil
}
