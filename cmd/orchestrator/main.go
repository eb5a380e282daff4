// Command orchestrator runs the vamp orchestrator: it consumes clone/claim
// events from the broker, advances intents through the state machine, and
// serves the submit-solution RPC over HTTP.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	brokeramqp "github.com/vamp-labs/control-plane/pkg/broker/amqp"
	"github.com/vamp-labs/control-plane/pkg/chain"
	"github.com/vamp-labs/control-plane/pkg/config"
	"github.com/vamp-labs/control-plane/pkg/destchain"
	"github.com/vamp-labs/control-plane/pkg/metrics"
	"github.com/vamp-labs/control-plane/pkg/orchestrator"
	"github.com/vamp-labs/control-plane/pkg/server"
	"github.com/vamp-labs/control-plane/pkg/signing"
	"github.com/vamp-labs/control-plane/pkg/snapshot"
	"github.com/vamp-labs/control-plane/pkg/store"
	"github.com/vamp-labs/control-plane/pkg/store/memstore"
	"github.com/vamp-labs/control-plane/pkg/store/postgres"
	"github.com/vamp-labs/control-plane/pkg/store/redisseq"
	"github.com/vamp-labs/control-plane/pkg/txbuilder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate("BrokerURL", "SigningKeyHex", "SourceChainRPCURLs"); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, pgClient, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	signer, err := signing.NewSigner(cfg.SigningKeyHex)
	if err != nil {
		log.Fatalf("load signing key: %v", err)
	}
	log.Printf("[Orchestrator] signing address: %s", signer.Address().Hex())

	clusterURLs := make(map[destchain.Cluster]string, len(cfg.DestClusterURLs))
	for name, url := range cfg.DestClusterURLs {
		clusterURLs[destchain.Cluster(name)] = url
	}
	destClient, err := destchain.New(ctx, clusterURLs, destchain.Cluster(cfg.DefaultCluster))
	if err != nil {
		log.Fatalf("dial destination chain: %v", err)
	}
	defer destClient.Close()

	builder := txbuilder.New(signer)

	sourceChain, err := chain.DialFirstResponsive(ctx, cfg.SourceChainRPCURLs, cfg.SourceChainID)
	if err != nil {
		log.Fatalf("dial source chain: %v", err)
	}
	defer sourceChain.Close()

	var snapshotPersistence snapshot.Persistence
	if pgClient != nil {
		snapshotPersistence = postgres.NewSnapshotPersistence(pgClient)
	} else {
		log.Printf("[Orchestrator] WARNING: no DATABASE_URL configured, snapshot progress will not survive a restart")
		snapshotPersistence = snapshot.NewMemPersistence()
	}

	cloner, err := snapshot.NewEngine(sourceChain, snapshotPersistence, signer, destClient, builder)
	if err != nil {
		log.Fatalf("build clone engine: %v", err)
	}

	orch, err := orchestrator.New(st, cloner, destClient, builder, signer, orchestrator.Config{
		DefaultClusterSelector: cfg.DefaultCluster,
	}, log.New(log.Writer(), "[Orchestrator] ", log.LstdFlags))
	if err != nil {
		log.Fatalf("construct orchestrator: %v", err)
	}

	reg := prometheus.NewRegistry()
	orch.SetMetricsRecorder(metrics.NewOrchestratorOutcomes(reg))

	subscriber, err := brokeramqp.Dial(brokeramqp.Config{
		URL:        cfg.BrokerURL,
		Exchange:   cfg.BrokerExchange,
		CloneQueue: cfg.CloneRoutingKey,
		ClaimQueue: cfg.ClaimRoutingKey,
	}, log.New(log.Writer(), "[BrokerSubscriber] ", log.LstdFlags))
	if err != nil {
		log.Fatalf("dial broker: %v", err)
	}
	defer subscriber.Close()

	svc := orchestrator.NewService(orch, subscriber)

	var running atomic.Bool
	running.Store(true)
	healthHandlers := server.NewHealthHandlers(&running, nil)
	orchHandlers := server.NewOrchestratorHandlers(orch, nil)
	mux := server.NewMux(healthHandlers, orchHandlers, metrics.Handler(reg))
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		log.Printf("[Orchestrator] API listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	go func() {
		if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("[Orchestrator] broker service failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("[Orchestrator] shutting down")
	running.Store(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Orchestrator] http server shutdown: %v", err)
	}
	log.Printf("[Orchestrator] stopped")
}

// openStore picks the request-store backing from cfg: Postgres when
// DATABASE_URL is set, Redis when only REDIS_URL is set, otherwise an
// in-memory store for local development. It also returns the *postgres.Client
// when one was opened, since the snapshot engine's Persistence reuses the
// same migrated connection pool rather than dialing a second one.
func openStore(ctx context.Context, cfg *config.Config) (store.RequestStore, *postgres.Client, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
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
		return postgres.NewRepository(client), client, func() { client.Close() }, nil

	case cfg.RedisURL != "":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return redisseq.New(rdb), nil, func() { rdb.Close() }, nil

	default:
		log.Printf("[Orchestrator] WARNING: neither DATABASE_URL nor REDIS_URL configured, using an in-memory store")
		return memstore.New(), nil, func() {}, nil
	}
}
