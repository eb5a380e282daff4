// Package config loads operational knobs for the vamp control-plane
// services from the environment. Every service (indexer, orchestrator,
// snapshot tooling) loads the subset of fields it needs and calls
// Validate to fail fast on missing required values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every operational knob used across the vamp control-plane
// services. A given binary only reads the fields relevant to it.
type Config struct {
	// Source chain (indexer, snapshot engine)
	SourceChainRPCURLs []string // candidate URLs, first responsive wins
	SourceChainID      int64
	ContractAddress    string
	CloneTopic0        string
	ClaimTopic0        string
	Confirmations      uint64
	OverlapBlocks      uint64
	MaxBlockRange      uint64
	PollInterval       time.Duration
	DeploymentBlock    uint64

	// Request store
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMaxIdleTime time.Duration
	RedisURL            string

	// Broker
	BrokerURL       string
	BrokerExchange  string
	CloneRoutingKey string
	ClaimRoutingKey string

	// Destination chain (orchestrator)
	DestClusterURLs map[string]string // cluster name -> RPC URL
	DefaultCluster  string

	// Signing
	SigningKeyHex string

	// Pricing defaults (snapshot engine)
	PricingConfigPath string

	// HTTP surfaces
	ListenAddr string
	HealthAddr string
}

// Load reads configuration from the environment. Required fields have no
// defaults; call Validate afterwards.
func Load() (*Config, error) {
	cfg := &Config{
		SourceChainRPCURLs: splitList(getEnv("SOURCE_CHAIN_RPC_URLS", "")),
		SourceChainID:      getEnvInt64("SOURCE_CHAIN_ID", 1),
		ContractAddress:    getEnv("CONTRACT_ADDRESS", ""),
		CloneTopic0:        getEnv("CLONE_TOPIC0", ""),
		ClaimTopic0:        getEnv("CLAIM_TOPIC0", ""),
		Confirmations:      getEnvUint64("CONFIRMATIONS", 12),
		OverlapBlocks:      getEnvUint64("OVERLAP_BLOCKS", 5),
		MaxBlockRange:      getEnvUint64("MAX_BLOCK_RANGE", 2000),
		PollInterval:       time.Duration(getEnvInt("POLL_SECS", 12)) * time.Second,
		DeploymentBlock:    getEnvUint64("DEPLOYMENT_BLOCK", 0),

		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMaxIdleTime: time.Duration(getEnvInt("DATABASE_MAX_IDLE_TIME", 300)) * time.Second,
		RedisURL:            getEnv("REDIS_URL", ""),

		BrokerURL:       getEnv("BROKER_URL", ""),
		BrokerExchange:  getEnv("BROKER_EXCHANGE", "vamp"),
		CloneRoutingKey: getEnv("BROKER_CLONE_ROUTING_KEY", "vamp.clone"),
		ClaimRoutingKey: getEnv("BROKER_CLAIM_ROUTING_KEY", "vamp.claim"),

		DestClusterURLs: parseClusterURLs(getEnv("DEST_CLUSTER_URLS", "")),
		DefaultCluster:  getEnv("DEFAULT_CLUSTER", "devnet"),

		SigningKeyHex: getEnv("SIGNING_KEY", ""),

		PricingConfigPath: getEnv("PRICING_CONFIG_PATH", ""),

		ListenAddr: getEnv("LISTEN_ADDR", "0.0.0.0:8080"),
		HealthAddr: getEnv("HEALTH_ADDR", "0.0.0.0:8081"),
	}

	return cfg, nil
}

// Validate checks that the fields required for a given service are present.
// Each binary calls this with the subset of required field names it needs.
func (c *Config) Validate(required ...string) error {
	var missing []string
	for _, name := range required {
		if c.isEmpty(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) isEmpty(field string) bool {
	switch field {
	case "SourceChainRPCURLs":
		return len(c.SourceChainRPCURLs) == 0
	case "ContractAddress":
		return c.ContractAddress == ""
	case "CloneTopic0":
		return c.CloneTopic0 == ""
	case "ClaimTopic0":
		return c.ClaimTopic0 == ""
	case "DatabaseURL":
		return c.DatabaseURL == ""
	case "BrokerURL":
		return c.BrokerURL == ""
	case "SigningKeyHex":
		return c.SigningKeyHex == ""
	default:
		return false
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvUint64(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseClusterURLs(v string) map[string]string {
	out := make(map[string]string)
	if v == "" {
		return out
	}
	for _, pair := range strings.Split(v, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) == 2 {
			out[kv[0]] = kv[1]
		}
	}
	return out
}
