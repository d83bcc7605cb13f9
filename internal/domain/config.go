package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Scoring thresholds and decision constants
	Scoring ScoringConfig `json:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ScoringConfig holds the decision-policy and ensemble constants.
// The heuristic constants (savings percentages, arbitrage liquidity floor,
// reference asset price) have no derivation from first principles and are
// treated as configuration, not as a verified financial model.
type ScoringConfig struct {
	// TopK is the number of feature columns retained at fit time.
	TopK int `json:"topK"`

	// Voting weights for the two base learners.
	FastWeight     float64 `json:"fastWeight"`
	AccurateWeight float64 `json:"accurateWeight"`

	// DecisionThreshold is the probability above which a transaction is
	// classified as an attack.
	DecisionThreshold float64 `json:"decisionThreshold"`

	// RefAssetPriceUSD is the price used to convert transaction value into
	// estimated savings. A price oracle would replace this in production.
	RefAssetPriceUSD float64 `json:"refAssetPriceUsd"`

	// ArbLiquidityFloor is the liquidity depth above which an attack-classed
	// transaction is labeled arbitrage by the type heuristic.
	ArbLiquidityFloor float64 `json:"arbLiquidityFloor"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"

	// TierEnterprise adds Kafka ingestion for shared mempool feeds
	TierEnterprise Tier = "enterprise"
)

// DefaultScoringConfig returns the decision constants used by the trained
// ensemble and the routing policy.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		TopK:              25,
		FastWeight:        1.0,
		AccurateWeight:    1.5,
		DecisionThreshold: 0.5,
		RefAssetPriceUSD:  2000,
		ArbLiquidityFloor: 1e10,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:    TierCommunity,
		Scoring: DefaultScoringConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// EnterpriseConfig returns a configuration for Enterprise tier.
// Enterprise routes bus traffic through Kafka so multiple scoring nodes can
// share one mempool feed.
func EnterpriseConfig() *Config {
	cfg := ProConfig()
	cfg.Tier = TierEnterprise
	cfg.EventBus = EventBusConfig{
		Type:         "kafka",
		KafkaBrokers: []string{"localhost:9092"},
	}
	return cfg
}
