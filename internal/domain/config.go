package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Scoring engine settings
	Scoring ScoringConfig `json:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
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
)

// Classifier blending modes.
const (
	BlendTable   = "table"   // ignore the classifier
	BlendMix     = "blend"   // weighted mix of classifier and table
	BlendReplace = "replace" // classifier output replaces the table
)

// ScoringConfig holds every tunable of the scoring core.
type ScoringConfig struct {
	// Normalizer
	OutlierCeiling decimal.Decimal `json:"outlierCeiling"`
	EarliestDate   time.Time       `json:"earliestDate"`
	MaxFutureDays  int             `json:"maxFutureDays"`

	// Section fan-out
	MaxWorkers     int           `json:"maxWorkers"`
	SectionTimeout time.Duration `json:"sectionTimeout"`

	// Explainability
	TopContributors int `json:"topContributors"`

	// Classifier blending
	BlendMode   string  `json:"blendMode"`
	BlendWeight float64 `json:"blendWeight"` // classifier share in BlendMix

	// Application velocity window
	VelocityWindow time.Duration `json:"velocityWindow"`

	Anomaly AnomalyConfig `json:"anomaly"`
}

// AnomalyConfig holds the heuristic thresholds of the behavioral anomaly detector.
// None of these has a documented calibration; they are kept as configuration.
type AnomalyConfig struct {
	// Circular funds: first vs last window of activity
	CircularWindowDays      int     `json:"circularWindowDays"`
	CircularSimilarityRatio float64 `json:"circularSimilarityRatio"`
	CircularNetFlowRatio    float64 `json:"circularNetFlowRatio"`
	CircularRisk            float64 `json:"circularRisk"`

	// Peer-to-peer concentration
	P2PKeywords       []string `json:"p2pKeywords"`
	P2PShareThreshold float64  `json:"p2pShareThreshold"`
	P2PMinOccurrences int      `json:"p2pMinOccurrences"`
	P2PMaxCV          float64  `json:"p2pMaxCv"`
	P2PTightCV        float64  `json:"p2pTightCv"`
	P2PTightRisk      float64  `json:"p2pTightRisk"`
	P2PModerateRisk   float64  `json:"p2pModerateRisk"`

	// Balance manipulation
	LargeCreditThreshold decimal.Decimal `json:"largeCreditThreshold"`
	ReversalMaxDays      int             `json:"reversalMaxDays"`
	ReversalTolerance    float64         `json:"reversalTolerance"`
	ReversalRisk         float64         `json:"reversalRisk"`
	ReversalRiskCap      float64         `json:"reversalRiskCap"`
	RecentBalanceDays    int             `json:"recentBalanceDays"`
	PaddingRatio         float64         `json:"paddingRatio"`
	PaddingRisk          float64         `json:"paddingRisk"`
	BalanceRiskCap       float64         `json:"balanceRiskCap"`
}

// DefaultAnomalyConfig returns the stock detector thresholds.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		CircularWindowDays:      7,
		CircularSimilarityRatio: 0.90,
		CircularNetFlowRatio:    0.10,
		CircularRisk:            0.3,

		P2PKeywords:       []string{"UPI", "IMPS", "NEFT", "RTGS", "P2P", "PAYTM", "PHONEPE", "GPAY", "TRANSFER FROM", "TRF FROM"},
		P2PShareThreshold: 0.40,
		P2PMinOccurrences: 5,
		P2PMaxCV:          0.30,
		P2PTightCV:        0.15,
		P2PTightRisk:      0.4,
		P2PModerateRisk:   0.2,

		LargeCreditThreshold: decimal.NewFromInt(50000),
		ReversalMaxDays:      2,
		ReversalTolerance:    0.10,
		ReversalRisk:         0.05,
		ReversalRiskCap:      0.3,
		RecentBalanceDays:    30,
		PaddingRatio:         2.0,
		PaddingRisk:          0.2,
		BalanceRiskCap:       0.5,
	}
}

// DefaultScoringConfig returns the stock scoring settings.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		OutlierCeiling:  decimal.NewFromInt(1_000_000),
		EarliestDate:    time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxFutureDays:   30,
		MaxWorkers:      len(AllSections()),
		SectionTimeout:  2 * time.Second,
		TopContributors: 5,
		BlendMode:       BlendTable,
		BlendWeight:     0.5,
		VelocityWindow:  30 * 24 * time.Hour,
		Anomaly:         DefaultAnomalyConfig(),
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
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:          "memory",
			LocalMaxSize:  10000,
			LocalTTL:      5 * time.Minute,
			AssessmentTTL: 15 * time.Minute,
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
			ServiceName: "harrier",
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
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		AssessmentTTL:  15 * time.Minute,
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
