package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Detection tuning knobs (budgets and caps)
	Detection DetectionConfig `json:"detection"`

	// Naming-convention policy expressions
	Convention ConventionConfig `json:"convention"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Store      StoreConfig      `json:"store"`
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

	// MaxUploadBytes caps the size of an uploaded transaction CSV.
	MaxUploadBytes int64 `json:"maxUploadBytes"`
}

// DetectionConfig holds the budgets and caps that keep detection
// usable on large transaction batches. Exceeding a budget silently
// truncates results; it is never an error.
type DetectionConfig struct {
	// MaxCyclesPerComponent caps cycle enumeration per strongly
	// connected component.
	MaxCyclesPerComponent int `json:"maxCyclesPerComponent"`

	// CycleTimeBudget is the cooperative wall-clock budget across the
	// whole cycle-detection pass.
	CycleTimeBudget time.Duration `json:"cycleTimeBudget"`

	// BurstWindow is the sliding window used for smurfing burst
	// detection.
	BurstWindow time.Duration `json:"burstWindow"`

	// MaxChains caps the number of layering chains recorded across all
	// entry nodes.
	MaxChains int `json:"maxChains"`

	// MaxSimulationCycles caps the cycle search inside a what-if run.
	MaxSimulationCycles int `json:"maxSimulationCycles"`
}

// ConventionConfig supplies the dataset-specific account naming
// conventions as CEL expressions over the variable `id`. The defaults
// match the reference dataset; alternate datasets supply their own.
type ConventionConfig struct {
	MerchantExpression    string `json:"merchantExpression"`
	DestinationExpression string `json:"destinationExpression"`
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
	// TierCommunity is the free tier with SQLite + in-memory store + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + Redis + NATS
	TierPro Tier = "pro"

	// TierEnterprise includes multi-node, SSO, etc.
	TierEnterprise Tier = "enterprise"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    60,
			WriteTimeout:   60,
			MaxUploadBytes: 64 << 20, // 64 MiB
		},
		Tier:       TierCommunity,
		Detection:  DefaultDetectionConfig(),
		Convention: DefaultConventionConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Store: StoreConfig{
			Type:       "memory",
			MaxEntries: 16,
			TTL:        24 * time.Hour,
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
	cfg.Store = StoreConfig{
		Type:      "redis",
		RedisAddr: "localhost:6379",
		TTL:       24 * time.Hour,
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

// DefaultDetectionConfig returns the production budgets.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		MaxCyclesPerComponent: 300,
		CycleTimeBudget:       8 * time.Second,
		BurstWindow:           168 * time.Hour,
		MaxChains:             200,
		MaxSimulationCycles:   200,
	}
}

// DefaultConventionConfig returns the reference dataset conventions.
func DefaultConventionConfig() ConventionConfig {
	return ConventionConfig{
		MerchantExpression:    `id.startsWith("MRC_") || id.startsWith("MERCHANT_") || id.startsWith("STORE_") || id.startsWith("SHOP_")`,
		DestinationExpression: `id.startsWith("DEST_") || id.startsWith("EXIT_") || id.startsWith("FINAL_")`,
	}
}
