package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration. Every key has a default except
// DATABASE_URL. Environment variables always win over a config file.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	MigrationsPath string

	// Entity cache. Empty RedisURL selects the in-process store.
	RedisURL string
	CacheTTL time.Duration

	// Analytics. Empty KafkaBrokers disables publishing.
	KafkaBrokers        string
	KafkaAnalyticsTopic string

	// Channel provider
	ProviderBaseURL string
	ProviderTimeout time.Duration

	// Evaluation
	Workers         int
	RateLimit       int // requests per second per step type
	SweepInterval   time.Duration
	SweepBatchSize  int
	DispatchTimeout time.Duration
	ClaimTTL        time.Duration // a claim older than this is re-offered by the sweeper

	LogLevel string
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("READ_TIMEOUT", 5*time.Second)
	v.SetDefault("WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 30*time.Second)

	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_PATH", "migrations")

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("CACHE_TTL", 5*time.Minute)

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_ANALYTICS_TOPIC", "step-analytics")

	v.SetDefault("PROVIDER_BASE_URL", "http://localhost:9090/steps")
	v.SetDefault("PROVIDER_TIMEOUT", 10*time.Second)

	v.SetDefault("WORKERS", 10)
	v.SetDefault("RATE_LIMIT_PER_CHANNEL", 100)
	v.SetDefault("SWEEP_INTERVAL", 5*time.Second)
	v.SetDefault("SWEEP_BATCH_SIZE", 500)
	v.SetDefault("DISPATCH_TIMEOUT", 30*time.Second)
	v.SetDefault("CLAIM_TTL", 10*time.Minute)

	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads configuration from the environment and, when configFile is
// not empty, from that file first.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", configFile)
		}
	}
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	dbURL := v.GetString("DATABASE_URL")
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort:        v.GetString("HTTP_PORT"),
		ReadTimeout:     v.GetDuration("READ_TIMEOUT"),
		WriteTimeout:    v.GetDuration("WRITE_TIMEOUT"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),

		DatabaseURL:    dbURL,
		DBMaxConns:     v.GetInt32("DB_MAX_CONNS"),
		DBMinConns:     v.GetInt32("DB_MIN_CONNS"),
		MigrationsPath: v.GetString("MIGRATIONS_PATH"),

		RedisURL: v.GetString("REDIS_URL"),
		CacheTTL: v.GetDuration("CACHE_TTL"),

		KafkaBrokers:        v.GetString("KAFKA_BROKERS"),
		KafkaAnalyticsTopic: v.GetString("KAFKA_ANALYTICS_TOPIC"),

		ProviderBaseURL: v.GetString("PROVIDER_BASE_URL"),
		ProviderTimeout: v.GetDuration("PROVIDER_TIMEOUT"),

		Workers:         v.GetInt("WORKERS"),
		RateLimit:       v.GetInt("RATE_LIMIT_PER_CHANNEL"),
		SweepInterval:   v.GetDuration("SWEEP_INTERVAL"),
		SweepBatchSize:  v.GetInt("SWEEP_BATCH_SIZE"),
		DispatchTimeout: v.GetDuration("DISPATCH_TIMEOUT"),
		ClaimTTL:        v.GetDuration("CLAIM_TTL"),

		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if cfg.Workers < 1 {
		return nil, errors.Newf("WORKERS must be at least 1, got %d", cfg.Workers)
	}
	if cfg.SweepInterval <= 0 {
		return nil, errors.Newf("SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	}
	if cfg.SweepBatchSize < 1 {
		return nil, errors.Newf("SWEEP_BATCH_SIZE must be at least 1, got %d", cfg.SweepBatchSize)
	}
	if cfg.ClaimTTL <= cfg.DispatchTimeout {
		return nil, errors.Newf("CLAIM_TTL (%s) must exceed DISPATCH_TIMEOUT (%s)", cfg.ClaimTTL, cfg.DispatchTimeout)
	}
	return cfg, nil
}
