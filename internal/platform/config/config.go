package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "ELECTA"

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// Config is the process configuration, loaded once in main and passed down as
// typed values.
type Config struct {
	Addr        string `envconfig:"ADDR" default:":8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	Database Database
	Redis    Redis
	Kafka    Kafka

	AdminToken    string `envconfig:"ADMIN_TOKEN"`
	JWTSigningKey string `envconfig:"JWT_SIGNING_KEY"`
	JWTIssuer     string `envconfig:"JWT_ISSUER" default:"electa"`
	JWTAudience   string `envconfig:"JWT_AUDIENCE" default:"electa-members"`

	MemberDirectoryURL     string        `envconfig:"MEMBER_DIRECTORY_URL"`
	MemberDirectoryTimeout time.Duration `envconfig:"MEMBER_DIRECTORY_TIMEOUT" default:"3s"`

	AllowSelfNomination bool          `envconfig:"ALLOW_SELF_NOMINATION" default:"true"`
	SubmitTimeout       time.Duration `envconfig:"SUBMIT_TIMEOUT" default:"5s"`
	QuotaCacheTTL       time.Duration `envconfig:"QUOTA_CACHE_TTL" default:"30s"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"2s"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Database configures the PostgreSQL connection pool.
type Database struct {
	URL          string `envconfig:"DATABASE_URL"`
	Driver       string `envconfig:"DATABASE_DRIVER" default:"postgres"`
	MaxOpenConns int    `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int    `envconfig:"DATABASE_MAX_IDLE_CONNS" default:"5"`
}

// Redis configures the advisory quota cache. An empty URL disables it.
type Redis struct {
	URL          string        `envconfig:"REDIS_URL"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"2s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"500ms"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"500ms"`
}

// Kafka configures the outbox relay. No brokers disables publishing.
type Kafka struct {
	Brokers  []string `envconfig:"KAFKA_BROKERS"`
	Topic    string   `envconfig:"KAFKA_TOPIC" default:"electa.nominations"`
	ClientID string   `envconfig:"KAFKA_CLIENT_ID" default:"electa"`
}

// Load reads ELECTA_* environment variables and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) IsDevelopment() bool {
	return c.Environment == EnvironmentDevelopment
}

// Validate rejects configurations that would start a half-working server.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.SubmitTimeout <= 0 {
		return fmt.Errorf("submit timeout must be positive")
	}
	if c.QuotaCacheTTL < 0 {
		return fmt.Errorf("quota cache ttl must not be negative")
	}
	if c.OutboxPollInterval <= 0 || c.OutboxBatchSize <= 0 {
		return fmt.Errorf("outbox poll interval and batch size must be positive")
	}
	if c.IsDevelopment() {
		return nil
	}
	if c.AdminToken == "" {
		return fmt.Errorf("admin token is required outside development")
	}
	if c.JWTSigningKey == "" {
		return fmt.Errorf("jwt signing key is required outside development")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required outside development")
	}
	if c.MemberDirectoryURL == "" {
		return fmt.Errorf("member directory url is required outside development")
	}
	return nil
}
