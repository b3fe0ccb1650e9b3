package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/hospital-intake/pkg/messaging/redis"
	"github.com/jwalitptl/hospital-intake/pkg/worker"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Intake    IntakeConfig    `mapstructure:"intake"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Email     EmailConfig     `mapstructure:"email"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port           int    `mapstructure:"port" envconfig:"SERVER_PORT"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" envconfig:"SERVER_TIMEOUT_SECONDS"`
	Mode           string `mapstructure:"mode" envconfig:"SERVER_MODE"`
	Timezone       string `mapstructure:"timezone" envconfig:"SERVER_TIMEZONE"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host" envconfig:"DB_HOST"`
	Port         int    `mapstructure:"port" envconfig:"DB_PORT"`
	User         string `mapstructure:"user" envconfig:"DB_USER"`
	Password     string `mapstructure:"password" envconfig:"DB_PASSWORD"`
	Name         string `mapstructure:"name" envconfig:"DB_NAME"`
	SSLMode      string `mapstructure:"sslmode" envconfig:"DB_SSLMODE"`
	MaxOpenConns int    `mapstructure:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS"`
	Migrate      bool   `mapstructure:"migrate" envconfig:"DB_MIGRATE"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url" envconfig:"REDIS_URL"`
	MaxRetries   int           `mapstructure:"max_retries" envconfig:"REDIS_MAX_RETRIES"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" envconfig:"REDIS_RETRY_BACKOFF"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"REDIS_POOL_SIZE"`
	MinIdleConns int           `mapstructure:"min_idle_conns" envconfig:"REDIS_MIN_IDLE_CONNS"`
	// Sequences backs the sequence counters with Redis INCR instead of Postgres.
	Sequences bool `mapstructure:"sequences" envconfig:"REDIS_SEQUENCES"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret" envconfig:"JWT_SECRET"`
	Issuer string `mapstructure:"issuer" envconfig:"JWT_ISSUER"`
}

type LogConfig struct {
	Level   string `mapstructure:"level" envconfig:"LOG_LEVEL"`
	Console bool   `mapstructure:"console" envconfig:"LOG_CONSOLE"`
}

type IntakeConfig struct {
	CountryCode       string        `mapstructure:"country_code" envconfig:"COUNTRY_CODE"`
	TrunkPrefix       string        `mapstructure:"trunk_prefix" envconfig:"TRUNK_PREFIX"`
	MinutesPerPatient int           `mapstructure:"minutes_per_patient" envconfig:"MINUTES_PER_PATIENT"`
	RosterCacheTTL    time.Duration `mapstructure:"roster_cache_ttl" envconfig:"ROSTER_CACHE_TTL"`
	SequenceAttempts  int           `mapstructure:"sequence_attempts" envconfig:"SEQUENCE_ATTEMPTS"`
	SequenceLimit     int64         `mapstructure:"sequence_limit" envconfig:"SEQUENCE_LIMIT"`
	LedgerAttempts    int           `mapstructure:"ledger_attempts" envconfig:"LEDGER_ATTEMPTS"`
	// ReconcileInterval is how often the worker recounts ward beds; zero disables it.
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" envconfig:"RECONCILE_INTERVAL"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size" envconfig:"OUTBOX_BATCH_SIZE"`
	PollInterval  time.Duration `mapstructure:"poll_interval" envconfig:"OUTBOX_POLL_INTERVAL"`
	RetryAttempts int           `mapstructure:"retry_attempts" envconfig:"OUTBOX_RETRY_ATTEMPTS"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" envconfig:"OUTBOX_RETRY_DELAY"`
	Retention     time.Duration `mapstructure:"retention" envconfig:"OUTBOX_RETENTION"`
	Channel       string        `mapstructure:"channel" envconfig:"OUTBOX_CHANNEL"`
	MaxDeliveries int           `mapstructure:"max_deliveries" envconfig:"OUTBOX_MAX_DELIVERIES"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled" envconfig:"EMAIL_ENABLED"`
	Host     string `mapstructure:"host" envconfig:"SMTP_HOST"`
	Port     int    `mapstructure:"port" envconfig:"SMTP_PORT"`
	Username string `mapstructure:"username" envconfig:"SMTP_USERNAME"`
	Password string `mapstructure:"password" envconfig:"SMTP_PASSWORD"`
	From     string `mapstructure:"from" envconfig:"SMTP_FROM"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" envconfig:"RATE_LIMIT_ENABLED"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" envconfig:"RATE_LIMIT_RPS"`
	Burst             int     `mapstructure:"burst" envconfig:"RATE_LIMIT_BURST"`
}

// EnvPrefix namespaces the environment overrides, e.g. INTAKE_DB_HOST.
const EnvPrefix = "INTAKE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 15)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.timezone", "UTC")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("intake.country_code", "92")
	v.SetDefault("intake.trunk_prefix", "0")
	v.SetDefault("intake.minutes_per_patient", 10)
	v.SetDefault("intake.roster_cache_ttl", "30s")
	v.SetDefault("intake.sequence_attempts", 5)
	v.SetDefault("intake.sequence_limit", 999)
	v.SetDefault("intake.ledger_attempts", 3)
	v.SetDefault("intake.reconcile_interval", "10m")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "1s")
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", "5s")
	v.SetDefault("outbox.retention", "168h")
	v.SetDefault("outbox.channel", "notifications")
	v.SetDefault("outbox.max_deliveries", 5)
	v.SetDefault("email.port", 587)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)
}

// LoadConfig reads config.yml from the usual locations, falls back to defaults
// when no file exists, then applies INTAKE_* environment overrides.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app/config")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return load(v)
}

// LoadFile reads one explicit config file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	sections := []interface{}{
		&cfg.Server, &cfg.Database, &cfg.Redis, &cfg.JWT, &cfg.Log,
		&cfg.Intake, &cfg.Outbox, &cfg.Email, &cfg.RateLimit,
	}
	for _, s := range sections {
		if err := envconfig.Process(EnvPrefix, s); err != nil {
			return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Intake.SequenceAttempts < 1 {
		return fmt.Errorf("intake.sequence_attempts must be at least 1")
	}
	if c.Intake.SequenceLimit < 1 {
		return fmt.Errorf("intake.sequence_limit must be positive")
	}
	if c.Intake.MinutesPerPatient < 0 {
		return fmt.Errorf("intake.minutes_per_patient must not be negative")
	}
	if c.Outbox.BatchSize < 1 {
		return fmt.Errorf("outbox.batch_size must be positive")
	}
	if c.Outbox.PollInterval <= 0 {
		return fmt.Errorf("outbox.poll_interval must be positive")
	}
	return nil
}

// Location is the hospital's wall-clock zone used for daily scopes.
func (c *Config) Location() (*time.Location, error) {
	if c.Server.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid server.timezone %q: %w", c.Server.Timezone, err)
	}
	return loc, nil
}

// DSN builds the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func (c RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
		Channel:       c.Channel,
		Retention:     c.Retention,
		MaxDeliveries: c.MaxDeliveries,
	}
}
