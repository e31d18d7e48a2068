// Package config loads application configuration from a YAML file and
// environment variables. Priority: ENV > YAML > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Auth       AuthConfig       `yaml:"auth"`
	Onboarding OnboardingConfig `yaml:"onboarding"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"SERVER_ADDR"             env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings. An empty DSN selects
// the in-memory stores, which suits local development and tests.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"               env:"DATABASE_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns"    env:"DATABASE_MAX_OPEN_CONNS"    env-default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns"    env:"DATABASE_MAX_IDLE_CONNS"    env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME" env-default:"1h"`
}

// RedisConfig holds the checklist status cache settings. An empty URL
// disables caching.
type RedisConfig struct {
	URL          string        `yaml:"url"            env:"REDIS_URL"`
	PoolSize     int           `yaml:"pool_size"      env:"REDIS_POOL_SIZE"      env-default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" env-default:"2"`
	DialTimeout  time.Duration `yaml:"dial_timeout"   env:"REDIS_DIAL_TIMEOUT"   env-default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout"   env:"REDIS_READ_TIMEOUT"   env-default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout"  env:"REDIS_WRITE_TIMEOUT"  env-default:"3s"`
	StatusTTL    time.Duration `yaml:"status_ttl"     env:"REDIS_STATUS_TTL"     env-default:"30s"`
}

// KafkaConfig holds the audit feed settings. Empty brokers disable the feed;
// audit entries then live only in the store.
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"     env:"KAFKA_BROKERS" env-separator:","`
	AuditTopic string   `yaml:"audit_topic" env:"KAFKA_AUDIT_TOPIC" env-default:"onboarding.audit"`
	Partitions int32    `yaml:"partitions"  env:"KAFKA_AUDIT_PARTITIONS" env-default:"3"`
}

// AuthConfig holds JWT verification settings for the HTTP API.
type AuthConfig struct {
	JWTSigningKey string `yaml:"jwt_signing_key" env:"AUTH_JWT_SIGNING_KEY" env-default:"dev-secret-change-in-production"`
}

// OnboardingConfig holds engine policy knobs.
type OnboardingConfig struct {
	// RestartResetsResponses clears the response counter on a restart from
	// FAILED. Checklist completions always survive a restart.
	RestartResetsResponses bool `yaml:"restart_resets_responses" env:"ONBOARDING_RESTART_RESETS_RESPONSES" env-default:"false"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// Load reads configuration. The YAML file path comes from CONFIG_PATH
// (fallback "./config.yaml"); a missing default file means ENV-only.
func Load() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations that would fail at first use.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server addr cannot be empty")
	}
	if c.Auth.JWTSigningKey == "" {
		return errors.New("auth jwt signing key cannot be empty")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" {
		return errors.New("kafka audit topic cannot be empty when brokers are set")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}
