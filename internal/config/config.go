// Package config loads the engine configuration from YAML with environment
// variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the outreach engine.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Database  DatabaseConfig            `yaml:"database"`
	Redis     RedisConfig               `yaml:"redis"`
	Webhook   WebhookConfig             `yaml:"webhook"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Audit     AuditConfig               `yaml:"audit"`
	RateLimit RateLimitConfig           `yaml:"rate_limit"`
	Log       LogConfig                 `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL                string `yaml:"url"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	StatementTimeoutMS int    `yaml:"statement_timeout_ms"`
}

// RedisConfig holds Redis settings. Redis is optional: when Addr is empty
// the engine falls back to in-process counters and PG advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a Redis backend is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// WebhookConfig holds settings shared by all webhook verification paths.
type WebhookConfig struct {
	// MaxAgeSeconds is the replay window: signed payloads older than this
	// are rejected.
	MaxAgeSeconds int `yaml:"max_age_seconds"`
	// MaxFutureSkewSeconds guards against timestamps from the future.
	MaxFutureSkewSeconds int `yaml:"max_future_skew_seconds"`
	// MaxBodyBytes caps the accepted payload size.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// RecordTimeoutMS bounds verification through durable recording; past
	// it the endpoint answers 503 and the provider retries.
	RecordTimeoutMS int `yaml:"record_timeout_ms"`
}

// MaxAge returns the replay window as a duration.
func (w WebhookConfig) MaxAge() time.Duration {
	return time.Duration(w.MaxAgeSeconds) * time.Second
}

// MaxFutureSkew returns the future-skew guard as a duration.
func (w WebhookConfig) MaxFutureSkew() time.Duration {
	return time.Duration(w.MaxFutureSkewSeconds) * time.Second
}

// ProviderConfig holds per-provider settings. The webhook secret is never
// stored in YAML; SecretEnv names the environment variable that carries it.
type ProviderConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	SecretEnv      string `yaml:"secret_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the HTTP client timeout for this provider.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Secret resolves the provider's webhook secret from the environment.
func (p ProviderConfig) Secret() string { return os.Getenv(p.SecretEnv) }

// APIKey resolves the provider's API key from the environment.
func (p ProviderConfig) APIKey() string { return os.Getenv(p.APIKeyEnv) }

// AuditConfig holds the SQS audit-signal queue settings. Disabled when the
// queue URL is empty.
type AuditConfig struct {
	QueueURL string `yaml:"queue_url"`
	Region   string `yaml:"region"`
}

// RateLimitConfig holds webhook burst limits and the invalid-signature
// lockout policy.
type RateLimitConfig struct {
	// BurstPerMinute caps accepted webhook calls per provider per minute.
	// Zero disables burst limiting.
	BurstPerMinute int `yaml:"burst_per_minute"`
	// LockoutThreshold is the number of invalid signatures from one remote
	// address before further calls are refused for LockoutSeconds.
	LockoutThreshold int `yaml:"lockout_threshold"`
	LockoutSeconds   int `yaml:"lockout_seconds"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.StatementTimeoutMS == 0 {
		cfg.Database.StatementTimeoutMS = 5000
	}
	if cfg.Webhook.MaxAgeSeconds == 0 {
		cfg.Webhook.MaxAgeSeconds = 300
	}
	if cfg.Webhook.MaxFutureSkewSeconds == 0 {
		cfg.Webhook.MaxFutureSkewSeconds = 60
	}
	if cfg.Webhook.MaxBodyBytes == 0 {
		cfg.Webhook.MaxBodyBytes = 5 * 1024 * 1024
	}
	if cfg.Webhook.RecordTimeoutMS == 0 {
		cfg.Webhook.RecordTimeoutMS = 5000
	}
	if cfg.RateLimit.LockoutThreshold == 0 {
		cfg.RateLimit.LockoutThreshold = 10
	}
	if cfg.RateLimit.LockoutSeconds == 0 {
		cfg.RateLimit.LockoutSeconds = 900
	}
	if cfg.Audit.Region == "" {
		cfg.Audit.Region = "us-west-2"
	}
	for name, p := range cfg.Providers {
		if p.TimeoutSeconds == 0 {
			p.TimeoutSeconds = 30
			cfg.Providers[name] = p
		}
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides. A
// .env file is read first if present, so secrets can live in .env locally
// and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.URL = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if q := os.Getenv("AUDIT_QUEUE_URL"); q != "" {
		cfg.Audit.QueueURL = q
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Log.Level = lvl
	}

	return cfg, nil
}
