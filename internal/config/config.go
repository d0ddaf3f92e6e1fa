// Package config loads the gateway's TOML configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hermod-gw/hermod/internal/logger"
)

// Config is the top-level TOML structure.
type Config struct {
	Session  SessionConfig  `toml:"session" mapstructure:"session"`
	Webhook  WebhookConfig  `toml:"webhook" mapstructure:"webhook"`
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Store    StoreConfig    `toml:"store" mapstructure:"store"`
	Delivery DeliveryConfig `toml:"delivery_log" mapstructure:"delivery_log"`
	Log      logger.Config  `toml:"log" mapstructure:"log"`
}

// SessionConfig tunes the connection lifecycle manager.
type SessionConfig struct {
	CredentialsPath      string        `toml:"credentials_path" mapstructure:"credentials_path"`
	BackoffBase          time.Duration `toml:"backoff_base" mapstructure:"backoff_base"`
	BackoffMultiplier    float64       `toml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	BackoffCap           time.Duration `toml:"backoff_cap" mapstructure:"backoff_cap"`
	MaxAttempts          int           `toml:"max_attempts" mapstructure:"max_attempts"`
	ConnectTimeout       time.Duration `toml:"connect_timeout" mapstructure:"connect_timeout"`
	PairingLockTTL       time.Duration `toml:"pairing_lock_ttl" mapstructure:"pairing_lock_ttl"`
	ArtifactCleanupDelay time.Duration `toml:"artifact_cleanup_delay" mapstructure:"artifact_cleanup_delay"`
	BroadcastPace        time.Duration `toml:"broadcast_pace" mapstructure:"broadcast_pace"`
}

// WebhookConfig tunes the event delivery pipeline.
type WebhookConfig struct {
	MaxRetries       int           `toml:"max_retries" mapstructure:"max_retries"`
	RetryDelay       time.Duration `toml:"retry_delay" mapstructure:"retry_delay"`
	RequestTimeout   time.Duration `toml:"request_timeout" mapstructure:"request_timeout"`
	PaceDelay        time.Duration `toml:"pace_delay" mapstructure:"pace_delay"`
	BreakerThreshold int           `toml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `toml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen        string `toml:"listen" mapstructure:"listen"`
	BasePath      string `toml:"base_path" mapstructure:"base_path"`
	APIKey        string `toml:"api_key" mapstructure:"api_key"`
	Metrics       bool   `toml:"metrics" mapstructure:"metrics"`
	MetricsListen string `toml:"metrics_listen" mapstructure:"metrics_listen"`

	TLS TLSConfig `toml:"tls" mapstructure:"tls"`
}

// TLSConfig enables HTTPS for the API server. When Enabled and the cert
// files are missing a self-signed pair is generated at the given paths.
type TLSConfig struct {
	Enabled      bool   `toml:"enabled" mapstructure:"enabled"`
	CertFile     string `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string `toml:"key_file" mapstructure:"key_file"`
	AutoGenerate bool   `toml:"auto_generate" mapstructure:"auto_generate"`
}

// StoreConfig selects the subscriber persistence backend.
type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// DeliveryConfig lists delivery-log sink DSNs (sqlite/postgres/clickhouse/
// opensearch), all optional.
type DeliveryConfig struct {
	Sinks []string `toml:"sinks" mapstructure:"sinks"`
}

// Load reads and validates a TOML config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/api"
	}
	if c.Session.CredentialsPath == "" {
		c.Session.CredentialsPath = "credentials.json"
	}
}

// Validate collects every configuration violation rather than failing on
// the first.
func (c *Config) Validate() error {
	var problems []string

	if c.Session.BackoffBase < 0 {
		problems = append(problems, "session.backoff_base must not be negative")
	}
	if c.Session.BackoffMultiplier != 0 && c.Session.BackoffMultiplier < 1 {
		problems = append(problems, "session.backoff_multiplier must be >= 1")
	}
	if c.Session.MaxAttempts < 0 {
		problems = append(problems, "session.max_attempts must not be negative")
	}
	if c.Webhook.MaxRetries < 0 {
		problems = append(problems, "webhook.max_retries must not be negative")
	}
	if c.Webhook.BreakerThreshold < 0 {
		problems = append(problems, "webhook.breaker_threshold must not be negative")
	}
	if c.Server.TLS.Enabled && !c.Server.TLS.AutoGenerate {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			problems = append(problems, "server.tls requires cert_file and key_file unless auto_generate is set")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
