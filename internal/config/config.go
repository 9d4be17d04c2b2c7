// Package config loads engine configuration from file and environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the truth feed engine.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Anchor   AnchorConfig   `mapstructure:"anchor"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Feeds    FeedsConfig    `mapstructure:"feeds"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString renders the pgx connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// RedisConfig holds Redis configuration for delivery rate limiting.
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// NATSConfig holds NATS configuration for the delivery queue and stream
// fan-out.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// AnchorConfig holds the external anchoring service settings.
type AnchorConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	RetryMax      time.Duration `mapstructure:"retry_max_interval"`
}

// DeliveryConfig holds the delivery pipeline settings.
type DeliveryConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// ArchiveConfig holds the archival schedule and cold-storage settings.
type ArchiveConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Schedule    string        `mapstructure:"schedule"`
	IdleWindow  time.Duration `mapstructure:"idle_window"`
	ManifestDir string        `mapstructure:"manifest_dir"`
	URL         string        `mapstructure:"url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Insecure    bool          `mapstructure:"insecure"`
	IndexPrefix string        `mapstructure:"index_prefix"`
}

// FeedsConfig holds feed registry defaults.
type FeedsConfig struct {
	UpdateFrequency string `mapstructure:"update_frequency"`
	RetentionDays   int    `mapstructure:"retention_days"`
}

// LoggingConfig holds log level and format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "truthfeed")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "truthfeed")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", true)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", true)

	v.SetDefault("anchor.url", "http://localhost:8095/anchor")
	v.SetDefault("anchor.enabled", true)
	v.SetDefault("anchor.timeout", "5s")
	v.SetDefault("anchor.retry_interval", "30s")
	v.SetDefault("anchor.retry_max_interval", "10m")

	v.SetDefault("delivery.workers", 4)
	v.SetDefault("delivery.queue_size", 1024)

	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.schedule", "0 3 * * *")
	v.SetDefault("archive.idle_window", "720h")
	v.SetDefault("archive.manifest_dir", "")
	v.SetDefault("archive.url", "https://localhost:9200")
	v.SetDefault("archive.username", "admin")
	v.SetDefault("archive.password", "")
	v.SetDefault("archive.insecure", true)
	v.SetDefault("archive.index_prefix", "truthfeed-archive")

	v.SetDefault("feeds.update_frequency", "event-driven")
	v.SetDefault("feeds.retention_days", 90)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override file config
	v.SetEnvPrefix("TRUTHFEED")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
