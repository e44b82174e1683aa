package config

import (
	"github.com/polyflow/updown-data/internal/model"
)

// CollectorConfig is the root configuration for a collector instance.
type CollectorConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Poller    PollerConfig    `yaml:"poller"`
	Stream    StreamConfig    `yaml:"stream"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this collector.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds upstream REST API settings.
type APIConfig struct {
	GammaURL     string   `yaml:"gamma_url"`
	ClobURL      string   `yaml:"clob_url"`
	Timeout      Duration `yaml:"timeout"`
	MaxRetries   int      `yaml:"max_retries"`
	RetryBackoff Duration `yaml:"retry_backoff"`
}

// DatabaseConfig holds the Postgres connection for durable state.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// DiscoveryConfig holds discovery/expiry loop settings.
type DiscoveryConfig struct {
	Classes    []model.WindowClass `yaml:"classes"`
	SlugPrefix string              `yaml:"slug_prefix"`
	Interval   Duration            `yaml:"interval"`
	Grace      Duration            `yaml:"grace"`
}

// PollerConfig holds snapshot poller settings.
type PollerConfig struct {
	Interval    Duration `yaml:"interval"`
	Concurrency int      `yaml:"concurrency"`
	Timeout     Duration `yaml:"timeout"`
}

// StreamConfig holds delta stream settings.
type StreamConfig struct {
	URL              string   `yaml:"url"`
	RefreshInterval  Duration `yaml:"refresh_interval"`
	ReconnectDelay   Duration `yaml:"reconnect_delay"`
	PingInterval     Duration `yaml:"ping_interval"`
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
}

// MetricsConfig holds the health/metrics HTTP server settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
