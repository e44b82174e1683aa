package config

import (
	"time"

	"github.com/polyflow/updown-data/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultGammaURL          = "https://gamma-api.polymarket.com"
	DefaultClobURL           = "https://clob.polymarket.com"
	DefaultWSURL             = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	DefaultAPITimeout        = Duration(10 * time.Second)
	DefaultMaxRetries        = 2
	DefaultRetryBackoff      = Duration(1 * time.Second)
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultSlugPrefix        = "btc-updown"
	DefaultDiscoveryInterval = Duration(3 * time.Second)
	DefaultGrace             = Duration(30 * time.Second)
	DefaultPollInterval      = Duration(1 * time.Second)
	DefaultPollConcurrency   = 20
	DefaultPollTimeout       = Duration(10 * time.Second)
	DefaultRefreshInterval   = Duration(1 * time.Second)
	DefaultReconnectDelay    = Duration(3 * time.Second)
	DefaultPingInterval      = Duration(30 * time.Second)
	DefaultHandshakeTimeout  = Duration(10 * time.Second)
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

func (c *CollectorConfig) applyDefaults() {
	// API defaults
	if c.API.GammaURL == "" {
		c.API.GammaURL = DefaultGammaURL
	}
	if c.API.ClobURL == "" {
		c.API.ClobURL = DefaultClobURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Discovery defaults
	if len(c.Discovery.Classes) == 0 {
		c.Discovery.Classes = []model.WindowClass{model.Window5m, model.Window15m}
	}
	if c.Discovery.SlugPrefix == "" {
		c.Discovery.SlugPrefix = DefaultSlugPrefix
	}
	if c.Discovery.Interval == 0 {
		c.Discovery.Interval = DefaultDiscoveryInterval
	}
	if c.Discovery.Grace == 0 {
		c.Discovery.Grace = DefaultGrace
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}

	// Stream defaults
	if c.Stream.URL == "" {
		c.Stream.URL = DefaultWSURL
	}
	if c.Stream.RefreshInterval == 0 {
		c.Stream.RefreshInterval = DefaultRefreshInterval
	}
	if c.Stream.ReconnectDelay == 0 {
		c.Stream.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.HandshakeTimeout == 0 {
		c.Stream.HandshakeTimeout = DefaultHandshakeTimeout
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
