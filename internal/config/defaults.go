package config

import (
	"os"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultAckTimeout        = 30 * time.Second
	DefaultBufferSize        = 1000
	DefaultReconnectBase     = 1 * time.Second
	DefaultReconnectMax      = 60 * time.Second
	DefaultGapFillTimeout    = 30 * time.Second
	DefaultGapFillRetries    = 3
	DefaultGapFillBackoff    = 1 * time.Second
	DefaultGapFillConcurrent = 4
	DefaultSnapshotPath      = "/market/nba/props/odds"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

func (c *Config) applyDefaults() {
	// Endpoint from environment
	if c.Endpoint.Host == "" {
		c.Endpoint.Host = os.Getenv(EnvHost)
	}
	if c.Endpoint.APIKey == "" {
		c.Endpoint.APIKey = os.Getenv(EnvAPIKey)
	}
	if c.Endpoint.Region == "" {
		c.Endpoint.Region = os.Getenv(EnvRegion)
	}

	// Connection defaults
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.AckTimeout == 0 {
		c.Connection.AckTimeout = DefaultAckTimeout
	}
	if c.Connection.HonorServerTimeout == nil {
		honor := true
		c.Connection.HonorServerTimeout = &honor
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}

	// Reconnect defaults
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultReconnectBase
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultReconnectMax
	}

	// Gap fill defaults
	if c.GapFill.Timeout == 0 {
		c.GapFill.Timeout = DefaultGapFillTimeout
	}
	if c.GapFill.MaxRetries == 0 {
		c.GapFill.MaxRetries = DefaultGapFillRetries
	}
	if c.GapFill.RetryBackoff == 0 {
		c.GapFill.RetryBackoff = DefaultGapFillBackoff
	}
	if c.GapFill.Concurrency == 0 {
		c.GapFill.Concurrency = DefaultGapFillConcurrent
	}

	// Snapshot defaults
	if c.Snapshot.URL == "" {
		c.Snapshot.URL = os.Getenv(EnvDataURL)
	}
	if c.Snapshot.APIKey == "" {
		c.Snapshot.APIKey = c.Endpoint.APIKey
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = DefaultSnapshotPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
