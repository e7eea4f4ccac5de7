package config

import "time"

// Config is the root configuration for a realtime client.
type Config struct {
	Endpoint      EndpointConfig       `yaml:"endpoint"`
	Connection    ConnectionConfig     `yaml:"connection"`
	Reconnect     ReconnectConfig      `yaml:"reconnect"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	GapFill       GapFillConfig        `yaml:"gap_fill"`
	Snapshot      SnapshotConfig       `yaml:"snapshot"`
	Health        HealthConfig         `yaml:"health"`
	Logging       LoggingConfig        `yaml:"logging"`
}

// EndpointConfig identifies the AppSync API.
type EndpointConfig struct {
	Host      string `yaml:"host"` // e.g. abc.appsync-realtime-api.us-east-1.amazonaws.com
	Region    string `yaml:"region"`
	APIKey    string `yaml:"api_key"`    // Sent as Authorization
	UserAgent string `yaml:"user_agent"` // x-amz-user-agent in start extensions
}

// ConnectionConfig holds WebSocket connection settings.
type ConnectionConfig struct {
	URL                string        `yaml:"url"` // Overrides the URL derived from endpoint.host
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	AckTimeout         time.Duration `yaml:"ack_timeout"`
	KeepaliveTimeout   time.Duration `yaml:"keepalive_timeout"`
	HonorServerTimeout *bool         `yaml:"honor_server_timeout"` // Unset means true
	SendStopOnClose    bool          `yaml:"send_stop_on_close"`
	BufferSize         int           `yaml:"buffer_size"`
}

// ReconnectConfig holds reconnect supervisor settings.
type ReconnectConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// SubscriptionConfig describes one subscription started by the CLI.
type SubscriptionConfig struct {
	ID        string         `yaml:"id"`
	Query     string         `yaml:"query"`
	QueryFile string         `yaml:"query_file"` // Read into Query; relative to the config file
	Field     string         `yaml:"field"`
	Variables map[string]any `yaml:"variables"`
}

// GapFillConfig holds catch-up query settings.
type GapFillConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Queries      []QueryConfig `yaml:"queries"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	Concurrency  int           `yaml:"concurrency"`
}

// QueryConfig is one catch-up query.
type QueryConfig struct {
	Name      string         `yaml:"name"`
	Query     string         `yaml:"query"`
	QueryFile string         `yaml:"query_file"`
	Field     string         `yaml:"field"` // Read from the response's data object
	Variables map[string]any `yaml:"variables"`
}

// SnapshotConfig locates the odds snapshot on the data API.
type SnapshotConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`     // Data API base URL
	APIKey  string `yaml:"api_key"` // Sent as x-api-key; defaults to endpoint.api_key
	Path    string `yaml:"path"`
}

// HealthConfig holds the health server settings. An empty Addr disables it.
type HealthConfig struct {
	Addr string `yaml:"addr"` // e.g. ":8080"
}

// LoggingConfig holds log handler settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}
