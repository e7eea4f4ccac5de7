package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Endpoint.Host == "" {
		return fmt.Errorf("endpoint.host is required (or set %s)", EnvHost)
	}
	if c.Endpoint.APIKey == "" {
		return fmt.Errorf("endpoint.api_key is required (or set %s)", EnvAPIKey)
	}

	if err := c.Connection.validate(); err != nil {
		return err
	}

	if c.Reconnect.Enabled {
		if c.Reconnect.BaseDelay <= 0 {
			return errors.New("reconnect.base_delay must be > 0")
		}
		if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
			return fmt.Errorf("reconnect.max_delay (%s) cannot be less than base_delay (%s)",
				c.Reconnect.MaxDelay, c.Reconnect.BaseDelay)
		}
		if c.Reconnect.MaxAttempts < 0 {
			return errors.New("reconnect.max_attempts must be >= 0")
		}
	}

	seen := make(map[string]struct{})
	for i, sub := range c.Subscriptions {
		prefix := fmt.Sprintf("subscriptions[%d]", i)
		if strings.TrimSpace(sub.Query) == "" {
			return fmt.Errorf("%s.query is required", prefix)
		}
		if sub.ID == "" {
			continue
		}
		if _, dup := seen[sub.ID]; dup {
			return fmt.Errorf("%s.id %q is duplicated", prefix, sub.ID)
		}
		seen[sub.ID] = struct{}{}
	}

	if c.GapFill.Enabled {
		if err := c.GapFill.validate(); err != nil {
			return err
		}
	}

	if c.Snapshot.Enabled {
		if c.Snapshot.URL == "" {
			return fmt.Errorf("snapshot.url is required when snapshot is enabled (or set %s)", EnvDataURL)
		}
		if !strings.HasPrefix(c.Snapshot.Path, "/") {
			return fmt.Errorf("snapshot.path must start with /, got %q", c.Snapshot.Path)
		}
	}

	return c.Logging.validate()
}

func (cc *ConnectionConfig) validate() error {
	if cc.HandshakeTimeout < 0 || cc.WriteTimeout < 0 || cc.PingInterval < 0 {
		return errors.New("connection timeouts must be >= 0")
	}
	if cc.AckTimeout < 0 || cc.KeepaliveTimeout < 0 {
		return errors.New("connection.ack_timeout and keepalive_timeout must be >= 0")
	}
	if cc.BufferSize < 1 {
		return errors.New("connection.buffer_size must be >= 1")
	}
	return nil
}

func (g *GapFillConfig) validate() error {
	if len(g.Queries) == 0 {
		return errors.New("gap_fill.queries is required when gap_fill is enabled")
	}
	for i, q := range g.Queries {
		if strings.TrimSpace(q.Query) == "" {
			return fmt.Errorf("gap_fill.queries[%d].query is required", i)
		}
	}
	if g.Concurrency < 1 {
		return errors.New("gap_fill.concurrency must be >= 1")
	}
	if g.MaxRetries < 0 {
		return errors.New("gap_fill.max_retries must be >= 0")
	}
	return nil
}

func (l *LoggingConfig) validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", l.Format)
	}
	return nil
}
