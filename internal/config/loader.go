package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted when the matching field is empty.
const (
	EnvHost    = "REALTIME_API_HOST"
	EnvAPIKey  = "REALTIME_API_KEY"
	EnvRegion  = "REALTIME_API_REGION"
	EnvDataURL = "DATA_API_URL"
)

// Load reads a YAML config file and expands environment variables.
// query_file entries are read relative to the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := cfg.readQueryFiles(filepath.Dir(path)); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// FromEnv builds a config from defaults and the environment variables above.
// It is not validated.
func FromEnv() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) readQueryFiles(dir string) error {
	for i := range c.Subscriptions {
		sub := &c.Subscriptions[i]
		if err := readQueryFile(dir, sub.QueryFile, &sub.Query); err != nil {
			return fmt.Errorf("subscriptions[%d]: %w", i, err)
		}
	}
	for i := range c.GapFill.Queries {
		q := &c.GapFill.Queries[i]
		if err := readQueryFile(dir, q.QueryFile, &q.Query); err != nil {
			return fmt.Errorf("gap_fill.queries[%d]: %w", i, err)
		}
	}
	return nil
}

// readQueryFile fills *query from file unless query is already set inline.
func readQueryFile(dir, file string, query *string) error {
	if file == "" || *query != "" {
		return nil
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(dir, file)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read query file: %w", err)
	}
	*query = strings.TrimSpace(string(data))
	return nil
}
