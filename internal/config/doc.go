// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// The endpoint section falls back to REALTIME_API_HOST, REALTIME_API_KEY and
// REALTIME_API_REGION, so a config file is optional for simple runs.
package config
