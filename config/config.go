// Package config loads runtime configuration for the porter client from a
// YAML file, with defaults suitable for a local development server.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shnupta/porter/errors"
)

// Duration wraps time.Duration so YAML values can be written as "3s" or
// "500ms" instead of nanosecond integers.
type Duration time.Duration

// UnmarshalYAML parses human-readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in human-readable form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the client runtime configuration.
type Config struct {
	// EventsURL is the websocket endpoint for the realtime event stream.
	EventsURL string `yaml:"events_url"`

	// APIBaseURL is the base URL of the REST API.
	APIBaseURL string `yaml:"api_base_url"`

	// ReconnectDelay is the fixed delay between connection loss and the
	// next attempt.
	ReconnectDelay Duration `yaml:"reconnect_delay"`

	// RequestTimeout bounds each REST request.
	RequestTimeout Duration `yaml:"request_timeout"`
}

// Default returns the configuration for a local development server.
func Default() Config {
	return Config{
		EventsURL:      "ws://127.0.0.1:3100/ws",
		APIBaseURL:     "http://127.0.0.1:3100",
		ReconnectDelay: Duration(3 * time.Second),
		RequestTimeout: Duration(30 * time.Second),
	}
}

// Load reads a YAML config file, applying defaults for absent fields.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.WrapFatal(err, "Config", "Load", "read config file")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.WrapInvalid(err, "Config", "Load", "parse config file")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the runtime cannot work with.
func (c Config) Validate() error {
	if c.EventsURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "check events_url")
	}
	if !strings.HasPrefix(c.EventsURL, "ws://") && !strings.HasPrefix(c.EventsURL, "wss://") {
		return errors.WrapInvalid(
			fmt.Errorf("events_url must use ws or wss scheme, got %q: %w", c.EventsURL, errors.ErrInvalidConfig),
			"Config", "Validate", "check events_url scheme")
	}
	if c.APIBaseURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "check api_base_url")
	}
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		return errors.WrapInvalid(
			fmt.Errorf("api_base_url must use http or https scheme, got %q: %w", c.APIBaseURL, errors.ErrInvalidConfig),
			"Config", "Validate", "check api_base_url scheme")
	}
	if c.ReconnectDelay <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("reconnect_delay must be positive: %w", errors.ErrInvalidConfig),
			"Config", "Validate", "check reconnect_delay")
	}
	if c.RequestTimeout <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("request_timeout must be positive: %w", errors.ErrInvalidConfig),
			"Config", "Validate", "check request_timeout")
	}
	return nil
}
