// Package config handles Whisper client configuration loading and
// validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure for the client.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Sync settings
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// ServerConfig contains endpoints and credentials.
type ServerConfig struct {
	// BaseURL is the REST endpoint root (e.g. http://localhost:8080).
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// WSURL is the push endpoint (e.g. ws://localhost:8080/ws).
	// Derived from BaseURL when empty.
	WSURL string `yaml:"ws_url" mapstructure:"ws_url"`

	// Token is the bearer token for the session. Usually supplied via
	// WHISPER_SERVER_TOKEN rather than the config file.
	Token string `yaml:"token" mapstructure:"token"`

	// RequestTimeout bounds every REST round-trip.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// EffectiveWSURL returns the push endpoint, deriving it from BaseURL
// when no explicit ws_url is configured.
func (s ServerConfig) EffectiveWSURL() string {
	if s.WSURL != "" {
		return s.WSURL
	}
	url := s.BaseURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return strings.TrimRight(url, "/") + "/ws"
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// SyncConfig contains the synchronization engine's timings.
type SyncConfig struct {
	// ReadSweepInterval is how often unacked messages are re-evaluated.
	ReadSweepInterval time.Duration `yaml:"read_sweep_interval" mapstructure:"read_sweep_interval"`

	// ListPollInterval is how often the conversation list considers a
	// refresh. The poll is skipped while nothing is unread.
	ListPollInterval time.Duration `yaml:"list_poll_interval" mapstructure:"list_poll_interval"`

	// ReconnectInitial is the first reconnect delay after the push
	// connection drops.
	ReconnectInitial time.Duration `yaml:"reconnect_initial" mapstructure:"reconnect_initial"`

	// ReconnectMax caps the exponential reconnect backoff.
	ReconnectMax time.Duration `yaml:"reconnect_max" mapstructure:"reconnect_max"`

	// SubscribeBuffer is the per-subscription inbound channel size.
	SubscribeBuffer int `yaml:"subscribe_buffer" mapstructure:"subscribe_buffer"`
}

// TUIConfig contains terminal UI settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ShowTimestamps shows per-message timestamps in the chat view.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        "http://localhost:8080",
			RequestTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Sync: SyncConfig{
			ReadSweepInterval: 2 * time.Second,
			ListPollInterval:  30 * time.Second,
			ReconnectInitial:  1 * time.Second,
			ReconnectMax:      30 * time.Second,
			SubscribeBuffer:   256,
		},
		TUI: TUIConfig{
			Theme:          "default",
			ShowTimestamps: true,
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	if c.Sync.ReadSweepInterval <= 0 {
		return fmt.Errorf("sync.read_sweep_interval must be positive")
	}
	if c.Sync.ListPollInterval <= 0 {
		return fmt.Errorf("sync.list_poll_interval must be positive")
	}
	if c.Sync.ReconnectInitial <= 0 || c.Sync.ReconnectMax < c.Sync.ReconnectInitial {
		return fmt.Errorf("sync reconnect backoff bounds are inconsistent")
	}
	if c.Sync.SubscribeBuffer <= 0 {
		return fmt.Errorf("sync.subscribe_buffer must be positive")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
