package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Tracking TrackingConfig `toml:"tracking"`
	Service  ServiceConfig  `toml:"service"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
}

// LogConfig controls the charm logger.
type LogConfig struct {
	Level string `toml:"level"`
}

// TrackingConfig contains the view-history engine settings.
//
// PlaybackCompletePercent and PlaybackCompleteSeconds are combined: the larger threshold wins.
type TrackingConfig struct {
	TrackViewed             bool         `toml:"track_viewed"`
	PlaybackContext         string       `toml:"playback_context"`
	PlaybackCompletePercent PercentValue `toml:"playback_complete_percent"`
	PlaybackCompleteSeconds float64      `toml:"playback_complete_seconds"`
	MaxRetries              int          `toml:"max_retries"`
	ThrottleIntervalMS      int          `toml:"throttle_interval_ms"`
	RetryDelayMS            int          `toml:"retry_delay_ms"`
}

// ServiceConfig contains the record service endpoint and session.
type ServiceConfig struct {
	URL            string `toml:"url"`
	ProxyURL       string `toml:"proxy_url"`
	KS             string `toml:"ks"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	CircuitBreaker bool   `toml:"circuit_breaker"`
}

// DatabaseConfig contains database connection settings for the development record service.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings for the development record service.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PercentValue holds a completion percentage exactly as configured ("80", "80%", 80).
//
// Parsing and clamping happen where the threshold is computed; invalid input is kept so it can fall back there.
type PercentValue string

// UnmarshalTOML implements [toml.Unmarshaler] and accepts strings and numbers.
func (p *PercentValue) UnmarshalTOML(v any) error {
	switch t := v.(type) {
	case string:
		*p = PercentValue(t)
	case int64:
		*p = PercentValue(strconv.FormatInt(t, 10))
	case float64:
		*p = PercentValue(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		return fmt.Errorf("%w: playback_complete_percent must be a string or number, got %T", ErrInvalidConfig, v)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Tracking.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidConfig)
	}
	if c.Tracking.ThrottleIntervalMS < 0 || c.Tracking.RetryDelayMS < 0 {
		return fmt.Errorf("%w: intervals must not be negative", ErrInvalidConfig)
	}
	if c.Service.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: timeout_seconds must not be negative", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
