package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/manifoldbus/manifold/topic"
	"github.com/manifoldbus/manifold/transports/amqp"
	"github.com/manifoldbus/manifold/transports/mqtt"
	"github.com/manifoldbus/manifold/transports/nats"
	"github.com/manifoldbus/manifold/transports/redis"
)

// Config is the root configuration structure for the Manifold daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database DatabaseConfig  `yaml:"database"`
	API      APIConfig       `yaml:"api"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Logging  LoggingConfig   `yaml:"logging"`
	Buses    []BusConfig     `yaml:"buses"`
	Bridges  []BridgeConfig  `yaml:"bridges"`
	Journal  JournalConfig   `yaml:"journal"`
	Tap      WebSocketConfig `yaml:"tap"`
}

// DatabaseConfig contains SQLite database settings for the journal store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains settings for the live message tap endpoint.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MetricsConfig contains InfluxDB connection settings for throughput metrics.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// JournalConfig controls the persistent message journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled"`
}

// BusConfig declares one named bus and the transport that backs it.
// Exactly one of the transport sections is consulted, selected by Transport.
type BusConfig struct {
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"`
	QueueSize int    `yaml:"queue_size"`

	MQTT  mqtt.Config  `yaml:"mqtt"`
	NATS  nats.Config  `yaml:"nats"`
	Redis redis.Config `yaml:"redis"`
	AMQP  amqp.Config  `yaml:"amqp"`
}

// BridgeConfig declares a forwarding rule between two named buses.
type BridgeConfig struct {
	Name      string          `yaml:"name"`
	Source    string          `yaml:"source"`
	Target    string          `yaml:"target"`
	Patterns  []string        `yaml:"patterns"`
	Translate TranslateConfig `yaml:"translate"`
}

// TranslateConfig optionally rewrites a topic prefix as messages cross a bridge.
type TranslateConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// transportKinds are the recognised values for BusConfig.Transport.
var transportKinds = map[string]bool{
	"memory": true,
	"mqtt":   true,
	"nats":   true,
	"redis":  true,
	"amqp":   true,
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MANIFOLD_SECTION_KEY
// For example: MANIFOLD_DATABASE_PATH, MANIFOLD_API_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/manifold.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Tap: WebSocketConfig{
			Path:           "/ws/tap",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Journal: JournalConfig{
			Enabled: true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MANIFOLD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MANIFOLD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MANIFOLD_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("MANIFOLD_METRICS_TOKEN"); v != "" {
		cfg.Metrics.Token = v
	}
	if v := os.Getenv("MANIFOLD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	buses := make(map[string]bool)
	for i, b := range c.Buses {
		switch {
		case b.Name == "":
			errs = append(errs, fmt.Sprintf("buses[%d].name is required", i))
		case buses[b.Name]:
			errs = append(errs, fmt.Sprintf("buses[%d].name %q is not unique", i, b.Name))
		default:
			buses[b.Name] = true
		}
		if !transportKinds[b.Transport] {
			errs = append(errs, fmt.Sprintf("buses[%d].transport %q is not one of memory, mqtt, nats, redis, amqp", i, b.Transport))
		}
	}

	for i, br := range c.Bridges {
		if br.Name == "" {
			errs = append(errs, fmt.Sprintf("bridges[%d].name is required", i))
		}
		if !buses[br.Source] {
			errs = append(errs, fmt.Sprintf("bridges[%d].source %q does not name a configured bus", i, br.Source))
		}
		if !buses[br.Target] {
			errs = append(errs, fmt.Sprintf("bridges[%d].target %q does not name a configured bus", i, br.Target))
		}
		if len(br.Patterns) == 0 {
			errs = append(errs, fmt.Sprintf("bridges[%d].patterns must list at least one pattern", i))
		}
		for _, p := range br.Patterns {
			if err := topic.Canonical.ValidatePattern(p); err != nil {
				errs = append(errs, fmt.Sprintf("bridges[%d]: pattern %q: %v", i, p, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
