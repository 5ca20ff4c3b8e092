package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the device-sync engine.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Transport TransportConfig `yaml:"transport"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// UpstreamConfig contains the dashboard server connection settings.
type UpstreamConfig struct {
	// BaseURL is the REST API root, e.g. "https://dash.example.com".
	BaseURL string `yaml:"base_url"`

	// WSURL is the push-channel root, e.g. "wss://dash.example.com".
	// Defaults to BaseURL with the scheme switched to ws/wss.
	WSURL string `yaml:"ws_url"`

	Auth UpstreamAuthConfig `yaml:"auth"`

	// RequestTimeout bounds every REST call (seconds). A command call that
	// exceeds it counts as a failure for rollback purposes.
	RequestTimeout int `yaml:"request_timeout"`
}

// UpstreamAuthConfig contains the session credentials for the upstream server.
type UpstreamAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TransportConfig contains push-channel reconnection settings.
type TransportConfig struct {
	// InitialDelay is the base backoff delay in milliseconds.
	InitialDelay int `yaml:"initial_delay"`

	// MaxDelay caps the backoff delay in milliseconds.
	MaxDelay int `yaml:"max_delay"`

	// MaxAttempts is the number of automatic reconnects before the
	// connection is surfaced as terminally disconnected.
	MaxAttempts int `yaml:"max_attempts"`
}

// DatabaseConfig contains SQLite settings for the roster cache.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains settings for the optional direct telemetry ingest.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Topic     string              `yaml:"topic"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains settings for the telemetry write-through sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains settings for the local UI facade.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the local UI event hub.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DEVICESYNC_SECTION_KEY
// For example: DEVICESYNC_UPSTREAM_BASE_URL, DEVICESYNC_DATABASE_PATH
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
		Upstream: UpstreamConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: 10,
		},
		Transport: TransportConfig{
			InitialDelay: 1000,
			MaxDelay:     30000,
			MaxAttempts:  5,
		},
		Database: DatabaseConfig{
			Path:        "./data/devicesync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "devicesync",
			},
			QoS:   1,
			Topic: "fleet/telemetry/#",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DEVICESYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Upstream
	if v := os.Getenv("DEVICESYNC_UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("DEVICESYNC_UPSTREAM_WS_URL"); v != "" {
		cfg.Upstream.WSURL = v
	}
	if v := os.Getenv("DEVICESYNC_UPSTREAM_USERNAME"); v != "" {
		cfg.Upstream.Auth.Username = v
	}
	if v := os.Getenv("DEVICESYNC_UPSTREAM_PASSWORD"); v != "" {
		cfg.Upstream.Auth.Password = v
	}

	// Database
	if v := os.Getenv("DEVICESYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("DEVICESYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DEVICESYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DEVICESYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("DEVICESYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("DEVICESYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("DEVICESYNC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Upstream.BaseURL == "" {
		errs = append(errs, "upstream.base_url is required")
	} else if !strings.HasPrefix(c.Upstream.BaseURL, "http://") && !strings.HasPrefix(c.Upstream.BaseURL, "https://") {
		errs = append(errs, "upstream.base_url must start with http:// or https://")
	}
	if c.Upstream.Auth.Username == "" {
		errs = append(errs, "upstream.auth.username is required (set DEVICESYNC_UPSTREAM_USERNAME environment variable)")
	}
	if c.Upstream.Auth.Password == "" {
		errs = append(errs, "upstream.auth.password is required (set DEVICESYNC_UPSTREAM_PASSWORD environment variable)")
	}

	if c.Transport.InitialDelay <= 0 {
		errs = append(errs, "transport.initial_delay must be positive")
	}
	if c.Transport.MaxDelay < c.Transport.InitialDelay {
		errs = append(errs, "transport.max_delay must be >= transport.initial_delay")
	}
	if c.Transport.MaxAttempts < 0 {
		errs = append(errs, "transport.max_attempts must not be negative")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Topic == "" {
		errs = append(errs, "mqtt.topic is required when mqtt is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PushURL returns the push-channel root, deriving it from BaseURL when
// ws_url is not set explicitly.
func (c *Config) PushURL() string {
	if c.Upstream.WSURL != "" {
		return c.Upstream.WSURL
	}
	url := c.Upstream.BaseURL
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

// GetRequestTimeout returns the upstream request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Upstream.RequestTimeout) * time.Second
}

// GetInitialBackoff returns the transport base backoff delay as a Duration.
func (c *Config) GetInitialBackoff() time.Duration {
	return time.Duration(c.Transport.InitialDelay) * time.Millisecond
}

// GetMaxBackoff returns the transport backoff cap as a Duration.
func (c *Config) GetMaxBackoff() time.Duration {
	return time.Duration(c.Transport.MaxDelay) * time.Millisecond
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
