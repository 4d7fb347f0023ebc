package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when MAVBRIDGE_CONFIG is unset.
const DefaultPath = "configs/config.yaml"

// Publish interval bounds in milliseconds.
const (
	MinIntervalMS = 50
	MaxIntervalMS = 5000
)

// Config is the root configuration structure for mavbridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Transport   TransportConfig   `yaml:"transport"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Publish     PublishConfig     `yaml:"publish"`
	Health      HealthConfig      `yaml:"health"`
	LocalBroker LocalBrokerConfig `yaml:"local_broker"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// TransportConfig contains the MAVLink UDP receive endpoint.
type TransportConfig struct {
	Address          string `yaml:"address"`
	Port             int    `yaml:"port"`
	ReceiveTimeoutMS int    `yaml:"receive_timeout_ms"`

	// Autostart begins listening at startup instead of waiting for the operator.
	Autostart bool `yaml:"autostart"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig `yaml:"broker"`
	Auth           MQTTAuthConfig   `yaml:"auth"`
	QoS            int              `yaml:"qos"`
	KeepAlive      int              `yaml:"keep_alive"`
	ConnectTimeout int              `yaml:"connect_timeout"`

	// Autoconnect connects to the broker at startup.
	Autoconnect bool `yaml:"autoconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`

	// ClientID is generated ("mavbridge-<8 hex>") when empty.
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// PublishConfig contains the publisher settings.
type PublishConfig struct {
	Topic          string `yaml:"topic"`
	IntervalMS     int    `yaml:"interval_ms"`
	QoS            int    `yaml:"qos"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`

	// ActivityLogSize bounds the recent-publish log.
	ActivityLogSize int `yaml:"activity_log_size"`

	// AutoEnable lists message types that start enabled when first seen.
	AutoEnable []string `yaml:"auto_enable"`
}

// HealthConfig contains bridge health publishing settings.
type HealthConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval in seconds.
	Interval int `yaml:"interval"`
}

// LocalBrokerConfig contains settings for a locally spawned mosquitto.
type LocalBrokerConfig struct {
	// Managed allows the bridge to start and stop a local broker.
	Managed bool `yaml:"managed"`

	// Binary is the mosquitto executable. Default: "mosquitto"
	Binary string `yaml:"binary"`

	// Port the local broker listens on. Default: 1883
	Port int `yaml:"port"`

	// GracefulTimeout in seconds before SIGKILL follows SIGTERM.
	GracefulTimeout int `yaml:"graceful_timeout"`

	// Autostart starts the broker before any broker autoconnect.
	Autostart bool `yaml:"autostart"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APIAuthConfig contains operator authentication settings.
// When disabled every API route is open.
type APIAuthConfig struct {
	Enabled bool `yaml:"enabled"`

	// JWTSecret signs operator tokens. At least 32 characters.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL in minutes. Default: 15
	TokenTTL int `yaml:"token_ttl"`

	Accounts []APIAccountConfig `yaml:"accounts"`
}

// APIAccountConfig is one operator login.
type APIAccountConfig struct {
	Username string `yaml:"username"`

	// PasswordHash is an Argon2id PHC string ("mavbridge hash-password").
	PasswordHash string `yaml:"password_hash"`

	// Role is "viewer" or "operator".
	Role string `yaml:"role"`
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`

	// FeedIntervalMS is how often the message snapshot is pushed.
	FeedIntervalMS int `yaml:"feed_interval_ms"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MAVBRIDGE_SECTION_KEY
// For example: MAVBRIDGE_MQTT_HOST, MAVBRIDGE_PUBLISH_INTERVAL_MS
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// LoadFromEnv loads the file named by MAVBRIDGE_CONFIG, or DefaultPath.
// A missing file at DefaultPath is not an error: defaults plus environment
// overrides are used instead. A missing file named explicitly is an error.
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - string: The path that was loaded, or "" when running on defaults
//   - error: If loading or validation fails
func LoadFromEnv() (*Config, string, error) {
	path := os.Getenv("MAVBRIDGE_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg, err := Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, path, err
	}

	cfg, err = finish(Default())
	return cfg, "", err
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Address:          "0.0.0.0",
			Port:             14550,
			ReceiveTimeoutMS: 1000,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "127.0.0.1",
				Port: 1883,
			},
			QoS:            1,
			KeepAlive:      60,
			ConnectTimeout: 10,
		},
		Publish: PublishConfig{
			Topic:           "mavlink/msg",
			IntervalMS:      500,
			QoS:             0,
			PollIntervalMS:  25,
			ActivityLogSize: 20,
		},
		Health: HealthConfig{
			Enabled:  true,
			Interval: 30,
		},
		LocalBroker: LocalBrokerConfig{
			Binary:          "mosquitto",
			Port:            1883,
			GracefulTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Auth: APIAuthConfig{
				TokenTTL: 15,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			FeedIntervalMS: 1000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/mavbridge.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MAVBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}
	setBool := func(key string, dst *bool) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
			return
		}
		*dst = b
	}

	// Transport
	setString("MAVBRIDGE_LISTEN_ADDRESS", &cfg.Transport.Address)
	setInt("MAVBRIDGE_LISTEN_PORT", &cfg.Transport.Port)
	setBool("MAVBRIDGE_LISTEN_AUTOSTART", &cfg.Transport.Autostart)

	// MQTT
	setString("MAVBRIDGE_MQTT_HOST", &cfg.MQTT.Broker.Host)
	setInt("MAVBRIDGE_MQTT_PORT", &cfg.MQTT.Broker.Port)
	setString("MAVBRIDGE_MQTT_CLIENT_ID", &cfg.MQTT.Broker.ClientID)
	setString("MAVBRIDGE_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("MAVBRIDGE_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)
	setBool("MAVBRIDGE_MQTT_AUTOCONNECT", &cfg.MQTT.Autoconnect)

	// Publish
	setString("MAVBRIDGE_PUBLISH_TOPIC", &cfg.Publish.Topic)
	setInt("MAVBRIDGE_PUBLISH_INTERVAL_MS", &cfg.Publish.IntervalMS)
	setInt("MAVBRIDGE_PUBLISH_QOS", &cfg.Publish.QoS)

	// API
	setString("MAVBRIDGE_API_HOST", &cfg.API.Host)
	setInt("MAVBRIDGE_API_PORT", &cfg.API.Port)
	setBool("MAVBRIDGE_API_AUTH_ENABLED", &cfg.API.Auth.Enabled)
	setString("MAVBRIDGE_JWT_SECRET", &cfg.API.Auth.JWTSecret)

	// Logging
	setString("MAVBRIDGE_LOG_LEVEL", &cfg.Logging.Level)
	setString("MAVBRIDGE_LOG_FORMAT", &cfg.Logging.Format)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
// All problems are reported together.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Transport validation
	if c.Transport.Port < 1 || c.Transport.Port > 65535 {
		errs = append(errs, "transport.port must be between 1 and 65535")
	}
	if c.Transport.ReceiveTimeoutMS < 1 {
		errs = append(errs, "transport.receive_timeout_ms must be positive")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Publish validation
	if strings.TrimSpace(c.Publish.Topic) == "" {
		errs = append(errs, "publish.topic is required")
	}
	if c.Publish.IntervalMS < MinIntervalMS || c.Publish.IntervalMS > MaxIntervalMS {
		errs = append(errs, fmt.Sprintf("publish.interval_ms must be between %d and %d", MinIntervalMS, MaxIntervalMS))
	}
	if c.Publish.QoS < 0 || c.Publish.QoS > 2 {
		errs = append(errs, "publish.qos must be 0, 1, or 2")
	}
	if c.Publish.PollIntervalMS < 1 || c.Publish.PollIntervalMS > MinIntervalMS {
		errs = append(errs, fmt.Sprintf("publish.poll_interval_ms must be between 1 and %d", MinIntervalMS))
	}
	if c.Publish.ActivityLogSize < 1 {
		errs = append(errs, "publish.activity_log_size must be positive")
	}

	// Health validation
	if c.Health.Enabled && c.Health.Interval < 1 {
		errs = append(errs, "health.interval must be positive when health is enabled")
	}

	// Local broker validation
	if c.LocalBroker.Managed {
		if c.LocalBroker.Binary == "" {
			errs = append(errs, "local_broker.binary is required when managed")
		}
		if c.LocalBroker.Port < 1 || c.LocalBroker.Port > 65535 {
			errs = append(errs, "local_broker.port must be between 1 and 65535")
		}
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Auth.Enabled {
		errs = append(errs, c.API.Auth.validate()...)
	}

	// Logging validation
	switch c.Logging.Output {
	case "stdout", "stderr":
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required when output is file")
		}
	default:
		errs = append(errs, "logging.output must be stdout, stderr or file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// minJWTSecretLength matches auth.MinSecretLength.
const minJWTSecretLength = 32

func (a APIAuthConfig) validate() []string {
	var errs []string
	if a.JWTSecret == "" {
		errs = append(errs, "api.auth.jwt_secret is required when auth is enabled (set MAVBRIDGE_JWT_SECRET)")
	} else if len(a.JWTSecret) < minJWTSecretLength {
		errs = append(errs, fmt.Sprintf("api.auth.jwt_secret must be at least %d characters", minJWTSecretLength))
	}
	if a.TokenTTL < 1 {
		errs = append(errs, "api.auth.token_ttl must be positive")
	}
	if len(a.Accounts) == 0 {
		errs = append(errs, "api.auth.accounts must list at least one account when auth is enabled")
	}
	seen := make(map[string]bool, len(a.Accounts))
	for i, acct := range a.Accounts {
		switch {
		case acct.Username == "":
			errs = append(errs, fmt.Sprintf("api.auth.accounts[%d].username is required", i))
		case seen[acct.Username]:
			errs = append(errs, fmt.Sprintf("api.auth.accounts[%d].username %q is duplicated", i, acct.Username))
		}
		seen[acct.Username] = true
		if acct.PasswordHash == "" {
			errs = append(errs, fmt.Sprintf("api.auth.accounts[%d].password_hash is required", i))
		}
		if acct.Role != "viewer" && acct.Role != "operator" {
			errs = append(errs, fmt.Sprintf("api.auth.accounts[%d].role must be viewer or operator", i))
		}
	}
	return errs
}

// GetTokenTTL returns the operator token lifetime as a Duration.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.API.Auth.TokenTTL) * time.Minute
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

// GetPublishInterval returns the publish interval as a Duration.
func (c *Config) GetPublishInterval() time.Duration {
	return time.Duration(c.Publish.IntervalMS) * time.Millisecond
}

// GetPollInterval returns the publisher poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Publish.PollIntervalMS) * time.Millisecond
}

// GetReceiveTimeout returns the listener receive timeout as a Duration.
func (c *Config) GetReceiveTimeout() time.Duration {
	return time.Duration(c.Transport.ReceiveTimeoutMS) * time.Millisecond
}

// GetHealthInterval returns the health publish interval, or 0 when disabled.
func (c *Config) GetHealthInterval() time.Duration {
	if !c.Health.Enabled {
		return 0
	}
	return time.Duration(c.Health.Interval) * time.Second
}

// GetFeedInterval returns the WebSocket snapshot feed interval.
func (c *Config) GetFeedInterval() time.Duration {
	return time.Duration(c.WebSocket.FeedIntervalMS) * time.Millisecond
}
