package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Device backends.
const (
	BackendLoopback = "loopback"
	BackendMQTT     = "mqtt"
)

// Config is the root configuration structure for Gray Logic MIDI.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Device    DeviceConfig    `yaml:"device"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`

	// IgnoredEnv lists override variables that were set but did not parse.
	IgnoredEnv []string `yaml:"-"`
}

// ServiceConfig identifies this instance.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DeviceConfig describes the MIDI port managed by this instance.
type DeviceConfig struct {
	Name        string `yaml:"name"`
	Vendor      string `yaml:"vendor"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`

	// Backend selects the adapter: "loopback" or "mqtt".
	Backend string `yaml:"backend"`

	// OpenOnStart opens the device explicitly at startup. The device then
	// stays open until shutdown regardless of attached endpoints.
	OpenOnStart bool `yaml:"open_on_start"`

	// Record attaches the time-series recorder to the port's output.
	Record bool `yaml:"record"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// JournalBuffer is the number of lifecycle events queued for the journal
	// writer before new events are dropped.
	JournalBuffer int `yaml:"journal_buffer"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix is the root of all MIDI topics, e.g. "graymidi".
	TopicPrefix string `yaml:"topic_prefix"`
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load layers the YAML file at path over the defaults, then applies
// GRAYMIDI_* environment overrides such as GRAYMIDI_DATABASE_PATH, and
// validates the result.
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

// Default returns the built-in configuration with environment overrides
// applied. It is used when no configuration file is given.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "graymidi-001",
			Name: "Gray Logic MIDI",
		},
		Device: DeviceConfig{
			Name:        "loopback",
			Vendor:      "Gray Logic",
			Description: "Software MIDI port",
			Version:     "1.0",
			Backend:     BackendLoopback,
		},
		Database: DatabaseConfig{
			Path:          "./data/graymidi.db",
			WALMode:       true,
			BusyTimeout:   5,
			JournalBuffer: 256,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graymidi",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			TopicPrefix: "graymidi",
		},
		API: APIConfig{
			Host: "0.0.0.0",
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
		InfluxDB: InfluxDBConfig{
			Bucket:        "midi",
			BatchSize:     500,
			FlushInterval: 1,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "graymidi",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// envBinding sets one field from a GRAYMIDI_* variable. It reports false
// when the value does not parse, leaving the field alone.
type envBinding struct {
	key string
	set func(v string) bool
}

func envString(key string, dst *string) envBinding {
	return envBinding{key, func(v string) bool { *dst = v; return true }}
}

func envInt(key string, dst *int) envBinding {
	return envBinding{key, func(v string) bool {
		n, err := strconv.Atoi(v)
		if err == nil {
			*dst = n
		}
		return err == nil
	}}
}

func envBool(key string, dst *bool) envBinding {
	return envBinding{key, func(v string) bool {
		b, err := strconv.ParseBool(v)
		if err == nil {
			*dst = b
		}
		return err == nil
	}}
}

func (c *Config) envBindings() []envBinding {
	return []envBinding{
		envString("GRAYMIDI_DEVICE_NAME", &c.Device.Name),
		envString("GRAYMIDI_DEVICE_BACKEND", &c.Device.Backend),
		envBool("GRAYMIDI_DEVICE_OPEN_ON_START", &c.Device.OpenOnStart),
		envString("GRAYMIDI_DATABASE_PATH", &c.Database.Path),
		envString("GRAYMIDI_MQTT_HOST", &c.MQTT.Broker.Host),
		envInt("GRAYMIDI_MQTT_PORT", &c.MQTT.Broker.Port),
		envString("GRAYMIDI_MQTT_USERNAME", &c.MQTT.Auth.Username),
		envString("GRAYMIDI_MQTT_PASSWORD", &c.MQTT.Auth.Password),
		envString("GRAYMIDI_API_HOST", &c.API.Host),
		envInt("GRAYMIDI_API_PORT", &c.API.Port),
		envString("GRAYMIDI_INFLUXDB_URL", &c.InfluxDB.URL),
		envString("GRAYMIDI_INFLUXDB_TOKEN", &c.InfluxDB.Token),
		envString("GRAYMIDI_LOG_LEVEL", &c.Logging.Level),
	}
}

// applyEnvOverrides applies every non-empty GRAYMIDI_* variable. Keys whose
// values do not parse are kept in cfg.IgnoredEnv.
func applyEnvOverrides(cfg *Config) {
	cfg.IgnoredEnv = nil
	for _, b := range cfg.envBindings() {
		v := os.Getenv(b.key)
		if v == "" {
			continue
		}
		if !b.set(v) {
			cfg.IgnoredEnv = append(cfg.IgnoredEnv, b.key)
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	// Device validation
	if c.Device.Name == "" {
		errs = append(errs, "device.name is required")
	}
	switch c.Device.Backend {
	case BackendLoopback:
	case BackendMQTT:
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required for the mqtt backend")
		}
		if strings.ContainsAny(c.Device.Name, "/+#") {
			errs = append(errs, "device.name must not contain MQTT topic characters (/, +, #)")
		}
	default:
		errs = append(errs, fmt.Sprintf("device.backend must be %q or %q", BackendLoopback, BackendMQTT))
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.JournalBuffer < 1 {
		errs = append(errs, "database.journal_buffer must be at least 1")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Durations converts the timeouts, given in seconds, for http.Server.
func (t APITimeoutConfig) Durations() (read, write, idle time.Duration) {
	return time.Duration(t.Read) * time.Second,
		time.Duration(t.Write) * time.Second,
		time.Duration(t.Idle) * time.Second
}
