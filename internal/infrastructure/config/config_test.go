package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
service:
  id: "studio-a"
device:
  name: "keys"
  vendor: "Studio"
  backend: "mqtt"
  open_on_start: true
database:
  path: "/tmp/test.db"
  wal_mode: true
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
  topic_prefix: "studio"
api:
  host: "0.0.0.0"
  port: 9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.ID != "studio-a" {
		t.Errorf("Service.ID = %q, want %q", cfg.Service.ID, "studio-a")
	}
	if cfg.Device.Name != "keys" {
		t.Errorf("Device.Name = %q, want %q", cfg.Device.Name, "keys")
	}
	if cfg.Device.Backend != BackendMQTT {
		t.Errorf("Device.Backend = %q, want %q", cfg.Device.Backend, BackendMQTT)
	}
	if !cfg.Device.OpenOnStart {
		t.Error("Device.OpenOnStart = false, want true")
	}
	if cfg.MQTT.TopicPrefix != "studio" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "studio")
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}

	// Values missing from the file keep their defaults.
	if cfg.Database.JournalBuffer != 256 {
		t.Errorf("Database.JournalBuffer = %d, want 256", cfg.Database.JournalBuffer)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
device:
  backend: "serial"
`)

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected validation error for unknown backend, got nil")
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("GRAYMIDI_DEVICE_NAME", "pads")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if cfg.Device.Name != "pads" {
		t.Errorf("Device.Name = %q, want %q", cfg.Device.Name, "pads")
	}
	if cfg.Device.Backend != BackendLoopback {
		t.Errorf("Device.Backend = %q, want %q", cfg.Device.Backend, BackendLoopback)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults",
			modify:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing service ID",
			modify:  func(c *Config) { c.Service.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing device name",
			modify:  func(c *Config) { c.Device.Name = "" },
			wantErr: true,
		},
		{
			name:    "unknown backend",
			modify:  func(c *Config) { c.Device.Backend = "alsa" },
			wantErr: true,
		},
		{
			name: "mqtt backend",
			modify: func(c *Config) {
				c.Device.Backend = BackendMQTT
			},
			wantErr: false,
		},
		{
			name: "mqtt backend without prefix",
			modify: func(c *Config) {
				c.Device.Backend = BackendMQTT
				c.MQTT.TopicPrefix = ""
			},
			wantErr: true,
		},
		{
			name: "mqtt backend with wildcard in name",
			modify: func(c *Config) {
				c.Device.Backend = BackendMQTT
				c.Device.Name = "keys/#"
			},
			wantErr: true,
		},
		{
			name:    "missing database path",
			modify:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "journal buffer zero",
			modify:  func(c *Config) { c.Database.JournalBuffer = 0 },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			modify:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			modify:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			modify:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name: "influxdb without url",
			modify: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = ""
			},
			wantErr: true,
		},
		{
			name: "influxdb complete",
			modify: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
			},
			wantErr: false,
		},
		{
			name:    "relative metrics path",
			modify:  func(c *Config) { c.Metrics.Path = "metrics" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPITimeoutConfig_Durations(t *testing.T) {
	read, write, idle := APITimeoutConfig{Read: 30, Write: 45, Idle: 60}.Durations()

	if read != 30*time.Second || write != 45*time.Second || idle != time.Minute {
		t.Errorf("Durations() = %v, %v, %v, want 30s, 45s, 1m0s", read, write, idle)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYMIDI_DEVICE_BACKEND", "mqtt")
	t.Setenv("GRAYMIDI_DEVICE_OPEN_ON_START", "true")
	t.Setenv("GRAYMIDI_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYMIDI_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYMIDI_MQTT_PORT", "8883")
	t.Setenv("GRAYMIDI_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYMIDI_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYMIDI_API_HOST", "192.168.1.1")
	t.Setenv("GRAYMIDI_API_PORT", "not-a-number")
	t.Setenv("GRAYMIDI_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYMIDI_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.Device.Backend != BackendMQTT {
		t.Errorf("Device.Backend = %q, want %q", cfg.Device.Backend, BackendMQTT)
	}
	if !cfg.Device.OpenOnStart {
		t.Error("Device.OpenOnStart = false, want true")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 8090 {
		t.Errorf("API.Port = %d, want unparsable override ignored", cfg.API.Port)
	}
	if len(cfg.IgnoredEnv) != 1 || cfg.IgnoredEnv[0] != "GRAYMIDI_API_PORT" {
		t.Errorf("IgnoredEnv = %v, want [GRAYMIDI_API_PORT]", cfg.IgnoredEnv)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Service.ID == "" {
		t.Error("defaultConfig should have non-empty Service.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8090 {
		t.Errorf("defaultConfig API.Port = %d, want 8090", cfg.API.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
}
