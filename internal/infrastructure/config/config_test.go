package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
hub:
  data_dir: "/tmp/hub"
  serial_number: "ABC123"
cloud:
  api_base_url: "api.example.test/"
mqtt:
  broker:
    endpoint: "broker.example.test"
    port: 8883
  origin_name: "simcoe"
database:
  path: "/tmp/test.db"
api:
  port: 9000
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Hub.SerialNumber != "ABC123" {
		t.Errorf("Hub.SerialNumber = %q, want %q", cfg.Hub.SerialNumber, "ABC123")
	}
	if cfg.MQTT.Broker.Endpoint != "broker.example.test" {
		t.Errorf("MQTT.Broker.Endpoint = %q, want %q", cfg.MQTT.Broker.Endpoint, "broker.example.test")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	// Unset keys keep their defaults.
	if cfg.Broadcast.Base != 5 {
		t.Errorf("Broadcast.Base = %d, want 5", cfg.Broadcast.Base)
	}
	if got, want := cfg.DocumentPath(), "/tmp/hub/canvas-hub-data.yml"; got != want {
		t.Errorf("DocumentPath() = %q, want %q", got, want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
mqtt:
  origin_name: ""
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty mqtt.origin_name, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "missing data dir", mutate: func(c *Config) { c.Hub.DataDir = "" }, wantErr: true},
		{name: "missing api base url", mutate: func(c *Config) { c.Cloud.APIBaseURL = "" }, wantErr: true},
		{name: "bad scheme", mutate: func(c *Config) { c.Cloud.Scheme = "ftp" }, wantErr: true},
		{name: "broker port zero", mutate: func(c *Config) { c.MQTT.Broker.Port = 0 }, wantErr: true},
		{name: "queue capacity zero", mutate: func(c *Config) { c.MQTT.QueueCapacity = 0 }, wantErr: true},
		{name: "retry interval zero", mutate: func(c *Config) { c.Registration.RetryInterval = 0 }, wantErr: true},
		{name: "negative max attempts", mutate: func(c *Config) { c.Registration.MaxAttempts = -1 }, wantErr: true},
		{name: "broadcast base one", mutate: func(c *Config) { c.Broadcast.Base = 1 }, wantErr: true},
		{name: "poll attempts zero", mutate: func(c *Config) { c.Router.PollAttempts = 0 }, wantErr: true},
		{name: "api port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60},
		},
		Router:       RouterConfig{SettleDelayMS: 250},
		Registration: RegistrationConfig{RetryInterval: 30},
	}

	timeouts := cfg.API.Timeouts
	if got := timeouts.ReadTimeout(); got != 30*time.Second {
		t.Errorf("ReadTimeout() = %v, want 30s", got)
	}
	if got := timeouts.WriteTimeout(); got != 45*time.Second {
		t.Errorf("WriteTimeout() = %v, want 45s", got)
	}
	if got := timeouts.IdleTimeout(); got != time.Minute {
		t.Errorf("IdleTimeout() = %v, want 1m", got)
	}
	if got := cfg.SettleDelay(); got != 250*time.Millisecond {
		t.Errorf("SettleDelay() = %v, want 250ms", got)
	}
	if got := cfg.RetryInterval(); got != 30*time.Second {
		t.Errorf("RetryInterval() = %v, want 30s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("CANVASLINK_HUB_DATA_DIR", "/custom/data")
	t.Setenv("CANVASLINK_HUB_SERIAL_NUMBER", "SN42")
	t.Setenv("CANVASLINK_MQTT_ENDPOINT", "mqtt.example.com")
	t.Setenv("CANVASLINK_MQTT_PORT", "8883")
	t.Setenv("CANVASLINK_DATABASE_PATH", "/custom/path.db")
	t.Setenv("CANVASLINK_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Hub.DataDir != "/custom/data" {
		t.Errorf("Hub.DataDir = %q, want %q", cfg.Hub.DataDir, "/custom/data")
	}
	if cfg.Hub.SerialNumber != "SN42" {
		t.Errorf("Hub.SerialNumber = %q, want %q", cfg.Hub.SerialNumber, "SN42")
	}
	if cfg.MQTT.Broker.Endpoint != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Endpoint = %q, want %q", cfg.MQTT.Broker.Endpoint, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_APIBaseURL(t *testing.T) {
	t.Run("dev variable", func(t *testing.T) {
		cfg := defaultConfig()
		t.Setenv("DEV_BASE_URL_API", "dev.example.test/")
		applyEnvOverrides(cfg)
		if cfg.Cloud.APIBaseURL != "dev.example.test/" {
			t.Errorf("Cloud.APIBaseURL = %q, want %q", cfg.Cloud.APIBaseURL, "dev.example.test/")
		}
	})

	t.Run("explicit variable wins", func(t *testing.T) {
		cfg := defaultConfig()
		t.Setenv("DEV_BASE_URL_API", "dev.example.test/")
		t.Setenv("CANVASLINK_CLOUD_API_BASE_URL", "explicit.example.test/")
		applyEnvOverrides(cfg)
		if cfg.Cloud.APIBaseURL != "explicit.example.test/" {
			t.Errorf("Cloud.APIBaseURL = %q, want %q", cfg.Cloud.APIBaseURL, "explicit.example.test/")
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Cloud.APIBaseURL != "api.canvas3d.io/" {
		t.Errorf("defaultConfig Cloud.APIBaseURL = %q, want api.canvas3d.io/", cfg.Cloud.APIBaseURL)
	}
	if cfg.Registration.RetryInterval != 30 {
		t.Errorf("defaultConfig Registration.RetryInterval = %d, want 30", cfg.Registration.RetryInterval)
	}
	if cfg.Router.PollAttempts != 29 {
		t.Errorf("defaultConfig Router.PollAttempts = %d, want 29", cfg.Router.PollAttempts)
	}
	if cfg.MQTT.OriginName != "simcoe" {
		t.Errorf("defaultConfig MQTT.OriginName = %q, want simcoe", cfg.MQTT.OriginName)
	}
}

// TestLoad_ShippedConfig verifies the example config in configs/ loads and
// matches the built-in defaults where it restates them.
func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.QueueCapacity != 256 {
		t.Errorf("MQTT.QueueCapacity = %d, want 256", cfg.MQTT.QueueCapacity)
	}
	if cfg.Router.PollAttempts != 29 {
		t.Errorf("Router.PollAttempts = %d, want 29", cfg.Router.PollAttempts)
	}
	if cfg.RetryInterval() != 30*time.Second {
		t.Errorf("RetryInterval() = %v, want 30s", cfg.RetryInterval())
	}
	if cfg.InfluxDB.Enabled {
		t.Error("InfluxDB.Enabled = true, want false")
	}
}
