package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for canvas-link.
// All configuration is loaded from YAML and can be overridden by environment variables.
//
// This file configures the process. The hub identity document (device id,
// tokens, topics) is a separate file owned by package hubdata.
type Config struct {
	Hub          HubConfig          `yaml:"hub"`
	Cloud        CloudConfig        `yaml:"cloud"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Registration RegistrationConfig `yaml:"registration"`
	Router       RouterConfig       `yaml:"router"`
	Broadcast    BroadcastConfig    `yaml:"broadcast"`
	Storage      StorageConfig      `yaml:"storage"`
	Printer      PrinterConfig      `yaml:"printer"`
	Database     DatabaseConfig     `yaml:"database"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	Logging      LoggingConfig      `yaml:"logging"`
	Supervisor   SupervisorConfig   `yaml:"supervisor"`
}

// HubConfig describes the local hub installation.
type HubConfig struct {
	// DataDir holds the hub document and the credential files.
	DataDir string `yaml:"data_dir"`

	// DocumentFile is the hub document file name inside DataDir.
	DocumentFile string `yaml:"document_file"`

	// SerialNumber is set on factory-built hubs. Empty means a DIY install.
	SerialNumber string `yaml:"serial_number"`

	// Secret is mixed into the generated device name of DIY installs.
	// A random value is generated and persisted when empty.
	Secret string `yaml:"secret"`

	// PluginVersion is recorded in the document's versions section.
	PluginVersion string `yaml:"plugin_version"`
}

// CloudConfig contains settings for the cloud REST API.
type CloudConfig struct {
	// APIBaseURL is host plus path prefix, without scheme (e.g. "api.canvas3d.io/").
	APIBaseURL string `yaml:"api_base_url"`

	// Scheme is "https" in production. Tests point it at "http".
	Scheme string `yaml:"scheme"`

	// RequestTimeout in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// RootCAURL is where the pinned broker root CA is fetched from when missing.
	RootCAURL string `yaml:"root_ca_url"`
}

// MQTTConfig contains MQTT broker connection settings.
//
// Broker endpoint and topics are provisioned into the hub document. These
// values seed the document defaults and tune the client.
type MQTTConfig struct {
	Broker        MQTTBrokerConfig    `yaml:"broker"`
	TopicPrefix   string              `yaml:"topic_prefix"`
	OriginName    string              `yaml:"origin_name"`
	QueueCapacity int                 `yaml:"queue_capacity"`
	KeepAlive     int                 `yaml:"keep_alive"`
	Reconnect     MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Port         int    `yaml:"port"`
	Protocol     string `yaml:"protocol"`
	Retain       bool   `yaml:"retain"`
	CleanSession bool   `yaml:"clean_session"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// RegistrationConfig controls the registration loop and account polling.
type RegistrationConfig struct {
	// RetryInterval in seconds between failed registration attempts.
	RetryInterval int `yaml:"retry_interval"`

	// MaxAttempts caps registration attempts. 0 means unlimited.
	MaxAttempts int `yaml:"max_attempts"`

	// LinkPollInterval in seconds between linked-account refreshes.
	LinkPollInterval int `yaml:"link_poll_interval"`
}

// RouterConfig tunes request handling.
type RouterConfig struct {
	// SettleDelayMS is the pause after a collaborator call before responding.
	SettleDelayMS int `yaml:"settle_delay_ms"`

	// PollAttempts bounds the connect and cancel wait loops.
	PollAttempts int `yaml:"poll_attempts"`
}

// BroadcastConfig tunes the state broadcaster and watcher.
type BroadcastConfig struct {
	Base            int `yaml:"base"`
	TickMS          int `yaml:"tick_ms"`
	WatchIntervalMS int `yaml:"watch_interval_ms"`
	StartDelayMS    int `yaml:"start_delay_ms"`
}

// StorageConfig contains print file storage locations.
type StorageConfig struct {
	UploadsDir string `yaml:"uploads_dir"`

	// WatchedDir receives downloaded print archives.
	WatchedDir string `yaml:"watched_dir"`

	// Drives are mount roots offered as external storage.
	Drives []string `yaml:"drives"`
}

// PrinterConfig configures the OctoPrint printer-control adapter.
type PrinterConfig struct {
	URL          string `yaml:"url"`
	APIKey       string `yaml:"api_key"`
	PollInterval int    `yaml:"poll_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig holds local API server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// ReadTimeout also bounds reading request headers.
func (t APITimeoutConfig) ReadTimeout() time.Duration { return time.Duration(t.Read) * time.Second }

// WriteTimeout is zero when unset, which net/http treats as no limit.
func (t APITimeoutConfig) WriteTimeout() time.Duration { return time.Duration(t.Write) * time.Second }

func (t APITimeoutConfig) IdleTimeout() time.Duration { return time.Duration(t.Idle) * time.Second }

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SupervisorConfig controls background task restarts.
type SupervisorConfig struct {
	RestartDelay       int `yaml:"restart_delay"`
	MaxRestartAttempts int `yaml:"max_restart_attempts"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CANVASLINK_SECTION_KEY
// For example: CANVASLINK_HUB_DATA_DIR, CANVASLINK_API_PORT
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

// Default returns the built-in configuration with environment overrides applied.
// Used when no config file exists.
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
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".mosaicdata")

	return &Config{
		Hub: HubConfig{
			DataDir:       dataDir,
			DocumentFile:  "canvas-hub-data.yml",
			PluginVersion: "dev",
		},
		Cloud: CloudConfig{
			APIBaseURL:     "api.canvas3d.io/",
			Scheme:         "https",
			RequestTimeout: 30,
			RootCAURL:      "https://www.amazontrust.com/repository/AmazonRootCA1.pem",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port:         443,
				Protocol:     "x-amzn-mqtt-ca",
				CleanSession: true,
			},
			TopicPrefix:   "canvas",
			OriginName:    "simcoe",
			QueueCapacity: 256,
			KeepAlive:     60,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Registration: RegistrationConfig{
			RetryInterval:    30,
			LinkPollInterval: 300,
		},
		Router: RouterConfig{
			SettleDelayMS: 1000,
			PollAttempts:  29,
		},
		Broadcast: BroadcastConfig{
			Base:            5,
			TickMS:          1000,
			WatchIntervalMS: 2000,
			StartDelayMS:    5000,
		},
		Storage: StorageConfig{
			UploadsDir: filepath.Join(home, ".octoprint", "uploads"),
			WatchedDir: filepath.Join(home, ".octoprint", "watched"),
		},
		Printer: PrinterConfig{
			URL:          "http://127.0.0.1:5000",
			PollInterval: 2,
		},
		Database: DatabaseConfig{
			Path:        filepath.Join(dataDir, "canvas-link.db"),
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
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
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Supervisor: SupervisorConfig{
			RestartDelay:       5,
			MaxRestartAttempts: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CANVASLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Hub
	if v := os.Getenv("CANVASLINK_HUB_DATA_DIR"); v != "" {
		cfg.Hub.DataDir = v
	}
	if v := os.Getenv("CANVASLINK_HUB_SERIAL_NUMBER"); v != "" {
		cfg.Hub.SerialNumber = v
	}

	// Cloud. DEV_BASE_URL_API is honoured for existing developer setups.
	if v := os.Getenv("DEV_BASE_URL_API"); v != "" {
		cfg.Cloud.APIBaseURL = v
	}
	if v := os.Getenv("CANVASLINK_CLOUD_API_BASE_URL"); v != "" {
		cfg.Cloud.APIBaseURL = v
	}

	// MQTT
	if v := os.Getenv("CANVASLINK_MQTT_ENDPOINT"); v != "" {
		cfg.MQTT.Broker.Endpoint = v
	}
	if v := os.Getenv("CANVASLINK_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}

	// Database
	if v := os.Getenv("CANVASLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Printer
	if v := os.Getenv("CANVASLINK_PRINTER_API_KEY"); v != "" {
		cfg.Printer.APIKey = v
	}

	// API
	if v := os.Getenv("CANVASLINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("CANVASLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Hub.DataDir == "" {
		errs = append(errs, "hub.data_dir is required")
	}
	if c.Hub.DocumentFile == "" {
		errs = append(errs, "hub.document_file is required")
	}

	if c.Cloud.APIBaseURL == "" {
		errs = append(errs, "cloud.api_base_url is required")
	}
	if c.Cloud.Scheme != "http" && c.Cloud.Scheme != "https" {
		errs = append(errs, "cloud.scheme must be http or https")
	}

	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.OriginName == "" {
		errs = append(errs, "mqtt.origin_name is required")
	}
	if c.MQTT.QueueCapacity < 1 {
		errs = append(errs, "mqtt.queue_capacity must be at least 1")
	}

	if c.Registration.RetryInterval < 1 {
		errs = append(errs, "registration.retry_interval must be at least 1")
	}
	if c.Registration.MaxAttempts < 0 {
		errs = append(errs, "registration.max_attempts cannot be negative")
	}

	if c.Broadcast.Base < 2 {
		errs = append(errs, "broadcast.base must be at least 2")
	}
	if c.Broadcast.TickMS < 1 || c.Broadcast.WatchIntervalMS < 1 {
		errs = append(errs, "broadcast intervals must be positive")
	}

	if c.Router.PollAttempts < 1 {
		errs = append(errs, "router.poll_attempts must be at least 1")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DocumentPath returns the absolute path of the hub document.
func (c *Config) DocumentPath() string {
	return filepath.Join(c.Hub.DataDir, c.Hub.DocumentFile)
}

// SettleDelay returns the router settle delay as a Duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Router.SettleDelayMS) * time.Millisecond
}

// RetryInterval returns the registration retry interval as a Duration.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.Registration.RetryInterval) * time.Second
}
