package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// IdentityPlaceholder is expanded to the device identity in topic templates.
const IdentityPlaceholder = "{id}"

// Config is the root configuration structure for Neurite Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	WiFi       WiFiConfig       `yaml:"wifi"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Serial     SerialConfig     `yaml:"serial"`
	Console    ConsoleConfig    `yaml:"console"`
	Command    CommandConfig    `yaml:"command"`
	Connection ConnectionConfig `yaml:"connection"`
	Status     StatusConfig     `yaml:"status"`
	Database   DatabaseConfig   `yaml:"database"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DeviceConfig identifies this device.
type DeviceConfig struct {
	// ID is the device identity used in checkin messages and topic templates.
	// If empty, a persistent identity is generated on first boot.
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// WiFiConfig contains station settings.
type WiFiConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`

	// Interface is the network interface watched for an address.
	// Empty means the host network is managed elsewhere and treated as up.
	Interface string `yaml:"interface"`

	// PollInterval is how often the interface is checked, in milliseconds.
	PollInterval int `yaml:"poll_interval"`

	Supplicant SupplicantConfig `yaml:"supplicant"`
}

// SupplicantConfig controls whether Neurite supervises wpa_supplicant itself.
type SupplicantConfig struct {
	Managed             bool   `yaml:"managed"`
	Binary              string `yaml:"binary"`
	ConfigFile          string `yaml:"config_file"`
	RestartDelaySeconds int    `yaml:"restart_delay_seconds"`
	MaxRestartAttempts  int    `yaml:"max_restart_attempts"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker       MQTTBrokerConfig    `yaml:"broker"`
	Auth         MQTTAuthConfig      `yaml:"auth"`
	KeepAlive    int                 `yaml:"keepalive"`
	CleanSession bool                `yaml:"clean_session"`
	Topics       MQTTTopicsConfig    `yaml:"topics"`
	WillPayload  string              `yaml:"will_payload"`
	Reconnect    MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTTopicsConfig names the topics this device uses.
// Each may contain {id}, expanded to the device identity.
type MQTTTopicsConfig struct {
	// From is the inbound topic the device subscribes to.
	From string `yaml:"from"`
	// To is the outbound topic for checkin and relayed commands.
	To string `yaml:"to"`
	// Status is the topic for periodic status reports.
	Status string `yaml:"status"`
	// Will is the last will topic.
	Will string `yaml:"will"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DiscoveryConfig controls mDNS lookup of the broker when no host is configured.
type DiscoveryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Service   string `yaml:"service"`
	Domain    string `yaml:"domain"`
	Interface string `yaml:"interface"`
	Timeout   int    `yaml:"timeout"`
}

// SerialConfig contains UART settings for the command input.
type SerialConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// ConsoleConfig contains settings for the interactive console input.
type ConsoleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prompt  string `yaml:"prompt"`
}

// CommandConfig sizes the command ingestion pipeline.
type CommandConfig struct {
	RingSize   int    `yaml:"ring_size"`
	LineSize   int    `yaml:"line_size"`
	Terminator string `yaml:"terminator"`
}

// ConnectionConfig controls the connection state machine.
type ConnectionConfig struct {
	// TickInterval is the state machine period in milliseconds.
	TickInterval int `yaml:"tick_interval"`

	// ResumeOnLoss lets the state machine fall back to an earlier state when
	// connectivity is lost. Off by default: the machine is forward-only.
	ResumeOnLoss bool `yaml:"resume_on_loss"`
}

// StatusConfig controls periodic status reports in steady state.
type StatusConfig struct {
	// Interval in seconds. 0 disables status reports.
	Interval int    `yaml:"interval"`
	Encoding string `yaml:"encoding"`
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
// Environment variables follow the pattern: NEURITE_SECTION_KEY
// For example: NEURITE_WIFI_SSID, NEURITE_MQTT_HOST
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
		Device: DeviceConfig{
			Name: "neurite",
		},
		WiFi: WiFiConfig{
			PollInterval: 500,
			Supplicant: SupplicantConfig{
				Binary:              "/usr/sbin/wpa_supplicant",
				RestartDelaySeconds: 5,
				MaxRestartAttempts:  10,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "neurite-{id}",
			},
			KeepAlive:    120,
			CleanSession: true,
			Topics: MQTTTopicsConfig{
				From:   "/neurite/{id}/from",
				To:     "/neurite/{id}/to",
				Status: "/neurite/{id}/status",
				Will:   "/neurite/{id}/status",
			},
			WillPayload: "offline",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Discovery: DiscoveryConfig{
			Service: "_mqtt._tcp",
			Domain:  "local",
			Timeout: 5,
		},
		Serial: SerialConfig{
			BaudRate: 115200,
		},
		Console: ConsoleConfig{
			Prompt: "neurite> ",
		},
		Command: CommandConfig{
			RingSize:   256,
			LineSize:   128,
			Terminator: "\r",
		},
		Connection: ConnectionConfig{
			TickInterval: 1000,
		},
		Status: StatusConfig{
			Encoding: "json",
		},
		Database: DatabaseConfig{
			Path:        "./data/neurite.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NEURITE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEURITE_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	// WiFi
	if v := os.Getenv("NEURITE_WIFI_SSID"); v != "" {
		cfg.WiFi.SSID = v
	}
	if v := os.Getenv("NEURITE_WIFI_PASSWORD"); v != "" {
		cfg.WiFi.Password = v
	}

	// MQTT
	if v := os.Getenv("NEURITE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NEURITE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("NEURITE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NEURITE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Serial
	if v := os.Getenv("NEURITE_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}

	// Database
	if v := os.Getenv("NEURITE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("NEURITE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
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

	// Broker port is only checked when a host is given; an empty host means discovery.
	if c.MQTT.Broker.Host == "" && !c.Discovery.Enabled {
		errs = append(errs, "mqtt.broker.host is required unless discovery.enabled is true")
	}
	if c.MQTT.Broker.Host != "" && (c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535) {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Topics.From == "" || c.MQTT.Topics.To == "" {
		errs = append(errs, "mqtt.topics.from and mqtt.topics.to are required")
	}
	if c.MQTT.KeepAlive < 0 {
		errs = append(errs, "mqtt.keepalive must not be negative")
	}

	if c.Serial.Enabled && c.Serial.Port == "" {
		errs = append(errs, "serial.port is required when serial is enabled")
	}
	if c.Serial.Enabled && c.Console.Enabled {
		errs = append(errs, "serial and console input are mutually exclusive")
	}

	if c.Command.RingSize < 1 {
		errs = append(errs, "command.ring_size must be positive")
	}
	if c.Command.LineSize < 1 {
		errs = append(errs, "command.line_size must be positive")
	}
	if len(c.Command.Terminator) != 1 {
		errs = append(errs, "command.terminator must be a single byte")
	}

	if c.Connection.TickInterval < 1 {
		errs = append(errs, "connection.tick_interval must be positive")
	}

	switch strings.ToLower(c.Status.Encoding) {
	case "json", "cbor":
	default:
		errs = append(errs, "status.encoding must be json or cbor")
	}
	if c.Status.Interval < 0 {
		errs = append(errs, "status.interval must not be negative")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Terminator returns the command line terminator byte.
func (c *Config) Terminator() byte {
	if len(c.Command.Terminator) == 0 {
		return '\r'
	}
	return c.Command.Terminator[0]
}

// GetTickInterval returns the state machine period as a Duration.
func (c *Config) GetTickInterval() time.Duration {
	return time.Duration(c.Connection.TickInterval) * time.Millisecond
}

// GetPollInterval returns the network interface poll period as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.WiFi.PollInterval) * time.Millisecond
}

// GetStatusInterval returns the status report period as a Duration.
func (c *Config) GetStatusInterval() time.Duration {
	return time.Duration(c.Status.Interval) * time.Second
}

// GetDiscoveryTimeout returns the broker discovery timeout as a Duration.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.Timeout) * time.Second
}

// Expand substitutes the device identity into a topic or client ID template.
func Expand(template, id string) string {
	return strings.ReplaceAll(template, IdentityPlaceholder, id)
}
