package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic UPnP.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	UPnP      UPnPConfig      `yaml:"upnp"`
	Directory DirectoryConfig `yaml:"directory"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// UPnPConfig contains the protocol engine settings.
type UPnPConfig struct {
	// AdvertiseAddress is the IPv4 address placed in SSDP LOCATION headers.
	// Empty means the first non-loopback IPv4 address of the host.
	AdvertiseAddress string `yaml:"advertise_address"`

	// Interface restricts multicast to a named network interface.
	Interface string `yaml:"interface"`

	// MaxAge is the SSDP CACHE-CONTROL max-age in seconds.
	MaxAge int `yaml:"max_age"`

	// MulticastTTL is the IP TTL for outgoing multicast datagrams.
	MulticastTTL int `yaml:"multicast_ttl"`

	// AnnounceRepeats is how many quick repeats follow the first alive.
	AnnounceRepeats int `yaml:"announce_repeats"`

	// AnnounceInterval is the quick repeat interval in milliseconds.
	AnnounceInterval int `yaml:"announce_interval"`

	// Debounce is the eventing debounce window in milliseconds.
	Debounce int `yaml:"debounce"`

	// SearchMX is the MX value used for outgoing M-SEARCH requests.
	SearchMX int `yaml:"search_mx"`

	// ProductName appears in the SERVER banner.
	ProductName string `yaml:"product_name"`

	// Manufacturer is used when a provider manifest leaves it empty.
	Manufacturer string `yaml:"manufacturer"`

	UUIDStore UUIDStoreConfig `yaml:"uuid_store"`

	// Devices lists the built-in providers exposed at startup.
	Devices []DeviceConfig `yaml:"devices"`
}

// UUIDStoreConfig selects the persistence backend for device UUIDs.
type UUIDStoreConfig struct {
	// Backend is one of "sqlite", "bolt" or "memory".
	Backend string `yaml:"backend"`

	// Path is the bolt file path. The sqlite backend uses database.path.
	Path string `yaml:"path"`
}

// DeviceConfig describes one built-in provider.
type DeviceConfig struct {
	// Kind is "binary_light" or "media_renderer".
	Kind         string `yaml:"kind"`
	UniqueID     string `yaml:"unique_id"`
	Name         string `yaml:"name"`
	FullName     string `yaml:"full_name"`
	Manufacturer string `yaml:"manufacturer"`
	ModelNumber  string `yaml:"model_number"`
	Description  string `yaml:"description"`
}

// Supported device kinds.
const (
	DeviceKindBinaryLight   = "binary_light"
	DeviceKindMediaRenderer = "media_renderer"
)

// DirectoryConfig contains the discovery client settings.
type DirectoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Refresh is a cron spec for periodic re-searches (e.g. "@every 10m").
	// Empty disables periodic searches; one search is always sent at start.
	Refresh string `yaml:"refresh"`

	// FetchTimeout bounds description downloads, in seconds.
	FetchTimeout int `yaml:"fetch_timeout"`
}

// APIConfig contains HTTP server settings. The same listener serves the
// UPnP description, control and eventing routes and the status API.
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Switches    []MQTTSwitchConfig  `yaml:"switches"`
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

// MQTTSwitchConfig exposes an MQTT-controlled on/off device as a UPnP BinaryLight.
type MQTTSwitchConfig struct {
	UniqueID     string `yaml:"unique_id"`
	Name         string `yaml:"name"`
	CommandTopic string `yaml:"command_topic"`
	StateTopic   string `yaml:"state_topic"`
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
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_UPNP_SECTION_KEY
// For example: GRAYLOGIC_UPNP_DATABASE_PATH, GRAYLOGIC_UPNP_API_PORT
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

// Default returns the built-in configuration, used by tests and as the
// base that the YAML file overrides.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-upnp.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		UPnP: UPnPConfig{
			MaxAge:           1800,
			MulticastTTL:     2,
			AnnounceRepeats:  3,
			AnnounceInterval: 250,
			Debounce:         200,
			SearchMX:         1,
			ProductName:      "GrayLogicUPnP",
			Manufacturer:     "Gray Logic",
			UUIDStore: UUIDStoreConfig{
				Backend: "sqlite",
				Path:    "./data/upnp-uuids.bolt",
			},
		},
		Directory: DirectoryConfig{
			Enabled:      true,
			FetchTimeout: 10,
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
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-upnp",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "graylogic/upnp",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_UPNP_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_UPNP_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_UPNP_ADVERTISE_ADDRESS"); v != "" {
		cfg.UPnP.AdvertiseAddress = v
	}
	if v := os.Getenv("GRAYLOGIC_UPNP_INTERFACE"); v != "" {
		cfg.UPnP.Interface = v
	}

	if v := os.Getenv("GRAYLOGIC_UPNP_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_UPNP_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("GRAYLOGIC_UPNP_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_UPNP_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_UPNP_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_UPNP_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_UPNP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	switch c.UPnP.UUIDStore.Backend {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite uuid store")
		}
	case "bolt":
		if c.UPnP.UUIDStore.Path == "" {
			errs = append(errs, "upnp.uuid_store.path is required for the bolt uuid store")
		}
	case "memory":
	default:
		errs = append(errs, "upnp.uuid_store.backend must be sqlite, bolt or memory")
	}

	if c.UPnP.MaxAge <= 0 {
		errs = append(errs, "upnp.max_age must be positive")
	}
	if c.UPnP.MulticastTTL < 1 || c.UPnP.MulticastTTL > 255 {
		errs = append(errs, "upnp.multicast_ttl must be between 1 and 255")
	}
	if c.UPnP.AnnounceRepeats < 0 {
		errs = append(errs, "upnp.announce_repeats cannot be negative")
	}
	if c.UPnP.AnnounceInterval <= 0 {
		errs = append(errs, "upnp.announce_interval must be positive")
	}
	if c.UPnP.Debounce <= 0 {
		errs = append(errs, "upnp.debounce must be positive")
	}
	if c.UPnP.SearchMX < 1 || c.UPnP.SearchMX > 5 {
		errs = append(errs, "upnp.search_mx must be between 1 and 5")
	}
	for i, d := range c.UPnP.Devices {
		if d.Kind != DeviceKindBinaryLight && d.Kind != DeviceKindMediaRenderer {
			errs = append(errs, fmt.Sprintf("upnp.devices[%d].kind %q is not supported", i, d.Kind))
		}
		if d.Name == "" {
			errs = append(errs, fmt.Sprintf("upnp.devices[%d].name is required", i))
		}
	}

	if c.Directory.Refresh != "" {
		if _, err := cron.ParseStandard(c.Directory.Refresh); err != nil {
			errs = append(errs, fmt.Sprintf("directory.refresh is not a valid schedule: %v", err))
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		for i, s := range c.MQTT.Switches {
			if s.CommandTopic == "" || s.StateTopic == "" {
				errs = append(errs, fmt.Sprintf("mqtt.switches[%d] needs command_topic and state_topic", i))
			}
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetMaxAge returns the SSDP max-age as a Duration.
func (c *Config) GetMaxAge() time.Duration {
	return time.Duration(c.UPnP.MaxAge) * time.Second
}

// GetAnnounceInterval returns the quick announce repeat interval.
func (c *Config) GetAnnounceInterval() time.Duration {
	return time.Duration(c.UPnP.AnnounceInterval) * time.Millisecond
}

// GetDebounce returns the eventing debounce window.
func (c *Config) GetDebounce() time.Duration {
	return time.Duration(c.UPnP.Debounce) * time.Millisecond
}

// GetFetchTimeout returns the directory description fetch timeout.
func (c *Config) GetFetchTimeout() time.Duration {
	return time.Duration(c.Directory.FetchTimeout) * time.Second
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
