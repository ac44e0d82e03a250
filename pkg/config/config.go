package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Beacon   BeaconConfig   `mapstructure:"beacon" yaml:"beacon"`
	Scanner  ScannerConfig  `mapstructure:"scanner" yaml:"scanner"`
	Web      WebConfig      `mapstructure:"web" yaml:"web"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	MQTT     MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// BeaconConfig holds the advertiser settings
type BeaconConfig struct {
	Interval       time.Duration `mapstructure:"interval" yaml:"interval"`               // time between advertising refreshes
	Version        int           `mapstructure:"version" yaml:"version"`                 // payload version to emit
	CompanyID      int           `mapstructure:"company_id" yaml:"company_id"`           // manufacturer data key
	HCIDevice      string        `mapstructure:"hci_device" yaml:"hci_device"`           // e.g. hci0
	HCIToolPath    string        `mapstructure:"hcitool_path" yaml:"hcitool_path"`       // hcitool binary
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"` // per hcitool invocation
	AdvIntervalMS  int           `mapstructure:"adv_interval_ms" yaml:"adv_interval_ms"` // controller advertising interval
	DryRun         bool          `mapstructure:"dry_run" yaml:"dry_run"`                 // log frames instead of driving the radio
	Stats          StatsConfig   `mapstructure:"stats" yaml:"stats"`
}

// StatsConfig points at the files the beacon reads its counters from.
// Empty paths are skipped.
type StatsConfig struct {
	AgeFile             string `mapstructure:"age_file" yaml:"age_file"`
	TravelerFile        string `mapstructure:"traveler_file" yaml:"traveler_file"`
	CPUTempFile         string `mapstructure:"cpu_temp_file" yaml:"cpu_temp_file"`
	BatteryCapacityFile string `mapstructure:"battery_capacity_file" yaml:"battery_capacity_file"`
	BatteryStatusFile   string `mapstructure:"battery_status_file" yaml:"battery_status_file"`
	FaceFile            string `mapstructure:"face_file" yaml:"face_file"`
}

// ScannerConfig holds the receiving side settings
type ScannerConfig struct {
	CompanyID  int           `mapstructure:"company_id" yaml:"company_id"`
	Input      string        `mapstructure:"input" yaml:"input"`             // advert dump file, "-" for stdin
	StaleAfter time.Duration `mapstructure:"stale_after" yaml:"stale_after"` // devices silent longer are not counted active
}

// WebConfig holds web dashboard configuration
type WebConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	AuthRequired bool          `mapstructure:"auth_required" yaml:"auth_required"`
	Username     string        `mapstructure:"username" yaml:"username"`
	PasswordHash string        `mapstructure:"password_hash" yaml:"password_hash"` // bcrypt
	JWTSecret    string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// DatabaseConfig holds sighting storage configuration
type DatabaseConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Path          string        `mapstructure:"path" yaml:"path"`
	Retention     time.Duration `mapstructure:"retention" yaml:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval" yaml:"prune_interval"`
}

// MQTTConfig holds MQTT client configuration
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker      string `mapstructure:"broker" yaml:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix"`
	ClientID    string `mapstructure:"client_id" yaml:"client_id"`
	Username    string `mapstructure:"username" yaml:"username"`
	Password    string `mapstructure:"password" yaml:"password"`
	QoS         byte   `mapstructure:"qos" yaml:"qos"`
	Retained    bool   `mapstructure:"retained" yaml:"retained"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled    bool             `mapstructure:"enabled" yaml:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus" yaml:"prometheus"`
}

// PrometheusConfig holds Prometheus metrics configuration
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port" yaml:"port"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Set defaults
	setDefaults()

	// Set config file
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/pwn-beacon")
	}

	// Environment variables, e.g. PWNBEACON_BEACON_INTERVAL
	viper.SetEnvPrefix("PWNBEACON")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is OK, use defaults
		} else if os.IsNotExist(err) {
			// File explicitly specified but doesn't exist - that's also OK
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal to struct
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate re-checks a configuration after it was modified in code, for
// example by ApplyPwnagotchiConfig.
func (c *Config) Validate() error {
	if err := validate(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Beacon defaults
	viper.SetDefault("beacon.interval", "20s")
	viper.SetDefault("beacon.version", 6)
	viper.SetDefault("beacon.company_id", 0xFFFF)
	viper.SetDefault("beacon.hci_device", "hci0")
	viper.SetDefault("beacon.hcitool_path", "/usr/bin/hcitool")
	viper.SetDefault("beacon.command_timeout", "3s")
	viper.SetDefault("beacon.adv_interval_ms", 100)
	viper.SetDefault("beacon.dry_run", false)
	viper.SetDefault("beacon.stats.age_file", "/root/age_strength.json")
	viper.SetDefault("beacon.stats.traveler_file", "/root/pwn_traveler.json")
	viper.SetDefault("beacon.stats.cpu_temp_file", "/sys/class/thermal/thermal_zone0/temp")
	viper.SetDefault("beacon.stats.battery_capacity_file", "")
	viper.SetDefault("beacon.stats.battery_status_file", "")
	viper.SetDefault("beacon.stats.face_file", "")

	// Scanner defaults
	viper.SetDefault("scanner.company_id", 0xFFFF)
	viper.SetDefault("scanner.input", "-")
	viper.SetDefault("scanner.stale_after", "10m")

	// Web defaults
	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.host", "0.0.0.0")
	viper.SetDefault("web.port", 8080)
	viper.SetDefault("web.auth_required", false)
	viper.SetDefault("web.username", "admin")
	viper.SetDefault("web.password_hash", "")
	viper.SetDefault("web.jwt_secret", "")
	viper.SetDefault("web.token_ttl", "24h")

	// Database defaults
	viper.SetDefault("database.enabled", true)
	viper.SetDefault("database.path", "pwn-scanner.db")
	viper.SetDefault("database.retention", "720h")
	viper.SetDefault("database.prune_interval", "1h")

	// MQTT defaults
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "")
	viper.SetDefault("mqtt.topic_prefix", "pwnagotchi")
	viper.SetDefault("mqtt.client_id", "pwn-scanner")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.retained", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.prometheus.enabled", true)
	viper.SetDefault("metrics.prometheus.port", 9090)
	viper.SetDefault("metrics.prometheus.path", "/metrics")
}
