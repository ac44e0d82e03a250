package config

import (
	"fmt"
	"strings"

	"github.com/dbehnke/pwn-beacon/pkg/logger"
	"github.com/dbehnke/pwn-beacon/pkg/protocol"
)

// Controller advertising interval limits (0x0020..0x4000 slots of 0.625 ms)
const (
	minAdvIntervalMS = 20
	maxAdvIntervalMS = 10240
)

// validate validates the configuration
func validate(cfg *Config) error {
	// Validate beacon config
	if cfg.Beacon.Interval <= 0 {
		return fmt.Errorf("beacon.interval must be positive")
	}
	if cfg.Beacon.Version < 0 || cfg.Beacon.Version > 255 {
		return fmt.Errorf("beacon.version %d out of range", cfg.Beacon.Version)
	}
	if _, ok := protocol.LayoutFor(uint8(cfg.Beacon.Version)); !ok {
		return fmt.Errorf("beacon.version %d has no payload layout (supported: %v)", cfg.Beacon.Version, protocol.Versions())
	}
	if err := validateCompanyID("beacon.company_id", cfg.Beacon.CompanyID); err != nil {
		return err
	}
	if !cfg.Beacon.DryRun {
		if cfg.Beacon.HCIDevice == "" {
			return fmt.Errorf("beacon.hci_device is required")
		}
		if cfg.Beacon.HCIToolPath == "" {
			return fmt.Errorf("beacon.hcitool_path is required")
		}
	}
	if cfg.Beacon.CommandTimeout <= 0 {
		return fmt.Errorf("beacon.command_timeout must be positive")
	}
	if cfg.Beacon.AdvIntervalMS < minAdvIntervalMS || cfg.Beacon.AdvIntervalMS > maxAdvIntervalMS {
		return fmt.Errorf("beacon.adv_interval_ms must be between %d and %d", minAdvIntervalMS, maxAdvIntervalMS)
	}

	// Validate scanner config
	if err := validateCompanyID("scanner.company_id", cfg.Scanner.CompanyID); err != nil {
		return err
	}
	if cfg.Scanner.StaleAfter < 0 {
		return fmt.Errorf("scanner.stale_after must not be negative")
	}

	// Validate web config
	if cfg.Web.Enabled {
		if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
			return fmt.Errorf("web.port must be between 1 and 65535")
		}
		if cfg.Web.AuthRequired {
			if cfg.Web.Username == "" {
				return fmt.Errorf("web.username is required when auth is enabled")
			}
			if !strings.HasPrefix(cfg.Web.PasswordHash, "$2") {
				return fmt.Errorf("web.password_hash must be a bcrypt hash when auth is enabled")
			}
			if len(cfg.Web.JWTSecret) < 16 {
				return fmt.Errorf("web.jwt_secret must be at least 16 characters when auth is enabled")
			}
			if cfg.Web.TokenTTL <= 0 {
				return fmt.Errorf("web.token_ttl must be positive")
			}
		}
	}

	// Validate database config
	if cfg.Database.Enabled {
		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path is required when the database is enabled")
		}
		if cfg.Database.Retention > 0 && cfg.Database.PruneInterval <= 0 {
			return fmt.Errorf("database.prune_interval must be positive when retention is set")
		}
	}

	// Validate MQTT config
	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	// Validate logging config
	if !logger.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	// Validate metrics config
	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		if cfg.Metrics.Prometheus.Port <= 0 || cfg.Metrics.Prometheus.Port > 65535 {
			return fmt.Errorf("metrics.prometheus.port must be between 1 and 65535")
		}
		if !strings.HasPrefix(cfg.Metrics.Prometheus.Path, "/") {
			return fmt.Errorf("metrics.prometheus.path must start with /")
		}
	}

	return nil
}

func validateCompanyID(key string, id int) error {
	if id < 0 || id > 0xFFFF {
		return fmt.Errorf("%s must be between 0x0000 and 0xFFFF", key)
	}
	return nil
}
