package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dbehnke/pwn-beacon/pkg/protocol"
)

// pluginSection is the table pwnagotchi keeps plugin options under
var pluginSection = []string{"main", "plugins", "ble_beacon"}

// pluginOptions mirrors the ble_beacon plugin keys in pwnagotchi's config.toml
type pluginOptions struct {
	Enabled       bool   `toml:"enabled"`
	IntervalS     int    `toml:"interval_s"`
	AgeJSON       string `toml:"age_json"`
	TravelerJSON  string `toml:"traveler_json"`
	CompanyID     int    `toml:"company_id"`
	HCI           string `toml:"hci"`
	BroadcastFace bool   `toml:"broadcast_face"`
}

type pwnagotchiFile struct {
	Main struct {
		Plugins struct {
			BLEBeacon pluginOptions `toml:"ble_beacon"`
		} `toml:"plugins"`
	} `toml:"main"`
}

// ApplyPwnagotchiConfig overlays the [main.plugins.ble_beacon] options of a
// pwnagotchi config.toml onto b. Keys absent from the file leave b untouched;
// broadcast_face selects payload v6 (true) or v5 (false).
func ApplyPwnagotchiConfig(path string, b *BeaconConfig) error {
	var raw pwnagotchiFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load pwnagotchi config: %w", err)
	}

	opts := raw.Main.Plugins.BLEBeacon
	defined := func(key string) bool {
		return meta.IsDefined(append(append([]string{}, pluginSection...), key)...)
	}

	if defined("interval_s") {
		if opts.IntervalS <= 0 {
			return fmt.Errorf("pwnagotchi config: interval_s must be positive, got %d", opts.IntervalS)
		}
		b.Interval = time.Duration(opts.IntervalS) * time.Second
	}
	if defined("age_json") {
		b.Stats.AgeFile = strings.TrimSpace(opts.AgeJSON)
	}
	if defined("traveler_json") {
		b.Stats.TravelerFile = strings.TrimSpace(opts.TravelerJSON)
	}
	if defined("company_id") {
		if err := validateCompanyID("pwnagotchi company_id", opts.CompanyID); err != nil {
			return err
		}
		b.CompanyID = opts.CompanyID
	}
	if defined("hci") {
		b.HCIDevice = strings.TrimSpace(opts.HCI)
	}
	if defined("broadcast_face") {
		if opts.BroadcastFace {
			b.Version = int(protocol.Version6)
		} else {
			b.Version = int(protocol.Version5)
		}
	}

	return nil
}

// PwnagotchiPluginEnabled reports whether the ble_beacon plugin is switched
// on in a pwnagotchi config.toml.
func PwnagotchiPluginEnabled(path string) (bool, error) {
	var raw pwnagotchiFile
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return false, fmt.Errorf("load pwnagotchi config: %w", err)
	}
	return raw.Main.Plugins.BLEBeacon.Enabled, nil
}
