// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads and validates the TOML configuration file that
// names the log files to tail, the database path, and the policy engine's
// tunable thresholds.
package config

import (
	"time"

	"grimm.is/dumpster/internal/nftline"
)

// Config is the fully-defaulted, validated configuration.
type Config struct {
	// LogFiles maps an operator-chosen label to a netfilter drop-log path.
	LogFiles map[string]string `toml:"log_files"`

	// DBFile is the SQLite database path.
	DBFile string `toml:"db_file"`

	RepeatPeriod   Duration `toml:"repeat_period"`
	RepeatCount    int      `toml:"repeat_count"`
	Timeout        Duration `toml:"timeout"`
	BadIPThreshold int      `toml:"bad_ip_threshold"`
	ScanDirections []string `toml:"scan_directions"`

	MetricsAddr string `toml:"metrics_addr"`
	LogLevel    string `toml:"log_level"`
	LogJSON     bool   `toml:"log_json"`
}

// Duration wraps time.Duration so it can be expressed in TOML as a plain
// string ("15m", "300s") rather than a raw integer of nanoseconds.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler, which go-toml/v2
// consults for any field type that isn't one of its native primitives.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for round-tripping.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the zero-value Config populated with the same defaults
// policy.DefaultConfig names, plus the ambient-stack defaults (metrics
// address, log level) a bare config file omits.
func Default() Config {
	return Config{
		LogFiles:       map[string]string{},
		DBFile:         "dumpster.sqlite",
		RepeatPeriod:   Duration{300 * time.Second},
		RepeatCount:    3,
		Timeout:        Duration{900 * time.Second},
		BadIPThreshold: 25,
		ScanDirections: []string{"inbound"},
		MetricsAddr:    ":9110",
		LogLevel:       "info",
		LogJSON:        false,
	}
}

// Directions parses ScanDirections into nftline.Direction values. Entries
// that don't match a known name are silently skipped; Validate is
// responsible for surfacing that as an error.
func (c Config) Directions() []nftline.Direction {
	var out []nftline.Direction
	for _, name := range c.ScanDirections {
		switch name {
		case "inbound":
			out = append(out, nftline.Inbound)
		case "outbound":
			out = append(out, nftline.Outbound)
		case "forward":
			out = append(out, nftline.Forward)
		}
	}
	return out
}
