// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors; every violation
// found is reported, not just the first.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors reports whether any validation errors were collected.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate(opts LoadOptions) ValidationErrors {
	var errs ValidationErrors

	if !opts.AllowEmptyLogFiles && len(c.LogFiles) == 0 {
		errs = append(errs, ValidationError{"log_files", "must name at least one log file"})
	}
	for label, path := range c.LogFiles {
		if label == "" {
			errs = append(errs, ValidationError{"log_files", "label must not be empty"})
		}
		if path == "" {
			errs = append(errs, ValidationError{"log_files." + label, "path must not be empty"})
		}
	}

	if c.DBFile == "" {
		errs = append(errs, ValidationError{"db_file", "must not be empty"})
	}

	if c.RepeatCount < 1 {
		errs = append(errs, ValidationError{"repeat_count", "must be at least 1"})
	}
	if c.BadIPThreshold < 1 {
		errs = append(errs, ValidationError{"bad_ip_threshold", "must be at least 1"})
	}
	if c.RepeatPeriod.Duration <= 0 {
		errs = append(errs, ValidationError{"repeat_period", "must be positive"})
	}
	if c.Timeout.Duration <= 0 {
		errs = append(errs, ValidationError{"timeout", "must be positive"})
	}

	if len(c.ScanDirections) == 0 {
		errs = append(errs, ValidationError{"scan_directions", "must name at least one direction"})
	}
	for _, d := range c.ScanDirections {
		switch d {
		case "inbound", "outbound", "forward":
		default:
			errs = append(errs, ValidationError{"scan_directions", fmt.Sprintf("unknown direction %q", d)})
		}
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{"log_level", fmt.Sprintf("unknown level %q", c.LogLevel)})
	}

	return errs
}
