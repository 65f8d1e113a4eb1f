// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"grimm.is/dumpster/internal/errors"
)

// LoadOptions controls how a config file is loaded.
type LoadOptions struct {
	// AllowEmptyLogFiles skips the "at least one log file" check, useful
	// for tests that only want to exercise defaulting.
	AllowEmptyLogFiles bool
}

// DefaultLoadOptions returns sensible defaults for loading configs.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{}
}

// Load reads and decodes the TOML file at path, applies defaults for any
// field the file left unset, and validates the result.
func Load(path string, opts LoadOptions) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "read config file %s", path)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, errors.KindParse, "parse config file %s", path)
	}

	if errs := cfg.Validate(opts); errs.HasErrors() {
		return nil, errors.Attr(
			errors.New(errors.KindParse, fmt.Sprintf("invalid configuration: %s", errs.Error())),
			"path", path,
		)
	}

	return &cfg, nil
}
