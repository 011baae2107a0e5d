// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads modgate settings from an optional YAML file with
// command-line flag overrides.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/modgate/internal/logging"
	"github.com/holomush/modgate/internal/xdg"
)

// Configuration keys, shared with flag names.
const (
	KeyLogFormat   = "log-format"
	KeyLogLevel    = "log-level"
	KeyModulesFile = "modules-file"
	KeyModulesDir  = "modules-dir"
	KeyMetricsFile = "metrics-file"
)

// Config holds resolved settings.
type Config struct {
	LogFormat   string `koanf:"log-format"`
	LogLevel    string `koanf:"log-level"`
	ModulesFile string `koanf:"modules-file"`
	ModulesDir  string `koanf:"modules-dir"`
	MetricsFile string `koanf:"metrics-file"`
}

// Load reads path (the XDG config file when empty) and applies flags on
// top. A missing default file is ignored; a missing explicit file is an
// error. Unset paths fall back to their XDG locations.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		p, err := xdg.ConfigFile()
		if err != nil {
			return nil, oops.Code("CONFIG_READ").Wrap(err)
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_PARSE").With("path", path).Wrap(err)
		}
	} else if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, oops.Code("CONFIG_READ").With("path", path).Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_PARSE").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_PARSE").With("path", path).Wrap(err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = logging.FormatJSON
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ModulesFile == "" {
		p, err := xdg.ModulesFile()
		if err != nil {
			return oops.Code("CONFIG_READ").Wrap(err)
		}
		c.ModulesFile = p
	}
	if c.ModulesDir == "" {
		p, err := xdg.ModulesDir()
		if err != nil {
			return oops.Code("CONFIG_READ").Wrap(err)
		}
		c.ModulesDir = p
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := logging.ValidateFormat(c.LogFormat); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", KeyLogFormat).Wrap(err)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.ModulesFile == "" {
		return oops.Code("CONFIG_INVALID").With("key", KeyModulesFile).Errorf("modules-file is required")
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, oops.Code("CONFIG_INVALID").With("key", KeyLogLevel).Wrap(err)
	}
	return lvl, nil
}
