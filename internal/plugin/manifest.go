// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin is a directory-backed module loader. Each module lives in
// its own subdirectory with a plugin.yaml manifest next to its binary; the
// manifest declares the capability types the module registers.
package plugin

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/holomush/modgate/internal/module"
)

// ManifestFile is the manifest file name inside each module directory.
const ManifestFile = "plugin.yaml"

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name         string   `yaml:"name,omitempty" jsonschema:"description=Display name"`
	ID           string   `yaml:"id,omitempty"`
	Version      string   `yaml:"version,omitempty"`
	File         string   `yaml:"file" jsonschema:"required,minLength=1,description=Module binary file name"`
	AllowDisable *bool    `yaml:"allow-disable,omitempty" jsonschema:"description=Whether the user may disable the module (default true)"`
	Sources      []string `yaml:"sources,omitempty"`
	Outputs      []string `yaml:"outputs,omitempty"`
	Encoders     []string `yaml:"encoders,omitempty"`
	Services     []string `yaml:"services,omitempty"`
}

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.File == "" {
		return fmt.Errorf("file is required")
	}
	if strings.ContainsAny(m.File, `/\`) {
		return fmt.Errorf("file %q must be a bare file name", m.File)
	}
	if m.ModuleName() == "" {
		return fmt.Errorf("file %q does not yield a module name", m.File)
	}

	for _, kind := range module.Kinds {
		for i, id := range m.Types(kind) {
			if strings.TrimSpace(id) == "" {
				return fmt.Errorf("%ss[%d]: type ID cannot be empty", kind, i)
			}
		}
	}
	return nil
}

// ModuleName returns the module name derived from File.
func (m *Manifest) ModuleName() string {
	return module.NameFromFile(m.File)
}

// Disableable reports whether the module may be disabled.
func (m *Manifest) Disableable() bool {
	return m.AllowDisable == nil || *m.AllowDisable
}

// Types returns the declared type IDs of kind.
func (m *Manifest) Types(kind module.Kind) []string {
	switch kind {
	case module.KindSource:
		return m.Sources
	case module.KindOutput:
		return m.Outputs
	case module.KindEncoder:
		return m.Encoders
	case module.KindService:
		return m.Services
	}
	return nil
}
