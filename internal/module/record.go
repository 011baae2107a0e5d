// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package module holds the in-memory model of optional host modules and
// their enable/disable state.
package module

import (
	"slices"
	"strings"

	"github.com/samber/oops"
)

// Kind identifies a class of capability type a module can register.
type Kind int

// Capability kinds, in enumeration order.
const (
	KindSource Kind = iota
	KindOutput
	KindEncoder
	KindService

	// NumKinds is the number of capability kinds.
	NumKinds = 4
)

// Kinds lists every capability kind in enumeration order.
var Kinds = []Kind{KindSource, KindOutput, KindEncoder, KindService}

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindOutput:
		return "output"
	case KindEncoder:
		return "encoder"
	case KindService:
		return "service"
	default:
		return "unknown"
	}
}

// ParseKind parses a kind name. Plural forms are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.TrimSuffix(strings.ToLower(s), "s") {
	case "source":
		return KindSource, nil
	case "output":
		return KindOutput, nil
	case "encoder":
		return KindEncoder, nil
	case "service":
		return KindService, nil
	}
	return 0, oops.Code("INVALID_KIND").With("kind", s).
		Errorf("kind must be one of source, output, encoder, service")
}

// Record is the tracked state of one module.
type Record struct {
	DisplayName string
	ModuleName  string
	ID          string
	Version     string

	// Enabled is the current user intent.
	Enabled bool
	// EnabledAtLaunch is Enabled as it stood when this run reconciled.
	EnabledAtLaunch bool

	// Capability type IDs last observed while the module was enabled.
	Sources  []string
	Outputs  []string
	Encoders []string
	Services []string

	// Missing is set for enabled records no loaded module matched this run.
	Missing bool

	loaded [NumKinds][]string
}

// DisplayLabel returns the display name, falling back to the module name.
func (r *Record) DisplayLabel() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.ModuleName
}

// Registered returns the persisted type IDs for kind.
func (r *Record) Registered(kind Kind) []string {
	switch kind {
	case KindSource:
		return r.Sources
	case KindOutput:
		return r.Outputs
	case KindEncoder:
		return r.Encoders
	case KindService:
		return r.Services
	}
	return nil
}

// SetRegistered replaces the persisted type IDs for kind.
func (r *Record) SetRegistered(kind Kind, ids []string) {
	switch kind {
	case KindSource:
		r.Sources = ids
	case KindOutput:
		r.Outputs = ids
	case KindEncoder:
		r.Encoders = ids
	case KindService:
		r.Services = ids
	}
}

// AddLoaded records that the module registered id during this run.
func (r *Record) AddLoaded(kind Kind, id string) {
	if kind < KindSource || kind > KindService {
		return
	}
	r.loaded[kind] = append(r.loaded[kind], id)
}

// Loaded returns the type IDs attributed to the module during this run.
func (r *Record) Loaded(kind Kind) []string {
	if kind < KindSource || kind > KindService {
		return nil
	}
	return r.loaded[kind]
}

// ResetLoaded discards the per-run type IDs.
func (r *Record) ResetLoaded() {
	r.loaded = [NumKinds][]string{}
}

// Changed reports whether the user changed Enabled since launch.
func (r *Record) Changed() bool {
	return r.Enabled != r.EnabledAtLaunch
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() Record {
	c := *r
	c.Sources = slices.Clone(r.Sources)
	c.Outputs = slices.Clone(r.Outputs)
	c.Encoders = slices.Clone(r.Encoders)
	c.Services = slices.Clone(r.Services)
	for i := range r.loaded {
		c.loaded[i] = slices.Clone(r.loaded[i])
	}
	return c
}

// NameFromFile derives a module name from a module's file name by
// stripping the extension. Names without a dot are returned unchanged.
func NameFromFile(fileName string) string {
	if i := strings.LastIndexByte(fileName, '.'); i >= 0 {
		return fileName[:i]
	}
	return fileName
}
