// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package reconciletest provides an in-memory host for reconciliation tests.
package reconciletest

import (
	"github.com/holomush/modgate/internal/module"
	"github.com/holomush/modgate/internal/reconcile"
)

// Module is an installed module the fake host can load.
type Module struct {
	File        string
	DisplayName string
	ModuleID    string
	Ver         string
	// Mandatory modules refuse to be disabled.
	Mandatory bool
	// Types lists the capability types the module registers when loaded.
	Types map[module.Kind][]string
}

// FileName implements reconcile.Module.
func (m *Module) FileName() string { return m.File }

// Name implements reconcile.Module.
func (m *Module) Name() string { return m.DisplayName }

// ID implements reconcile.Module.
func (m *Module) ID() string { return m.ModuleID }

// Version implements reconcile.Module.
func (m *Module) Version() string { return m.Ver }

type registration struct {
	id    string
	owner *Module
}

// Host is a fake module loader and type registry. Install modules, run
// PreLoad, call Load, then run PostLoad.
type Host struct {
	// IgnoreBlacklist makes Load load blacklisted modules anyway.
	IgnoreBlacklist bool

	installed   []*Module
	blacklisted map[string]bool
	loaded      []*Module
	types       [module.NumKinds][]registration
}

// NewHost creates a host with the given installed modules.
func NewHost(mods ...*Module) *Host {
	return &Host{
		installed:   mods,
		blacklisted: make(map[string]bool),
	}
}

// AddCoreType registers a type that no module owns.
func (h *Host) AddCoreType(kind module.Kind, id string) {
	h.types[kind] = append(h.types[kind], registration{id: id})
}

// Load loads every installed module that was not blacklisted and
// registers its types.
func (h *Host) Load() {
	for _, m := range h.installed {
		if h.blacklisted[module.NameFromFile(m.File)] && !h.IgnoreBlacklist {
			continue
		}
		h.loaded = append(h.loaded, m)
		for _, kind := range module.Kinds {
			for _, id := range m.Types[kind] {
				h.types[kind] = append(h.types[kind], registration{id: id, owner: m})
			}
		}
	}
}

// Blacklisted reports whether DisableModule was called for name.
func (h *Host) Blacklisted(name string) bool {
	return h.blacklisted[name]
}

// DisableModule implements reconcile.Host.
func (h *Host) DisableModule(name string) {
	h.blacklisted[name] = true
}

// EnumModules implements reconcile.Host.
func (h *Host) EnumModules(fn func(reconcile.Module)) {
	for _, m := range h.loaded {
		fn(m)
	}
}

// AllowsDisable implements reconcile.Host.
func (h *Host) AllowsDisable(m reconcile.Module) bool {
	fm, ok := m.(*Module)
	return !ok || !fm.Mandatory
}

// CapabilityType implements reconcile.Host.
func (h *Host) CapabilityType(kind module.Kind, index int) (string, bool) {
	if index < 0 || index >= len(h.types[kind]) {
		return "", false
	}
	return h.types[kind][index].id, true
}

// CapabilityOwner implements reconcile.Host.
func (h *Host) CapabilityOwner(kind module.Kind, typeID string) (reconcile.Module, bool) {
	for _, r := range h.types[kind] {
		if r.id == typeID && r.owner != nil {
			return r.owner, true
		}
	}
	return nil, false
}

var _ reconcile.Host = (*Host)(nil)
