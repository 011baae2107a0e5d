// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/holomush/modgate/internal/module"
	"github.com/holomush/modgate/internal/reconcile"
)

var _ reconcile.Host = (*Manager)(nil)

// Manager discovers modules in a directory, loads the ones not blacklisted,
// and keeps the capability type registry they populate.
type Manager struct {
	modulesDir string
	logger     *slog.Logger

	mu        sync.RWMutex
	blacklist map[string]struct{}
	loaded    map[string]*DiscoveredModule
	types     [module.NumKinds][]registration
	owners    [module.NumKinds]map[string]*DiscoveredModule
}

type registration struct {
	id    string
	owner *DiscoveredModule
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithCoreTypes registers built-in type IDs of kind that no module owns.
func WithCoreTypes(kind module.Kind, ids ...string) ManagerOption {
	return func(m *Manager) {
		for _, id := range ids {
			m.register(kind, id, nil)
		}
	}
}

// NewManager creates a module manager over modulesDir.
func NewManager(modulesDir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		modulesDir: modulesDir,
		logger:     slog.Default(),
		blacklist:  make(map[string]struct{}),
		loaded:     make(map[string]*DiscoveredModule),
	}
	for i := range m.owners {
		m.owners[i] = make(map[string]*DiscoveredModule)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DiscoveredModule contains a manifest and its directory.
type DiscoveredModule struct {
	Manifest *Manifest
	Dir      string
}

// FileName returns the module binary file name.
func (d *DiscoveredModule) FileName() string { return d.Manifest.File }

// Name returns the display name.
func (d *DiscoveredModule) Name() string { return d.Manifest.Name }

// ID returns the module identifier.
func (d *DiscoveredModule) ID() string { return d.Manifest.ID }

// Version returns the module version.
func (d *DiscoveredModule) Version() string { return d.Manifest.Version }

// Discover finds all valid modules in the modules directory.
// Invalid modules are logged and skipped.
func (m *Manager) Discover(ctx context.Context) ([]*DiscoveredModule, error) {
	entries, err := os.ReadDir(m.modulesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read modules directory: %w", err)
	}

	var mods []*DiscoveredModule
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(m.modulesDir, entry.Name())
		data, err := os.ReadFile(filepath.Join(dir, ManifestFile)) //nolint:gosec // path is built from ReadDir entries
		if err != nil {
			m.logger.WarnContext(ctx, "skipping module without manifest",
				"dir", entry.Name(), "error", err)
			continue
		}

		manifest, err := ParseManifest(data)
		if err != nil {
			m.logger.WarnContext(ctx, "skipping module with invalid manifest",
				"dir", entry.Name(), "error", err)
			continue
		}

		mods = append(mods, &DiscoveredModule{Manifest: manifest, Dir: dir})
	}

	return mods, nil
}

// DisableModule keeps the named module from loading on the next LoadAll.
func (m *Manager) DisableModule(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklist[name] = struct{}{}
}

// LoadAll discovers and loads every module that is not blacklisted and
// whose binary exists. Individual failures are logged and skipped.
func (m *Manager) LoadAll(ctx context.Context) error {
	discovered, err := m.Discover(ctx)
	if err != nil {
		return err
	}

	for _, dm := range discovered {
		if err := m.load(ctx, dm); err != nil {
			m.logger.WarnContext(ctx, "failed to load module",
				"module", dm.Manifest.ModuleName(), "error", err)
		}
	}
	return nil
}

func (m *Manager) load(ctx context.Context, dm *DiscoveredModule) error {
	name := dm.Manifest.ModuleName()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blacklist[name]; ok {
		m.logger.DebugContext(ctx, "module blacklisted", "module", name)
		return nil
	}
	if _, ok := m.loaded[name]; ok {
		return fmt.Errorf("module %s already loaded from another directory", name)
	}
	if _, err := os.Stat(filepath.Join(dm.Dir, dm.Manifest.File)); err != nil {
		return fmt.Errorf("module binary: %w", err)
	}

	m.loaded[name] = dm
	for _, kind := range module.Kinds {
		for _, id := range dm.Manifest.Types(kind) {
			if !m.register(kind, id, dm) {
				m.logger.WarnContext(ctx, "type already registered",
					"module", name, "kind", kind.String(), "type", id)
			}
		}
	}

	m.logger.InfoContext(ctx, "loaded module",
		"module", name, "version", dm.Manifest.Version)
	return nil
}

// register adds id to the registry. The first registration wins.
func (m *Manager) register(kind module.Kind, id string, owner *DiscoveredModule) bool {
	for _, r := range m.types[kind] {
		if r.id == id {
			return false
		}
	}
	m.types[kind] = append(m.types[kind], registration{id: id, owner: owner})
	if owner != nil {
		m.owners[kind][id] = owner
	}
	return true
}

// EnumModules calls fn for each loaded module in name order.
func (m *Manager) EnumModules(fn func(reconcile.Module)) {
	m.mu.RLock()
	mods := make([]*DiscoveredModule, 0, len(m.loaded))
	for _, dm := range m.loaded {
		mods = append(mods, dm)
	}
	m.mu.RUnlock()

	sort.Slice(mods, func(i, j int) bool {
		return mods[i].Manifest.ModuleName() < mods[j].Manifest.ModuleName()
	})
	for _, dm := range mods {
		fn(dm)
	}
}

// AllowsDisable reports whether the module's manifest permits disabling it.
func (m *Manager) AllowsDisable(mod reconcile.Module) bool {
	dm, ok := mod.(*DiscoveredModule)
	if !ok {
		return true
	}
	return dm.Manifest.Disableable()
}

// CapabilityType returns the type ID registered at index for kind.
func (m *Manager) CapabilityType(kind module.Kind, index int) (string, bool) {
	if kind < 0 || int(kind) >= len(m.types) {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.types[kind]) {
		return "", false
	}
	return m.types[kind][index].id, true
}

// CapabilityOwner returns the module that registered typeID.
func (m *Manager) CapabilityOwner(kind module.Kind, typeID string) (reconcile.Module, bool) {
	if kind < 0 || int(kind) >= len(m.owners) {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	dm, ok := m.owners[kind][typeID]
	if !ok {
		return nil, false
	}
	return dm, true
}

// ListModules returns names of all loaded modules.
func (m *Manager) ListModules() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.loaded))
	for name := range m.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close unloads every module and clears the registry. The blacklist is kept.
func (m *Manager) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loaded = make(map[string]*DiscoveredModule)
	for i := range m.types {
		kept := m.types[i][:0]
		for _, r := range m.types[i] {
			if r.owner == nil {
				kept = append(kept, r)
			}
		}
		m.types[i] = kept
		m.owners[i] = make(map[string]*DiscoveredModule)
	}
	return nil
}
