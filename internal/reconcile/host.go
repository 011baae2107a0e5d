// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package reconcile

import (
	"context"

	"github.com/holomush/modgate/internal/module"
)

// Module is a loaded module as reported by the host loader.
type Module interface {
	FileName() string
	Name() string
	ID() string
	Version() string
}

// Host is the module loader and type registry the engine reconciles
// against.
type Host interface {
	// DisableModule prevents the named module's binary from loading this run.
	DisableModule(name string)
	// EnumModules calls fn once per successfully loaded module.
	EnumModules(fn func(Module))
	// AllowsDisable reports whether the host lets m be disabled.
	AllowsDisable(m Module) bool
	// CapabilityType returns the registered type ID at index for kind,
	// or false once index is past the last entry.
	CapabilityType(kind module.Kind, index int) (string, bool)
	// CapabilityOwner returns the module that registered typeID.
	CapabilityOwner(kind module.Kind, typeID string) (Module, bool)
}

// Persister loads and saves the module store.
type Persister interface {
	Load(ctx context.Context) (*module.Store, error)
	Save(ctx context.Context, st *module.Store) error
}
