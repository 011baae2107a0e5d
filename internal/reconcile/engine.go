// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package reconcile merges persisted module state with the modules and
// capability types the host actually loaded, and derives the capability
// types that must be rejected this run.
//
// Reconciliation is a two-phase startup protocol:
//
//  1. PreLoad, before the host loads any module binary: load the persisted
//     module list and blacklist every disabled module.
//  2. PostLoad, after the host has loaded modules and registered their
//     types: pick up newly discovered modules, attribute registered types
//     to their modules, compute the disabled type sets, and save.
package reconcile

import (
	"context"
	"log/slog"
	"slices"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/modgate/internal/module"
	"github.com/holomush/modgate/pkg/errutil"
)

type phase int

const (
	phaseNew phase = iota
	phasePreLoaded
	phasePostLoaded
)

// Engine reconciles module state for one process run.
//
// Engine is not safe for concurrent use. The *Disabled it returns is.
type Engine struct {
	host      Host
	persister Persister
	logger    *slog.Logger
	metrics   *Metrics

	runID    ulid.ULID
	phase    phase
	store    *module.Store
	disabled *Disabled
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics records reconciliation results in m.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an engine for host, persisting through p. Every log
// line carries a run ID unique to this engine.
func NewEngine(host Host, p Persister, opts ...EngineOption) *Engine {
	e := &Engine{
		host:      host,
		persister: p,
		logger:    slog.Default(),
		runID:     ulid.Make(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("run", e.runID.String())
	return e
}

// RunID identifies this reconciliation run in logs.
func (e *Engine) RunID() ulid.ULID {
	return e.runID
}

// Store returns the live module store. It is nil before PreLoad.
func (e *Engine) Store() *module.Store {
	return e.store
}

// Disabled returns the disabled type sets. It is nil before PostLoad.
func (e *Engine) Disabled() *Disabled {
	return e.disabled
}

// PreLoad loads persisted state and blacklists disabled modules. It must
// run once, before the host loads module binaries.
//
// A corrupt state file is logged and replaced by an empty module list.
func (e *Engine) PreLoad(ctx context.Context) error {
	if e.phase != phaseNew {
		return oops.Code("PHASE_ORDER").With("phase", "preload").Errorf("preload already ran")
	}

	st, err := e.persister.Load(ctx)
	if err != nil {
		if !errutil.HasCode(err, "CONFIG_PARSE") {
			return oops.With("phase", "preload").Wrap(err)
		}
		e.logger.WarnContext(ctx, "module state is corrupt, starting with an empty module list",
			"error", err)
		st = module.NewStore()
	}
	e.store = st

	st.Each(func(r *module.Record) {
		if r.Enabled {
			return
		}
		e.host.DisableModule(r.ModuleName)
		e.logger.DebugContext(ctx, "blocked disabled module", "module", r.ModuleName)
	})

	e.phase = phasePreLoaded
	return nil
}

// PostLoad reconciles the store against what the host loaded and returns
// the disabled type sets. It must run once, after the host has finished
// loading modules and registering their types.
//
// A save failure is returned together with the computed sets; the sets
// are valid either way.
func (e *Engine) PostLoad(ctx context.Context) (*Disabled, error) {
	if e.phase != phasePreLoaded {
		return nil, oops.Code("PHASE_ORDER").With("phase", "postload").
			Errorf("postload must run once, after preload")
	}
	e.phase = phasePostLoaded

	seen := make(map[string]bool)
	e.host.EnumModules(func(m Module) {
		e.discover(ctx, m, seen)
	})

	e.attribute()
	e.disabled = e.settle(ctx, seen)
	e.metrics.observe(e.store, e.disabled)

	if err := e.persister.Save(ctx, e.store); err != nil {
		errutil.LogError(e.logger, "failed to save module state", err)
		return e.disabled, oops.With("phase", "postload").Wrap(err)
	}
	return e.disabled, nil
}

// discover adds or refreshes the record for a loaded module.
func (e *Engine) discover(ctx context.Context, m Module, seen map[string]bool) {
	name := module.NameFromFile(m.FileName())
	if name == "" {
		e.logger.WarnContext(ctx, "skipping module without a file name",
			"display_name", m.Name())
		return
	}
	seen[name] = true

	if !e.host.AllowsDisable(m) {
		return
	}

	if rec, ok := e.store.Get(name); ok {
		if change := versionChange(rec.Version, m.Version()); change != "" {
			e.logger.InfoContext(ctx, "module version "+change,
				"module", name,
				"from", rec.Version,
				"to", m.Version())
		}
		rec.DisplayName = m.Name()
		rec.ID = m.ID()
		rec.Version = m.Version()
		return
	}

	// Put cannot fail here: name is non-empty and not yet tracked.
	_, _ = e.store.Put(module.Record{
		DisplayName:     m.Name(),
		ModuleName:      name,
		ID:              m.ID(),
		Version:         m.Version(),
		Enabled:         true,
		EnabledAtLaunch: true,
	})
	e.logger.InfoContext(ctx, "discovered module",
		"module", name,
		"version", m.Version())
}

// attribute assigns every registered capability type to the tracked
// module that registered it. Types owned by untracked modules are
// ignored.
func (e *Engine) attribute() {
	for _, kind := range module.Kinds {
		for i := 0; ; i++ {
			typeID, ok := e.host.CapabilityType(kind, i)
			if !ok {
				break
			}
			owner, ok := e.host.CapabilityOwner(kind, typeID)
			if !ok {
				e.metrics.unattributed(kind)
				continue
			}
			rec, ok := e.store.Get(module.NameFromFile(owner.FileName()))
			if !ok {
				e.metrics.unattributed(kind)
				continue
			}
			rec.AddLoaded(kind, typeID)
		}
	}
}

// settle refreshes the persisted type lists of modules that were enabled
// at launch and collects the last known types of disabled modules.
func (e *Engine) settle(ctx context.Context, seen map[string]bool) *Disabled {
	d := newDisabled()
	e.store.Each(func(r *module.Record) {
		if r.EnabledAtLaunch {
			for _, kind := range module.Kinds {
				r.SetRegistered(kind, slices.Clone(r.Loaded(kind)))
			}
			if !seen[r.ModuleName] {
				r.Missing = true
				e.logger.WarnContext(ctx, "enabled module was not loaded", "module", r.ModuleName)
			}
		} else {
			for _, kind := range module.Kinds {
				d.add(kind, r.Registered(kind))
			}
		}
		r.ResetLoaded()
	})
	return d
}
