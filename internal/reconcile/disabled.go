// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package reconcile

import (
	"slices"

	"github.com/holomush/modgate/internal/module"
)

// Disabled holds the capability type IDs that must not be instantiated
// this run, per kind.
//
// Disabled is immutable once returned by PostLoad and safe for concurrent
// readers. A nil *Disabled reports nothing as disabled.
type Disabled struct {
	sets [module.NumKinds]map[string]struct{}
}

func newDisabled() *Disabled {
	d := &Disabled{}
	for i := range d.sets {
		d.sets[i] = make(map[string]struct{})
	}
	return d
}

func (d *Disabled) add(kind module.Kind, ids []string) {
	for _, id := range ids {
		d.sets[kind][id] = struct{}{}
	}
}

// IsDisabled reports whether typeID of the given kind belongs to a
// disabled module.
func (d *Disabled) IsDisabled(kind module.Kind, typeID string) bool {
	if d == nil || kind < module.KindSource || kind > module.KindService {
		return false
	}
	_, ok := d.sets[kind][typeID]
	return ok
}

// SourceDisabled reports whether the source type is disabled.
func (d *Disabled) SourceDisabled(typeID string) bool {
	return d.IsDisabled(module.KindSource, typeID)
}

// OutputDisabled reports whether the output type is disabled.
func (d *Disabled) OutputDisabled(typeID string) bool {
	return d.IsDisabled(module.KindOutput, typeID)
}

// EncoderDisabled reports whether the encoder type is disabled.
func (d *Disabled) EncoderDisabled(typeID string) bool {
	return d.IsDisabled(module.KindEncoder, typeID)
}

// ServiceDisabled reports whether the service type is disabled.
func (d *Disabled) ServiceDisabled(typeID string) bool {
	return d.IsDisabled(module.KindService, typeID)
}

// IDs returns the disabled type IDs of kind, sorted.
func (d *Disabled) IDs(kind module.Kind) []string {
	if d == nil || kind < module.KindSource || kind > module.KindService {
		return nil
	}
	ids := make([]string, 0, len(d.sets[kind]))
	for id := range d.sets[kind] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of disabled type IDs of kind.
func (d *Disabled) Len(kind module.Kind) int {
	if d == nil || kind < module.KindSource || kind > module.KindService {
		return 0
	}
	return len(d.sets[kind])
}
