// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package module

import (
	"sort"

	"github.com/samber/oops"
)

// Store maps module names to records, preserving insertion order.
//
// Store is not safe for concurrent use; it is owned by the startup path
// and the settings session, which run sequentially.
type Store struct {
	records []*Record
	index   map[string]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Get returns the record for name. The returned pointer is live.
func (s *Store) Get(name string) (*Record, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.records[i], true
}

// Put inserts rec, or replaces the record with the same module name in
// place. Records with an empty module name are rejected.
func (s *Store) Put(rec Record) (*Record, error) {
	if rec.ModuleName == "" {
		return nil, oops.Code("INVALID_MODULE").Errorf("module name cannot be empty")
	}
	r := rec
	if i, ok := s.index[rec.ModuleName]; ok {
		s.records[i] = &r
		return &r, nil
	}
	s.index[rec.ModuleName] = len(s.records)
	s.records = append(s.records, &r)
	return &r, nil
}

// Each calls fn for every record in insertion order.
func (s *Store) Each(fn func(*Record)) {
	for _, r := range s.records {
		fn(r)
	}
}

// Records returns deep copies of all records in insertion order.
func (s *Store) Records() []Record {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	return out
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	c := NewStore()
	for _, r := range s.records {
		_, _ = c.Put(r.Clone())
	}
	return c
}

// Replace swaps the store contents for recs. Either every record is
// accepted or the store is left untouched.
func (s *Store) Replace(recs []Record) error {
	next := NewStore()
	for i := range recs {
		if _, dup := next.index[recs[i].ModuleName]; dup {
			return oops.Code("INVALID_MODULE").
				With("module", recs[i].ModuleName).
				Errorf("duplicate module name")
		}
		if _, err := next.Put(recs[i].Clone()); err != nil {
			return err
		}
	}
	s.records = next.records
	s.index = next.index
	return nil
}

// Sorted returns deep copies of all records ordered by display label
// (case-sensitive, byte-wise).
func (s *Store) Sorted() []Record {
	out := s.Records()
	SortForDisplay(out)
	return out
}

// SortForDisplay orders records by display label. Ties keep their order.
func SortForDisplay(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].DisplayLabel() < recs[j].DisplayLabel()
	})
}
