// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package session implements the settings round-trip: hand a copy of the
// module list to an editor, take the edited list back, persist it, and
// decide whether the host needs a restart.
//
// Accepting edits never unloads anything; changes apply on next launch.
package session

import (
	"context"
	"log/slog"
	"slices"
	"sort"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/modgate/internal/module"
)

// Saver persists the module store.
type Saver interface {
	Save(ctx context.Context, st *module.Store) error
}

// Prompter asks the user whether to restart now.
type Prompter interface {
	ConfirmRestart(ctx context.Context, changed []string) (bool, error)
}

// Restarter terminates and relaunches the host.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Result describes an accepted edit.
type Result struct {
	// Changed lists module names whose Enabled differs from launch.
	Changed []string
	// RestartRequired is true when Changed is non-empty.
	RestartRequired bool
	// Restarting is true when the user agreed to restart.
	Restarting bool
}

// Session edits one module store.
type Session struct {
	store     *module.Store
	saver     Saver
	prompter  Prompter
	restarter Restarter
	logger    *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithPrompter asks p before restarting.
func WithPrompter(p Prompter) Option {
	return func(s *Session) {
		s.prompter = p
	}
}

// WithRestarter restarts through r when the user agrees.
func WithRestarter(r Restarter) Option {
	return func(s *Session) {
		s.restarter = r
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// New creates a session over st.
func New(st *module.Store, saver Saver, opts ...Option) *Session {
	s := &Session{store: st, saver: saver, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Modules returns a copy of the module list in display order.
func (s *Session) Modules() []module.Record {
	return s.store.Sorted()
}

// Cancel discards an edit. The store is left unchanged.
func (s *Session) Cancel(ctx context.Context) {
	s.logger.DebugContext(ctx, "module edit cancelled")
}

// Accept replaces the store with edited, saves it, and works out whether
// a restart is needed. When a restart is needed and a Prompter is set,
// the user is asked; a yes is passed on to the Restarter.
//
// Edited records are put back in the store's order before saving, so a
// list handed back in display order does not reorder the file.
// If saving fails the store still holds the edited list.
func (s *Session) Accept(ctx context.Context, edited []module.Record) (Result, error) {
	if err := s.store.Replace(s.inStoreOrder(edited)); err != nil {
		return Result{}, err
	}

	if err := s.saver.Save(ctx, s.store); err != nil {
		return Result{}, oops.With("operation", "accept module edit").Wrap(err)
	}

	var res Result
	s.store.Each(func(r *module.Record) {
		if r.Changed() {
			res.Changed = append(res.Changed, r.ModuleName)
		}
	})
	res.RestartRequired = len(res.Changed) > 0
	if !res.RestartRequired {
		return res, nil
	}

	s.logger.InfoContext(ctx, "module changes need a restart", "modules", res.Changed)
	if s.prompter == nil {
		return res, nil
	}

	yes, err := s.prompter.ConfirmRestart(ctx, res.Changed)
	if err != nil {
		return res, oops.With("operation", "confirm restart").Wrap(err)
	}
	if !yes || s.restarter == nil {
		return res, nil
	}

	if err := s.restarter.Restart(ctx); err != nil {
		return res, oops.With("operation", "restart host").Wrap(err)
	}
	res.Restarting = true
	return res, nil
}

// inStoreOrder returns a copy of edited sorted by each name's position in
// the store. Names the store does not hold go last, in the order given.
func (s *Session) inStoreOrder(edited []module.Record) []module.Record {
	pos := make(map[string]int, s.store.Len())
	s.store.Each(func(r *module.Record) {
		pos[r.ModuleName] = len(pos)
	})
	rank := func(r module.Record) int {
		if i, ok := pos[r.ModuleName]; ok {
			return i
		}
		return len(pos)
	}

	out := slices.Clone(edited)
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i]) < rank(out[j])
	})
	return out
}

// SetEnabled sets Enabled on every record whose module name matches one
// of patterns (gobwas/glob syntax, e.g. "obs-*"). It returns the names it
// changed. A pattern that matches nothing fails with UNKNOWN_MODULE.
func SetEnabled(recs []module.Record, patterns []string, enabled bool) ([]string, error) {
	globs := make([]glob.Glob, len(patterns))
	for i, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, oops.Code("INVALID_PATTERN").With("pattern", p).Wrap(err)
		}
		globs[i] = g
	}

	matched := make([]bool, len(patterns))
	hits := make([]bool, len(recs))
	for i := range recs {
		for j, g := range globs {
			if g.Match(recs[i].ModuleName) {
				matched[j] = true
				hits[i] = true
			}
		}
	}
	for j, ok := range matched {
		if !ok {
			return nil, oops.Code("UNKNOWN_MODULE").With("pattern", patterns[j]).
				Errorf("no module matches %q", patterns[j])
		}
	}

	var changed []string
	for i := range recs {
		if hits[i] && recs[i].Enabled != enabled {
			recs[i].Enabled = enabled
			changed = append(changed, recs[i].ModuleName)
		}
	}
	return changed, nil
}
