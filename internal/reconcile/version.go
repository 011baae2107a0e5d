// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package reconcile

import (
	"github.com/Masterminds/semver/v3"
)

// versionChange describes how a module's version moved between runs:
// "upgraded", "downgraded", "changed" for non-semver strings, or "" when
// nothing changed or either side is unknown.
func versionChange(from, to string) string {
	if from == to || from == "" || to == "" {
		return ""
	}
	fv, err := semver.NewVersion(from)
	if err != nil {
		return "changed"
	}
	tv, err := semver.NewVersion(to)
	if err != nil {
		return "changed"
	}
	switch {
	case tv.GreaterThan(fv):
		return "upgraded"
	case tv.LessThan(fv):
		return "downgraded"
	default:
		return ""
	}
}
