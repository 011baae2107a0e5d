// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/modgate/internal/session"
)

func newToggleCmd(a *app, enable bool) *cobra.Command {
	use, verb := "disable", "Disable"
	if enable {
		use, verb = "enable", "Enable"
	}

	return &cobra.Command{
		Use:   use + " PATTERN...",
		Short: verb + " modules by name",
		Long: verb + ` every module whose name matches one of the glob patterns
(for example "obs-*"). Changes take effect the next time the host starts.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToggle(cmd, a, args, enable)
		},
	}
}

func runToggle(cmd *cobra.Command, a *app, patterns []string, enable bool) error {
	ctx := cmd.Context()
	fs := a.fileStore()

	st, err := fs.Load(ctx)
	if err != nil {
		return err
	}

	s := session.New(st, fs, session.WithLogger(a.logger))
	mods := s.Modules()
	changed, err := session.SetEnabled(mods, patterns, enable)
	if err != nil {
		s.Cancel(ctx)
		return err
	}
	if len(changed) == 0 {
		s.Cancel(ctx)
		cmd.Println("no changes")
		return nil
	}

	res, err := s.Accept(ctx, mods)
	if err != nil {
		return err
	}

	state := "disabled"
	if enable {
		state = "enabled"
	}
	for _, name := range changed {
		cmd.Printf("%s: %s\n", name, state)
	}
	if res.RestartRequired {
		cmd.Println("restart the host to apply changes")
	}
	return nil
}
