// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/modgate/internal/module"
)

func newCheckCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check KIND TYPE_ID",
		Short: "Report whether a capability type is disabled",
		Long: `Reconcile against the modules directory and report whether TYPE_ID of
KIND (source, output, encoder or service) belongs to a disabled module.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := module.ParseKind(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			_, mgr, d, err := runHost(ctx, a)
			if err != nil {
				return err
			}
			defer func() { _ = mgr.Close(ctx) }()

			if d.IsDisabled(kind, args[1]) {
				cmd.Println("disabled")
			} else {
				cmd.Println("enabled")
			}
			return nil
		},
	}

	addHostFlags(cmd)

	return cmd
}
