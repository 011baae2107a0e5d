// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/modgate/internal/plugin"
	"github.com/holomush/modgate/internal/store"
)

func newSchemaCmd() *cobra.Command {
	var manifest bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the module state file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gen := store.GenerateSchema
			if manifest {
				gen = plugin.GenerateSchema
			}
			data, err := gen()
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&manifest, "manifest", false, "print the plugin.yaml manifest schema instead")

	return cmd
}
