// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/modgate/internal/config"
	"github.com/holomush/modgate/internal/logging"
	"github.com/holomush/modgate/internal/store"
)

// Global flags available to all subcommands.
var configFile string

// app carries state resolved once per invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (a *app) fileStore() *store.FileStore {
	return store.NewFileStore(a.cfg.ModulesFile, store.WithLogger(a.logger))
}

// NewRootCmd creates the root command for the modgate CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "modgate",
		Short: "modgate - module enable/disable state for a plugin host",
		Long: `modgate tracks which optional host modules are enabled, reconciles that
state against the modules actually installed, and reports which capability
types belong to disabled modules.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			lvl, err := cfg.Level()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.Setup("modgate", version, cfg.LogFormat, cmd.ErrOrStderr(), lvl)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/modgate/config.yaml)")
	cmd.PersistentFlags().String(config.KeyLogFormat, logging.FormatJSON, "log format (json or text)")
	cmd.PersistentFlags().String(config.KeyLogLevel, "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String(config.KeyModulesFile, "", "module state file (default: XDG_CONFIG_HOME/modgate/plugin_manager/modules.json)")

	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newToggleCmd(a, true))
	cmd.AddCommand(newToggleCmd(a, false))
	cmd.AddCommand(newReconcileCmd(a))
	cmd.AddCommand(newCheckCmd(a))
	cmd.AddCommand(newSchemaCmd())

	return cmd
}
