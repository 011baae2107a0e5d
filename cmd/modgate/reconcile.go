// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/holomush/modgate/internal/config"
	"github.com/holomush/modgate/internal/module"
	"github.com/holomush/modgate/internal/plugin"
	"github.com/holomush/modgate/internal/reconcile"
	"github.com/holomush/modgate/pkg/errutil"
)

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	Loaded   []string            `json:"loaded"`
	Missing  []string            `json:"missing,omitempty"`
	Disabled map[string][]string `json:"disabled"`
}

type reconcileConfig struct {
	jsonOutput bool
}

func addHostFlags(cmd *cobra.Command) {
	cmd.Flags().String(config.KeyModulesDir, "", "installed modules directory (default: XDG_DATA_HOME/modgate/modules)")
	cmd.Flags().String(config.KeyMetricsFile, "", "write reconcile metrics to this Prometheus textfile")
}

func newReconcileCmd(a *app) *cobra.Command {
	cfg := &reconcileConfig{}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile module state against installed modules",
		Long: `Load the module state file, skip disabled modules, load the rest from the
modules directory, and save the merged state. Prints the capability types
that belong to disabled modules.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := reconcileHost(cmd.Context(), a)
			if err != nil {
				return err
			}
			return printReport(cmd, report, cfg.jsonOutput)
		},
	}

	addHostFlags(cmd)
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output report as JSON")

	return cmd
}

// runHost runs both reconciliation phases around a directory-backed load.
// A failed save is logged and the run still yields its disabled sets.
func runHost(ctx context.Context, a *app) (*reconcile.Engine, *plugin.Manager, *reconcile.Disabled, error) {
	reg := prometheus.NewRegistry()
	mgr := plugin.NewManager(a.cfg.ModulesDir, plugin.WithLogger(a.logger))
	eng := reconcile.NewEngine(mgr, a.fileStore(),
		reconcile.WithLogger(a.logger),
		reconcile.WithMetrics(reconcile.NewMetrics(reg)))

	if err := eng.PreLoad(ctx); err != nil {
		return nil, nil, nil, err
	}
	if err := mgr.LoadAll(ctx); err != nil {
		return nil, nil, nil, err
	}
	d, err := eng.PostLoad(ctx)
	if err != nil && !errutil.HasCode(err, "CONFIG_WRITE") {
		return nil, nil, nil, err
	}

	if a.cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.MetricsFile, reg); err != nil {
			return nil, nil, nil, fmt.Errorf("write metrics: %w", err)
		}
	}
	return eng, mgr, d, nil
}

func reconcileHost(ctx context.Context, a *app) (*ReconcileReport, error) {
	eng, mgr, d, err := runHost(ctx, a)
	if err != nil {
		return nil, err
	}
	defer func() { _ = mgr.Close(ctx) }()

	report := &ReconcileReport{
		Loaded:   mgr.ListModules(),
		Disabled: make(map[string][]string, len(module.Kinds)),
	}
	for _, kind := range module.Kinds {
		report.Disabled[kind.String()] = d.IDs(kind)
	}
	eng.Store().Each(func(r *module.Record) {
		if r.Missing {
			report.Missing = append(report.Missing, r.ModuleName)
		}
	})
	return report, nil
}

func printReport(cmd *cobra.Command, r *ReconcileReport, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("loaded: %s\n", joinOrNone(r.Loaded))
	for _, kind := range module.Kinds {
		cmd.Printf("disabled %ss: %s\n", kind, joinOrNone(r.Disabled[kind.String()]))
	}
	if len(r.Missing) > 0 {
		cmd.Printf("missing: %s\n", strings.Join(r.Missing, ", "))
	}
	return nil
}

func joinOrNone(s []string) string {
	if len(s) == 0 {
		return "none"
	}
	return strings.Join(s, ", ")
}
