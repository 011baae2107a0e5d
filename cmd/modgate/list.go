// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/holomush/modgate/internal/module"
)

// ModuleStatus is one row of list output.
type ModuleStatus struct {
	Name     string   `json:"name"`
	Module   string   `json:"module"`
	ID       string   `json:"id,omitempty"`
	Version  string   `json:"version,omitempty"`
	Enabled  bool     `json:"enabled"`
	Sources  []string `json:"sources,omitempty"`
	Outputs  []string `json:"outputs,omitempty"`
	Encoders []string `json:"encoders,omitempty"`
	Services []string `json:"services,omitempty"`
}

type listConfig struct {
	jsonOutput bool
}

func newListCmd(a *app) *cobra.Command {
	cfg := &listConfig{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked modules",
		Long:  `List every tracked module in display order with its enabled state.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, a, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output modules as JSON")

	return cmd
}

func runList(cmd *cobra.Command, a *app, cfg *listConfig) error {
	st, err := a.fileStore().Load(cmd.Context())
	if err != nil {
		return err
	}

	recs := st.Sorted()
	statuses := make([]ModuleStatus, 0, len(recs))
	for i := range recs {
		statuses = append(statuses, toStatus(&recs[i]))
	}

	var output string
	if cfg.jsonOutput {
		output, err = formatListJSON(statuses)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
	} else {
		output = formatListTable(statuses)
	}

	cmd.Print(output)
	return nil
}

func toStatus(r *module.Record) ModuleStatus {
	return ModuleStatus{
		Name:     r.DisplayLabel(),
		Module:   r.ModuleName,
		ID:       r.ID,
		Version:  r.Version,
		Enabled:  r.Enabled,
		Sources:  r.Sources,
		Outputs:  r.Outputs,
		Encoders: r.Encoders,
		Services: r.Services,
	}
}

func formatListJSON(statuses []ModuleStatus) (string, error) {
	data, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

func formatListTable(statuses []ModuleStatus) string {
	if len(statuses) == 0 {
		return "no modules tracked\n"
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tMODULE\tVERSION\tSTATE")
	for _, s := range statuses {
		state := "disabled"
		if s.Enabled {
			state = "enabled"
		}
		version := s.Version
		if version == "" {
			version = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, s.Module, version, state)
	}
	_ = w.Flush()
	return buf.String()
}
