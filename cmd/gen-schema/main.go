// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command gen-schema generates the modules.json and plugin.yaml JSON Schema files.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/holomush/modgate/internal/plugin"
	"github.com/holomush/modgate/internal/store"
)

var schemas = []struct {
	file string
	gen  func() ([]byte, error)
}{
	{"modules.schema.json", store.GenerateSchema},
	{"plugin.schema.json", plugin.GenerateSchema},
}

func main() {
	outDir := "schemas"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	for _, s := range schemas {
		if err := write(filepath.Join(outDir, s.file), s.gen); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func write(path string, gen func() ([]byte, error)) error {
	schema, err := gen()
	if err != nil {
		return fmt.Errorf("generating %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(schema, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Printf("Generated %s\n", path)
	return nil
}
