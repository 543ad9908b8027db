// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Command gen-schema generates the plugin manifest and runtime config JSON
// Schema files.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/greentic/messaging-providers/internal/plugin"
	"github.com/greentic/messaging-providers/internal/runtimeconfig"
)

var targets = []struct {
	file     string
	generate func() ([]byte, error)
}{
	{"plugin.schema.json", plugin.GenerateSchema},
	{"runtime-config.schema.json", runtimeconfig.GenerateSchema},
}

func main() {
	outDir := filepath.Join("schemas", "messaging")
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	for _, target := range targets {
		schema, err := target.generate()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating %s: %v\n", target.file, err)
			os.Exit(1)
		}

		outPath := filepath.Join(outDir, target.file)
		if err := os.WriteFile(outPath, schema, 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
}
