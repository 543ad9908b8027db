// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package main is questions-cli: it asks the questions of a QuestionsSpec
// on the terminal and prints the answers as JSON.
package main

import (
	"os"
)

var version = "dev"

func main() {
	cmd := NewRootCmd()
	cmd.Version = version

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
