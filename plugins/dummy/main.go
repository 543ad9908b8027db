// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package main serves the dummy provider as a binary plugin.
//
// Build it next to its manifest:
//
//	go build -o plugins/dummy/provider ./plugins/dummy
package main

import (
	"log/slog"
	"os"

	"github.com/greentic/messaging-providers/internal/plugin/goplugin"
	"github.com/greentic/messaging-providers/internal/provider/dummy"
	"github.com/greentic/messaging-providers/pkg/pluginsdk"
)

func main() {
	p, err := goplugin.NewDefinitionProvider(dummy.Definition)
	if err != nil {
		slog.Error("dummy plugin", "error", err)
		os.Exit(1)
	}
	pluginsdk.Serve(&pluginsdk.ServeConfig{Provider: p})
}
