// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package builtin lists the providers compiled into the host.
package builtin

import (
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/provider/dummy"
	"github.com/greentic/messaging-providers/internal/provider/email"
	"github.com/greentic/messaging-providers/internal/provider/slack"
	"github.com/greentic/messaging-providers/internal/provider/teams"
	"github.com/greentic/messaging-providers/internal/provider/telegram"
	"github.com/greentic/messaging-providers/internal/provider/webchat"
	"github.com/greentic/messaging-providers/internal/provider/webex"
	"github.com/greentic/messaging-providers/internal/provider/whatsapp"
)

// Definitions returns every built-in provider.
func Definitions() []*provider.Definition {
	return []*provider.Definition{
		dummy.Definition,
		slack.Definition,
		telegram.Definition,
		whatsapp.Definition,
		teams.Definition,
		webex.Definition,
		email.Definition,
		webchat.Definition,
	}
}

// Registry returns a registry holding Definitions.
func Registry() *provider.Registry {
	return provider.NewRegistry(Definitions()...)
}
