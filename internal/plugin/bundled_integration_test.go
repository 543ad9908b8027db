// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

//go:build integration

package plugin_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/plugin"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/provider/builtin"
)

var _ = Describe("Bundled plugins", func() {
	pluginsDir := filepath.Join("..", "..", "plugins")

	It("ships manifests that pass schema and semantic validation", func() {
		entries, err := os.ReadDir(pluginsDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).NotTo(BeEmpty())

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(pluginsDir, entry.Name(), plugin.ManifestFile))
			Expect(err).NotTo(HaveOccurred(), entry.Name())
			Expect(plugin.ValidateSchema(data)).To(Succeed(), entry.Name())
			_, err = plugin.ParseManifest(data)
			Expect(err).NotTo(HaveOccurred(), entry.Name())
		}
	})

	It("skips binary plugins when no binary host is configured", func() {
		mgr := plugin.NewManager(pluginsDir, provider.NewRegistry(), plugin.WithHostVersion("1.0.0"))
		discovered, err := mgr.Discover(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(discovered).NotTo(BeEmpty())

		Expect(mgr.LoadAll(context.Background())).To(Succeed())
		Expect(mgr.ListPlugins()).To(BeEmpty())
	})

	It("binds every built-in manifest and grants its capabilities", func() {
		enforcer := capability.NewEnforcer()
		mgr := plugin.NewManager(pluginsDir, builtin.Registry(),
			plugin.WithHostVersion("1.0.0"),
			plugin.WithEnforcer(enforcer))

		Expect(mgr.LoadAll(context.Background())).To(Succeed())
		Expect(mgr.ListPlugins()).To(Equal([]string{
			"email", "slack", "teams", "telegram", "webchat", "webex", "whatsapp",
		}))

		slack, ok := mgr.Get("slack")
		Expect(ok).To(BeTrue())
		Expect(enforcer.Check(slack.Definition.ID, "secrets.read.SLACK_BOT_TOKEN")).To(BeTrue())
		Expect(enforcer.Check(slack.Definition.ID, "secrets.read.jwt_signing_key")).To(BeFalse())
	})
})
