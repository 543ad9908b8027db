// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/store"
)

var _ = Describe("PostgresStateStore", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
		st        *store.PostgresStateStore
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("msgprov_test"),
			postgres.WithUsername("msgprov"),
			postgres.WithPassword("msgprov"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		backend, err := store.Open(ctx, connStr, true)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(backend.Close)
		st = backend.State.(*store.PostgresStateStore)
	})

	AfterAll(func() {
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("reports the latest migration version", func() {
		m, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = m.Close() }()

		version, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(dirty).To(BeFalse())
		Expect(version).To(Equal(uint(2)))

		status, err := m.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Pending).To(BeEmpty())
		Expect(status.Applied).To(HaveLen(2))
	})

	It("upserts and reads values", func() {
		tenant := core.NewTenantCtx("dev", "acme")
		Expect(st.Write(ctx, "k1", []byte("one"), &tenant)).To(Succeed())
		Expect(st.Write(ctx, "k1", []byte("two"), &tenant)).To(Succeed())

		got, err := st.Read(ctx, "k1", &tenant)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]byte("two")))
	})

	It("returns ErrNotFound after delete", func() {
		Expect(st.Write(ctx, "k2", []byte("x"), nil)).To(Succeed())
		Expect(st.Delete(ctx, "k2", nil)).To(Succeed())

		_, err := st.Read(ctx, "k2", nil)
		Expect(err).To(MatchError(capability.ErrNotFound))
	})

	It("deletes a namespace prefix without touching neighbours", func() {
		for _, k := range []string{"ns:a", "ns:b", "ns_other"} {
			Expect(st.Write(ctx, k, []byte(k), nil)).To(Succeed())
		}
		n, err := st.DeletePrefix(ctx, "ns:", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))

		keys, err := st.Keys(ctx, "ns")
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(ConsistOf("ns_other"))
	})
})
