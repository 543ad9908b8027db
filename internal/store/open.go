// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package store

import (
	"context"
	"strings"

	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/capability"
)

// Backend is a state store opened from a URL, with the function that
// releases it.
type Backend struct {
	State capability.StateStore
	Close func() error
}

// Open selects a state store by URL:
//
//	memory              in-process map
//	sqlite://<path>     SQLiteStateStore (sqlite::memory: for a throwaway db)
//	postgres://...      PostgresStateStore; migrations run first when migrate is true
func Open(ctx context.Context, url string, migrate bool) (*Backend, error) {
	switch {
	case url == "" || url == "memory":
		return &Backend{State: capability.NewMemoryState(), Close: func() error { return nil }}, nil
	case strings.HasPrefix(url, "sqlite:"):
		dsn := strings.TrimPrefix(strings.TrimPrefix(url, "sqlite:"), "//")
		st, err := NewSQLiteStateStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return &Backend{State: st, Close: st.Close}, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		if migrate {
			if err := migrateUp(url); err != nil {
				return nil, err
			}
		}
		st, err := NewPostgresStateStore(ctx, url)
		if err != nil {
			return nil, err
		}
		return &Backend{State: st, Close: func() error { st.Close(); return nil }}, nil
	default:
		return nil, oops.Code("STATE_URL_INVALID").With("url", url).
			Errorf("unsupported state store url %q (want memory, sqlite:// or postgres://)", url)
	}
}

func migrateUp(url string) (err error) {
	m, err := NewMigrator(url)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); err == nil {
			err = closeErr
		}
	}()
	return m.Up()
}
