// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/samber/oops"
	// Register the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS provider_state (
	key        TEXT PRIMARY KEY,
	tenant_env TEXT NOT NULL DEFAULT '',
	tenant_id  TEXT NOT NULL DEFAULT '',
	value      BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_provider_state_tenant ON provider_state(tenant_env, tenant_id);`

// SQLiteStateStore implements capability.StateStore on a local SQLite file.
// It is meant for development hosts and the msgprov CLI.
type SQLiteStateStore struct {
	db *sql.DB
}

// NewSQLiteStateStore opens dsn (a file path or ":memory:") and creates the
// schema if needed.
func NewSQLiteStateStore(ctx context.Context, dsn string) (*SQLiteStateStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "msgprov-state.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code("STATE_CONNECT_FAILED").With("dsn", dsn).Wrap(err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close() //nolint:errcheck // schema error takes precedence
		return nil, oops.Code("STATE_SCHEMA_FAILED").With("dsn", dsn).Wrap(err)
	}
	return &SQLiteStateStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStateStore) Close() error {
	return s.db.Close()
}

// Read returns the value stored under key or capability.ErrNotFound.
func (s *SQLiteStateStore) Read(ctx context.Context, key string, _ *core.TenantCtx) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM provider_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, capability.ErrNotFound
	}
	if err != nil {
		return nil, sqliteError("read", key, err)
	}
	return value, nil
}

// Write upserts value under key.
func (s *SQLiteStateStore) Write(ctx context.Context, key string, value []byte, tenant *core.TenantCtx) error {
	env, tenantID := tenantColumns(tenant)
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_state (key, tenant_env, tenant_id, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, tenant_env = excluded.tenant_env,
		 tenant_id = excluded.tenant_id, updated_at = CURRENT_TIMESTAMP`,
		key, env, tenantID, value)
	if err != nil {
		return sqliteError("write", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *SQLiteStateStore) Delete(ctx context.Context, key string, _ *core.TenantCtx) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM provider_state WHERE key = ?`, key); err != nil {
		return sqliteError("delete", key, err)
	}
	return nil
}

// DeletePrefix removes every key that starts with prefix.
func (s *SQLiteStateStore) DeletePrefix(ctx context.Context, prefix string, _ *core.TenantCtx) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM provider_state WHERE key LIKE ? ESCAPE '\'`, likePrefix(prefix))
	if err != nil {
		return 0, sqliteError("delete", prefix, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, sqliteError("delete", prefix, err)
	}
	return int(n), nil
}

// Keys lists keys that start with prefix, in key order.
func (s *SQLiteStateStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM provider_state WHERE key LIKE ? ESCAPE '\' ORDER BY key`, likePrefix(prefix))
	if err != nil {
		return nil, sqliteError("read", prefix, err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, sqliteError("read", prefix, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteError("read", prefix, err)
	}
	return keys, nil
}

func sqliteError(op, key string, err error) error {
	return oops.Code("STATE_" + strings.ToUpper(op) + "_FAILED").
		With("key", key).
		Wrap(&capability.StateError{Op: op, Message: err.Error()})
}
