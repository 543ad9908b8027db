// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package store provides durable implementations of the state capability.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
)

// poolIface is the subset of *pgxpool.Pool used by PostgresStateStore.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresStateStore implements capability.StateStore on the provider_state
// table.
type PostgresStateStore struct {
	pool poolIface
}

// NewPostgresStateStore connects to dsn. Run the Migrator before first use.
func NewPostgresStateStore(ctx context.Context, dsn string) (*PostgresStateStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("STATE_CONNECT_FAILED").With("operation", "connect").Wrap(err)
	}
	return &PostgresStateStore{pool: pool}, nil
}

// NewPostgresStateStoreWithPool wraps an existing pool.
func NewPostgresStateStoreWithPool(pool poolIface) *PostgresStateStore {
	return &PostgresStateStore{pool: pool}
}

// Close releases the pool.
func (s *PostgresStateStore) Close() {
	s.pool.Close()
}

// Read returns the value stored under key or capability.ErrNotFound.
func (s *PostgresStateStore) Read(ctx context.Context, key string, _ *core.TenantCtx) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM provider_state WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, capability.ErrNotFound
	}
	if err != nil {
		return nil, stateError("read", key, err)
	}
	return value, nil
}

// Write upserts value under key and records the owning tenant when known.
func (s *PostgresStateStore) Write(ctx context.Context, key string, value []byte, tenant *core.TenantCtx) error {
	env, tenantID := tenantColumns(tenant)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO provider_state (key, tenant_env, tenant_id, value)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET value = $4, tenant_env = $2, tenant_id = $3, updated_at = now()`,
		key, env, tenantID, value)
	if err != nil {
		return stateError("write", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *PostgresStateStore) Delete(ctx context.Context, key string, _ *core.TenantCtx) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM provider_state WHERE key = $1`, key); err != nil {
		return stateError("delete", key, err)
	}
	return nil
}

// DeletePrefix removes every key that starts with prefix.
func (s *PostgresStateStore) DeletePrefix(ctx context.Context, prefix string, _ *core.TenantCtx) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM provider_state WHERE key LIKE $1 ESCAPE '\'`, likePrefix(prefix))
	if err != nil {
		return 0, stateError("delete", prefix, err)
	}
	return int(tag.RowsAffected()), nil
}

// Keys lists keys that start with prefix, in key order.
func (s *PostgresStateStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM provider_state WHERE key LIKE $1 ESCAPE '\' ORDER BY key`, likePrefix(prefix))
	if err != nil {
		return nil, stateError("read", prefix, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, stateError("read", prefix, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, stateError("read", prefix, err)
	}
	return keys, nil
}

func tenantColumns(tenant *core.TenantCtx) (env, tenantID string) {
	if tenant == nil {
		return "", ""
	}
	return string(tenant.Env), string(tenant.Tenant)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

// stateError maps a database failure to a capability.StateError, keeping
// the postgres SQLSTATE when one is available.
func stateError(op, key string, err error) error {
	msg := err.Error()
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UndefinedTable:
			msg = "provider_state table missing; run migrations"
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
			msg = "conflict: " + pgErr.Message
		default:
			msg = pgErr.Code + ": " + pgErr.Message
		}
	}
	return oops.Code("STATE_" + strings.ToUpper(op) + "_FAILED").
		With("key", key).
		Wrap(&capability.StateError{Op: op, Message: msg})
}
