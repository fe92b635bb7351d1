package library

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// migrations[i] upgrades a database from user_version i to i+1. Append new
// steps; never edit a released one.
var migrations = []string{
	schemaSQL,
}

// ErrSchemaMismatch reports a database written by a newer release.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func schemaVersion() int {
	return len(migrations)
}

// initSchema brings the database up to schemaVersion, tracked in SQLite's
// user_version header field.
func (s *Store) initSchema(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case current == schemaVersion():
		return nil
	case current > schemaVersion():
		return fmt.Errorf("%w: database has version %d, this build supports %d (upgrade bookshelf or restore a backup)",
			ErrSchemaMismatch, current, schemaVersion())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for version := current; version < schemaVersion(); version++ {
		if _, err := tx.ExecContext(ctx, migrations[version]); err != nil {
			return fmt.Errorf("migrate schema to version %d: %w", version+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion())); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
