// Package store provides the local record store: JSON documents kept in
// SQLite tables, one table per collection, with expression indexes on
// declared fields and a versioned, additive migration chain.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/bitacora/internal/apperr"
)

// Store is an open record store.
type Store struct {
	docs
	conn       *sql.DB
	version    int
	migrations []Migration
}

// Tx is a store transaction handed to migration transforms.
type Tx struct {
	docs
}

// Open opens (or creates) the SQLite database at dsn and migrates it to
// the last version in migrations. A database written by a newer version
// is rejected with apperr.ErrIncompatibleVersion.
func Open(ctx context.Context, dsn string, migrations []Migration) (*Store, error) {
	if err := validateChain(migrations); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, &apperr.StorageError{Op: "open", Err: err}
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, &apperr.StorageError{Op: "ping", Err: err}
	}

	current, err := userVersion(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	latest := migrations[len(migrations)-1].Version
	if current > latest {
		conn.Close()
		return nil, fmt.Errorf("store: on-disk version %d, supported %d: %w", current, latest, apperr.ErrIncompatibleVersion)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(ctx, conn, m); err != nil {
			conn.Close()
			return nil, err
		}
		current = m.Version
	}

	sch := newSchema(migrations[len(migrations)-1].Collections)
	return &Store{docs: docs{q: conn, schema: sch}, conn: conn, version: current, migrations: migrations}, nil
}

func userVersion(ctx context.Context, conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v); err != nil {
		return 0, &apperr.StorageError{Op: "read version", Err: err}
	}
	return v, nil
}

// applyMigration runs one step in a single transaction. The version bump
// is part of the transaction, so a failing step leaves the previous
// version in place.
func applyMigration(ctx context.Context, conn *sql.DB, m Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return &apperr.StorageError{Op: fmt.Sprintf("migrate v%d: begin", m.Version), Err: err}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, c := range m.Collections {
		if _, err := tx.ExecContext(ctx, createTableSQL(c.Name)); err != nil {
			return &apperr.StorageError{Op: fmt.Sprintf("migrate v%d: create", m.Version), Collection: c.Name, Err: err}
		}
		for _, idx := range c.Indexes {
			if _, err := tx.ExecContext(ctx, createIndexSQL(c.Name, idx)); err != nil {
				return &apperr.StorageError{Op: fmt.Sprintf("migrate v%d: index %s", m.Version, idx.Field), Collection: c.Name, Err: err}
			}
		}
	}

	if err := runTransform(ctx, tx, m); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, m.Version)); err != nil {
		return &apperr.StorageError{Op: fmt.Sprintf("migrate v%d: set version", m.Version), Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &apperr.StorageError{Op: fmt.Sprintf("migrate v%d: commit", m.Version), Err: err}
	}
	return nil
}

func runTransform(ctx context.Context, tx *sql.Tx, m Migration) error {
	if m.Transform == nil {
		return nil
	}
	t := &Tx{docs: docs{q: tx, schema: newSchema(m.Collections)}}
	if err := m.Transform(ctx, t); err != nil {
		return fmt.Errorf("store: migrate v%d transform: %w", m.Version, err)
	}
	return nil
}

// InTx runs fn in one transaction. Any error from fn rolls back every
// write it made.
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return &apperr.StorageError{Op: "begin", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&Tx{docs: docs{q: tx, schema: s.schema}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &apperr.StorageError{Op: "commit", Err: err}
	}
	return nil
}

// Version returns the schema version the store is at.
func (s *Store) Version() int { return s.version }

// Collections returns the declared collection names, sorted.
func (s *Store) Collections() []string { return s.schema.names() }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Dump reads every collection inside one read transaction. Each document
// includes its "id".
func (s *Store) Dump(ctx context.Context) (map[string][]json.RawMessage, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, &apperr.StorageError{Op: "dump: begin", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	d := docs{q: tx, schema: s.schema}
	out := make(map[string][]json.RawMessage, len(s.schema.collections))
	for _, name := range s.schema.names() {
		list := []json.RawMessage{}
		for rec, err := range d.Query(ctx, name, Query{}) {
			if err != nil {
				return nil, err
			}
			list = append(list, rec.Doc)
		}
		out[name] = list
	}
	return out, nil
}

// ReplaceAll clears every collection and repopulates it from data in a
// single transaction. Collections missing from data end up empty. Nothing
// is written unless every collection name and document is valid.
//
// version is the schema version data was written at. The transforms of
// every later migration run on the new data inside the same transaction,
// so older documents reach the current shape before anything commits.
func (s *Store) ReplaceAll(ctx context.Context, version int, data map[string][]json.RawMessage) error {
	if version > s.version {
		return fmt.Errorf("store: replace: data version %d, store version %d: %w", version, s.version, apperr.ErrIncompatibleVersion)
	}
	type row struct {
		id  int64
		doc json.RawMessage
	}
	prepared := make(map[string][]row, len(data))
	for name, list := range data {
		if !s.schema.has(name) {
			return fmt.Errorf("store: replace: %w: %q", ErrUnknownCollection, name)
		}
		rows := make([]row, 0, len(list))
		for i, raw := range list {
			var head struct {
				ID int64 `json:"id"`
			}
			if err := json.Unmarshal(raw, &head); err != nil {
				return fmt.Errorf("store: replace %s[%d]: %w", name, i, err)
			}
			if head.ID < 0 {
				return fmt.Errorf("store: replace %s[%d]: negative id %d", name, i, head.ID)
			}
			rows = append(rows, row{id: head.ID, doc: raw})
		}
		prepared[name] = rows
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return &apperr.StorageError{Op: "replace: begin", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	for _, name := range s.schema.names() {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q`, name)); err != nil {
			return &apperr.StorageError{Op: "replace: clear", Collection: name, Err: err}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = ?`, name); err != nil {
			return &apperr.StorageError{Op: "replace: reset sequence", Collection: name, Err: err}
		}
		for _, r := range prepared[name] {
			var execErr error
			if r.id > 0 {
				_, execErr = tx.ExecContext(ctx,
					fmt.Sprintf(`INSERT INTO %q (id, doc) VALUES (?, json_remove(?, '$.id'))`, name), r.id, string(r.doc))
			} else {
				_, execErr = tx.ExecContext(ctx,
					fmt.Sprintf(`INSERT INTO %q (doc) VALUES (json_remove(?, '$.id'))`, name), string(r.doc))
			}
			if execErr != nil {
				return &apperr.StorageError{Op: "replace: insert", Collection: name, Err: execErr}
			}
		}
	}

	for _, m := range s.migrations {
		if m.Version <= version {
			continue
		}
		if err := runTransform(ctx, tx, m); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return &apperr.StorageError{Op: "replace: commit", Err: err}
	}
	return nil
}
