package index

import (
	"context"
	"fmt"
)

// Searcher is the read side of the index.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// Verify *DB satisfies Searcher at compile time.
var _ Searcher = (*DB)(nil)

// Entry is the searchable text of one record.
type Entry struct {
	Collection string
	ID         int64
	Title      string
	Body       string
	// Checksum is the digest of the record document the text came from.
	Checksum string
}

// SearchResult represents one search hit.
type SearchResult struct {
	Collection string `json:"collection"`
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
}

type key struct {
	collection string
	id         int64
}

// Upsert inserts or replaces an entry and its FTS row within a transaction.
func (db *DB) Upsert(ctx context.Context, e Entry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (collection, id, title, body, checksum)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			title    = excluded.title,
			body     = excluded.body,
			checksum = excluded.checksum
	`, e.Collection, e.ID, e.Title, e.Body, e.Checksum)
	if err != nil {
		return fmt.Errorf("index: upsert entry: %w", err)
	}
	if err := ftsUpsert(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes an entry and its FTS row.
func (db *DB) Delete(ctx context.Context, collection string, id int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(ctx, tx, collection, id); err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return fmt.Errorf("index: delete entry: %w", err)
	}
	return tx.Commit()
}

// checksums returns the stored checksum of every indexed record.
func (db *DB) checksums(ctx context.Context) (map[key]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT collection, id, checksum FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("index: checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[key]string)
	for rows.Next() {
		var k key
		var cs string
		if err := rows.Scan(&k.collection, &k.id, &cs); err != nil {
			return nil, err
		}
		out[k] = cs
	}
	return out, rows.Err()
}

// Count returns the number of indexed records.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}
