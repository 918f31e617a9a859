//go:build !sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the entries table.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _ Entry) error { return nil }

func ftsDelete(_ context.Context, _ *sql.Tx, _ string, _ int64) error { return nil }

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
// Every word of query must appear in the title or body.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	words := strings.Fields(query)
	if len(words) == 0 {
		return []SearchResult{}, nil
	}

	var where []string
	var args []any
	for _, w := range words {
		like := "%" + escapeLike(w) + "%"
		where = append(where, `(title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT collection, id, title, body
		FROM entries
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY collection, id DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		var body string
		if err := rows.Scan(&r.Collection, &r.ID, &r.Title, &body); err != nil {
			return nil, err
		}
		r.Snippet = snippet(body, words[0], 64)
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// snippet returns up to width runes of body on each side of the first
// case-insensitive match of word, with the match wrapped in <b> tags.
func snippet(body, word string, width int) string {
	runes := []rune(body)
	lower := []rune(strings.ToLower(body))
	needle := []rune(strings.ToLower(word))
	at := indexRunes(lower, needle)
	if at < 0 || len(lower) != len(runes) {
		if len(runes) > 2*width {
			return string(runes[:2*width]) + "..."
		}
		return body
	}

	start, end := max(at-width, 0), min(at+len(needle)+width, len(runes))
	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(string(runes[start:at]))
	b.WriteString("<b>" + string(runes[at:at+len(needle)]) + "</b>")
	b.WriteString(string(runes[at+len(needle) : end]))
	if end < len(runes) {
		b.WriteString("...")
	}
	return b.String()
}

func indexRunes(haystack, needle []rune) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
