package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/bitacora/internal/apperr"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Record is one stored document. Doc always carries the "id" field.
type Record struct {
	ID  int64
	Doc json.RawMessage
}

// Decode unmarshals the document into out.
func (r Record) Decode(out any) error {
	return json.Unmarshal(r.Doc, out)
}

// Query selects documents of one collection.
//
// Index names a declared index field. With Eq set the query matches that
// value exactly; with From/To it matches an inclusive range (either bound
// may be nil). Results are ordered by Index when set, by id otherwise.
// Match is applied after the SQL filter.
type Query struct {
	Index string
	Eq    any
	From  any
	To    any
	Desc  bool
	Limit int
	Match func(Record) bool
}

// ParseValue converts a textual filter value, such as a query-string
// parameter, into the JSON type stored in documents so that numeric and
// boolean index fields compare correctly. The empty string yields nil.
func ParseValue(s string) any {
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// docs implements document operations over a *sql.DB or *sql.Tx.
type docs struct {
	q      queryer
	schema *schema
}

func (d docs) check(coll string) error {
	if !d.schema.has(coll) {
		return fmt.Errorf("store: %w: %q", ErrUnknownCollection, coll)
	}
	return nil
}

// Add inserts doc and returns its new id. Any "id" field in doc is ignored.
func (d docs) Add(ctx context.Context, coll string, doc any) (int64, error) {
	if err := d.check(coll); err != nil {
		return 0, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("store: add %s: encode: %w", coll, err)
	}
	res, err := d.q.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (doc) VALUES (json_remove(?, '$.id'))`, coll), string(raw))
	if err != nil {
		if isUnique(err) {
			return 0, fmt.Errorf("store: add %s: %w", coll, apperr.ErrAlreadyExists)
		}
		return 0, &apperr.StorageError{Op: "add", Collection: coll, Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &apperr.StorageError{Op: "add", Collection: coll, Err: err}
	}
	return id, nil
}

// Get loads the document with the given id into out.
func (d docs) Get(ctx context.Context, coll string, id int64, out any) error {
	if err := d.check(coll); err != nil {
		return err
	}
	var raw string
	err := d.q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT json_set(doc, '$.id', id) FROM %q WHERE id = ?`, coll), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: get %s/%d: %w", coll, id, apperr.ErrNotFound)
	}
	if err != nil {
		return &apperr.StorageError{Op: "get", Collection: coll, Err: err}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("store: get %s/%d: decode: %w", coll, id, err)
	}
	return nil
}

// Update merges fields into the stored document (JSON merge patch: a nil
// value removes the field). The id cannot be changed.
func (d docs) Update(ctx context.Context, coll string, id int64, fields map[string]any) error {
	if err := d.check(coll); err != nil {
		return err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("store: update %s/%d: encode: %w", coll, id, err)
	}
	res, err := d.q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %q SET doc = json_patch(doc, json_remove(?, '$.id')) WHERE id = ?`, coll), string(raw), id)
	if err != nil {
		if isUnique(err) {
			return fmt.Errorf("store: update %s/%d: %w", coll, id, apperr.ErrAlreadyExists)
		}
		return &apperr.StorageError{Op: "update", Collection: coll, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &apperr.StorageError{Op: "update", Collection: coll, Err: err}
	}
	if n == 0 {
		return fmt.Errorf("store: update %s/%d: %w", coll, id, apperr.ErrNotFound)
	}
	return nil
}

// Delete removes the document permanently.
func (d docs) Delete(ctx context.Context, coll string, id int64) error {
	if err := d.check(coll); err != nil {
		return err
	}
	res, err := d.q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, coll), id)
	if err != nil {
		return &apperr.StorageError{Op: "delete", Collection: coll, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: delete %s/%d: %w", coll, id, apperr.ErrNotFound)
	}
	return nil
}

// Query returns a lazy sequence of matching records. Each iteration runs
// the query afresh, so the sequence can be ranged over more than once.
func (d docs) Query(ctx context.Context, coll string, q Query) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		stmt, args, err := d.buildQuery(coll, q)
		if err != nil {
			yield(Record{}, err)
			return
		}
		rows, err := d.q.QueryContext(ctx, stmt, args...)
		if err != nil {
			yield(Record{}, &apperr.StorageError{Op: "query", Collection: coll, Err: err})
			return
		}
		defer rows.Close()

		n := 0
		for rows.Next() {
			var rec Record
			var raw string
			if err := rows.Scan(&rec.ID, &raw); err != nil {
				yield(Record{}, &apperr.StorageError{Op: "query", Collection: coll, Err: err})
				return
			}
			rec.Doc = json.RawMessage(raw)
			if q.Match != nil && !q.Match(rec) {
				continue
			}
			if !yield(rec, nil) {
				return
			}
			n++
			if q.Limit > 0 && n >= q.Limit {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Record{}, &apperr.StorageError{Op: "query", Collection: coll, Err: err})
		}
	}
}

// First returns the first record matched by q.
func (d docs) First(ctx context.Context, coll string, q Query) (Record, bool, error) {
	q.Limit = 1
	for rec, err := range d.Query(ctx, coll, q) {
		if err != nil {
			return Record{}, false, err
		}
		return rec, true, nil
	}
	return Record{}, false, nil
}

// Count returns the number of records matched by q.
func (d docs) Count(ctx context.Context, coll string, q Query) (int, error) {
	n := 0
	for _, err := range d.Query(ctx, coll, q) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func (d docs) buildQuery(coll string, q Query) (string, []any, error) {
	if err := d.check(coll); err != nil {
		return "", nil, err
	}
	if q.Index == "" && (q.Eq != nil || q.From != nil || q.To != nil) {
		return "", nil, fmt.Errorf("store: query %s: filter without index", coll)
	}
	if q.Index != "" && !d.schema.indexed(coll, q.Index) {
		return "", nil, fmt.Errorf("store: query %s: %w: %q", coll, ErrUndeclaredIndex, q.Index)
	}
	if q.Eq != nil && (q.From != nil || q.To != nil) {
		return "", nil, fmt.Errorf("store: query %s: Eq and range are exclusive", coll)
	}

	var b strings.Builder
	var args []any
	fmt.Fprintf(&b, `SELECT id, json_set(doc, '$.id', id) FROM %q`, coll)

	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	if q.Index == "" {
		fmt.Fprintf(&b, ` ORDER BY id %s`, dir)
	} else {
		expr := fmt.Sprintf(`json_extract(doc, '$.%s')`, q.Index)
		var conds []string
		if q.Eq != nil {
			conds = append(conds, expr+" = ?")
			args = append(args, q.Eq)
		}
		if q.From != nil {
			conds = append(conds, expr+" >= ?")
			args = append(args, q.From)
		}
		if q.To != nil {
			conds = append(conds, expr+" <= ?")
			args = append(args, q.To)
		}
		if len(conds) > 0 {
			b.WriteString(" WHERE " + strings.Join(conds, " AND "))
		}
		fmt.Fprintf(&b, ` ORDER BY %s %s, id %s`, expr, dir, dir)
	}
	if q.Limit > 0 && q.Match == nil {
		fmt.Fprintf(&b, ` LIMIT %d`, q.Limit)
	}
	return b.String(), args, nil
}

// Collect drains seq, decoding each record into T.
func Collect[T any](seq iter.Seq2[Record, error]) ([]T, error) {
	var out []T
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		var v T
		if err := rec.Decode(&v); err != nil {
			return nil, fmt.Errorf("store: decode record %d: %w", rec.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func isUnique(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
