package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
)

var (
	// ErrUnknownCollection is returned for a collection the schema does not declare.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrUndeclaredIndex is returned when a query filters on a field that has no index.
	ErrUndeclaredIndex = errors.New("field is not indexed")
	// ErrInvalidMigrations is returned by Open when the migration chain is malformed.
	ErrInvalidMigrations = errors.New("invalid migration chain")
)

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Index declares a queryable document field.
type Index struct {
	Field  string
	Unique bool
}

// Collection declares a document collection and its indexed fields.
type Collection struct {
	Name    string
	Indexes []Index
}

// Migration moves the store to Version. Collections is the complete set of
// collections as of this version; every collection and index of the
// previous step must still be present. Transform, when set, runs inside
// the same transaction after the new tables and indexes exist.
type Migration struct {
	Version     int
	Description string
	Collections []Collection
	Transform   func(ctx context.Context, tx *Tx) error
}

type schema struct {
	collections map[string]map[string]Index
}

func newSchema(cols []Collection) *schema {
	s := &schema{collections: make(map[string]map[string]Index, len(cols))}
	for _, c := range cols {
		idx := make(map[string]Index, len(c.Indexes))
		for _, i := range c.Indexes {
			idx[i.Field] = i
		}
		s.collections[c.Name] = idx
	}
	return s
}

func (s *schema) has(coll string) bool {
	_, ok := s.collections[coll]
	return ok
}

func (s *schema) indexed(coll, field string) bool {
	_, ok := s.collections[coll][field]
	return ok
}

func (s *schema) names() []string {
	out := make([]string, 0, len(s.collections))
	for n := range s.collections {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// validateChain checks that versions run 1..N without gaps and that every
// step only adds collections and indexes.
func validateChain(migrations []Migration) error {
	if len(migrations) == 0 {
		return fmt.Errorf("%w: no migrations", ErrInvalidMigrations)
	}
	var prev *schema
	for i, m := range migrations {
		if m.Version != i+1 {
			return fmt.Errorf("%w: step %d has version %d, want %d", ErrInvalidMigrations, i, m.Version, i+1)
		}
		for _, c := range m.Collections {
			if !identRe.MatchString(c.Name) {
				return fmt.Errorf("%w: v%d: bad collection name %q", ErrInvalidMigrations, m.Version, c.Name)
			}
			for _, idx := range c.Indexes {
				if !identRe.MatchString(idx.Field) {
					return fmt.Errorf("%w: v%d: bad index field %q on %s", ErrInvalidMigrations, m.Version, idx.Field, c.Name)
				}
			}
		}
		cur := newSchema(m.Collections)
		if prev != nil {
			for name, indexes := range prev.collections {
				if !cur.has(name) {
					return fmt.Errorf("%w: v%d drops collection %q", ErrInvalidMigrations, m.Version, name)
				}
				for field, idx := range indexes {
					got, ok := cur.collections[name][field]
					if !ok || got.Unique != idx.Unique {
						return fmt.Errorf("%w: v%d changes index %s.%s", ErrInvalidMigrations, m.Version, name, field)
					}
				}
			}
		}
		prev = cur
	}
	return nil
}

func createTableSQL(name string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
	id  INTEGER PRIMARY KEY AUTOINCREMENT,
	doc TEXT NOT NULL CHECK (json_valid(doc))
)`, name)
}

func createIndexSQL(coll string, idx Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf(`CREATE %sINDEX IF NOT EXISTS %q ON %q (json_extract(doc, '$.%s'))`,
		unique, "idx_"+coll+"_"+idx.Field, coll, idx.Field)
}
