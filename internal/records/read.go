package records

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/starford/bitacora/internal/store"
)

// Querier reads the records of one collection.
type Querier interface {
	Query(ctx context.Context, coll string, q store.Query) iter.Seq2[store.Record, error]
}

// Normalize applies the state changes that happen lazily on read: an
// active warranty past its expiration date reads as expired. Other
// documents are returned unchanged.
func Normalize(coll string, doc json.RawMessage, now time.Time) (json.RawMessage, error) {
	if coll != Warranties {
		return doc, nil
	}
	var w Warranty
	if err := json.Unmarshal(doc, &w); err != nil {
		return nil, fmt.Errorf("records: decode %s: %w", coll, err)
	}
	if w.ExpirationDate == "" {
		return doc, nil
	}
	status := w.EffectiveStatus(now)
	if status == w.Status {
		return doc, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("records: decode %s: %w", coll, err)
	}
	fields["status"], _ = json.Marshal(status)
	return json.Marshal(fields)
}

// lazyField reports whether Normalize may rewrite field of coll.
func lazyField(coll, field string) bool {
	return coll == Warranties && field == "status"
}

// Read runs q against coll and normalizes every document. A filter on a
// field that Normalize rewrites is evaluated on the normalized value, so
// status=active never returns a warranty that has already expired.
func Read(ctx context.Context, src Querier, coll string, q store.Query, now time.Time) ([]json.RawMessage, error) {
	if lazyField(coll, q.Index) && (q.Eq != nil || q.From != nil || q.To != nil) {
		want := q
		q = store.Query{Desc: want.Desc, Limit: want.Limit, Match: func(rec store.Record) bool {
			if want.Match != nil && !want.Match(rec) {
				return false
			}
			doc, err := Normalize(coll, rec.Doc, now)
			if err != nil {
				// Kept so the decode error surfaces below.
				return true
			}
			return fieldMatches(doc, want)
		}}
	}

	out := []json.RawMessage{}
	for rec, err := range src.Query(ctx, coll, q) {
		if err != nil {
			return nil, err
		}
		doc, err := Normalize(coll, rec.Doc, now)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// fieldMatches compares the string value of q.Index in doc against the
// Eq or From/To bounds of q.
func fieldMatches(doc json.RawMessage, q store.Query) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return false
	}
	var v string
	if err := json.Unmarshal(fields[q.Index], &v); err != nil {
		return false
	}
	if q.Eq != nil {
		return v == fmt.Sprint(q.Eq)
	}
	if q.From != nil && v < fmt.Sprint(q.From) {
		return false
	}
	if q.To != nil && v > fmt.Sprint(q.To) {
		return false
	}
	return true
}
