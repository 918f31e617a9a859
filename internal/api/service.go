package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/starford/bitacora/internal/apperr"
	"github.com/starford/bitacora/internal/dispatch"
	"github.com/starford/bitacora/internal/records"
	"github.com/starford/bitacora/internal/store"
)

// Service coordinates record reads and direct edits for the API layer.
// Command-driven writes go through the dispatcher instead.
type Service struct {
	store  *store.Store
	now    func() time.Time
	notify func(dispatch.Change)
}

// NewService creates a new API service. notify may be nil.
func NewService(s *store.Store, now func() time.Time, notify func(dispatch.Change)) *Service {
	if now == nil {
		now = time.Now
	}
	if notify == nil {
		notify = func(dispatch.Change) {}
	}
	return &Service{store: s, now: now, notify: notify}
}

// ListParams filters a collection listing.
type ListParams struct {
	Index string
	Eq    string
	From  string
	To    string
	Desc  bool
	Limit int
}

// List returns the documents of coll matching p, as they read now.
func (s *Service) List(ctx context.Context, coll string, p ListParams) ([]json.RawMessage, error) {
	q := store.Query{
		Index: p.Index,
		Eq:    store.ParseValue(p.Eq),
		From:  store.ParseValue(p.From),
		To:    store.ParseValue(p.To),
		Desc:  p.Desc,
		Limit: p.Limit,
	}
	return records.Read(ctx, s.store, coll, q, s.now())
}

// Get returns one document as it reads now.
func (s *Service) Get(ctx context.Context, coll string, id int64) (json.RawMessage, error) {
	var doc json.RawMessage
	if err := s.store.Get(ctx, coll, id, &doc); err != nil {
		return nil, err
	}
	return records.Normalize(coll, doc, s.now())
}

// Patch merges fields into a document and recomputes derived fields:
// invoice totals and warranty expiration. id and created_at are kept. A
// result that breaks the collection's rules is rolled back with an
// *apperr.ValidationError.
func (s *Service) Patch(ctx context.Context, coll string, id int64, fields map[string]any) (json.RawMessage, error) {
	delete(fields, "id")
	delete(fields, "created_at")
	fields["updated_at"] = s.now().UnixMilli()

	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.Update(ctx, coll, id, fields); err != nil {
			return err
		}
		if err := recompute(ctx, tx, coll, id, s.now()); err != nil {
			return err
		}
		var doc json.RawMessage
		if err := tx.Get(ctx, coll, id, &doc); err != nil {
			return err
		}
		return records.Check(coll, doc)
	})
	if err != nil {
		return nil, err
	}

	s.notify(dispatch.Change{Kind: dispatch.Updated, Collection: coll, ID: id})
	return s.Get(ctx, coll, id)
}

// Delete removes a document.
func (s *Service) Delete(ctx context.Context, coll string, id int64) error {
	if err := s.store.Delete(ctx, coll, id); err != nil {
		return err
	}
	s.notify(dispatch.Change{Kind: dispatch.Deleted, Collection: coll, ID: id})
	return nil
}

// recompute refreshes the fields derived from an edited document.
func recompute(ctx context.Context, tx *store.Tx, coll string, id int64, now time.Time) error {
	switch coll {
	case records.Invoices:
		var inv records.Invoice
		if err := tx.Get(ctx, coll, id, &inv); err != nil {
			return err
		}
		inv.Recompute()
		return tx.Update(ctx, coll, id, map[string]any{
			"items": inv.Items, "subtotal": inv.Subtotal, "tax_amount": inv.TaxAmount, "total": inv.Total,
		})
	case records.Warranties:
		var w records.Warranty
		if err := tx.Get(ctx, coll, id, &w); err != nil {
			return err
		}
		if err := w.Recompute(now); err != nil {
			return &apperr.ValidationError{Tag: coll, Fields: map[string]string{"purchase_date": err.Error()}}
		}
		return tx.Update(ctx, coll, id, map[string]any{
			"expiration_date": w.ExpirationDate, "status": w.Status,
		})
	}
	return nil
}

// ExpiringWarranty is a warranty with its status evaluated at request time.
type ExpiringWarranty struct {
	records.Warranty
	DaysLeft int `json:"days_left"`
}

// ExpiringWarranties lists active warranties expiring within days,
// soonest first.
func (s *Service) ExpiringWarranties(ctx context.Context, days int) ([]ExpiringWarranty, error) {
	now := s.now()
	q := store.Query{
		Index: "expiration_date",
		From:  records.Today(now),
		To:    records.Today(now.AddDate(0, 0, days)),
	}
	list, err := store.Collect[records.Warranty](s.store.Query(ctx, records.Warranties, q))
	if err != nil {
		return nil, err
	}
	out := []ExpiringWarranty{}
	for _, w := range list {
		if !w.DueSoon(now, days) {
			continue
		}
		w.Status = w.EffectiveStatus(now)
		out = append(out, ExpiringWarranty{Warranty: w, DaysLeft: w.DaysLeft(now)})
	}
	return out, nil
}

// Bitacora returns the entry for date.
func (s *Service) Bitacora(ctx context.Context, date string) (records.BitacoraEntry, bool, error) {
	rec, ok, err := s.store.First(ctx, records.Bitacora, store.Query{Index: "date", Eq: date})
	if err != nil || !ok {
		return records.BitacoraEntry{}, ok, err
	}
	var e records.BitacoraEntry
	if err := rec.Decode(&e); err != nil {
		return records.BitacoraEntry{}, false, err
	}
	return e, true, nil
}
