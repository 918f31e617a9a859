package index

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Source is the record store as seen by the index.
type Source interface {
	Dump(ctx context.Context) (map[string][]json.RawMessage, error)
	Get(ctx context.Context, coll string, id int64, out any) error
}

// Sync walks the store and brings the index up to date:
//   - new/changed records are extracted and upserted
//   - records no longer in the store are deleted from the index
func Sync(ctx context.Context, db *DB, src Source, logger *slog.Logger) error {
	data, err := src.Dump(ctx)
	if err != nil {
		return err
	}

	checksums, err := db.checksums(ctx)
	if err != nil {
		return err
	}

	live := make(map[key]struct{})
	for coll, list := range data {
		for _, raw := range list {
			var head struct {
				ID int64 `json:"id"`
			}
			if err := json.Unmarshal(raw, &head); err != nil {
				logger.Warn("index sync: bad document", slog.String("collection", coll), slog.String("error", err.Error()))
				continue
			}
			e, ok, err := EntryFor(coll, head.ID, raw)
			if err != nil {
				logger.Warn("index sync: extract failed", slog.String("collection", coll),
					slog.Int64("id", head.ID), slog.String("error", err.Error()))
				continue
			}
			if !ok {
				continue
			}
			k := key{coll, head.ID}
			live[k] = struct{}{}
			if checksums[k] == e.Checksum {
				continue
			}
			if err := db.Upsert(ctx, e); err != nil {
				return err
			}
		}
	}

	// Remove stale entries.
	removed := 0
	for k := range checksums {
		if _, ok := live[k]; ok {
			continue
		}
		if err := db.Delete(ctx, k.collection, k.id); err != nil {
			return err
		}
		removed++
	}

	logger.Debug("index synced", slog.Int("entries", len(live)), slog.Int("removed", removed))
	return nil
}

// Reindex refreshes one record from the store; a record that no longer
// exists is removed from the index.
func Reindex(ctx context.Context, db *DB, src Source, collection string, id int64) error {
	var raw json.RawMessage
	if err := src.Get(ctx, collection, id, &raw); err != nil {
		if isNotFound(err) {
			return db.Delete(ctx, collection, id)
		}
		return err
	}
	e, ok, err := EntryFor(collection, id, raw)
	if err != nil || !ok {
		return err
	}
	return db.Upsert(ctx, e)
}
