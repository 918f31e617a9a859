package records

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/bitacora/internal/store"
)

// Migrations is the schema history of the record store. Steps are only
// ever appended; each lists every collection that exists as of its version.
var Migrations = []store.Migration{
	{
		Version:     1,
		Description: "events, clients, notes, appointments, reminders",
		Collections: v1Collections,
	},
	{
		Version:     2,
		Description: "invoices and warranties; events by client",
		Collections: v2Collections,
	},
	{
		Version:     3,
		Description: "bitacora, templates, photos, documents, quick quotes; split client names",
		Collections: v3Collections,
		Transform:   splitClientNames,
	},
}

// LatestVersion is the schema version this build writes.
func LatestVersion() int {
	return Migrations[len(Migrations)-1].Version
}

var v1Collections = []store.Collection{
	{Name: Events, Indexes: []store.Index{{Field: "timestamp"}, {Field: "type"}, {Field: "category"}}},
	{Name: Clients, Indexes: []store.Index{{Field: "first_name"}, {Field: "active"}}},
	{Name: Notes},
	{Name: Appointments, Indexes: []store.Index{{Field: "date"}}},
	{Name: Reminders, Indexes: []store.Index{{Field: "due_date"}}},
}

var v2Collections = []store.Collection{
	{Name: Events, Indexes: []store.Index{{Field: "timestamp"}, {Field: "type"}, {Field: "category"}, {Field: "client_id"}}},
	{Name: Clients, Indexes: []store.Index{{Field: "first_name"}, {Field: "active"}}},
	{Name: Notes},
	{Name: Appointments, Indexes: []store.Index{{Field: "date"}}},
	{Name: Reminders, Indexes: []store.Index{{Field: "due_date"}}},
	{Name: Invoices, Indexes: []store.Index{{Field: "invoice_number", Unique: true}, {Field: "status"}, {Field: "client_id"}}},
	{Name: Warranties, Indexes: []store.Index{{Field: "expiration_date"}, {Field: "status"}}},
}

var v3Collections = append(append([]store.Collection{}, v2Collections...),
	store.Collection{Name: Bitacora, Indexes: []store.Index{{Field: "date", Unique: true}}},
	store.Collection{Name: JobTemplates, Indexes: []store.Index{{Field: "active"}}},
	store.Collection{Name: ClientPhotos, Indexes: []store.Index{{Field: "client_id"}}},
	store.Collection{Name: ClientDocuments, Indexes: []store.Index{{Field: "client_id"}}},
	store.Collection{Name: QuickQuotes},
)

// splitClientNames rewrites clients stored before v3 with a single "name"
// field into first_name/last_name. The first word becomes first_name.
func splitClientNames(ctx context.Context, tx *store.Tx) error {
	type legacy struct {
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		FirstName string `json:"first_name"`
	}
	var pending []legacy
	for rec, err := range tx.Query(ctx, Clients, store.Query{}) {
		if err != nil {
			return err
		}
		var c legacy
		if err := json.Unmarshal(rec.Doc, &c); err != nil {
			return fmt.Errorf("records: decode client %d: %w", rec.ID, err)
		}
		if c.Name != "" {
			pending = append(pending, c)
		}
	}
	for _, c := range pending {
		first, last := c.FirstName, ""
		if first == "" {
			first, last = splitName(c.Name)
		}
		patch := map[string]any{"first_name": first, "name": nil}
		if last != "" {
			patch["last_name"] = last
		}
		if err := tx.Update(ctx, Clients, c.ID, patch); err != nil {
			return err
		}
	}
	return nil
}

func splitName(full string) (string, string) {
	fields := strings.Fields(full)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}
