package index

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/bitacora/internal/checksum"
	"github.com/starford/bitacora/internal/records"
)

// EntryFor extracts the searchable text of a stored record document. ok is
// false for collections that are not indexed, such as client documents
// whose payload is binary.
func EntryFor(collection string, id int64, doc []byte) (e Entry, ok bool, err error) {
	e = Entry{Collection: collection, ID: id, Checksum: checksum.Sum(doc)}

	switch collection {
	case records.Events:
		var v records.Event
		if err = json.Unmarshal(doc, &v); err == nil {
			e.Title = join(v.Type, v.Category, v.Vendor)
			e.Body = join(v.Client, v.Subtype, v.PaymentMethod, v.Note)
		}
	case records.Clients:
		var v records.Client
		if err = json.Unmarshal(doc, &v); err == nil {
			e.Title = v.FullName()
			e.Body = join(v.Phone, v.Email, v.Address, v.Notes)
		}
	case records.Invoices:
		var v records.Invoice
		if err = json.Unmarshal(doc, &v); err == nil {
			e.Title = join(v.InvoiceNumber, v.ClientName)
			e.Body = join(itemText(v.Items), v.Notes)
		}
	case records.Warranties:
		var v records.Warranty
		if err = json.Unmarshal(doc, &v); err == nil {
			e.Title = join(v.EquipmentType, v.Brand, v.Model)
			e.Body = join(v.ClientName, v.Vendor, v.SerialNumber, v.Notes)
		}
	case records.Bitacora:
		var v records.BitacoraEntry
		if err = json.Unmarshal(doc, &v); err == nil {
			e.Title = v.Date
			e.Body = join(v.RawText,
				strings.Join(v.Tags, " "),
				strings.Join(v.ClientsMentioned, " "),
				strings.Join(v.Locations, " "),
				strings.Join(v.Equipment, " "),
				strings.Join(v.Highlights, " "))
		}
	case records.Appointments:
		var v records.Appointment
		if err = json.Unmarshal(doc, &v); err == nil {
			e.Title = v.Title
			e.Body = join(v.Date, v.ClientName, v.Address, v.Notes)
		}
	case records.Reminders:
		var v records.Reminder
		if err = json.Unmarshal(doc, &v); err == nil {
			e.Title = v.DueDate
			e.Body = v.Text
		}
	case records.Notes:
		var v records.Note
		if err = json.Unmarshal(doc, &v); err == nil {
			e.Title = v.ClientName
			e.Body = join(v.Content, strings.Join(v.Tags, " "))
		}
	case records.JobTemplates:
		var v records.JobTemplate
		if err = json.Unmarshal(doc, &v); err == nil {
			e.Title = v.Name
			e.Body = join(v.Description, itemText(v.Items))
		}
	case records.ClientPhotos:
		var v records.ClientPhoto
		if err = json.Unmarshal(doc, &v); err == nil {
			e.Title = v.Caption
			e.Body = join(v.ClientName, v.Category)
		}
	case records.QuickQuotes:
		var v records.QuickQuote
		if err = json.Unmarshal(doc, &v); err == nil {
			e.Title = v.Description
			e.Body = join(v.ClientName, itemText(v.Items))
		}
	default:
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("index: decode %s/%d: %w", collection, id, err)
	}
	return e, true, nil
}

func itemText(items []records.LineItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, it.Description)
	}
	return join(parts...)
}

func join(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
