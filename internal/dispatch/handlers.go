package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/bitacora/internal/apperr"
	"github.com/starford/bitacora/internal/command"
	"github.com/starford/bitacora/internal/records"
	"github.com/starford/bitacora/internal/store"
)

const (
	invoiceDueDays    = 30
	quoteValidDays    = 15
	maxNumberAttempts = 3
)

func (d *Dispatcher) add(ctx context.Context, coll string, doc any, out *Outcome) error {
	id, err := d.store.Add(ctx, coll, doc)
	if err != nil {
		return err
	}
	out.Collection, out.ID = coll, id
	return nil
}

func (d *Dispatcher) saveEvent(ctx context.Context, p *command.EventPayload, out *Outcome) error {
	now := d.now()
	ev := records.Event{
		Timestamp:     eventTime(p, now),
		Type:          p.Type,
		Status:        orDefault(p.Status, records.StatusCompleted),
		Category:      p.Category,
		Amount:        records.RoundMoney(p.Amount.Float()),
		Subtype:       p.Subtype,
		PaymentMethod: p.PaymentMethod,
		Vendor:        p.Vendor,
		Client:        p.Client,
		ClientID:      p.ClientID.Int(),
		VehicleID:     p.VehicleID.Int(),
		EmployeeID:    p.EmployeeID.Int(),
		JobID:         p.JobID.Int(),
		Note:          p.Note,
		ReceiptPhotos: p.ReceiptPhotos,
		ExpenseType:   p.ExpenseType,
		CreatedAt:     now.UnixMilli(),
	}
	if ev.Type == records.EventExpense && ev.ExpenseType == "" {
		ev.ExpenseType = records.ExpenseBusiness
	}
	return d.add(ctx, records.Events, ev, out)
}

// eventTime prefers an explicit timestamp, then a date at the current
// time of day, then now.
func eventTime(p *command.EventPayload, now time.Time) int64 {
	if ts := p.Timestamp.Int(); ts > 0 {
		return ts
	}
	if p.Date != "" {
		day, err := time.ParseInLocation(records.DateLayout, p.Date, now.Location())
		if err == nil {
			h, m, s := now.Clock()
			return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second).UnixMilli()
		}
	}
	return now.UnixMilli()
}

func (d *Dispatcher) saveClient(ctx context.Context, p *command.ClientPayload, out *Outcome) error {
	ms := d.now().UnixMilli()
	c := records.Client{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Phone:     p.Phone,
		Email:     p.Email,
		Address:   p.Address,
		Type:      orDefault(p.Type, records.ClientResidential),
		Active:    true,
		Notes:     p.Notes,
		CreatedAt: ms,
		UpdatedAt: ms,
	}
	return d.add(ctx, records.Clients, c, out)
}

func (d *Dispatcher) saveNote(ctx context.Context, p *command.NotePayload, out *Outcome) error {
	ms := d.now().UnixMilli()
	n := records.Note{
		Content:    p.Content,
		ClientID:   p.ClientID.Int(),
		ClientName: p.ClientName,
		Tags:       records.Dedupe(p.Tags),
		CreatedAt:  ms,
		UpdatedAt:  ms,
	}
	return d.add(ctx, records.Notes, n, out)
}

func (d *Dispatcher) saveAppointment(ctx context.Context, p *command.AppointmentPayload, out *Outcome) error {
	ms := d.now().UnixMilli()
	a := records.Appointment{
		Title:      p.Title,
		Date:       p.Date,
		Time:       p.Time,
		ClientName: p.ClientName,
		ClientID:   p.ClientID.Int(),
		Address:    p.Address,
		Notes:      p.Notes,
		Status:     records.AppointmentScheduled,
		CreatedAt:  ms,
		UpdatedAt:  ms,
	}
	return d.add(ctx, records.Appointments, a, out)
}

func (d *Dispatcher) saveReminder(ctx context.Context, p *command.ReminderPayload, out *Outcome) error {
	ms := d.now().UnixMilli()
	r := records.Reminder{
		Text:      p.Text,
		DueDate:   p.DueDate,
		Priority:  orDefault(p.Priority, "normal"),
		CreatedAt: ms,
		UpdatedAt: ms,
	}
	return d.add(ctx, records.Reminders, r, out)
}

func (d *Dispatcher) saveInvoice(ctx context.Context, p *command.InvoicePayload, out *Outcome) error {
	now := d.now()
	ms := now.UnixMilli()
	inv := records.Invoice{
		Type:       orDefault(p.Type, records.InvoiceTypeInvoice),
		ClientName: p.ClientName,
		ClientID:   p.ClientID.Int(),
		TaxRate:    p.TaxRate.Float(),
		Status:     orDefault(p.Status, records.InvoiceDraft),
		IssueDate:  orDefault(p.IssueDate, records.Today(now)),
		Notes:      p.Notes,
		CreatedAt:  ms,
		UpdatedAt:  ms,
	}
	for _, it := range p.Items {
		inv.Items = append(inv.Items, records.LineItem{
			Description: it.Description,
			Quantity:    it.Quantity.Float(),
			UnitPrice:   it.UnitPrice.Float(),
		})
	}
	if inv.Type == records.InvoiceTypeQuote {
		inv.ExpirationDate = orDefault(p.ExpirationDate, records.AddDays(inv.IssueDate, quoteValidDays))
	} else {
		inv.DueDate = orDefault(p.DueDate, records.AddDays(inv.IssueDate, invoiceDueDays))
	}
	inv.Recompute()

	year := now.Year()
	if t, err := time.Parse(records.DateLayout, inv.IssueDate); err == nil {
		year = t.Year()
	}
	// The unique index on invoice_number settles races with direct edits.
	var err error
	for range maxNumberAttempts {
		inv.InvoiceNumber, err = d.nextInvoiceNumber(ctx, inv.Type, year)
		if err != nil {
			return err
		}
		err = d.add(ctx, records.Invoices, inv, out)
		if !errors.Is(err, apperr.ErrAlreadyExists) {
			break
		}
	}
	if err != nil {
		return err
	}
	out.Number = inv.InvoiceNumber
	return nil
}

// nextInvoiceNumber returns the number after the highest one issued for
// the type's prefix in year.
func (d *Dispatcher) nextInvoiceNumber(ctx context.Context, typ string, year int) (string, error) {
	prefix := fmt.Sprintf("%s-%d-", records.InvoicePrefix(typ), year)
	maxSeq := 0
	q := store.Query{Index: "invoice_number", From: prefix, To: prefix + "~"}
	for rec, err := range d.store.Query(ctx, records.Invoices, q) {
		if err != nil {
			return "", err
		}
		var inv struct {
			Number string `json:"invoice_number"`
		}
		if rec.Decode(&inv) != nil {
			continue
		}
		if seq := records.ParseInvoiceSeq(inv.Number, typ, year); seq > maxSeq {
			maxSeq = seq
		}
	}
	return records.FormatInvoiceNumber(typ, year, maxSeq+1), nil
}

func (d *Dispatcher) savePhoto(ctx context.Context, p *command.PhotoPayload, out *Outcome) error {
	ms := d.now().UnixMilli()
	ph := records.ClientPhoto{
		ClientID:   p.ClientID.Int(),
		ClientName: p.ClientName,
		JobID:      p.JobID.Int(),
		Image:      p.Image,
		Caption:    p.Caption,
		Category:   p.Category,
		CreatedAt:  ms,
		UpdatedAt:  ms,
	}
	return d.add(ctx, records.ClientPhotos, ph, out)
}

// saveBitacora merges into the entry already stored for the date, or
// creates it. Lookup and write share one transaction, so a second writer
// for the same date waits and then merges.
func (d *Dispatcher) saveBitacora(ctx context.Context, p *command.BitacoraPayload, out *Outcome) error {
	ms := d.now().UnixMilli()
	next := records.BitacoraEntry{
		Date:             p.Date,
		RawText:          p.RawText,
		Tags:             records.Dedupe(p.Tags),
		ClientsMentioned: records.Dedupe(p.ClientsMentioned),
		Locations:        records.Dedupe(p.Locations),
		Equipment:        records.Dedupe(p.Equipment),
		Highlights:       append([]string{}, p.Highlights...),
		JobsCount:        int(p.JobsCount.Int()),
		HoursEstimated:   p.HoursEstimated.Float(),
		HadEmergency:     bool(p.HadEmergency),
		CreatedAt:        ms,
		UpdatedAt:        ms,
	}

	return d.store.InTx(ctx, func(tx *store.Tx) error {
		rec, found, err := tx.First(ctx, records.Bitacora, store.Query{Index: "date", Eq: p.Date})
		if err != nil {
			return err
		}
		if !found {
			id, err := tx.Add(ctx, records.Bitacora, next)
			if err != nil {
				return err
			}
			out.Collection, out.ID = records.Bitacora, id
			return nil
		}

		var existing records.BitacoraEntry
		if err := rec.Decode(&existing); err != nil {
			return &apperr.StorageError{Op: "decode", Collection: records.Bitacora, Err: err}
		}
		fields, err := toFields(records.MergeBitacora(existing, next, ms))
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, records.Bitacora, rec.ID, fields); err != nil {
			return err
		}
		out.Collection, out.ID, out.Merged = records.Bitacora, rec.ID, true
		return nil
	})
}

func (d *Dispatcher) saveWarranty(ctx context.Context, p *command.WarrantyPayload, out *Outcome) error {
	now := d.now()
	ms := now.UnixMilli()
	w := records.Warranty{
		EquipmentType:  p.EquipmentType,
		Brand:          p.Brand,
		Model:          p.Model,
		SerialNumber:   p.SerialNumber,
		Vendor:         p.Vendor,
		ClientName:     p.ClientName,
		ClientID:       p.ClientID.Int(),
		PurchaseDate:   orDefault(p.PurchaseDate, records.Today(now)),
		WarrantyMonths: int(p.WarrantyMonths.Int()),
		Notes:          p.Notes,
		CreatedAt:      ms,
		UpdatedAt:      ms,
	}
	if err := w.Recompute(now); err != nil {
		return &apperr.ValidationError{Tag: string(command.SaveWarranty), Fields: map[string]string{"purchase_date": err.Error()}}
	}
	return d.add(ctx, records.Warranties, w, out)
}

// toFields renders v as a top-level field map for Store.Update.
func toFields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, "id")
	return fields, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
