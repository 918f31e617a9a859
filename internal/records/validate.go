package records

import (
	"encoding/json"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bitacora/internal/apperr"
)

var isDate = validation.Date(DateLayout).Error("must be a date formatted as YYYY-MM-DD")

// Validate validates the event.
func (e *Event) Validate() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.Type, validation.Required, validation.In(EventExpense, EventIncome)),
		validation.Field(&e.Status, validation.Required, validation.In(StatusPending, StatusCompleted)),
		validation.Field(&e.Amount, validation.Min(0.0)),
		validation.Field(&e.ExpenseType, validation.In(ExpenseBusiness, ExpensePersonal)),
	)
}

// Validate validates the client.
func (c *Client) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FirstName, validation.Required),
		validation.Field(&c.Type, validation.In(ClientResidential, ClientCommercial)),
	)
}

// Validate validates the invoice or quote.
func (inv *Invoice) Validate() error {
	return validation.ValidateStruct(inv,
		validation.Field(&inv.Type, validation.Required, validation.In(InvoiceTypeInvoice, InvoiceTypeQuote)),
		validation.Field(&inv.Status, validation.Required,
			validation.In(InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceOverdue, InvoiceCancelled)),
		validation.Field(&inv.InvoiceNumber, validation.Required),
		validation.Field(&inv.TaxRate, validation.Min(0.0)),
		validation.Field(&inv.IssueDate, isDate),
	)
}

// Validate validates the warranty.
func (w *Warranty) Validate() error {
	return validation.ValidateStruct(w,
		validation.Field(&w.EquipmentType, validation.Required),
		validation.Field(&w.Vendor, validation.Required),
		validation.Field(&w.ClientName, validation.Required),
		validation.Field(&w.WarrantyMonths, validation.Required, validation.Min(1)),
		validation.Field(&w.PurchaseDate, validation.Required, isDate),
		validation.Field(&w.Status, validation.Required,
			validation.In(WarrantyActive, WarrantyExpired, WarrantyClaimed, WarrantyVoid)),
	)
}

// Validate validates the work log entry.
func (b *BitacoraEntry) Validate() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.Date, validation.Required, isDate),
		validation.Field(&b.JobsCount, validation.Min(0)),
		validation.Field(&b.HoursEstimated, validation.Min(0.0)),
	)
}

// Validate validates the appointment.
func (a *Appointment) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Date, validation.Required, isDate),
		validation.Field(&a.Status, validation.Required,
			validation.In(AppointmentScheduled, AppointmentCompleted, AppointmentCancelled)),
	)
}

// Check decodes a stored document of coll and validates it against the
// collection's rules. Collections without rules always pass. Failures are
// reported as *apperr.ValidationError keyed by JSON field name.
func Check(coll string, doc json.RawMessage) error {
	var v validation.Validatable
	switch coll {
	case Events:
		v = &Event{}
	case Clients:
		v = &Client{}
	case Invoices:
		v = &Invoice{}
	case Warranties:
		v = &Warranty{}
	case Bitacora:
		v = &BitacoraEntry{}
	case Appointments:
		v = &Appointment{}
	default:
		return nil
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return &apperr.ValidationError{Tag: coll, Fields: map[string]string{"document": err.Error()}}
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	fields := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for name, e := range verrs {
			if e != nil {
				fields[name] = e.Error()
			}
		}
	} else {
		fields["document"] = err.Error()
	}
	return &apperr.ValidationError{Tag: coll, Fields: fields}
}
