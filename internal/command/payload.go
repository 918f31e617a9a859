package command

import (
	"errors"
	"math"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Payload is the typed body of one command. Validate reports missing or
// invalid fields as ozzo validation.Errors keyed by JSON field name.
type Payload interface {
	Tag() Tag
	Validate() error
}

// normalizer is implemented by payloads that fold aliases into their
// canonical fields right after decoding.
type normalizer interface {
	normalize()
}

func newPayload(tag Tag) Payload {
	switch tag {
	case SaveEvent:
		return &EventPayload{}
	case SaveClient:
		return &ClientPayload{}
	case SaveNote:
		return &NotePayload{}
	case SaveAppointment:
		return &AppointmentPayload{}
	case SaveReminder:
		return &ReminderPayload{}
	case SaveInvoice:
		return &InvoicePayload{}
	case SavePhoto:
		return &PhotoPayload{}
	case SaveBitacora:
		return &BitacoraPayload{}
	case SaveWarranty:
		return &WarrantyPayload{}
	}
	return nil
}

const dateLayout = "2006-01-02"

var (
	isDate         = validation.Date(dateLayout).Error("must be a date formatted as YYYY-MM-DD")
	nonNegative    = validation.By(func(v any) error { return checkNumber(v, false) })
	positive       = validation.By(func(v any) error { return checkNumber(v, true) })
	errNegative    = errors.New("must not be negative")
	errNotPositive = errors.New("must be greater than zero")
	errNotFinite   = errors.New("must be a finite number")
)

func checkNumber(v any, strict bool) error {
	n, ok := v.(*Number)
	if !ok || n == nil {
		return nil
	}
	switch f := float64(*n); {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return errNotFinite
	case strict && *n <= 0:
		return errNotPositive
	case *n < 0:
		return errNegative
	}
	return nil
}

// EventPayload is the body of SAVE_EVENT.
type EventPayload struct {
	Type          string  `json:"type"`
	Amount        *Number `json:"amount"`
	Category      string  `json:"category"`
	Status        string  `json:"status"`
	Subtype       string  `json:"subtype"`
	PaymentMethod string  `json:"payment_method"`
	Vendor        string  `json:"vendor"`
	Client        string  `json:"client"`
	ClientID      *Number `json:"client_id"`
	VehicleID     *Number `json:"vehicle_id"`
	EmployeeID    *Number `json:"employee_id"`
	JobID         *Number `json:"job_id"`
	Note          string  `json:"note"`
	Date          string  `json:"date"`
	Timestamp     *Number `json:"timestamp"`
	ReceiptPhoto  string  `json:"receipt_photo"`
	ReceiptPhotos Strings `json:"receipt_photos"`
	ExpenseType   string  `json:"expense_type"`
}

func (*EventPayload) Tag() Tag { return SaveEvent }

func (p *EventPayload) normalize() {
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	p.Status = strings.ToLower(strings.TrimSpace(p.Status))
	p.ExpenseType = strings.ToLower(strings.TrimSpace(p.ExpenseType))
	if p.ReceiptPhoto != "" {
		p.ReceiptPhotos = append(Strings{p.ReceiptPhoto}, p.ReceiptPhotos...)
		p.ReceiptPhoto = ""
	}
}

func (p *EventPayload) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Type, validation.Required, validation.In("expense", "income")),
		validation.Field(&p.Amount, validation.NotNil, nonNegative),
		validation.Field(&p.Category, validation.Required),
		validation.Field(&p.Status, validation.In("pending", "completed")),
		validation.Field(&p.ExpenseType, validation.In("business", "personal")),
		validation.Field(&p.Date, isDate),
	)
}

// ClientPayload is the body of SAVE_CLIENT. A single "name" is split into
// first and last name when first_name is absent.
type ClientPayload struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	Type      string `json:"type"`
	Notes     string `json:"notes"`
}

func (*ClientPayload) Tag() Tag { return SaveClient }

func (p *ClientPayload) normalize() {
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	if strings.TrimSpace(p.FirstName) != "" || strings.TrimSpace(p.Name) == "" {
		return
	}
	parts := strings.Fields(p.Name)
	p.FirstName = parts[0]
	if p.LastName == "" && len(parts) > 1 {
		p.LastName = strings.Join(parts[1:], " ")
	}
}

func (p *ClientPayload) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.FirstName, validation.Required),
		validation.Field(&p.Type, validation.In("residential", "commercial")),
	)
}

// NotePayload is the body of SAVE_NOTE.
type NotePayload struct {
	Content    string  `json:"content"`
	Text       string  `json:"text"`
	ClientID   *Number `json:"client_id"`
	ClientName string  `json:"client_name"`
	Tags       Strings `json:"tags"`
}

func (*NotePayload) Tag() Tag { return SaveNote }

func (p *NotePayload) normalize() {
	if p.Content == "" {
		p.Content = p.Text
	}
	p.Text = ""
}

func (p *NotePayload) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Content, validation.Required),
	)
}

// AppointmentPayload is the body of SAVE_APPOINTMENT.
type AppointmentPayload struct {
	Title      string  `json:"title"`
	Date       string  `json:"date"`
	Time       string  `json:"time"`
	ClientName string  `json:"client_name"`
	ClientID   *Number `json:"client_id"`
	Address    string  `json:"address"`
	Notes      string  `json:"notes"`
}

func (*AppointmentPayload) Tag() Tag { return SaveAppointment }

func (p *AppointmentPayload) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Title, validation.Required),
		validation.Field(&p.Date, validation.Required, isDate),
		validation.Field(&p.Time, validation.Date("15:04").Error("must be a time formatted as HH:MM")),
	)
}

// ReminderPayload is the body of SAVE_REMINDER.
type ReminderPayload struct {
	Text     string `json:"text"`
	DueDate  string `json:"due_date"`
	Priority string `json:"priority"`
}

func (*ReminderPayload) Tag() Tag { return SaveReminder }

func (p *ReminderPayload) normalize() {
	p.Priority = strings.ToLower(strings.TrimSpace(p.Priority))
}

func (p *ReminderPayload) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Text, validation.Required),
		validation.Field(&p.DueDate, validation.Required, isDate),
		validation.Field(&p.Priority, validation.In("low", "normal", "high")),
	)
}

// ItemPayload is one line of SAVE_INVOICE. Quantity defaults to 1.
type ItemPayload struct {
	Description string  `json:"description"`
	Quantity    *Number `json:"quantity"`
	UnitPrice   *Number `json:"unit_price"`
}

func (it ItemPayload) Validate() error {
	return validation.ValidateStruct(&it,
		validation.Field(&it.Description, validation.Required),
		validation.Field(&it.Quantity, positive),
		validation.Field(&it.UnitPrice, validation.NotNil, nonNegative),
	)
}

// InvoicePayload is the body of SAVE_INVOICE; type "quote" issues a quote.
type InvoicePayload struct {
	Type           string        `json:"type"`
	ClientName     string        `json:"client_name"`
	ClientID       *Number       `json:"client_id"`
	Items          []ItemPayload `json:"items"`
	TaxRate        *Number       `json:"tax_rate"`
	Status         string        `json:"status"`
	IssueDate      string        `json:"issue_date"`
	DueDate        string        `json:"due_date"`
	ExpirationDate string        `json:"expiration_date"`
	Notes          string        `json:"notes"`
}

func (*InvoicePayload) Tag() Tag { return SaveInvoice }

func (p *InvoicePayload) normalize() {
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	p.Status = strings.ToLower(strings.TrimSpace(p.Status))
	for i := range p.Items {
		if p.Items[i].Quantity == nil {
			one := Number(1)
			p.Items[i].Quantity = &one
		}
	}
}

func (p *InvoicePayload) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Type, validation.In("invoice", "quote")),
		validation.Field(&p.ClientName, validation.Required),
		validation.Field(&p.Items, validation.Required),
		validation.Field(&p.TaxRate, nonNegative),
		validation.Field(&p.Status, validation.In("draft", "sent", "paid", "overdue", "cancelled")),
		validation.Field(&p.IssueDate, isDate),
		validation.Field(&p.DueDate, isDate),
		validation.Field(&p.ExpirationDate, isDate),
	)
}

// PhotoPayload is the body of SAVE_PHOTO. Receipts are never separately
// photo-tagged: they travel inline on SAVE_EVENT.
type PhotoPayload struct {
	ClientID   *Number `json:"client_id"`
	ClientName string  `json:"client_name"`
	JobID      *Number `json:"job_id"`
	Image      string  `json:"image"`
	Caption    string  `json:"caption"`
	Category   string  `json:"category"`
}

func (*PhotoPayload) Tag() Tag { return SavePhoto }

func (p *PhotoPayload) normalize() {
	p.Category = strings.ToLower(strings.TrimSpace(p.Category))
}

var errReceiptPhoto = errors.New("receipts are never separately photo-tagged; attach them to SAVE_EVENT")

func (p *PhotoPayload) Validate() error {
	hasContext := p.ClientID.Int() > 0 || strings.TrimSpace(p.ClientName) != "" || p.JobID.Int() > 0
	return validation.ValidateStruct(p,
		validation.Field(&p.ClientName, validation.When(!hasContext,
			validation.Required.Error("client_id, client_name or job_id is required"))),
		validation.Field(&p.Image, validation.Required),
		validation.Field(&p.Category, validation.By(func(any) error {
			if p.Category == "receipt" {
				return errReceiptPhoto
			}
			return nil
		})),
	)
}

// BitacoraPayload is the body of SAVE_BITACORA.
type BitacoraPayload struct {
	Date             string  `json:"date"`
	RawText          string  `json:"raw_text"`
	Tags             Strings `json:"tags"`
	ClientsMentioned Strings `json:"clients_mentioned"`
	Locations        Strings `json:"locations"`
	Equipment        Strings `json:"equipment"`
	Highlights       Strings `json:"highlights"`
	JobsCount        *Number `json:"jobs_count"`
	HoursEstimated   *Number `json:"hours_estimated"`
	HadEmergency     Flag    `json:"had_emergency"`
}

func (*BitacoraPayload) Tag() Tag { return SaveBitacora }

func (p *BitacoraPayload) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Date, validation.Required, isDate),
		validation.Field(&p.JobsCount, nonNegative),
		validation.Field(&p.HoursEstimated, nonNegative),
	)
}

// WarrantyPayload is the body of SAVE_WARRANTY. purchase_date defaults
// to today when absent.
type WarrantyPayload struct {
	EquipmentType  string  `json:"equipment_type"`
	Brand          string  `json:"brand"`
	Model          string  `json:"model"`
	SerialNumber   string  `json:"serial_number"`
	Vendor         string  `json:"vendor"`
	ClientName     string  `json:"client_name"`
	ClientID       *Number `json:"client_id"`
	PurchaseDate   string  `json:"purchase_date"`
	WarrantyMonths *Number `json:"warranty_months"`
	Notes          string  `json:"notes"`
}

func (*WarrantyPayload) Tag() Tag { return SaveWarranty }

func (p *WarrantyPayload) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.EquipmentType, validation.Required),
		validation.Field(&p.Vendor, validation.Required),
		validation.Field(&p.ClientName, validation.Required),
		validation.Field(&p.WarrantyMonths, validation.NotNil, positive),
		validation.Field(&p.PurchaseDate, isDate),
	)
}
