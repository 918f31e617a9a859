// Package records defines the documents kept in the record store, the
// schema migration chain that declares their collections, and the pure
// rules (dates, totals, merges) computed over them.
package records

// Collection names.
const (
	Events          = "events"
	Clients         = "clients"
	Invoices        = "invoices"
	Warranties      = "warranties"
	Bitacora        = "bitacora"
	Appointments    = "appointments"
	Reminders       = "reminders"
	Notes           = "notes"
	JobTemplates    = "job_templates"
	ClientPhotos    = "client_photos"
	ClientDocuments = "client_documents"
	QuickQuotes     = "quick_quotes"
)

// Enumerated field values.
const (
	EventExpense = "expense"
	EventIncome  = "income"

	StatusPending   = "pending"
	StatusCompleted = "completed"

	ExpenseBusiness = "business"
	ExpensePersonal = "personal"

	ClientResidential = "residential"
	ClientCommercial  = "commercial"

	InvoiceTypeInvoice = "invoice"
	InvoiceTypeQuote   = "quote"

	InvoiceDraft     = "draft"
	InvoiceSent      = "sent"
	InvoicePaid      = "paid"
	InvoiceOverdue   = "overdue"
	InvoiceCancelled = "cancelled"

	WarrantyActive  = "active"
	WarrantyExpired = "expired"
	WarrantyClaimed = "claimed"
	WarrantyVoid    = "void"

	AppointmentScheduled = "scheduled"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"

	// PhotoCategoryReceipt is refused for client photos: receipts travel
	// inline on events and are never separately photo-tagged.
	PhotoCategoryReceipt = "receipt"
)

// DateLayout is the calendar date format used by every date field.
const DateLayout = "2006-01-02"

// Event is a financial transaction (expense or income).
type Event struct {
	ID            int64    `json:"id,omitempty"`
	Timestamp     int64    `json:"timestamp"`
	Type          string   `json:"type"`
	Status        string   `json:"status"`
	Category      string   `json:"category"`
	Amount        float64  `json:"amount"`
	Subtype       string   `json:"subtype,omitempty"`
	PaymentMethod string   `json:"payment_method,omitempty"`
	Vendor        string   `json:"vendor,omitempty"`
	Client        string   `json:"client,omitempty"`
	ClientID      int64    `json:"client_id,omitempty"`
	VehicleID     int64    `json:"vehicle_id,omitempty"`
	EmployeeID    int64    `json:"employee_id,omitempty"`
	JobID         int64    `json:"job_id,omitempty"`
	Note          string   `json:"note,omitempty"`
	ReceiptPhotos []string `json:"receipt_photos,omitempty"`
	ExpenseType   string   `json:"expense_type,omitempty"`
	CreatedAt     int64    `json:"created_at"`
}

// Client is a customer. Clients are deactivated, never removed.
type Client struct {
	ID        int64  `json:"id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
	Type      string `json:"type"`
	Active    bool   `json:"active"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// FullName joins first and last name.
func (c Client) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// LineItem is one row of an invoice, quote, or template.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// Invoice is an invoice or a quote, depending on Type.
type Invoice struct {
	ID             int64      `json:"id,omitempty"`
	InvoiceNumber  string     `json:"invoice_number"`
	Type           string     `json:"type"`
	ClientName     string     `json:"client_name"`
	ClientID       int64      `json:"client_id,omitempty"`
	Items          []LineItem `json:"items"`
	Subtotal       float64    `json:"subtotal"`
	TaxRate        float64    `json:"tax_rate"`
	TaxAmount      float64    `json:"tax_amount"`
	Total          float64    `json:"total"`
	Status         string     `json:"status"`
	IssueDate      string     `json:"issue_date"`
	DueDate        string     `json:"due_date,omitempty"`
	ExpirationDate string     `json:"expiration_date,omitempty"`
	PaidDate       string     `json:"paid_date,omitempty"`
	PaidMethod     string     `json:"paid_method,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      int64      `json:"created_at"`
	UpdatedAt      int64      `json:"updated_at"`
}

// Warranty tracks equipment coverage sold to a client.
type Warranty struct {
	ID             int64  `json:"id,omitempty"`
	EquipmentType  string `json:"equipment_type"`
	Brand          string `json:"brand,omitempty"`
	Model          string `json:"model,omitempty"`
	SerialNumber   string `json:"serial_number,omitempty"`
	Vendor         string `json:"vendor"`
	ClientName     string `json:"client_name"`
	ClientID       int64  `json:"client_id,omitempty"`
	PurchaseDate   string `json:"purchase_date"`
	WarrantyMonths int    `json:"warranty_months"`
	ExpirationDate string `json:"expiration_date"`
	Status         string `json:"status"`
	Notes          string `json:"notes,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// BitacoraEntry is the work log for one calendar date.
type BitacoraEntry struct {
	ID               int64    `json:"id,omitempty"`
	Date             string   `json:"date"`
	RawText          string   `json:"raw_text"`
	Tags             []string `json:"tags"`
	ClientsMentioned []string `json:"clients_mentioned"`
	Locations        []string `json:"locations"`
	Equipment        []string `json:"equipment"`
	Highlights       []string `json:"highlights"`
	JobsCount        int      `json:"jobs_count"`
	HoursEstimated   float64  `json:"hours_estimated"`
	HadEmergency     bool     `json:"had_emergency"`
	CreatedAt        int64    `json:"created_at"`
	UpdatedAt        int64    `json:"updated_at"`
}

// Appointment is a scheduled visit.
type Appointment struct {
	ID         int64  `json:"id,omitempty"`
	Title      string `json:"title"`
	Date       string `json:"date"`
	Time       string `json:"time,omitempty"`
	ClientName string `json:"client_name,omitempty"`
	ClientID   int64  `json:"client_id,omitempty"`
	Address    string `json:"address,omitempty"`
	Notes      string `json:"notes,omitempty"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// Reminder is a dated to-do.
type Reminder struct {
	ID        int64  `json:"id,omitempty"`
	Text      string `json:"text"`
	DueDate   string `json:"due_date"`
	Priority  string `json:"priority,omitempty"`
	Completed bool   `json:"completed"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Note is a free-form note, optionally tied to a client.
type Note struct {
	ID         int64    `json:"id,omitempty"`
	Content    string   `json:"content"`
	ClientID   int64    `json:"client_id,omitempty"`
	ClientName string   `json:"client_name,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	CreatedAt  int64    `json:"created_at"`
	UpdatedAt  int64    `json:"updated_at"`
}

// JobTemplate is a reusable set of line items.
type JobTemplate struct {
	ID          int64      `json:"id,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Items       []LineItem `json:"items"`
	Active      bool       `json:"active"`
	CreatedAt   int64      `json:"created_at"`
	UpdatedAt   int64      `json:"updated_at"`
}

// ClientPhoto is a job-site photo attached to a client or job.
type ClientPhoto struct {
	ID         int64  `json:"id,omitempty"`
	ClientID   int64  `json:"client_id,omitempty"`
	ClientName string `json:"client_name,omitempty"`
	JobID      int64  `json:"job_id,omitempty"`
	Image      string `json:"image"`
	Caption    string `json:"caption,omitempty"`
	Category   string `json:"category,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// ClientDocument is an uploaded file kept inline.
type ClientDocument struct {
	ID        int64  `json:"id,omitempty"`
	ClientID  int64  `json:"client_id"`
	Name      string `json:"name"`
	MIMEType  string `json:"mime_type,omitempty"`
	Data      string `json:"data"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// QuickQuote is a lightweight estimate not yet promoted to a quote.
type QuickQuote struct {
	ID          int64      `json:"id,omitempty"`
	Description string     `json:"description"`
	ClientName  string     `json:"client_name,omitempty"`
	Items       []LineItem `json:"items,omitempty"`
	Total       float64    `json:"total"`
	CreatedAt   int64      `json:"created_at"`
	UpdatedAt   int64      `json:"updated_at"`
}
