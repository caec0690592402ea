package invoicing

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus tracks the document lifecycle. Invoices post straight to the
// ledger on issue; corrections go through void, never through edits.
type InvoiceStatus string

const (
	StatusIssued InvoiceStatus = "ISSUED"
	StatusVoid   InvoiceStatus = "VOID"
)

// Invoice is an issued sales document with its ledger back-references.
type Invoice struct {
	ID          uuid.UUID
	OrgID       int64
	Number      string
	CustomerID  int64
	Date        time.Time
	Status      InvoiceStatus
	Subtotal    float64
	TaxTotal    float64
	GrandTotal  float64
	CostTotal   float64
	EntryID     int64
	VoidEntryID *int64
	CreatedAt   time.Time
	VoidedAt    *time.Time
	Lines       []InvoiceLine
}

// InvoiceLine is one sold item or service. ProductID nil means a service
// line that carries no inventory consumption.
type InvoiceLine struct {
	ID          int64
	InvoiceID   uuid.UUID
	Description string
	ProductID   *int64
	Quantity    float64
	UnitPrice   float64
	TaxRate     float64
	Amount      float64
	TaxAmount   float64
}

// Customer is the subledger counterparty snapshot used for tax placement.
type Customer struct {
	ID             int64
	OrgID          int64
	Name           string
	Region         string
	RegistrationID string
}

// LineInput describes one requested invoice line.
type LineInput struct {
	Description string
	ProductID   *int64
	Quantity    float64
	UnitPrice   float64
	TaxRate     float64
}

// IssueInput groups fields required to issue an invoice.
type IssueInput struct {
	OrgID      int64
	CustomerID int64
	Date       time.Time
	Lines      []LineInput
}

// AccountCodes names the system accounts an issued invoice posts against.
type AccountCodes struct {
	Receivable    string
	Revenue       string
	TaxCentral    string
	TaxState      string
	TaxIntegrated string
	COGS          string
	Inventory     string
}

// DefaultAccountCodes matches the seeded chart of accounts.
func DefaultAccountCodes() AccountCodes {
	return AccountCodes{
		Receivable:    "1200",
		Revenue:       "4000",
		TaxCentral:    "2310",
		TaxState:      "2320",
		TaxIntegrated: "2330",
		COGS:          "5000",
		Inventory:     "1400",
	}
}

var (
	// ErrNotIssued rejects voiding an invoice that is not in ISSUED state.
	ErrNotIssued = errors.New("invoicing: invoice is not issued")

	// ErrInvoiceNotFound indicates an unknown invoice id for the org.
	ErrInvoiceNotFound = errors.New("invoicing: invoice not found")

	// ErrNoLines rejects an invoice without at least one line.
	ErrNoLines = errors.New("invoicing: invoice requires at least one line")

	// ErrInvalidLine rejects non-positive quantities or negative prices.
	ErrInvalidLine = errors.New("invoicing: line quantity must be positive and price non-negative")
)

// Validate rejects malformed input before any mutation.
func (in IssueInput) Validate() error {
	if in.OrgID == 0 {
		return errors.New("invoicing: organization required")
	}
	if in.CustomerID == 0 {
		return errors.New("invoicing: customer required")
	}
	if len(in.Lines) == 0 {
		return ErrNoLines
	}
	for _, line := range in.Lines {
		if line.Quantity <= 0 || line.UnitPrice < 0 || line.TaxRate < 0 {
			return ErrInvalidLine
		}
	}
	return nil
}
