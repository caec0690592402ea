package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bizledger/bizledger/internal/costing"
	"github.com/bizledger/bizledger/internal/ledger"
	"github.com/bizledger/bizledger/internal/recon"
	"github.com/bizledger/bizledger/internal/sequence"
	"github.com/bizledger/bizledger/internal/shared"
	"github.com/bizledger/bizledger/internal/tax"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, orgID int64, id uuid.UUID) (Invoice, error)
	ListInvoices(ctx context.Context, orgID int64, limit int) ([]Invoice, error)
}

// TxRepository joins invoice persistence with the engines' transactional
// repositories so issuing a document is one all-or-nothing unit of work.
type TxRepository interface {
	Ledger() ledger.TxRepository
	Costing() costing.TxRepository
	Recon() recon.TxRepository

	OrgTaxProfile(ctx context.Context, orgID int64) (tax.Profile, error)
	GetCustomer(ctx context.Context, orgID, customerID int64) (Customer, error)
	InsertInvoice(ctx context.Context, inv Invoice) error
	InsertInvoiceLines(ctx context.Context, invoiceID uuid.UUID, lines []InvoiceLine) ([]InvoiceLine, error)
	GetInvoiceForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (Invoice, error)
	MarkInvoiceVoid(ctx context.Context, id uuid.UUID, voidEntryID int64, voidedAt time.Time) error
}

// AuditPort records invoicing events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort invalidates cached reports after successful postings.
type CachePort interface {
	Bump(ctx context.Context) error
}

// Service orchestrates invoice issue and void across the engines. Every
// mutation runs sequence allocation, tax computation, FIFO consumption,
// ledger posting, and the subledger append in a single transaction.
type Service struct {
	repo     RepositoryPort
	ledger   *ledger.Service
	costing  *costing.Service
	recon    *recon.Service
	seq      *sequence.Service
	audit    AuditPort
	cache    CachePort
	accounts AccountCodes
	now      func() time.Time
}

// NewService wires the orchestrator.
func NewService(repo RepositoryPort, ledgerSvc *ledger.Service, costingSvc *costing.Service, reconSvc *recon.Service, seq *sequence.Service, audit AuditPort, accounts AccountCodes) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledgerSvc,
		costing:  costingSvc,
		recon:    reconSvc,
		seq:      seq,
		audit:    audit,
		accounts: accounts,
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithCache attaches a report cache to invalidate after commits.
func (s *Service) WithCache(cache CachePort) {
	s.cache = cache
}

// IssueInvoice numbers, taxes, costs, posts, and records a new invoice.
// Any failing step rolls the whole document back.
func (s *Service) IssueInvoice(ctx context.Context, input IssueInput) (Invoice, error) {
	if err := input.Validate(); err != nil {
		return Invoice{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}

	var result Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := s.issueTx(ctx, tx, input)
		if err != nil {
			return err
		}
		result = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.afterCommit(ctx, result, "invoice.issue")
	return result, nil
}

func (s *Service) issueTx(ctx context.Context, tx TxRepository, input IssueInput) (Invoice, error) {
	now := s.now().UTC()
	date := input.Date
	if date.IsZero() {
		date = now
	}

	customer, err := tx.GetCustomer(ctx, input.OrgID, input.CustomerID)
	if err != nil {
		return Invoice{}, err
	}
	profile, err := tx.OrgTaxProfile(ctx, input.OrgID)
	if err != nil {
		return Invoice{}, err
	}

	number, err := s.seq.Next(ctx, tx.Ledger().Sequences(), input.OrgID, sequence.SeriesInvoice)
	if err != nil {
		return Invoice{}, err
	}

	taxLines := make([]tax.LineInput, 0, len(input.Lines))
	for _, line := range input.Lines {
		amount := decimal.NewFromFloat(line.Quantity).Mul(decimal.NewFromFloat(line.UnitPrice)).Round(2)
		taxLines = append(taxLines, tax.LineInput{
			TaxableAmount: amount,
			Rate:          decimal.NewFromFloat(line.TaxRate),
		})
	}
	docTax, err := tax.Compute(profile, taxLines, tax.Counterparty{
		RegistrationID: customer.RegistrationID,
		Region:         customer.Region,
	})
	if err != nil {
		return Invoice{}, err
	}

	invoiceID := uuid.New()
	inv := Invoice{
		ID:         invoiceID,
		OrgID:      input.OrgID,
		Number:     number,
		CustomerID: input.CustomerID,
		Date:       date,
		Status:     StatusIssued,
		CreatedAt:  now,
	}
	lines := make([]InvoiceLine, 0, len(input.Lines))
	for i, line := range input.Lines {
		amount, _ := taxLines[i].TaxableAmount.Float64()
		lineTax, _ := docTax.Lines[i].Total.Float64()
		lines = append(lines, InvoiceLine{
			InvoiceID:   invoiceID,
			Description: line.Description,
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TaxRate:     line.TaxRate,
			Amount:      amount,
			TaxAmount:   lineTax,
		})
		inv.Subtotal += amount
	}
	inv.TaxTotal, _ = docTax.TotalTax.Float64()
	inv.GrandTotal = inv.Subtotal + inv.TaxTotal

	// FIFO consumption for lot-tracked lines; service lines carry none.
	for _, line := range input.Lines {
		if line.ProductID == nil {
			continue
		}
		res, err := s.costing.ConsumeTx(ctx, tx.Costing(), costing.ConsumeInput{
			OrgID:     input.OrgID,
			ProductID: *line.ProductID,
			Quantity:  line.Quantity,
			AsOf:      date,
			RefKind:   string(ledger.SourceKindInvoice),
			RefID:     invoiceID,
		})
		if err != nil {
			return Invoice{}, err
		}
		inv.CostTotal += res.TotalCost
	}

	entryLines, err := s.buildEntryLines(ctx, tx, inv, docTax)
	if err != nil {
		return Invoice{}, err
	}
	entry, err := s.ledger.CreateEntryTx(ctx, tx.Ledger(), ledger.EntryInput{
		OrgID:       input.OrgID,
		Date:        date,
		Description: fmt.Sprintf("Invoice %s", number),
		Status:      ledger.EntryStatusPosted,
		Source:      &ledger.SourceRef{Kind: ledger.SourceKindInvoice, ID: invoiceID},
		Lines:       entryLines,
	})
	if err != nil {
		return Invoice{}, err
	}
	inv.EntryID = entry.ID

	if _, err := s.recon.AppendTransactionTx(ctx, tx.Recon(), recon.Transaction{
		OrgID:          input.OrgID,
		CounterpartyID: input.CustomerID,
		Kind:           recon.TxnKindSale,
		Date:           date,
		Amount:         inv.GrandTotal,
	}); err != nil {
		return Invoice{}, err
	}

	if err := tx.InsertInvoice(ctx, inv); err != nil {
		return Invoice{}, err
	}
	saved, err := tx.InsertInvoiceLines(ctx, invoiceID, lines)
	if err != nil {
		return Invoice{}, err
	}
	inv.Lines = saved
	return inv, nil
}

// buildEntryLines maps the document to its balanced posting: receivable
// against revenue and tax payable, plus cost of goods against inventory
// when stock was consumed.
func (s *Service) buildEntryLines(ctx context.Context, tx TxRepository, inv Invoice, docTax tax.DocumentTax) ([]ledger.LineInput, error) {
	resolve := func(code string) (int64, error) {
		account, err := tx.Ledger().GetAccountByCode(ctx, inv.OrgID, code)
		if err != nil {
			return 0, fmt.Errorf("invoicing: resolve account %s: %w", code, err)
		}
		return account.ID, nil
	}

	receivable, err := resolve(s.accounts.Receivable)
	if err != nil {
		return nil, err
	}
	revenue, err := resolve(s.accounts.Revenue)
	if err != nil {
		return nil, err
	}

	lines := []ledger.LineInput{
		{AccountID: receivable, Debit: inv.GrandTotal, Description: "Receivable"},
		{AccountID: revenue, Credit: inv.Subtotal, Description: "Revenue"},
	}

	central, _ := docTax.TotalCentral.Float64()
	state, _ := docTax.TotalState.Float64()
	integrated, _ := docTax.TotalIntegrated.Float64()
	taxParts := []struct {
		code   string
		amount float64
		label  string
	}{
		{s.accounts.TaxCentral, central, "Central tax payable"},
		{s.accounts.TaxState, state, "State tax payable"},
		{s.accounts.TaxIntegrated, integrated, "Integrated tax payable"},
	}
	for _, part := range taxParts {
		if part.amount <= 0 {
			continue
		}
		id, err := resolve(part.code)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ledger.LineInput{AccountID: id, Credit: part.amount, Description: part.label})
	}

	if inv.CostTotal > 0 {
		cogs, err := resolve(s.accounts.COGS)
		if err != nil {
			return nil, err
		}
		inventory, err := resolve(s.accounts.Inventory)
		if err != nil {
			return nil, err
		}
		lines = append(lines,
			ledger.LineInput{AccountID: cogs, Debit: inv.CostTotal, Description: "Cost of goods sold"},
			ledger.LineInput{AccountID: inventory, Credit: inv.CostTotal, Description: "Inventory"},
		)
	}
	return lines, nil
}

// VoidInvoice voids the invoice: reversal entry, stock restoration, and a
// credit-note subledger adjustment, all in one transaction.
func (s *Service) VoidInvoice(ctx context.Context, orgID int64, invoiceID uuid.UUID) (Invoice, error) {
	var result Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != StatusIssued {
			return ErrNotIssued
		}

		reversal, err := s.ledger.VoidEntryTx(ctx, tx.Ledger(), orgID, inv.EntryID)
		if err != nil {
			return err
		}
		if err := s.costing.RestoreTx(ctx, tx.Costing(), string(ledger.SourceKindInvoice), invoiceID.String()); err != nil {
			return err
		}
		if _, err := s.recon.AppendTransactionTx(ctx, tx.Recon(), recon.Transaction{
			OrgID:          orgID,
			CounterpartyID: inv.CustomerID,
			Kind:           recon.TxnKindCreditNote,
			Date:           s.now().UTC(),
			Amount:         inv.GrandTotal,
		}); err != nil {
			return err
		}

		now := s.now().UTC()
		if err := tx.MarkInvoiceVoid(ctx, invoiceID, reversal.ID, now); err != nil {
			return err
		}
		inv.Status = StatusVoid
		inv.VoidEntryID = &reversal.ID
		inv.VoidedAt = &now
		result = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.afterCommit(ctx, result, "invoice.void")
	return result, nil
}

// GetInvoice loads a single invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, orgID int64, id uuid.UUID) (Invoice, error) {
	return s.repo.GetInvoice(ctx, orgID, id)
}

// ListInvoices returns recent invoices, newest first.
func (s *Service) ListInvoices(ctx context.Context, orgID int64, limit int) ([]Invoice, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListInvoices(ctx, orgID, limit)
}

func (s *Service) afterCommit(ctx context.Context, inv Invoice, action string) {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OrgID:    inv.OrgID,
			Action:   action,
			Entity:   "invoice",
			EntityID: inv.ID.String(),
			Meta:     map[string]any{"number": inv.Number, "grand_total": inv.GrandTotal},
			At:       s.now().UTC(),
		})
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}
