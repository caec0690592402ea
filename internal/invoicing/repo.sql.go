package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizledger/bizledger/internal/costing"
	"github.com/bizledger/bizledger/internal/ledger"
	"github.com/bizledger/bizledger/internal/recon"
	"github.com/bizledger/bizledger/internal/shared"
	"github.com/bizledger/bizledger/internal/tax"
)

// Repository provides PostgreSQL backed persistence for invoices and exposes
// the other engines' repositories bound to the same transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction shared by every
// engine the invoice touches.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepo{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *txRepo) Ledger() ledger.TxRepository   { return ledger.Bind(r.tx) }
func (r *txRepo) Costing() costing.TxRepository { return costing.Bind(r.tx) }
func (r *txRepo) Recon() recon.TxRepository     { return recon.Bind(r.tx) }

func (r *txRepo) OrgTaxProfile(ctx context.Context, orgID int64) (tax.Profile, error) {
	var p tax.Profile
	err := r.tx.QueryRow(ctx, `SELECT tax_registration_id, tax_region, tax_scheme_enabled
FROM organizations WHERE id = $1`, orgID).Scan(&p.RegistrationID, &p.Region, &p.SchemeEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return tax.Profile{}, fmt.Errorf("invoicing: organization %d: %w", orgID, shared.ErrNotFound)
	}
	if err != nil {
		return tax.Profile{}, err
	}
	return p, nil
}

func (r *txRepo) GetCustomer(ctx context.Context, orgID, customerID int64) (Customer, error) {
	var c Customer
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, name, COALESCE(region, ''), COALESCE(registration_id, '')
FROM counterparties WHERE org_id = $1 AND id = $2 AND kind = $3`,
		orgID, customerID, recon.CounterpartyCustomer).
		Scan(&c.ID, &c.OrgID, &c.Name, &c.Region, &c.RegistrationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("invoicing: customer %d: %w", customerID, shared.ErrNotFound)
	}
	if err != nil {
		return Customer{}, err
	}
	return c, nil
}

func (r *txRepo) InsertInvoice(ctx context.Context, inv Invoice) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO invoices
(id, org_id, number, customer_id, invoice_date, status, subtotal, tax_total, grand_total, cost_total, entry_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inv.ID, inv.OrgID, inv.Number, inv.CustomerID, inv.Date, inv.Status,
		inv.Subtotal, inv.TaxTotal, inv.GrandTotal, inv.CostTotal, inv.EntryID, inv.CreatedAt)
	return err
}

func (r *txRepo) InsertInvoiceLines(ctx context.Context, invoiceID uuid.UUID, lines []InvoiceLine) ([]InvoiceLine, error) {
	out := make([]InvoiceLine, 0, len(lines))
	for _, line := range lines {
		var id int64
		err := r.tx.QueryRow(ctx, `INSERT INTO invoice_lines
(invoice_id, description, product_id, quantity, unit_price, tax_rate, amount, tax_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			invoiceID, line.Description, line.ProductID, line.Quantity, line.UnitPrice,
			line.TaxRate, line.Amount, line.TaxAmount).Scan(&id)
		if err != nil {
			return nil, err
		}
		line.ID = id
		line.InvoiceID = invoiceID
		out = append(out, line)
	}
	return out, nil
}

const invoiceColumns = `id, org_id, number, customer_id, invoice_date, status, subtotal, tax_total, grand_total, cost_total, entry_id, void_entry_id, created_at, voided_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.Number, &inv.CustomerID, &inv.Date, &inv.Status,
		&inv.Subtotal, &inv.TaxTotal, &inv.GrandTotal, &inv.CostTotal,
		&inv.EntryID, &inv.VoidEntryID, &inv.CreatedAt, &inv.VoidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepo) GetInvoiceForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE org_id = $1 AND id = $2 FOR UPDATE`, orgID, id))
}

func (r *txRepo) MarkInvoiceVoid(ctx context.Context, id uuid.UUID, voidEntryID int64, voidedAt time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET status = $2, void_entry_id = $3, voided_at = $4
WHERE id = $1 AND status = $5`, id, StatusVoid, voidEntryID, voidedAt, StatusIssued)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotIssued
	}
	return nil
}

// GetInvoice loads a single invoice with its lines outside a transaction.
func (r *Repository) GetInvoice(ctx context.Context, orgID int64, id uuid.UUID) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE org_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		return Invoice{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, description, product_id, quantity, unit_price, tax_rate, amount, tax_amount
FROM invoice_lines WHERE invoice_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.Description, &line.ProductID,
			&line.Quantity, &line.UnitPrice, &line.TaxRate, &line.Amount, &line.TaxAmount); err != nil {
			return Invoice{}, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	return inv, rows.Err()
}

// ListInvoices returns recent invoices without lines, newest first.
func (r *Repository) ListInvoices(ctx context.Context, orgID int64, limit int) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE org_id = $1 ORDER BY created_at DESC, number DESC LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
