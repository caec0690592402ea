package invoicing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bizledger/bizledger/internal/costing"
	"github.com/bizledger/bizledger/internal/ledger"
	"github.com/bizledger/bizledger/internal/recon"
	"github.com/bizledger/bizledger/internal/sequence"
	"github.com/bizledger/bizledger/internal/shared"
	"github.com/bizledger/bizledger/internal/tax"
)

// world is a single in-memory store backing every engine the orchestrator
// touches, so the tests observe cross-engine effects the way one database
// transaction would.
type world struct {
	accounts    map[int64]*ledger.Account
	entries     map[int64]*ledger.JournalEntry
	seqNumbers  map[string][]string
	nextAccount int64
	nextEntry   int64
	nextLine    int64

	lots            map[int64]*costing.StockLot
	consumptions    map[int64]*costing.Consumption
	nextLot         int64
	nextConsumption int64

	txns     []recon.Transaction
	balances map[int64]float64
	kinds    map[int64]recon.CounterpartyKind
	nextTxn  int64

	invoices  map[uuid.UUID]*Invoice
	profile   tax.Profile
	customers map[int64]Customer
}

func newWorld() *world {
	return &world{
		accounts:     make(map[int64]*ledger.Account),
		entries:      make(map[int64]*ledger.JournalEntry),
		seqNumbers:   make(map[string][]string),
		lots:         make(map[int64]*costing.StockLot),
		consumptions: make(map[int64]*costing.Consumption),
		balances:     make(map[int64]float64),
		kinds:        make(map[int64]recon.CounterpartyKind),
		invoices:     make(map[uuid.UUID]*Invoice),
		customers:    make(map[int64]Customer),
	}
}

func (w *world) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &worldTx{w: w})
}

func (w *world) GetInvoice(ctx context.Context, orgID int64, id uuid.UUID) (Invoice, error) {
	inv, ok := w.invoices[id]
	if !ok || inv.OrgID != orgID {
		return Invoice{}, ErrInvoiceNotFound
	}
	return *inv, nil
}

func (w *world) ListInvoices(ctx context.Context, orgID int64, limit int) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range w.invoices {
		if inv.OrgID == orgID {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type worldTx struct {
	w *world
}

func (t *worldTx) Ledger() ledger.TxRepository   { return &ledgerTx{w: t.w} }
func (t *worldTx) Costing() costing.TxRepository { return &costingTx{w: t.w} }
func (t *worldTx) Recon() recon.TxRepository     { return &reconTx{w: t.w} }

func (t *worldTx) OrgTaxProfile(ctx context.Context, orgID int64) (tax.Profile, error) {
	return t.w.profile, nil
}

func (t *worldTx) GetCustomer(ctx context.Context, orgID, customerID int64) (Customer, error) {
	c, ok := t.w.customers[customerID]
	if !ok {
		return Customer{}, fmt.Errorf("invoicing: customer %d: %w", customerID, shared.ErrNotFound)
	}
	return c, nil
}

func (t *worldTx) InsertInvoice(ctx context.Context, inv Invoice) error {
	copy := inv
	t.w.invoices[inv.ID] = &copy
	return nil
}

func (t *worldTx) InsertInvoiceLines(ctx context.Context, invoiceID uuid.UUID, lines []InvoiceLine) ([]InvoiceLine, error) {
	inv, ok := t.w.invoices[invoiceID]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	out := make([]InvoiceLine, 0, len(lines))
	for i, line := range lines {
		line.ID = int64(i + 1)
		line.InvoiceID = invoiceID
		out = append(out, line)
	}
	inv.Lines = out
	return out, nil
}

func (t *worldTx) GetInvoiceForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (Invoice, error) {
	return t.w.GetInvoice(ctx, orgID, id)
}

func (t *worldTx) MarkInvoiceVoid(ctx context.Context, id uuid.UUID, voidEntryID int64, voidedAt time.Time) error {
	inv, ok := t.w.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	if inv.Status != StatusIssued {
		return ErrNotIssued
	}
	inv.Status = StatusVoid
	inv.VoidEntryID = &voidEntryID
	at := voidedAt
	inv.VoidedAt = &at
	return nil
}

// ledgerTx adapts the world to the ledger's transactional repository.
type ledgerTx struct {
	w *world
}

type worldSeqStore struct {
	w *world
}

func (s *worldSeqStore) LastNumber(ctx context.Context, orgID int64, seriesKey string) (string, error) {
	issued := s.w.seqNumbers[fmt.Sprintf("%d:%s", orgID, seriesKey)]
	if len(issued) == 0 {
		return "", shared.ErrNotFound
	}
	return issued[len(issued)-1], nil
}

func (s *worldSeqStore) Record(ctx context.Context, orgID int64, seriesKey, number string, at time.Time) error {
	key := fmt.Sprintf("%d:%s", orgID, seriesKey)
	s.w.seqNumbers[key] = append(s.w.seqNumbers[key], number)
	return nil
}

func (tx *ledgerTx) Sequences() sequence.Store {
	return &worldSeqStore{w: tx.w}
}

func (tx *ledgerTx) GetAccount(ctx context.Context, orgID, accountID int64) (ledger.Account, error) {
	a, ok := tx.w.accounts[accountID]
	if !ok || a.OrgID != orgID {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return *a, nil
}

func (tx *ledgerTx) GetAccountByCode(ctx context.Context, orgID int64, code string) (ledger.Account, error) {
	for _, a := range tx.w.accounts {
		if a.OrgID == orgID && a.Code == code {
			return *a, nil
		}
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

func (tx *ledgerTx) ListAccounts(ctx context.Context, orgID int64) ([]ledger.Account, error) {
	var out []ledger.Account
	for _, a := range tx.w.accounts {
		if a.OrgID == orgID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (tx *ledgerTx) InsertAccount(ctx context.Context, a ledger.Account) (int64, error) {
	tx.w.nextAccount++
	a.ID = tx.w.nextAccount
	tx.w.accounts[a.ID] = &a
	return a.ID, nil
}

func (tx *ledgerTx) UpdateAccount(ctx context.Context, a ledger.Account) error {
	current, ok := tx.w.accounts[a.ID]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	*current = a
	return nil
}

func (tx *ledgerTx) DeleteAccount(ctx context.Context, orgID, accountID int64) error {
	delete(tx.w.accounts, accountID)
	return nil
}

func (tx *ledgerTx) CountChildren(ctx context.Context, orgID, accountID int64) (int64, error) {
	return 0, nil
}

func (tx *ledgerTx) CountAccountLines(ctx context.Context, accountID int64) (int64, error) {
	return 0, nil
}

func (tx *ledgerTx) InsertEntry(ctx context.Context, e ledger.JournalEntry) (int64, error) {
	tx.w.nextEntry++
	e.ID = tx.w.nextEntry
	tx.w.entries[e.ID] = &e
	return e.ID, nil
}

func (tx *ledgerTx) InsertLines(ctx context.Context, entryID int64, lines []ledger.LineInput) ([]ledger.JournalLine, error) {
	entry, ok := tx.w.entries[entryID]
	if !ok {
		return nil, ledger.ErrEntryNotFound
	}
	var out []ledger.JournalLine
	for _, line := range lines {
		tx.w.nextLine++
		jl := ledger.JournalLine{
			ID:          tx.w.nextLine,
			EntryID:     entryID,
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
		}
		entry.Lines = append(entry.Lines, jl)
		out = append(out, jl)
	}
	return out, nil
}

func (tx *ledgerTx) GetEntryForUpdate(ctx context.Context, orgID, entryID int64) (ledger.JournalEntry, error) {
	e, ok := tx.w.entries[entryID]
	if !ok || e.OrgID != orgID {
		return ledger.JournalEntry{}, ledger.ErrEntryNotFound
	}
	copy := *e
	copy.Lines = append([]ledger.JournalLine(nil), e.Lines...)
	return copy, nil
}

func (tx *ledgerTx) UpdateEntryStatus(ctx context.Context, entryID int64, status ledger.EntryStatus, voidedAt *time.Time) error {
	e, ok := tx.w.entries[entryID]
	if !ok {
		return ledger.ErrEntryNotFound
	}
	e.Status = status
	if voidedAt != nil {
		e.VoidedAt = voidedAt
	}
	return nil
}

func (tx *ledgerTx) ReplaceDraftLines(ctx context.Context, entryID int64, lines []ledger.LineInput) ([]ledger.JournalLine, error) {
	e, ok := tx.w.entries[entryID]
	if !ok {
		return nil, ledger.ErrEntryNotFound
	}
	e.Lines = nil
	return tx.InsertLines(ctx, entryID, lines)
}

func (tx *ledgerTx) UpdateDraftHeader(ctx context.Context, entryID int64, date time.Time, description string) error {
	e, ok := tx.w.entries[entryID]
	if !ok {
		return ledger.ErrEntryNotFound
	}
	e.Date = date
	e.Description = description
	return nil
}

func (tx *ledgerTx) DeleteEntry(ctx context.Context, entryID int64) error {
	delete(tx.w.entries, entryID)
	return nil
}

func (tx *ledgerTx) AccountBalance(ctx context.Context, orgID, accountID int64) (float64, error) {
	var balance float64
	for _, e := range tx.w.entries {
		if e.OrgID != orgID || e.Status != ledger.EntryStatusPosted {
			continue
		}
		for _, line := range e.Lines {
			if line.AccountID == accountID {
				balance += line.Debit - line.Credit
			}
		}
	}
	return balance, nil
}

// costingTx adapts the world to the costing engine's repository.
type costingTx struct {
	w *world
}

func (tx *costingTx) InsertLot(ctx context.Context, lot costing.StockLot) (int64, error) {
	tx.w.nextLot++
	lot.ID = tx.w.nextLot
	tx.w.lots[lot.ID] = &lot
	return lot.ID, nil
}

func (tx *costingTx) LotsForConsumption(ctx context.Context, orgID, productID int64, asOf time.Time) ([]costing.StockLot, error) {
	var out []costing.StockLot
	for _, lot := range tx.w.lots {
		if lot.OrgID == orgID && lot.ProductID == productID && lot.RemainingQty > 0 && !lot.LotDate.After(asOf) {
			out = append(out, *lot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LotDate.Equal(out[j].LotDate) {
			return out[i].LotDate.Before(out[j].LotDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (tx *costingTx) GetLotForUpdate(ctx context.Context, lotID int64) (costing.StockLot, error) {
	lot, ok := tx.w.lots[lotID]
	if !ok {
		return costing.StockLot{}, costing.ErrLotNotFound
	}
	return *lot, nil
}

func (tx *costingTx) UpdateLotRemaining(ctx context.Context, lotID int64, remaining float64) error {
	lot, ok := tx.w.lots[lotID]
	if !ok {
		return costing.ErrLotNotFound
	}
	lot.RemainingQty = remaining
	return nil
}

func (tx *costingTx) InsertConsumptions(ctx context.Context, lines []costing.Consumption) ([]costing.Consumption, error) {
	out := make([]costing.Consumption, 0, len(lines))
	for _, line := range lines {
		tx.w.nextConsumption++
		line.ID = tx.w.nextConsumption
		copy := line
		tx.w.consumptions[line.ID] = &copy
		out = append(out, line)
	}
	return out, nil
}

func (tx *costingTx) ConsumptionsForRef(ctx context.Context, refKind string, refID string) ([]costing.Consumption, error) {
	var out []costing.Consumption
	for _, c := range tx.w.consumptions {
		if c.RefKind == refKind && c.RefID.String() == refID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *costingTx) MarkConsumptionRestored(ctx context.Context, consumptionID int64, at time.Time) error {
	c, ok := tx.w.consumptions[consumptionID]
	if !ok {
		return costing.ErrLotNotFound
	}
	if c.RestoredAt != nil {
		return costing.ErrAlreadyRestored
	}
	t := at
	c.RestoredAt = &t
	return nil
}

// reconTx adapts the world to the subledger repository.
type reconTx struct {
	w *world
}

func (tx *reconTx) TransactionsForUpdate(ctx context.Context, orgID, counterpartyID int64) ([]recon.Transaction, error) {
	var out []recon.Transaction
	for _, t := range tx.w.txns {
		if t.OrgID == orgID && t.CounterpartyID == counterpartyID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (tx *reconTx) UpdateRunningBalance(ctx context.Context, txnID int64, runningBalance float64) error {
	for i := range tx.w.txns {
		if tx.w.txns[i].ID == txnID {
			tx.w.txns[i].RunningBalance = runningBalance
		}
	}
	return nil
}

func (tx *reconTx) UpdateCounterpartyBalance(ctx context.Context, orgID, counterpartyID int64, balance float64) error {
	tx.w.balances[counterpartyID] = balance
	return nil
}

func (tx *reconTx) AppendTransaction(ctx context.Context, txn recon.Transaction) (int64, error) {
	tx.w.nextTxn++
	txn.ID = tx.w.nextTxn
	tx.w.txns = append(tx.w.txns, txn)
	return txn.ID, nil
}

func (tx *reconTx) SumCounterpartyBalances(ctx context.Context, orgID int64, kind recon.CounterpartyKind) (float64, error) {
	var total float64
	for id, bal := range tx.w.balances {
		if tx.w.kinds[id] == kind {
			total += bal
		}
	}
	return total, nil
}
