package recon

import (
	"errors"
	"fmt"
	"time"
)

// CounterpartyKind distinguishes customer and supplier subledgers.
type CounterpartyKind string

const (
	CounterpartyCustomer CounterpartyKind = "CUSTOMER"
	CounterpartySupplier CounterpartyKind = "SUPPLIER"
)

// TxnKind enumerates counterparty transaction types. Each kind has a fixed
// sign convention: kinds that increase what the counterparty owes are
// positive, settlements are negative.
type TxnKind string

const (
	TxnKindSale       TxnKind = "SALE"
	TxnKindPurchase   TxnKind = "PURCHASE"
	TxnKindPayment    TxnKind = "PAYMENT"
	TxnKindCreditNote TxnKind = "CREDIT_NOTE"
	TxnKindDebitNote  TxnKind = "DEBIT_NOTE"
	TxnKindOpening    TxnKind = "OPENING"
)

// Transaction is one subledger movement. RunningBalance is the prefix sum of
// signed amounts over the counterparty's transactions ordered by date, as of
// and including this transaction.
type Transaction struct {
	ID             int64
	OrgID          int64
	CounterpartyID int64
	Kind           TxnKind
	Date           time.Time
	Amount         float64
	RunningBalance float64
}

// RecomputeResult is the outcome of rebuilding a counterparty's balance from
// its transaction history.
type RecomputeResult struct {
	Balance      float64
	Transactions []Transaction
}

// ReconcileResult compares a subledger total with the GL control account.
// Breaks are reported, never auto-corrected.
type ReconcileResult struct {
	ControlAccount string
	GLBalance      float64
	SubledgerTotal float64
	Difference     float64
	IsReconciled   bool
}

// ReconcileEpsilon is the tolerance beyond which a difference counts as a
// reconciliation break.
const ReconcileEpsilon = 0.01

// ErrUnknownTxnKind indicates a transaction kind without a sign convention.
var ErrUnknownTxnKind = errors.New("recon: unknown transaction kind")

// SignedAmount applies the kind's sign convention to a stored magnitude.
// Opening balances are stored already signed.
func SignedAmount(kind TxnKind, amount float64) (float64, error) {
	switch kind {
	case TxnKindSale, TxnKindPurchase, TxnKindDebitNote:
		return amount, nil
	case TxnKindPayment, TxnKindCreditNote:
		return -amount, nil
	case TxnKindOpening:
		return amount, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownTxnKind, kind)
	}
}
