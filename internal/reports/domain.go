package reports

import (
	"time"

	"github.com/bizledger/bizledger/internal/ledger"
)

// TrialBalanceRow is one account's derived position as of a date. The net
// debit-minus-credit balance is shown on a single side, never both.
type TrialBalanceRow struct {
	AccountID int64              `json:"accountId"`
	Code      string             `json:"code"`
	Name      string             `json:"name"`
	Type      ledger.AccountType `json:"type"`
	Debit     float64            `json:"debit"`
	Credit    float64            `json:"credit"`
}

// TrialBalance groups account rows by type with grand totals. A ledger built
// only from balanced posted entries always reports TotalDebit == TotalCredit
// within tolerance; IsBalanced surfaces corruption rather than hiding it.
type TrialBalance struct {
	AsOf        time.Time         `json:"asOf"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  float64           `json:"totalDebit"`
	TotalCredit float64           `json:"totalCredit"`
	IsBalanced  bool              `json:"isBalanced"`
}

// CashflowSummary aggregates movement on cash and bank accounts for a period.
type CashflowSummary struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Inflow  float64   `json:"inflow"`
	Outflow float64   `json:"outflow"`
	Net     float64   `json:"net"`
}

// Overview bundles the dashboard aggregates. Sub-aggregates that failed to
// load are left zero-valued and named in Degraded instead of failing the
// whole response.
type Overview struct {
	TrialBalance TrialBalance    `json:"trialBalance"`
	Cashflow     CashflowSummary `json:"cashflow"`
	Degraded     []string        `json:"degraded,omitempty"`
}
