package tax

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Profile is the organization tax profile snapshot supplied by the caller.
type Profile struct {
	RegistrationID string
	Region         string
	SchemeEnabled  bool
}

// Counterparty carries the buyer/seller side of the transaction. Region and
// RegistrationID may be empty for unregistered walk-in parties.
type Counterparty struct {
	RegistrationID string
	Region         string
}

// LineInput is a single taxable line item.
type LineInput struct {
	TaxableAmount decimal.Decimal
	Rate          decimal.Decimal
}

// LineTax is the computed split for one line. For an intra-jurisdiction
// document Central and State carry two equal halves and Integrated is zero;
// for inter-jurisdiction Integrated carries the full amount.
type LineTax struct {
	TaxableAmount decimal.Decimal
	Rate          decimal.Decimal
	Central       decimal.Decimal
	State         decimal.Decimal
	Integrated    decimal.Decimal
	Total         decimal.Decimal
}

// DocumentTax aggregates line results. Totals are sums of already-rounded
// line amounts so they always agree with what each line displays.
type DocumentTax struct {
	Lines           []LineTax
	TotalCentral    decimal.Decimal
	TotalState      decimal.Decimal
	TotalIntegrated decimal.Decimal
	TotalTax        decimal.Decimal
	PlaceOfSupply   string
	InterState      bool
}

// ErrNegativeAmount rejects lines with negative taxable amounts before any
// computation.
var ErrNegativeAmount = errors.New("tax: taxable amount must not be negative")

// ErrNegativeRate rejects negative nominal rates.
var ErrNegativeRate = errors.New("tax: rate must not be negative")
