// Package tax computes GST-style tax splits for business documents. It is
// pure: identical inputs always produce identical outputs and nothing is
// persisted here.
package tax

import "github.com/shopspring/decimal"

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// Compute derives the per-line and per-document tax split. The inter/intra
// decision is made once from the counterparty and applied uniformly to every
// line; a single document never mixes modes. A missing or unknown
// counterparty region degrades to intra-jurisdiction treatment in the
// seller's home region.
func Compute(profile Profile, lines []LineInput, counterparty Counterparty) (DocumentTax, error) {
	place := counterparty.Region
	if place == "" {
		place = profile.Region
	}
	interState := place != profile.Region

	doc := DocumentTax{
		Lines:           make([]LineTax, 0, len(lines)),
		TotalCentral:    decimal.Zero,
		TotalState:      decimal.Zero,
		TotalIntegrated: decimal.Zero,
		TotalTax:        decimal.Zero,
		PlaceOfSupply:   place,
		InterState:      interState,
	}

	for _, line := range lines {
		if line.TaxableAmount.IsNegative() {
			return DocumentTax{}, ErrNegativeAmount
		}
		if line.Rate.IsNegative() {
			return DocumentTax{}, ErrNegativeRate
		}
		lt := computeLine(line, interState, profile.SchemeEnabled)
		doc.Lines = append(doc.Lines, lt)
		doc.TotalCentral = doc.TotalCentral.Add(lt.Central)
		doc.TotalState = doc.TotalState.Add(lt.State)
		doc.TotalIntegrated = doc.TotalIntegrated.Add(lt.Integrated)
		doc.TotalTax = doc.TotalTax.Add(lt.Total)
	}
	return doc, nil
}

func computeLine(line LineInput, interState, schemeEnabled bool) LineTax {
	lt := LineTax{
		TaxableAmount: line.TaxableAmount,
		Rate:          line.Rate,
		Central:       decimal.Zero,
		State:         decimal.Zero,
		Integrated:    decimal.Zero,
		Total:         decimal.Zero,
	}
	if !schemeEnabled || line.Rate.IsZero() {
		return lt
	}
	if interState {
		// Single full-rate component, rounded half-up to 2 places.
		lt.Integrated = roundHalfUp(line.TaxableAmount.Mul(line.Rate).Div(hundred))
		lt.Total = lt.Integrated
		return lt
	}
	// Two equal half-rate components. Each half is rounded independently so
	// the halves stay exactly equal; the line total is their sum.
	half := roundHalfUp(line.TaxableAmount.Mul(line.Rate).Div(two).Div(hundred))
	lt.Central = half
	lt.State = half
	lt.Total = half.Add(half)
	return lt
}

// roundHalfUp rounds to 2 decimal places with ties away from zero, matching
// how amounts are shown on printed documents.
func roundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
