package sequence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Series identifies a document numbering series. Daily-bucketed series reset
// their counter every day and carry the date in the formatted number.
type Series struct {
	Prefix      string
	DailyBucket bool
}

// Key returns the stable storage key for the series, including the day bucket
// when the series resets daily.
func (s Series) Key(at time.Time) string {
	if s.DailyBucket {
		return fmt.Sprintf("%s:%s", s.Prefix, at.Format("20060102"))
	}
	return s.Prefix
}

// Format renders a document number as PREFIX-NNN or PREFIX-YYYYMMDD-NNN.
func (s Series) Format(n int, at time.Time) string {
	if s.DailyBucket {
		return fmt.Sprintf("%s-%s-%03d", s.Prefix, at.Format("20060102"), n)
	}
	return fmt.Sprintf("%s-%03d", s.Prefix, n)
}

// ParseSuffix extracts the trailing numeric suffix of a document number.
// Unparsable numbers yield 0 so issuance never blocks on a malformed record;
// document numbers are advisory identifiers, not primary keys.
func ParseSuffix(number string) int {
	idx := strings.LastIndex(number, "-")
	if idx < 0 || idx == len(number)-1 {
		return 0
	}
	n, err := strconv.Atoi(number[idx+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Well-known series used by the business modules.
var (
	SeriesInvoice = Series{Prefix: "INV"}
	SeriesJournal = Series{Prefix: "JV"}
	SeriesExpense = Series{Prefix: "EXP"}
	SeriesPOS     = Series{Prefix: "POS", DailyBucket: true}
)
