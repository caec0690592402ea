package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizledger/bizledger/internal/ledger"
)

// BalanceRow is the raw per-account aggregate before side assignment.
type BalanceRow struct {
	AccountID int64
	Code      string
	Name      string
	Type      ledger.AccountType
	Debit     float64
	Credit    float64
}

// Reader runs the read-only aggregation queries. Reports tolerate weaker
// isolation than document posting, so queries go straight to the pool
// without a transaction.
type Reader struct {
	pool *pgxpool.Pool
}

// NewReader constructs a Reader over the shared pool.
func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

func (r *Reader) AccountBalances(ctx context.Context, orgID int64, asOf time.Time) ([]BalanceRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.code, a.name, a.type,
	COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM accounts a
LEFT JOIN journal_lines l ON l.account_id = a.id
LEFT JOIN journal_entries e ON e.id = l.entry_id
	AND e.status <> 'DRAFT' AND e.entry_date <= $2
WHERE a.org_id = $1
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code ASC`, orgID, asOf)
	if err != nil {
		return nil, fmt.Errorf("reports: account balances: %w", err)
	}
	defer rows.Close()

	var out []BalanceRow
	for rows.Next() {
		var row BalanceRow
		if err := rows.Scan(&row.AccountID, &row.Code, &row.Name, &row.Type, &row.Debit, &row.Credit); err != nil {
			return nil, fmt.Errorf("reports: scan balance row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *Reader) CashMovement(ctx context.Context, orgID int64, from, to time.Time) (inflow, outflow float64, err error) {
	err = r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
JOIN accounts a ON a.id = l.account_id
WHERE e.org_id = $1 AND e.status <> 'DRAFT'
	AND e.entry_date >= $2 AND e.entry_date <= $3
	AND a.sub_type IN ($4, $5)`, orgID, from, to, ledger.SubTypeCash, ledger.SubTypeBank).
		Scan(&inflow, &outflow)
	if err != nil {
		return 0, 0, fmt.Errorf("reports: cash movement: %w", err)
	}
	return inflow, outflow, nil
}
