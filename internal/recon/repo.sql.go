package recon

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizledger/bizledger/internal/ledger"
)

// Repository provides PostgreSQL backed persistence.
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

// WithTx wraps the callback in a repeatable-read transaction.
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

// Bind exposes the transactional repository over an externally owned tx.
func Bind(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

func (r *txRepo) TransactionsForUpdate(ctx context.Context, orgID, counterpartyID int64) ([]Transaction, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, org_id, counterparty_id, kind, txn_date, amount, running_balance
FROM counterparty_txns
WHERE org_id = $1 AND counterparty_id = $2
ORDER BY txn_date ASC, id ASC
FOR UPDATE`, orgID, counterpartyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []Transaction
	for rows.Next() {
		var t Transaction
		var kind string
		if err := rows.Scan(&t.ID, &t.OrgID, &t.CounterpartyID, &kind, &t.Date, &t.Amount, &t.RunningBalance); err != nil {
			return nil, err
		}
		t.Kind = TxnKind(kind)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *txRepo) UpdateRunningBalance(ctx context.Context, txnID int64, runningBalance float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE counterparty_txns SET running_balance = $2 WHERE id = $1`, txnID, runningBalance)
	return err
}

func (r *txRepo) UpdateCounterpartyBalance(ctx context.Context, orgID, counterpartyID int64, balance float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE counterparties SET balance = $3, updated_at = NOW() WHERE org_id = $1 AND id = $2`, orgID, counterpartyID, balance)
	return err
}

func (r *txRepo) AppendTransaction(ctx context.Context, txn Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO counterparty_txns (org_id, counterparty_id, kind, txn_date, amount, running_balance)
VALUES ($1, $2, $3, $4, $5, 0) RETURNING id`,
		txn.OrgID, txn.CounterpartyID, string(txn.Kind), txn.Date, txn.Amount).Scan(&id)
	return id, err
}

func (r *txRepo) SumCounterpartyBalances(ctx context.Context, orgID int64, kind CounterpartyKind) (float64, error) {
	var total float64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0) FROM counterparties WHERE org_id = $1 AND kind = $2`, orgID, string(kind)).Scan(&total)
	return total, err
}

// GLReader derives control account balances straight from the pool; report
// reads do not need the repeatable-read transaction.
type GLReader struct {
	pool *pgxpool.Pool
}

// NewGLReader constructs the ledger port used for reconciliation.
func NewGLReader(pool *pgxpool.Pool) *GLReader {
	return &GLReader{pool: pool}
}

// ControlBalance returns the derived balance and type of an account by code.
func (g *GLReader) ControlBalance(ctx context.Context, orgID int64, accountCode string) (float64, ledger.AccountType, error) {
	var balance float64
	var accountType string
	err := g.pool.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN e.status <> 'DRAFT' THEN l.debit - l.credit ELSE 0 END), 0), a.type
FROM accounts a
LEFT JOIN journal_lines l ON l.account_id = a.id
LEFT JOIN journal_entries e ON e.id = l.entry_id
WHERE a.org_id = $1 AND a.code = $2
GROUP BY a.type`, orgID, accountCode).Scan(&balance, &accountType)
	if err != nil {
		return 0, "", err
	}
	return balance, ledger.AccountType(accountType), nil
}
