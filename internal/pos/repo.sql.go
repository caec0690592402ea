package pos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizledger/bizledger/internal/ledger"
	"github.com/bizledger/bizledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence for register sessions.
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

func (r *txRepo) Ledger() ledger.TxRepository { return ledger.Bind(r.tx) }

const sessionColumns = `id, org_id, register_id, cashier_id, number, status, opening_float, cash_sales, counted_cash, over_short, entry_id, opened_at, closed_at`

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.OrgID, &s.RegisterID, &s.CashierID, &s.Number, &s.Status,
		&s.OpeningFloat, &s.CashSales, &s.CountedCash, &s.OverShort, &s.EntryID, &s.OpenedAt, &s.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *txRepo) OpenSessionForRegister(ctx context.Context, orgID, registerID int64) (Session, error) {
	s, err := scanSession(r.tx.QueryRow(ctx, `SELECT `+sessionColumns+`
FROM pos_sessions WHERE org_id = $1 AND register_id = $2 AND status = $3 FOR UPDATE`,
		orgID, registerID, StatusOpen))
	if errors.Is(err, ErrSessionNotFound) {
		return Session{}, shared.ErrNotFound
	}
	return s, err
}

func (r *txRepo) InsertSession(ctx context.Context, s Session) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO pos_sessions
(id, org_id, register_id, cashier_id, number, status, opening_float, cash_sales, counted_cash, over_short, opened_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, 0, $8)`,
		s.ID, s.OrgID, s.RegisterID, s.CashierID, s.Number, s.Status, s.OpeningFloat, s.OpenedAt)
	return err
}

func (r *txRepo) GetSessionForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (Session, error) {
	return scanSession(r.tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM pos_sessions WHERE org_id = $1 AND id = $2 FOR UPDATE`, orgID, id))
}

func (r *txRepo) AddCashSale(ctx context.Context, id uuid.UUID, amount float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE pos_sessions SET cash_sales = cash_sales + $2
WHERE id = $1 AND status = $3`, id, amount, StatusOpen)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotOpen
	}
	return nil
}

func (r *txRepo) CloseSession(ctx context.Context, s Session) error {
	tag, err := r.tx.Exec(ctx, `UPDATE pos_sessions
SET status = $2, counted_cash = $3, over_short = $4, entry_id = $5, closed_at = $6
WHERE id = $1 AND status = $7`,
		s.ID, StatusClosed, s.CountedCash, s.OverShort, s.EntryID, s.ClosedAt, StatusOpen)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotOpen
	}
	return nil
}

// GetSession loads a session outside a transaction.
func (r *Repository) GetSession(ctx context.Context, orgID int64, id uuid.UUID) (Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM pos_sessions WHERE org_id = $1 AND id = $2`, orgID, id))
}
