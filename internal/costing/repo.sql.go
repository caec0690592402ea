package costing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for stock lots.
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

// Bind exposes the transactional repository over an externally owned tx so
// costing operations can join another module's unit of work.
func Bind(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

func (r *txRepo) InsertLot(ctx context.Context, lot StockLot) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_lots (org_id, product_id, source, lot_date, unit_cost, initial_qty, remaining_qty, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		lot.OrgID, lot.ProductID, string(lot.Source), lot.LotDate, lot.UnitCost, lot.InitialQty, lot.RemainingQty, lot.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *txRepo) LotsForConsumption(ctx context.Context, orgID, productID int64, asOf time.Time) ([]StockLot, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, org_id, product_id, source, lot_date, unit_cost, initial_qty, remaining_qty, created_at
FROM stock_lots
WHERE org_id = $1 AND product_id = $2 AND remaining_qty > 0 AND lot_date <= $3
ORDER BY lot_date ASC, id ASC
FOR UPDATE`, orgID, productID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lots []StockLot
	for rows.Next() {
		var lot StockLot
		var source string
		if err := rows.Scan(&lot.ID, &lot.OrgID, &lot.ProductID, &source, &lot.LotDate, &lot.UnitCost, &lot.InitialQty, &lot.RemainingQty, &lot.CreatedAt); err != nil {
			return nil, err
		}
		lot.Source = LotSource(source)
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (r *txRepo) GetLotForUpdate(ctx context.Context, lotID int64) (StockLot, error) {
	var lot StockLot
	var source string
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, product_id, source, lot_date, unit_cost, initial_qty, remaining_qty, created_at
FROM stock_lots WHERE id = $1 FOR UPDATE`, lotID).Scan(&lot.ID, &lot.OrgID, &lot.ProductID, &source, &lot.LotDate, &lot.UnitCost, &lot.InitialQty, &lot.RemainingQty, &lot.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockLot{}, ErrLotNotFound
	}
	if err != nil {
		return StockLot{}, err
	}
	lot.Source = LotSource(source)
	return lot, nil
}

func (r *txRepo) UpdateLotRemaining(ctx context.Context, lotID int64, remaining float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_lots SET remaining_qty = $2 WHERE id = $1 AND $2 >= 0 AND $2 <= initial_qty`, lotID, remaining)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (r *txRepo) InsertConsumptions(ctx context.Context, lines []Consumption) ([]Consumption, error) {
	out := make([]Consumption, 0, len(lines))
	for _, line := range lines {
		var id int64
		err := r.tx.QueryRow(ctx, `INSERT INTO stock_lot_consumptions (lot_id, ref_kind, ref_id, qty, unit_cost, cost, consumed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			line.LotID, line.RefKind, line.RefID, line.Quantity, line.UnitCost, line.Cost, line.ConsumedAt).Scan(&id)
		if err != nil {
			return nil, err
		}
		line.ID = id
		out = append(out, line)
	}
	return out, nil
}

func (r *txRepo) ConsumptionsForRef(ctx context.Context, refKind string, refID string) ([]Consumption, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, lot_id, ref_kind, ref_id, qty, unit_cost, cost, consumed_at, restored_at
FROM stock_lot_consumptions WHERE ref_kind = $1 AND ref_id = $2 ORDER BY id FOR UPDATE`, refKind, refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Consumption
	for rows.Next() {
		var c Consumption
		if err := rows.Scan(&c.ID, &c.LotID, &c.RefKind, &c.RefID, &c.Quantity, &c.UnitCost, &c.Cost, &c.ConsumedAt, &c.RestoredAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *txRepo) MarkConsumptionRestored(ctx context.Context, consumptionID int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_lot_consumptions SET restored_at = $2 WHERE id = $1 AND restored_at IS NULL`, consumptionID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyRestored
	}
	return nil
}
