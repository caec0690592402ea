package costing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bizledger/bizledger/internal/shared"
)

const qtyEpsilon = 1e-9

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations the engine needs inside a transaction.
type TxRepository interface {
	InsertLot(ctx context.Context, lot StockLot) (int64, error)
	// LotsForConsumption returns lots with remaining quantity, oldest first
	// by lot date then id, locked for update.
	LotsForConsumption(ctx context.Context, orgID, productID int64, asOf time.Time) ([]StockLot, error)
	GetLotForUpdate(ctx context.Context, lotID int64) (StockLot, error)
	UpdateLotRemaining(ctx context.Context, lotID int64, remaining float64) error
	InsertConsumptions(ctx context.Context, lines []Consumption) ([]Consumption, error)
	ConsumptionsForRef(ctx context.Context, refKind string, refID string) ([]Consumption, error)
	MarkConsumptionRestored(ctx context.Context, consumptionID int64, at time.Time) error
}

// AuditPort records costing events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages per-product stock lots and FIFO consumption.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the costing engine.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Receive creates a new stock lot.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (StockLot, error) {
	if err := input.Validate(); err != nil {
		return StockLot{}, err
	}
	now := s.now().UTC()
	lotDate := input.LotDate
	if lotDate.IsZero() {
		lotDate = now
	}
	lot := StockLot{
		OrgID:        input.OrgID,
		ProductID:    input.ProductID,
		Source:       input.Source,
		LotDate:      lotDate,
		UnitCost:     input.UnitCost,
		InitialQty:   input.Quantity,
		RemainingQty: input.Quantity,
		CreatedAt:    now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertLot(ctx, lot)
		if err != nil {
			return err
		}
		lot.ID = id
		return nil
	})
	if err != nil {
		return StockLot{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OrgID:    input.OrgID,
			Action:   "costing.receive",
			Entity:   "stock_lot",
			EntityID: fmt.Sprintf("%d", lot.ID),
			Meta: map[string]any{
				"product_id": input.ProductID,
				"source":     string(input.Source),
				"qty":        input.Quantity,
				"unit_cost":  input.UnitCost,
			},
			At: now,
		})
	}
	return lot, nil
}

// Consume takes the requested quantity from the oldest available lots and
// records one consumption row per lot touched. The operation is
// all-or-nothing: if total remaining across lots cannot cover the request,
// no lot is changed and ErrInsufficientStock is returned.
func (s *Service) Consume(ctx context.Context, input ConsumeInput) (ConsumptionResult, error) {
	if input.OrgID == 0 || input.ProductID == 0 {
		return ConsumptionResult{}, errors.New("costing: org and product required")
	}
	if input.Quantity <= 0 {
		return ConsumptionResult{}, ErrInvalidQuantity
	}
	var result ConsumptionResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := s.consumeTx(ctx, tx, input)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return ConsumptionResult{}, err
	}
	return result, nil
}

// ConsumeTx runs consumption inside a transaction owned by the caller, for
// composition with ledger posting in one atomic unit of work.
func (s *Service) ConsumeTx(ctx context.Context, tx TxRepository, input ConsumeInput) (ConsumptionResult, error) {
	if input.OrgID == 0 || input.ProductID == 0 {
		return ConsumptionResult{}, errors.New("costing: org and product required")
	}
	if input.Quantity <= 0 {
		return ConsumptionResult{}, ErrInvalidQuantity
	}
	return s.consumeTx(ctx, tx, input)
}

func (s *Service) consumeTx(ctx context.Context, tx TxRepository, input ConsumeInput) (ConsumptionResult, error) {
	asOf := input.AsOf
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	lots, err := tx.LotsForConsumption(ctx, input.OrgID, input.ProductID, asOf)
	if err != nil {
		return ConsumptionResult{}, err
	}
	available := 0.0
	for _, lot := range lots {
		available += lot.RemainingQty
	}
	if available+qtyEpsilon < input.Quantity {
		return ConsumptionResult{}, fmt.Errorf("%w: requested %.4f, available %.4f", ErrInsufficientStock, input.Quantity, available)
	}

	now := s.now().UTC()
	remaining := input.Quantity
	var lines []Consumption
	totalCost := 0.0
	for _, lot := range lots {
		if remaining <= qtyEpsilon {
			break
		}
		take := lot.RemainingQty
		if take > remaining {
			take = remaining
		}
		cost := take * lot.UnitCost
		if err := tx.UpdateLotRemaining(ctx, lot.ID, lot.RemainingQty-take); err != nil {
			return ConsumptionResult{}, err
		}
		lines = append(lines, Consumption{
			LotID:      lot.ID,
			RefKind:    input.RefKind,
			RefID:      input.RefID,
			Quantity:   take,
			UnitCost:   lot.UnitCost,
			Cost:       cost,
			ConsumedAt: now,
		})
		totalCost += cost
		remaining -= take
	}
	inserted, err := tx.InsertConsumptions(ctx, lines)
	if err != nil {
		return ConsumptionResult{}, err
	}
	return ConsumptionResult{Lines: inserted, TotalCost: totalCost}, nil
}

// Restore returns previously consumed quantities to exactly the lots they
// came from, regardless of lots created since. Used when the consuming
// document is voided.
func (s *Service) Restore(ctx context.Context, refKind string, refID string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.RestoreTx(ctx, tx, refKind, refID)
	})
}

// RestoreTx runs restore inside a caller-owned transaction.
func (s *Service) RestoreTx(ctx context.Context, tx TxRepository, refKind string, refID string) error {
	consumptions, err := tx.ConsumptionsForRef(ctx, refKind, refID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	for _, c := range consumptions {
		if c.RestoredAt != nil {
			return ErrAlreadyRestored
		}
		lot, err := tx.GetLotForUpdate(ctx, c.LotID)
		if err != nil {
			return err
		}
		restored := lot.RemainingQty + c.Quantity
		if restored > lot.InitialQty+qtyEpsilon {
			return fmt.Errorf("costing: restore would exceed lot %d initial quantity", lot.ID)
		}
		if err := tx.UpdateLotRemaining(ctx, lot.ID, restored); err != nil {
			return err
		}
		if err := tx.MarkConsumptionRestored(ctx, c.ID, now); err != nil {
			return err
		}
	}
	return nil
}
