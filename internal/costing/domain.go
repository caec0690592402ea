package costing

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// LotSource enumerates how a stock lot came into existence.
type LotSource string

const (
	// LotSourcePurchase marks lots created by a purchase receipt.
	LotSourcePurchase LotSource = "PURCHASE"
	// LotSourceAdjustment marks lots created by a manual stock adjustment.
	LotSourceAdjustment LotSource = "ADJUSTMENT"
	// LotSourceOpening marks opening-balance lots.
	LotSourceOpening LotSource = "OPENING"
	// LotSourceReturn marks lots created by a customer return.
	LotSourceReturn LotSource = "RETURN"
)

// StockLot is a batch of inventory received at a fixed unit cost. Remaining
// quantity only ever decreases through consumption and increases through
// restore of a recorded consumption; a lot that has been consumed from is
// never deleted.
type StockLot struct {
	ID           int64
	OrgID        int64
	ProductID    int64
	Source       LotSource
	LotDate      time.Time
	UnitCost     float64
	InitialQty   float64
	RemainingQty float64
	CreatedAt    time.Time
}

// Consumption records quantity and cost taken from one lot for one consuming
// document line. Restoring a consumption returns exactly Quantity to exactly
// LotID.
type Consumption struct {
	ID         int64
	LotID      int64
	RefKind    string
	RefID      uuid.UUID
	Quantity   float64
	UnitCost   float64
	Cost       float64
	ConsumedAt time.Time
	RestoredAt *time.Time
}

// ConsumptionResult is what a consuming document line stores for later
// profit and GL reporting.
type ConsumptionResult struct {
	Lines     []Consumption
	TotalCost float64
}

// ReceiveInput describes a new lot.
type ReceiveInput struct {
	OrgID     int64
	ProductID int64
	Source    LotSource
	LotDate   time.Time
	UnitCost  float64
	Quantity  float64
}

// ConsumeInput describes a FIFO consumption request.
type ConsumeInput struct {
	OrgID     int64
	ProductID int64
	Quantity  float64
	AsOf      time.Time
	RefKind   string
	RefID     uuid.UUID
}

var (
	// ErrInsufficientStock rejects consumption exceeding total available
	// quantity; nothing is mutated.
	ErrInsufficientStock = errors.New("costing: insufficient stock to fulfill requested quantity")
	// ErrInvalidQuantity rejects non-positive quantities.
	ErrInvalidQuantity = errors.New("costing: quantity must be positive")
	// ErrInvalidUnitCost rejects negative unit costs.
	ErrInvalidUnitCost = errors.New("costing: unit cost must not be negative")
	// ErrLotNotFound indicates a missing stock lot.
	ErrLotNotFound = errors.New("costing: stock lot not found")
	// ErrAlreadyRestored rejects restoring a consumption twice.
	ErrAlreadyRestored = errors.New("costing: consumption already restored")
)

// Validate checks a receive request before any mutation.
func (in ReceiveInput) Validate() error {
	if in.OrgID == 0 || in.ProductID == 0 {
		return errors.New("costing: org and product required")
	}
	if in.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if in.UnitCost < 0 {
		return ErrInvalidUnitCost
	}
	switch in.Source {
	case LotSourcePurchase, LotSourceAdjustment, LotSourceOpening, LotSourceReturn:
		return nil
	default:
		return errors.New("costing: unknown lot source")
	}
}
