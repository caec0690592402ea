package pos

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionStatus tracks the register session lifecycle.
type SessionStatus string

const (
	StatusOpen   SessionStatus = "OPEN"
	StatusClosed SessionStatus = "CLOSED"
)

// Session is one cash register shift. Numbers are day-bucketed so each
// register day restarts at 001.
type Session struct {
	ID           uuid.UUID
	OrgID        int64
	RegisterID   int64
	CashierID    int64
	Number       string
	Status       SessionStatus
	OpeningFloat float64
	CashSales    float64
	CountedCash  float64
	OverShort    float64
	EntryID      *int64
	OpenedAt     time.Time
	ClosedAt     *time.Time
}

// OpenInput describes a session open request.
type OpenInput struct {
	OrgID        int64
	RegisterID   int64
	CashierID    int64
	OpeningFloat float64
}

// AccountCodes names the accounts a cash over/short close posts against.
type AccountCodes struct {
	Cash      string
	OverShort string
}

// DefaultAccountCodes matches the seeded chart of accounts.
func DefaultAccountCodes() AccountCodes {
	return AccountCodes{Cash: "1000", OverShort: "6150"}
}

var (
	// ErrSessionAlreadyOpen rejects opening a second session for a register
	// that already has one open.
	ErrSessionAlreadyOpen = errors.New("pos: register already has an open session")

	// ErrSessionNotOpen rejects mutating a session that is not OPEN.
	ErrSessionNotOpen = errors.New("pos: session is not open")

	// ErrSessionNotFound indicates an unknown session id for the org.
	ErrSessionNotFound = errors.New("pos: session not found")
)

// Validate rejects malformed input before any mutation.
func (in OpenInput) Validate() error {
	if in.OrgID == 0 || in.RegisterID == 0 {
		return errors.New("pos: organization and register required")
	}
	if in.OpeningFloat < 0 {
		return errors.New("pos: opening float must not be negative")
	}
	return nil
}
