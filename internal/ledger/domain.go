package ledger

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// EntryStatus enumerates journal entry lifecycle values.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "DRAFT"
	EntryStatusPosted EntryStatus = "POSTED"
	EntryStatusVoid   EntryStatus = "VOID"
)

// SourceKind tags the business document a journal entry originated from. The
// engine never resolves the reference; callers own the target documents.
type SourceKind string

const (
	SourceKindInvoice    SourceKind = "INVOICE"
	SourceKindExpense    SourceKind = "EXPENSE"
	SourceKindPayment    SourceKind = "PAYMENT"
	SourceKindPOSSession SourceKind = "POS_SESSION"
	SourceKindReversal   SourceKind = "REVERSAL"
	SourceKindManual     SourceKind = "MANUAL"
)

// SourceRef is the typed back-reference from a journal entry to its
// originating document.
type SourceRef struct {
	Kind SourceKind
	ID   uuid.UUID
}

// Account subtypes with engine-level meaning. SubType is otherwise free-form
// classification for reporting.
const (
	SubTypeCash = "CASH"
	SubTypeBank = "BANK"
)

// Account is a node in the per-organization chart of accounts tree.
type Account struct {
	ID        int64
	OrgID     int64
	Code      string
	Name      string
	Type      AccountType
	SubType   string
	ParentID  *int64
	IsSystem  bool
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JournalEntry is a balanced set of debit/credit lines recording one
// accounting event. Once posted its lines are immutable; corrections go
// through void plus reversal.
type JournalEntry struct {
	ID          int64
	OrgID       int64
	Number      string
	Date        time.Time
	Description string
	Status      EntryStatus
	Source      *SourceRef
	VoidOfID    *int64
	VoidedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []JournalLine
}

// JournalLine stores a debit or credit amount for an account. Exactly one of
// Debit/Credit is nonzero.
type JournalLine struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	Debit       float64
	Credit      float64
	Description string
}

// LineInput describes a journal line for entry creation.
type LineInput struct {
	AccountID   int64
	Debit       float64
	Credit      float64
	Description string
}

// EntryInput groups fields required to create a journal entry.
type EntryInput struct {
	OrgID       int64
	Date        time.Time
	Description string
	Status      EntryStatus
	Source      *SourceRef
	Lines       []LineInput
}

// AccountInput describes a new or updated chart-of-accounts node.
type AccountInput struct {
	OrgID    int64
	Code     string
	Name     string
	Type     AccountType
	SubType  string
	ParentID *int64
	IsSystem bool
}

// BalanceEpsilon is the tolerance within which debit and credit totals are
// considered equal.
const BalanceEpsilon = 0.01

var (
	// ErrUnbalanced indicates debit and credit totals differ beyond tolerance.
	ErrUnbalanced = errors.New("ledger: entry does not balance")
	// ErrLineBothSides indicates a line carrying both debit and credit.
	ErrLineBothSides = errors.New("ledger: line must have exactly one of debit or credit")
	// ErrLineNegative indicates a negative amount.
	ErrLineNegative = errors.New("ledger: amounts must not be negative")
	// ErrNoLines indicates an entry without lines.
	ErrNoLines = errors.New("ledger: entry requires at least one line")
	// ErrNotDraft rejects posting or editing an entry that is not DRAFT.
	ErrNotDraft = errors.New("ledger: entry is not draft")
	// ErrNotPosted rejects voiding an entry that is not POSTED.
	ErrNotPosted = errors.New("ledger: entry is not posted")
	// ErrAlreadyVoid rejects voiding an entry twice.
	ErrAlreadyVoid = errors.New("ledger: entry is already void")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")

	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrAccountTypeMismatch indicates a child whose type differs from its parent.
	ErrAccountTypeMismatch = errors.New("ledger: account type must match parent type")
	// ErrAccountCycle indicates the parent chain would loop.
	ErrAccountCycle = errors.New("ledger: account parent chain must be acyclic")
	// ErrSystemAccount rejects structural changes to system accounts.
	ErrSystemAccount = errors.New("ledger: system account cannot be modified")
	// ErrAccountInUse rejects deleting an account with children or lines.
	ErrAccountInUse = errors.New("ledger: account has children or journal lines")
	// ErrAccountInactive rejects posting to a deactivated account.
	ErrAccountInactive = errors.New("ledger: account is inactive")
	// ErrDuplicateCode indicates the account code is taken within the organization.
	ErrDuplicateCode = errors.New("ledger: account code already exists")
)

// Validate checks structural line invariants: at least one line, no negative
// amounts, exactly one nonzero side per line.
func (in EntryInput) Validate() error {
	if in.OrgID == 0 {
		return errors.New("ledger: org required")
	}
	if len(in.Lines) == 0 {
		return ErrNoLines
	}
	for _, line := range in.Lines {
		if line.AccountID == 0 {
			return errors.New("ledger: line account required")
		}
		if line.Debit < 0 || line.Credit < 0 {
			return ErrLineNegative
		}
		if (line.Debit > 0) == (line.Credit > 0) {
			return ErrLineBothSides
		}
	}
	switch in.Status {
	case EntryStatusDraft, EntryStatusPosted:
		return nil
	default:
		return errors.New("ledger: entry must be created as DRAFT or POSTED")
	}
}

// Balanced reports whether debit and credit totals agree within tolerance.
func Balanced(lines []LineInput) bool {
	var debit, credit float64
	for _, line := range lines {
		debit += line.Debit
		credit += line.Credit
	}
	return math.Abs(debit-credit) <= BalanceEpsilon
}
