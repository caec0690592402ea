package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bizledger/bizledger/internal/sequence"
	"github.com/bizledger/bizledger/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the ledger's transactional operations.
type TxRepository interface {
	Sequences() sequence.Store

	GetAccount(ctx context.Context, orgID, accountID int64) (Account, error)
	GetAccountByCode(ctx context.Context, orgID int64, code string) (Account, error)
	ListAccounts(ctx context.Context, orgID int64) ([]Account, error)
	InsertAccount(ctx context.Context, account Account) (int64, error)
	UpdateAccount(ctx context.Context, account Account) error
	DeleteAccount(ctx context.Context, orgID, accountID int64) error
	CountChildren(ctx context.Context, orgID, accountID int64) (int64, error)
	CountAccountLines(ctx context.Context, accountID int64) (int64, error)

	InsertEntry(ctx context.Context, entry JournalEntry) (int64, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error)
	GetEntryForUpdate(ctx context.Context, orgID, entryID int64) (JournalEntry, error)
	UpdateEntryStatus(ctx context.Context, entryID int64, status EntryStatus, voidedAt *time.Time) error
	ReplaceDraftLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error)
	UpdateDraftHeader(ctx context.Context, entryID int64, date time.Time, description string) error
	DeleteEntry(ctx context.Context, entryID int64) error

	// AccountBalance derives sum(debit) - sum(credit) over POSTED lines.
	AccountBalance(ctx context.Context, orgID, accountID int64) (float64, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates entry creation, posting, and voiding with reversal.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	seq   *sequence.Service
	now   func() time.Time
}

// NewService constructs the ledger engine.
func NewService(repo RepositoryPort, audit AuditPort, seq *sequence.Service) *Service {
	return &Service{repo: repo, audit: audit, seq: seq, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateEntry validates and persists a new journal entry, DRAFT or directly
// POSTED. A POSTED entry must balance at creation time.
func (s *Service) CreateEntry(ctx context.Context, input EntryInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := s.CreateEntryTx(ctx, tx, input)
		if err != nil {
			return err
		}
		entry = created
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.auditEntry(ctx, entry, "journal.create")
	return entry, nil
}

// CreateEntryTx creates an entry inside a caller-owned transaction so the
// posting can share a unit of work with inventory consumption and subledger
// updates.
func (s *Service) CreateEntryTx(ctx context.Context, tx TxRepository, input EntryInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if input.Status == EntryStatusPosted && !Balanced(input.Lines) {
		return JournalEntry{}, ErrUnbalanced
	}
	if err := s.checkAccounts(ctx, tx, input.OrgID, input.Lines); err != nil {
		return JournalEntry{}, err
	}
	number, err := s.seq.Next(ctx, tx.Sequences(), input.OrgID, sequence.SeriesJournal)
	if err != nil {
		return JournalEntry{}, err
	}
	now := s.now().UTC()
	date := input.Date
	if date.IsZero() {
		date = now
	}
	entry := JournalEntry{
		OrgID:       input.OrgID,
		Number:      number,
		Date:        date,
		Description: input.Description,
		Status:      input.Status,
		Source:      input.Source,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.ID = id
	lines, err := tx.InsertLines(ctx, id, input.Lines)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

// UpdateDraftEntry replaces a DRAFT entry's header and lines. Non-draft
// entries are never mutated; corrections require void plus reversal.
func (s *Service) UpdateDraftEntry(ctx context.Context, orgID, entryID int64, date time.Time, description string, lines []LineInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, orgID, entryID)
		if err != nil {
			return err
		}
		if current.Status != EntryStatusDraft {
			return ErrNotDraft
		}
		probe := EntryInput{OrgID: orgID, Status: EntryStatusDraft, Lines: lines}
		if err := probe.Validate(); err != nil {
			return err
		}
		if err := s.checkAccounts(ctx, tx, orgID, lines); err != nil {
			return err
		}
		if err := tx.UpdateDraftHeader(ctx, entryID, date, description); err != nil {
			return err
		}
		updated, err := tx.ReplaceDraftLines(ctx, entryID, lines)
		if err != nil {
			return err
		}
		current.Date = date
		current.Description = description
		current.Lines = updated
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// DeleteDraftEntry removes a DRAFT entry entirely. Posted and void entries
// are part of the immutable audit trail and cannot be deleted.
func (s *Service) DeleteDraftEntry(ctx context.Context, orgID, entryID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, orgID, entryID)
		if err != nil {
			return err
		}
		if current.Status != EntryStatusDraft {
			return ErrNotDraft
		}
		return tx.DeleteEntry(ctx, entryID)
	})
}

// PostEntry transitions DRAFT to POSTED, revalidating balance at the moment
// of posting since draft lines may have been edited.
func (s *Service) PostEntry(ctx context.Context, orgID, entryID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, orgID, entryID)
		if err != nil {
			return err
		}
		if current.Status != EntryStatusDraft {
			return ErrNotDraft
		}
		if !Balanced(toLineInputs(current.Lines)) {
			return ErrUnbalanced
		}
		if err := tx.UpdateEntryStatus(ctx, current.ID, EntryStatusPosted, nil); err != nil {
			return err
		}
		current.Status = EntryStatusPosted
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.auditEntry(ctx, entry, "journal.post")
	return entry, nil
}

// VoidEntry marks a POSTED entry VOID and creates a POSTED reversal entry
// whose lines mirror the original so the net effect on every account is
// zero. The original entry and its lines are never mutated beyond status.
func (s *Service) VoidEntry(ctx context.Context, orgID, entryID int64) (JournalEntry, error) {
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rev, err := s.VoidEntryTx(ctx, tx, orgID, entryID)
		if err != nil {
			return err
		}
		reversal = rev
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.auditEntry(ctx, reversal, "journal.void")
	return reversal, nil
}

// VoidEntryTx performs void plus reversal inside a caller-owned transaction.
func (s *Service) VoidEntryTx(ctx context.Context, tx TxRepository, orgID, entryID int64) (JournalEntry, error) {
	current, err := tx.GetEntryForUpdate(ctx, orgID, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	switch current.Status {
	case EntryStatusVoid:
		return JournalEntry{}, ErrAlreadyVoid
	case EntryStatusPosted:
	default:
		return JournalEntry{}, ErrNotPosted
	}

	now := s.now().UTC()
	if err := tx.UpdateEntryStatus(ctx, current.ID, EntryStatusVoid, &now); err != nil {
		return JournalEntry{}, err
	}

	number, err := s.seq.Next(ctx, tx.Sequences(), orgID, sequence.SeriesJournal)
	if err != nil {
		return JournalEntry{}, err
	}
	reversal := JournalEntry{
		OrgID:       orgID,
		Number:      number,
		Date:        now,
		Description: fmt.Sprintf("Reversal of %s", current.Number),
		Status:      EntryStatusPosted,
		Source:      current.Source,
		VoidOfID:    &current.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := tx.InsertEntry(ctx, reversal)
	if err != nil {
		return JournalEntry{}, err
	}
	reversal.ID = id
	mirrored := mirrorLines(current.Lines)
	lines, err := tx.InsertLines(ctx, id, mirrored)
	if err != nil {
		return JournalEntry{}, err
	}
	reversal.Lines = lines
	return reversal, nil
}

// AccountBalance derives the balance for an account from POSTED lines. It is
// never stored, so it cannot drift from the ledger.
func (s *Service) AccountBalance(ctx context.Context, orgID, accountID int64) (float64, error) {
	var balance float64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		balance, err = tx.AccountBalance(ctx, orgID, accountID)
		return err
	})
	return balance, err
}

// GetEntry loads an entry with its lines.
func (s *Service) GetEntry(ctx context.Context, orgID, entryID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, orgID, entryID)
		if err != nil {
			return err
		}
		entry = current
		return nil
	})
	return entry, err
}

func (s *Service) checkAccounts(ctx context.Context, tx TxRepository, orgID int64, lines []LineInput) error {
	seen := make(map[int64]bool, len(lines))
	for _, line := range lines {
		if seen[line.AccountID] {
			continue
		}
		seen[line.AccountID] = true
		account, err := tx.GetAccount(ctx, orgID, line.AccountID)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return fmt.Errorf("%w: %s", ErrAccountInactive, account.Code)
		}
	}
	return nil
}

func (s *Service) auditEntry(ctx context.Context, entry JournalEntry, action string) {
	if s.audit == nil || entry.ID == 0 {
		return
	}
	meta := map[string]any{"number": entry.Number, "status": string(entry.Status)}
	if entry.Source != nil {
		meta["source_kind"] = string(entry.Source.Kind)
		meta["source_id"] = entry.Source.ID.String()
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrgID:    entry.OrgID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta:     meta,
		At:       s.now(),
	})
}

func mirrorLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:   line.AccountID,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: line.Description,
		})
	}
	return out
}

func toLineInputs(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
		})
	}
	return out
}

// ErrIsStateTransition reports whether err is one of the invalid state
// transition sentinels, for transport-layer mapping.
func ErrIsStateTransition(err error) bool {
	return errors.Is(err, ErrNotDraft) || errors.Is(err, ErrNotPosted) || errors.Is(err, ErrAlreadyVoid)
}
