package pos

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/bizledger/bizledger/internal/ledger"
	"github.com/bizledger/bizledger/internal/sequence"
	"github.com/bizledger/bizledger/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSession(ctx context.Context, orgID int64, id uuid.UUID) (Session, error)
}

// TxRepository exposes session persistence plus the ledger bound to the
// same transaction for the closing over/short posting.
type TxRepository interface {
	Ledger() ledger.TxRepository

	// OpenSessionForRegister returns the register's open session, locked,
	// or shared.ErrNotFound. The lock serializes concurrent opens.
	OpenSessionForRegister(ctx context.Context, orgID, registerID int64) (Session, error)
	InsertSession(ctx context.Context, session Session) error
	GetSessionForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (Session, error)
	AddCashSale(ctx context.Context, id uuid.UUID, amount float64) error
	CloseSession(ctx context.Context, session Session) error
}

// AuditPort records POS events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages register sessions. Opening reads the "existing open
// session" state and writes the new session under one transaction so two
// concurrent opens for a register cannot both succeed.
type Service struct {
	repo     RepositoryPort
	ledger   *ledger.Service
	seq      *sequence.Service
	audit    AuditPort
	accounts AccountCodes
	now      func() time.Time
}

// NewService wires the POS session service.
func NewService(repo RepositoryPort, ledgerSvc *ledger.Service, seq *sequence.Service, audit AuditPort, accounts AccountCodes) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledgerSvc,
		seq:      seq,
		audit:    audit,
		accounts: accounts,
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// OpenSession opens a register session with a day-bucketed number.
func (s *Service) OpenSession(ctx context.Context, input OpenInput) (Session, error) {
	if err := input.Validate(); err != nil {
		return Session{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}

	var session Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := tx.OpenSessionForRegister(ctx, input.OrgID, input.RegisterID)
		if err == nil {
			return ErrSessionAlreadyOpen
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}

		number, err := s.seq.Next(ctx, tx.Ledger().Sequences(), input.OrgID, sequence.SeriesPOS)
		if err != nil {
			return err
		}
		session = Session{
			ID:           uuid.New(),
			OrgID:        input.OrgID,
			RegisterID:   input.RegisterID,
			CashierID:    input.CashierID,
			Number:       number,
			Status:       StatusOpen,
			OpeningFloat: input.OpeningFloat,
			OpenedAt:     s.now().UTC(),
		}
		return tx.InsertSession(ctx, session)
	})
	if err != nil {
		return Session{}, err
	}
	s.auditSession(ctx, session, "pos.session.open")
	return session, nil
}

// RecordCashSale adds a cash amount to the running session total.
func (s *Service) RecordCashSale(ctx context.Context, orgID int64, sessionID uuid.UUID, amount float64) (Session, error) {
	if amount <= 0 {
		return Session{}, fmt.Errorf("%w: cash sale amount must be positive", shared.ErrValidation)
	}
	var session Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSessionForUpdate(ctx, orgID, sessionID)
		if err != nil {
			return err
		}
		if current.Status != StatusOpen {
			return ErrSessionNotOpen
		}
		if err := tx.AddCashSale(ctx, sessionID, amount); err != nil {
			return err
		}
		current.CashSales += amount
		session = current
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

// CloseSession closes the session against a counted cash amount. A nonzero
// difference between counted and expected cash posts an over/short entry in
// the same transaction.
func (s *Service) CloseSession(ctx context.Context, orgID int64, sessionID uuid.UUID, countedCash float64) (Session, error) {
	if countedCash < 0 {
		return Session{}, fmt.Errorf("%w: counted cash must not be negative", shared.ErrValidation)
	}

	var session Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSessionForUpdate(ctx, orgID, sessionID)
		if err != nil {
			return err
		}
		if current.Status != StatusOpen {
			return ErrSessionNotOpen
		}

		now := s.now().UTC()
		expected := current.OpeningFloat + current.CashSales
		overShort := countedCash - expected

		if math.Abs(overShort) > ledger.BalanceEpsilon {
			entry, err := s.postOverShort(ctx, tx, current, overShort, now)
			if err != nil {
				return err
			}
			current.EntryID = &entry.ID
		}

		current.Status = StatusClosed
		current.CountedCash = countedCash
		current.OverShort = overShort
		current.ClosedAt = &now
		if err := tx.CloseSession(ctx, current); err != nil {
			return err
		}
		session = current
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.auditSession(ctx, session, "pos.session.close")
	return session, nil
}

// postOverShort books the cash difference: overage debits cash against the
// over/short account, shortage the reverse.
func (s *Service) postOverShort(ctx context.Context, tx TxRepository, session Session, overShort float64, at time.Time) (ledger.JournalEntry, error) {
	cash, err := tx.Ledger().GetAccountByCode(ctx, session.OrgID, s.accounts.Cash)
	if err != nil {
		return ledger.JournalEntry{}, fmt.Errorf("pos: resolve account %s: %w", s.accounts.Cash, err)
	}
	diffAccount, err := tx.Ledger().GetAccountByCode(ctx, session.OrgID, s.accounts.OverShort)
	if err != nil {
		return ledger.JournalEntry{}, fmt.Errorf("pos: resolve account %s: %w", s.accounts.OverShort, err)
	}

	amount := math.Abs(overShort)
	var lines []ledger.LineInput
	if overShort > 0 {
		lines = []ledger.LineInput{
			{AccountID: cash.ID, Debit: amount, Description: "Cash overage"},
			{AccountID: diffAccount.ID, Credit: amount, Description: "Cash over/short"},
		}
	} else {
		lines = []ledger.LineInput{
			{AccountID: diffAccount.ID, Debit: amount, Description: "Cash over/short"},
			{AccountID: cash.ID, Credit: amount, Description: "Cash shortage"},
		}
	}

	return s.ledger.CreateEntryTx(ctx, tx.Ledger(), ledger.EntryInput{
		OrgID:       session.OrgID,
		Date:        at,
		Description: fmt.Sprintf("Cash over/short for session %s", session.Number),
		Status:      ledger.EntryStatusPosted,
		Source:      &ledger.SourceRef{Kind: ledger.SourceKindPOSSession, ID: session.ID},
		Lines:       lines,
	})
}

// GetSession loads a session by id.
func (s *Service) GetSession(ctx context.Context, orgID int64, id uuid.UUID) (Session, error) {
	return s.repo.GetSession(ctx, orgID, id)
}

func (s *Service) auditSession(ctx context.Context, session Session, action string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrgID:    session.OrgID,
		ActorID:  session.CashierID,
		Action:   action,
		Entity:   "pos_session",
		EntityID: session.ID.String(),
		Meta:     map[string]any{"number": session.Number, "register_id": session.RegisterID},
		At:       s.now().UTC(),
	})
}
