package pos

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bizledger/bizledger/internal/ledger"
	"github.com/bizledger/bizledger/internal/sequence"
	"github.com/bizledger/bizledger/internal/shared"
)

type memoryRepo struct {
	sessions   map[uuid.UUID]*Session
	accounts   map[int64]*ledger.Account
	entries    map[int64]*ledger.JournalEntry
	seqNumbers map[string][]string
	nextEntry  int64
	nextLine   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		sessions:   make(map[uuid.UUID]*Session),
		accounts:   make(map[int64]*ledger.Account),
		entries:    make(map[int64]*ledger.JournalEntry),
		seqNumbers: make(map[string][]string),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetSession(ctx context.Context, orgID int64, id uuid.UUID) (Session, error) {
	s, ok := r.sessions[id]
	if !ok || s.OrgID != orgID {
		return Session{}, ErrSessionNotFound
	}
	return *s, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) Ledger() ledger.TxRepository {
	return &memoryLedgerTx{repo: tx.repo}
}

func (tx *memoryTx) OpenSessionForRegister(ctx context.Context, orgID, registerID int64) (Session, error) {
	for _, s := range tx.repo.sessions {
		if s.OrgID == orgID && s.RegisterID == registerID && s.Status == StatusOpen {
			return *s, nil
		}
	}
	return Session{}, shared.ErrNotFound
}

func (tx *memoryTx) InsertSession(ctx context.Context, s Session) error {
	copy := s
	tx.repo.sessions[s.ID] = &copy
	return nil
}

func (tx *memoryTx) GetSessionForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (Session, error) {
	return tx.repo.GetSession(ctx, orgID, id)
}

func (tx *memoryTx) AddCashSale(ctx context.Context, id uuid.UUID, amount float64) error {
	s, ok := tx.repo.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Status != StatusOpen {
		return ErrSessionNotOpen
	}
	s.CashSales += amount
	return nil
}

func (tx *memoryTx) CloseSession(ctx context.Context, s Session) error {
	current, ok := tx.repo.sessions[s.ID]
	if !ok {
		return ErrSessionNotFound
	}
	if current.Status != StatusOpen {
		return ErrSessionNotOpen
	}
	*current = s
	return nil
}

// memoryLedgerTx implements just the slice of the ledger repository the
// over/short posting path touches; an unexpected call panics via the
// embedded nil interface.
type memoryLedgerTx struct {
	ledger.TxRepository
	repo *memoryRepo
}

func (tx *memoryLedgerTx) Sequences() sequence.Store {
	return &memorySeqStore{repo: tx.repo}
}

func (tx *memoryLedgerTx) GetAccount(ctx context.Context, orgID, accountID int64) (ledger.Account, error) {
	a, ok := tx.repo.accounts[accountID]
	if !ok || a.OrgID != orgID {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return *a, nil
}

func (tx *memoryLedgerTx) GetAccountByCode(ctx context.Context, orgID int64, code string) (ledger.Account, error) {
	for _, a := range tx.repo.accounts {
		if a.OrgID == orgID && a.Code == code {
			return *a, nil
		}
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

func (tx *memoryLedgerTx) InsertEntry(ctx context.Context, e ledger.JournalEntry) (int64, error) {
	tx.repo.nextEntry++
	e.ID = tx.repo.nextEntry
	tx.repo.entries[e.ID] = &e
	return e.ID, nil
}

func (tx *memoryLedgerTx) InsertLines(ctx context.Context, entryID int64, lines []ledger.LineInput) ([]ledger.JournalLine, error) {
	entry, ok := tx.repo.entries[entryID]
	if !ok {
		return nil, ledger.ErrEntryNotFound
	}
	var out []ledger.JournalLine
	for _, line := range lines {
		tx.repo.nextLine++
		jl := ledger.JournalLine{
			ID:          tx.repo.nextLine,
			EntryID:     entryID,
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
		}
		entry.Lines = append(entry.Lines, jl)
		out = append(out, jl)
	}
	return out, nil
}

type memorySeqStore struct {
	repo *memoryRepo
}

func (s *memorySeqStore) LastNumber(ctx context.Context, orgID int64, seriesKey string) (string, error) {
	issued := s.repo.seqNumbers[fmt.Sprintf("%d:%s", orgID, seriesKey)]
	if len(issued) == 0 {
		return "", shared.ErrNotFound
	}
	return issued[len(issued)-1], nil
}

func (s *memorySeqStore) Record(ctx context.Context, orgID int64, seriesKey, number string, at time.Time) error {
	key := fmt.Sprintf("%d:%s", orgID, seriesKey)
	s.repo.seqNumbers[key] = append(s.repo.seqNumbers[key], number)
	return nil
}

var openedAt = time.Date(2026, time.June, 3, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	codes := DefaultAccountCodes()
	repo.accounts[1] = &ledger.Account{ID: 1, OrgID: 1, Code: codes.Cash, Name: "Cash on Hand", Type: ledger.AccountTypeAsset, SubType: ledger.SubTypeCash, IsActive: true}
	repo.accounts[2] = &ledger.Account{ID: 2, OrgID: 1, Code: codes.OverShort, Name: "Cash Over/Short", Type: ledger.AccountTypeExpense, IsActive: true}

	seq := sequence.NewService()
	seq.WithNow(func() time.Time { return openedAt })
	svc := NewService(repo, ledger.NewService(nil, nil, seq), seq, nil, codes)
	svc.WithNow(func() time.Time { return openedAt })
	return svc, repo
}

func TestOpenSessionDailyNumber(t *testing.T) {
	svc, _ := newTestService(t)

	session, err := svc.OpenSession(context.Background(), OpenInput{OrgID: 1, RegisterID: 5, CashierID: 9, OpeningFloat: 100})
	require.NoError(t, err)
	require.Equal(t, "POS-20260603-001", session.Number)
	require.Equal(t, StatusOpen, session.Status)
	require.InDelta(t, 100, session.OpeningFloat, 1e-9)
}

func TestOpenSessionDuplicateRegisterRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.OpenSession(ctx, OpenInput{OrgID: 1, RegisterID: 5, CashierID: 9})
	require.NoError(t, err)
	_, err = svc.OpenSession(ctx, OpenInput{OrgID: 1, RegisterID: 5, CashierID: 11})
	require.ErrorIs(t, err, ErrSessionAlreadyOpen)

	// A different register is unaffected.
	second, err := svc.OpenSession(ctx, OpenInput{OrgID: 1, RegisterID: 6, CashierID: 11})
	require.NoError(t, err)
	require.Equal(t, "POS-20260603-002", second.Number)
}

func TestReopenAfterClose(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.OpenSession(ctx, OpenInput{OrgID: 1, RegisterID: 5, CashierID: 9, OpeningFloat: 100})
	require.NoError(t, err)
	_, err = svc.CloseSession(ctx, 1, session.ID, 100)
	require.NoError(t, err)

	reopened, err := svc.OpenSession(ctx, OpenInput{OrgID: 1, RegisterID: 5, CashierID: 9, OpeningFloat: 100})
	require.NoError(t, err)
	require.Equal(t, "POS-20260603-002", reopened.Number)
}

func TestCloseSessionExactCashPostsNothing(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	session, err := svc.OpenSession(ctx, OpenInput{OrgID: 1, RegisterID: 5, CashierID: 9, OpeningFloat: 100})
	require.NoError(t, err)
	_, err = svc.RecordCashSale(ctx, 1, session.ID, 250)
	require.NoError(t, err)

	closed, err := svc.CloseSession(ctx, 1, session.ID, 350)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
	require.InDelta(t, 0, closed.OverShort, 1e-9)
	require.Nil(t, closed.EntryID)
	require.Empty(t, repo.entries)
}

func TestCloseSessionShortagePostsEntry(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	session, err := svc.OpenSession(ctx, OpenInput{OrgID: 1, RegisterID: 5, CashierID: 9, OpeningFloat: 100})
	require.NoError(t, err)
	_, err = svc.RecordCashSale(ctx, 1, session.ID, 250)
	require.NoError(t, err)

	closed, err := svc.CloseSession(ctx, 1, session.ID, 330)
	require.NoError(t, err)
	require.InDelta(t, -20, closed.OverShort, 1e-9)
	require.NotNil(t, closed.EntryID)

	entry := repo.entries[*closed.EntryID]
	require.Equal(t, ledger.EntryStatusPosted, entry.Status)
	require.NotNil(t, entry.Source)
	require.Equal(t, ledger.SourceKindPOSSession, entry.Source.Kind)
	require.Len(t, entry.Lines, 2)
	// Shortage: expense debit, cash credit.
	require.InDelta(t, 20, entry.Lines[0].Debit, 1e-9)
	require.Equal(t, int64(2), entry.Lines[0].AccountID)
	require.InDelta(t, 20, entry.Lines[1].Credit, 1e-9)
	require.Equal(t, int64(1), entry.Lines[1].AccountID)
}

func TestCloseSessionOveragePostsEntry(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	session, err := svc.OpenSession(ctx, OpenInput{OrgID: 1, RegisterID: 5, CashierID: 9, OpeningFloat: 100})
	require.NoError(t, err)

	closed, err := svc.CloseSession(ctx, 1, session.ID, 112.50)
	require.NoError(t, err)
	require.InDelta(t, 12.50, closed.OverShort, 1e-9)
	require.NotNil(t, closed.EntryID)

	entry := repo.entries[*closed.EntryID]
	// Overage: cash debit, over/short credit.
	require.InDelta(t, 12.50, entry.Lines[0].Debit, 1e-9)
	require.Equal(t, int64(1), entry.Lines[0].AccountID)
	require.InDelta(t, 12.50, entry.Lines[1].Credit, 1e-9)
	require.Equal(t, int64(2), entry.Lines[1].AccountID)
}

func TestCloseSessionTwiceRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.OpenSession(ctx, OpenInput{OrgID: 1, RegisterID: 5, CashierID: 9})
	require.NoError(t, err)
	_, err = svc.CloseSession(ctx, 1, session.ID, 0)
	require.NoError(t, err)
	_, err = svc.CloseSession(ctx, 1, session.ID, 0)
	require.ErrorIs(t, err, ErrSessionNotOpen)
}

func TestRecordCashSaleOnClosedSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.OpenSession(ctx, OpenInput{OrgID: 1, RegisterID: 5, CashierID: 9})
	require.NoError(t, err)
	_, err = svc.CloseSession(ctx, 1, session.ID, 0)
	require.NoError(t, err)
	_, err = svc.RecordCashSale(ctx, 1, session.ID, 50)
	require.ErrorIs(t, err, ErrSessionNotOpen)
}

func TestOpenSessionValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.OpenSession(context.Background(), OpenInput{OrgID: 1, RegisterID: 5, OpeningFloat: -1})
	require.ErrorIs(t, err, shared.ErrValidation)
}
