package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bizledger/bizledger/internal/sequence"
	"github.com/bizledger/bizledger/internal/shared"
)

// memoryRepo implements RepositoryPort/TxRepository for service tests, the
// same way the inventory-style service tests fake their persistence.
type memoryRepo struct {
	accounts    map[int64]*Account
	entries     map[int64]*JournalEntry
	seqNumbers  map[string][]string
	nextAccount int64
	nextEntry   int64
	nextLine    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts:   make(map[int64]*Account),
		entries:    make(map[int64]*JournalEntry),
		seqNumbers: make(map[string][]string),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

type memoryTx struct {
	repo *memoryRepo
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

func (tx *memoryTx) Sequences() sequence.Store {
	return &memorySeqStore{repo: tx.repo}
}

func (tx *memoryTx) GetAccount(ctx context.Context, orgID, accountID int64) (Account, error) {
	a, ok := tx.repo.accounts[accountID]
	if !ok || a.OrgID != orgID {
		return Account{}, ErrAccountNotFound
	}
	return *a, nil
}

func (tx *memoryTx) GetAccountByCode(ctx context.Context, orgID int64, code string) (Account, error) {
	for _, a := range tx.repo.accounts {
		if a.OrgID == orgID && a.Code == code {
			return *a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (tx *memoryTx) ListAccounts(ctx context.Context, orgID int64) ([]Account, error) {
	var out []Account
	for _, a := range tx.repo.accounts {
		if a.OrgID == orgID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (tx *memoryTx) InsertAccount(ctx context.Context, a Account) (int64, error) {
	for _, existing := range tx.repo.accounts {
		if existing.OrgID == a.OrgID && existing.Code == a.Code {
			return 0, ErrDuplicateCode
		}
	}
	tx.repo.nextAccount++
	a.ID = tx.repo.nextAccount
	tx.repo.accounts[a.ID] = &a
	return a.ID, nil
}

func (tx *memoryTx) UpdateAccount(ctx context.Context, a Account) error {
	current, ok := tx.repo.accounts[a.ID]
	if !ok {
		return ErrAccountNotFound
	}
	*current = a
	return nil
}

func (tx *memoryTx) DeleteAccount(ctx context.Context, orgID, accountID int64) error {
	a, ok := tx.repo.accounts[accountID]
	if !ok || a.OrgID != orgID {
		return ErrAccountNotFound
	}
	delete(tx.repo.accounts, accountID)
	return nil
}

func (tx *memoryTx) CountChildren(ctx context.Context, orgID, accountID int64) (int64, error) {
	var count int64
	for _, a := range tx.repo.accounts {
		if a.OrgID == orgID && a.ParentID != nil && *a.ParentID == accountID {
			count++
		}
	}
	return count, nil
}

func (tx *memoryTx) CountAccountLines(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	for _, e := range tx.repo.entries {
		for _, line := range e.Lines {
			if line.AccountID == accountID {
				count++
			}
		}
	}
	return count, nil
}

func (tx *memoryTx) InsertEntry(ctx context.Context, e JournalEntry) (int64, error) {
	tx.repo.nextEntry++
	e.ID = tx.repo.nextEntry
	tx.repo.entries[e.ID] = &e
	return e.ID, nil
}

func (tx *memoryTx) InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	entry, ok := tx.repo.entries[entryID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	var out []JournalLine
	for _, line := range lines {
		tx.repo.nextLine++
		jl := JournalLine{
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

func (tx *memoryTx) GetEntryForUpdate(ctx context.Context, orgID, entryID int64) (JournalEntry, error) {
	e, ok := tx.repo.entries[entryID]
	if !ok || e.OrgID != orgID {
		return JournalEntry{}, ErrEntryNotFound
	}
	copy := *e
	copy.Lines = append([]JournalLine(nil), e.Lines...)
	return copy, nil
}

func (tx *memoryTx) UpdateEntryStatus(ctx context.Context, entryID int64, status EntryStatus, voidedAt *time.Time) error {
	e, ok := tx.repo.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	e.Status = status
	if voidedAt != nil {
		e.VoidedAt = voidedAt
	}
	return nil
}

func (tx *memoryTx) ReplaceDraftLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	e, ok := tx.repo.entries[entryID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	e.Lines = nil
	return tx.InsertLines(ctx, entryID, lines)
}

func (tx *memoryTx) UpdateDraftHeader(ctx context.Context, entryID int64, date time.Time, description string) error {
	e, ok := tx.repo.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	e.Date = date
	e.Description = description
	return nil
}

func (tx *memoryTx) DeleteEntry(ctx context.Context, entryID int64) error {
	delete(tx.repo.entries, entryID)
	return nil
}

func (tx *memoryTx) AccountBalance(ctx context.Context, orgID, accountID int64) (float64, error) {
	var balance float64
	for _, e := range tx.repo.entries {
		if e.OrgID != orgID || e.Status == EntryStatusDraft {
			continue
		}
		for _, line := range e.Lines {
			if line.AccountID == accountID {
				balance += line.Debit - line.Credit
			}
		}
	}
	return balance, nil
}
