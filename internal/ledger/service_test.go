package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bizledger/bizledger/internal/sequence"
)

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, sequence.NewService())
	svc.WithNow(func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) })
	return svc, repo
}

func seedAccount(t *testing.T, svc *Service, code, name string, typ AccountType) Account {
	t.Helper()
	account, err := svc.CreateAccount(context.Background(), AccountInput{
		OrgID: 1, Code: code, Name: name, Type: typ,
	})
	require.NoError(t, err)
	return account
}

func TestCreatePostedEntryAssignsSequentialNumbers(t *testing.T) {
	svc, _ := newTestService(t)
	cash := seedAccount(t, svc, "1000", "Cash", AccountTypeAsset)
	sales := seedAccount(t, svc, "4000", "Sales", AccountTypeRevenue)
	ctx := context.Background()

	first, err := svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusPosted,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 100},
			{AccountID: sales.ID, Credit: 100},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "JV-001", first.Number)
	require.Equal(t, EntryStatusPosted, first.Status)

	second, err := svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusPosted,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 50},
			{AccountID: sales.ID, Credit: 50},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "JV-002", second.Number)
}

func TestCreatePostedEntryRejectsUnbalanced(t *testing.T) {
	svc, repo := newTestService(t)
	cash := seedAccount(t, svc, "1000", "Cash", AccountTypeAsset)
	sales := seedAccount(t, svc, "4000", "Sales", AccountTypeRevenue)

	_, err := svc.CreateEntry(context.Background(), EntryInput{
		OrgID:  1,
		Status: EntryStatusPosted,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 100},
			{AccountID: sales.ID, Credit: 90},
		},
	})
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Empty(t, repo.entries)
}

func TestCreateEntryToleratesRoundingEpsilon(t *testing.T) {
	svc, _ := newTestService(t)
	cash := seedAccount(t, svc, "1000", "Cash", AccountTypeAsset)
	sales := seedAccount(t, svc, "4000", "Sales", AccountTypeRevenue)

	_, err := svc.CreateEntry(context.Background(), EntryInput{
		OrgID:  1,
		Status: EntryStatusPosted,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 100.004},
			{AccountID: sales.ID, Credit: 100.00},
		},
	})
	require.NoError(t, err)
}

func TestCreateEntryRejectsLineWithBothSides(t *testing.T) {
	svc, _ := newTestService(t)
	cash := seedAccount(t, svc, "1000", "Cash", AccountTypeAsset)

	_, err := svc.CreateEntry(context.Background(), EntryInput{
		OrgID:  1,
		Status: EntryStatusDraft,
		Lines:  []LineInput{{AccountID: cash.ID, Debit: 10, Credit: 10}},
	})
	require.ErrorIs(t, err, ErrLineBothSides)

	_, err = svc.CreateEntry(context.Background(), EntryInput{
		OrgID:  1,
		Status: EntryStatusDraft,
		Lines:  []LineInput{{AccountID: cash.ID}},
	})
	require.ErrorIs(t, err, ErrLineBothSides)
}

func TestPostRevalidatesEditedDraft(t *testing.T) {
	svc, _ := newTestService(t)
	cash := seedAccount(t, svc, "1000", "Cash", AccountTypeAsset)
	sales := seedAccount(t, svc, "4000", "Sales", AccountTypeRevenue)
	ctx := context.Background()

	draft, err := svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusDraft,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 100},
			{AccountID: sales.ID, Credit: 100},
		},
	})
	require.NoError(t, err)

	// Unbalance the draft, then posting must fail.
	_, err = svc.UpdateDraftEntry(ctx, 1, draft.ID, draft.Date, "edited", []LineInput{
		{AccountID: cash.ID, Debit: 100},
		{AccountID: sales.ID, Credit: 60},
	})
	require.NoError(t, err)

	_, err = svc.PostEntry(ctx, 1, draft.ID)
	require.ErrorIs(t, err, ErrUnbalanced)

	// Fix it and post.
	_, err = svc.UpdateDraftEntry(ctx, 1, draft.ID, draft.Date, "fixed", []LineInput{
		{AccountID: cash.ID, Debit: 60},
		{AccountID: sales.ID, Credit: 60},
	})
	require.NoError(t, err)

	posted, err := svc.PostEntry(ctx, 1, draft.ID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, posted.Status)
}

func TestPostRejectsNonDraft(t *testing.T) {
	svc, _ := newTestService(t)
	cash := seedAccount(t, svc, "1000", "Cash", AccountTypeAsset)
	sales := seedAccount(t, svc, "4000", "Sales", AccountTypeRevenue)
	ctx := context.Background()

	posted, err := svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusPosted,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 10},
			{AccountID: sales.ID, Credit: 10},
		},
	})
	require.NoError(t, err)

	_, err = svc.PostEntry(ctx, 1, posted.ID)
	require.ErrorIs(t, err, ErrNotDraft)
}

func TestVoidCreatesMirroredReversal(t *testing.T) {
	svc, repo := newTestService(t)
	cash := seedAccount(t, svc, "1000", "Cash", AccountTypeAsset)
	sales := seedAccount(t, svc, "4000", "Sales", AccountTypeRevenue)
	ctx := context.Background()

	ref := SourceRef{Kind: SourceKindInvoice, ID: uuid.New()}
	original, err := svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusPosted,
		Source: &ref,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 118},
			{AccountID: sales.ID, Credit: 118},
		},
	})
	require.NoError(t, err)

	reversal, err := svc.VoidEntry(ctx, 1, original.ID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, reversal.Status)
	require.NotNil(t, reversal.VoidOfID)
	require.Equal(t, original.ID, *reversal.VoidOfID)
	require.Len(t, reversal.Lines, 2)
	require.InDelta(t, 0.0, reversal.Lines[0].Debit, 1e-9)
	require.InDelta(t, 118.0, reversal.Lines[0].Credit, 1e-9)
	require.InDelta(t, 118.0, reversal.Lines[1].Debit, 1e-9)

	require.Equal(t, EntryStatusVoid, repo.entries[original.ID].Status)
	require.NotNil(t, repo.entries[original.ID].VoidedAt)
	// Original lines untouched.
	require.InDelta(t, 118.0, repo.entries[original.ID].Lines[0].Debit, 1e-9)

	// Net effect on every touched account is zero.
	balance, err := svc.AccountBalance(ctx, 1, cash.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.0, balance, 1e-9)
	balance, err = svc.AccountBalance(ctx, 1, sales.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.0, balance, 1e-9)
}

func TestAccountBalanceCountsVoidAndReversalButNotDrafts(t *testing.T) {
	svc, _ := newTestService(t)
	cash := seedAccount(t, svc, "1000", "Cash", AccountTypeAsset)
	sales := seedAccount(t, svc, "4000", "Sales", AccountTypeRevenue)
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusPosted,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 500},
			{AccountID: sales.ID, Credit: 500},
		},
	})
	require.NoError(t, err)

	voided, err := svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusPosted,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 200},
			{AccountID: sales.ID, Credit: 200},
		},
	})
	require.NoError(t, err)
	_, err = svc.VoidEntry(ctx, 1, voided.ID)
	require.NoError(t, err)

	// Drafts never hit the balance.
	_, err = svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusDraft,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 999},
			{AccountID: sales.ID, Credit: 999},
		},
	})
	require.NoError(t, err)

	balance, err := svc.AccountBalance(ctx, 1, cash.ID)
	require.NoError(t, err)
	require.InDelta(t, 500.0, balance, 1e-9)
}

func TestVoidRejectsInvalidStates(t *testing.T) {
	svc, _ := newTestService(t)
	cash := seedAccount(t, svc, "1000", "Cash", AccountTypeAsset)
	sales := seedAccount(t, svc, "4000", "Sales", AccountTypeRevenue)
	ctx := context.Background()

	draft, err := svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusDraft,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 10},
			{AccountID: sales.ID, Credit: 10},
		},
	})
	require.NoError(t, err)

	_, err = svc.VoidEntry(ctx, 1, draft.ID)
	require.ErrorIs(t, err, ErrNotPosted)

	posted, err := svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusPosted,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 10},
			{AccountID: sales.ID, Credit: 10},
		},
	})
	require.NoError(t, err)

	_, err = svc.VoidEntry(ctx, 1, posted.ID)
	require.NoError(t, err)
	_, err = svc.VoidEntry(ctx, 1, posted.ID)
	require.ErrorIs(t, err, ErrAlreadyVoid)
}

func TestDeleteDraftOnly(t *testing.T) {
	svc, repo := newTestService(t)
	cash := seedAccount(t, svc, "1000", "Cash", AccountTypeAsset)
	sales := seedAccount(t, svc, "4000", "Sales", AccountTypeRevenue)
	ctx := context.Background()

	draft, err := svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusDraft,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 10},
			{AccountID: sales.ID, Credit: 10},
		},
	})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteDraftEntry(ctx, 1, draft.ID))
	require.NotContains(t, repo.entries, draft.ID)

	posted, err := svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusPosted,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 10},
			{AccountID: sales.ID, Credit: 10},
		},
	})
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeleteDraftEntry(ctx, 1, posted.ID), ErrNotDraft)
}

func TestBalanceDerivedFromPostedOnly(t *testing.T) {
	svc, _ := newTestService(t)
	cash := seedAccount(t, svc, "1000", "Cash", AccountTypeAsset)
	sales := seedAccount(t, svc, "4000", "Sales", AccountTypeRevenue)
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusDraft,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 999},
			{AccountID: sales.ID, Credit: 999},
		},
	})
	require.NoError(t, err)

	_, err = svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusPosted,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 25},
			{AccountID: sales.ID, Credit: 25},
		},
	})
	require.NoError(t, err)

	balance, err := svc.AccountBalance(ctx, 1, cash.ID)
	require.NoError(t, err)
	require.InDelta(t, 25.0, balance, 1e-9)
}

func TestCreateEntryRejectsInactiveAccount(t *testing.T) {
	svc, _ := newTestService(t)
	cash := seedAccount(t, svc, "1000", "Cash", AccountTypeAsset)
	sales := seedAccount(t, svc, "4000", "Sales", AccountTypeRevenue)
	ctx := context.Background()

	require.NoError(t, svc.SetAccountActive(ctx, 1, sales.ID, false))

	_, err := svc.CreateEntry(ctx, EntryInput{
		OrgID:  1,
		Status: EntryStatusPosted,
		Lines: []LineInput{
			{AccountID: cash.ID, Debit: 10},
			{AccountID: sales.ID, Credit: 10},
		},
	})
	require.ErrorIs(t, err, ErrAccountInactive)
}
