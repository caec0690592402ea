package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/bizledger/bizledger/internal/ledger"
)

type mockRepo struct {
	rows         []BalanceRow
	rowsErr      error
	balanceCalls int
	inflow       float64
	outflow      float64
	cashErr      error
	cashCalls    int
}

func (m *mockRepo) AccountBalances(context.Context, int64, time.Time) ([]BalanceRow, error) {
	m.balanceCalls++
	return m.rows, m.rowsErr
}

func (m *mockRepo) CashMovement(context.Context, int64, time.Time, time.Time) (float64, float64, error) {
	m.cashCalls++
	return m.inflow, m.outflow, m.cashErr
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute), nil)
}

var asOf = time.Date(2026, time.April, 30, 0, 0, 0, 0, time.UTC)

func TestTrialBalanceSidesAndTotals(t *testing.T) {
	repo := &mockRepo{rows: []BalanceRow{
		{AccountID: 1, Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset, Debit: 1180, Credit: 0},
		{AccountID: 2, Code: "2300", Name: "Tax Payable", Type: ledger.AccountTypeLiability, Debit: 0, Credit: 180},
		{AccountID: 3, Code: "4000", Name: "Sales", Type: ledger.AccountTypeRevenue, Debit: 0, Credit: 1000},
		{AccountID: 4, Code: "6000", Name: "Rent", Type: ledger.AccountTypeExpense, Debit: 0, Credit: 0},
	}}
	svc := newTestService(t, repo)

	tb, err := svc.TrialBalance(context.Background(), 1, asOf)
	require.NoError(t, err)
	// The zero-activity account is dropped.
	require.Len(t, tb.Rows, 3)
	require.InDelta(t, 1180, tb.Rows[0].Debit, 1e-9)
	require.Zero(t, tb.Rows[0].Credit)
	require.InDelta(t, 180, tb.Rows[1].Credit, 1e-9)
	require.Zero(t, tb.Rows[1].Debit)
	require.InDelta(t, 1180, tb.TotalDebit, 1e-9)
	require.InDelta(t, 1180, tb.TotalCredit, 1e-9)
	require.True(t, tb.IsBalanced)
}

func TestTrialBalanceFlagsImbalance(t *testing.T) {
	repo := &mockRepo{rows: []BalanceRow{
		{AccountID: 1, Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset, Debit: 100, Credit: 0},
		{AccountID: 2, Code: "4000", Name: "Sales", Type: ledger.AccountTypeRevenue, Debit: 0, Credit: 99.50},
	}}
	svc := newTestService(t, repo)

	tb, err := svc.TrialBalance(context.Background(), 1, asOf)
	require.NoError(t, err)
	require.False(t, tb.IsBalanced)
}

func TestTrialBalanceCachesUntilBump(t *testing.T) {
	repo := &mockRepo{rows: []BalanceRow{
		{AccountID: 1, Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset, Debit: 50},
	}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.TrialBalance(ctx, 1, asOf)
	require.NoError(t, err)
	_, err = svc.TrialBalance(ctx, 1, asOf)
	require.NoError(t, err)
	require.Equal(t, 1, repo.balanceCalls)

	require.NoError(t, svc.cache.Bump(ctx))
	_, err = svc.TrialBalance(ctx, 1, asOf)
	require.NoError(t, err)
	require.Equal(t, 2, repo.balanceCalls)
}

func TestCashflowSummary(t *testing.T) {
	repo := &mockRepo{inflow: 900, outflow: 500}
	svc := newTestService(t, repo)
	from := asOf.AddDate(0, -1, 0)

	cf, err := svc.CashflowSummary(context.Background(), 1, from, asOf)
	require.NoError(t, err)
	require.InDelta(t, 900, cf.Inflow, 1e-9)
	require.InDelta(t, 500, cf.Outflow, 1e-9)
	require.InDelta(t, 400, cf.Net, 1e-9)

	_, err = svc.CashflowSummary(context.Background(), 1, from, asOf)
	require.NoError(t, err)
	require.Equal(t, 1, repo.cashCalls)
}

func TestOverviewDegradesFailedAggregate(t *testing.T) {
	repo := &mockRepo{
		rowsErr: errors.New("replica down"),
		inflow:  300,
		outflow: 120,
	}
	svc := newTestService(t, repo)

	overview, err := svc.Overview(context.Background(), 1, asOf.AddDate(0, -1, 0), asOf)
	require.NoError(t, err)
	require.Contains(t, overview.Degraded, "trialBalance")
	require.NotContains(t, overview.Degraded, "cashflow")
	require.Empty(t, overview.TrialBalance.Rows)
	require.InDelta(t, 180, overview.Cashflow.Net, 1e-9)
}

func TestOverviewAllHealthy(t *testing.T) {
	repo := &mockRepo{
		rows: []BalanceRow{
			{AccountID: 1, Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset, Debit: 200},
			{AccountID: 2, Code: "3000", Name: "Capital", Type: ledger.AccountTypeEquity, Credit: 200},
		},
		inflow: 200,
	}
	svc := newTestService(t, repo)

	overview, err := svc.Overview(context.Background(), 1, asOf.AddDate(0, -1, 0), asOf)
	require.NoError(t, err)
	require.Empty(t, overview.Degraded)
	require.True(t, overview.TrialBalance.IsBalanced)
	require.InDelta(t, 200, overview.Cashflow.Inflow, 1e-9)
}

func TestOverviewFailsOnCanceledCaller(t *testing.T) {
	svc := newTestService(t, &mockRepo{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Overview(ctx, 1, asOf.AddDate(0, -1, 0), asOf)
	require.ErrorIs(t, err, context.Canceled)
}
