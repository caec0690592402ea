package reports

import (
	"context"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bizledger/bizledger/internal/ledger"
)

// Repository exposes the aggregation queries the service relies on.
type Repository interface {
	AccountBalances(ctx context.Context, orgID int64, asOf time.Time) ([]BalanceRow, error)
	CashMovement(ctx context.Context, orgID int64, from, to time.Time) (inflow, outflow float64, err error)
}

// Service coordinates report construction with the cache layer. Concurrent
// requests for the same cold report share one build via singleflight.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// TrialBalance builds the as-of trial balance, served from cache when warm.
func (s *Service) TrialBalance(ctx context.Context, orgID int64, asOf time.Time) (TrialBalance, error) {
	loader := func(ctx context.Context) (interface{}, error) {
		return s.buildTrialBalance(ctx, orgID, asOf)
	}

	keyBase := keyTrialBalance(orgID, asOf)
	key, err := s.cache.BuildKey(ctx, keyBase)
	if err != nil {
		return TrialBalance{}, err
	}
	var tb TrialBalance
	err = s.cache.FetchJSON(ctx, key, &tb, func(ctx context.Context) (interface{}, error) {
		ch := s.group.DoChan(key, func() (interface{}, error) {
			return loader(ctx)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			return res.Val, res.Err
		}
	})
	if err != nil {
		return TrialBalance{}, err
	}
	return tb, nil
}

func (s *Service) buildTrialBalance(ctx context.Context, orgID int64, asOf time.Time) (TrialBalance, error) {
	rows, err := s.repo.AccountBalances(ctx, orgID, asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := TrialBalance{AsOf: asOf, Rows: make([]TrialBalanceRow, 0, len(rows))}
	for _, row := range rows {
		if row.Debit == 0 && row.Credit == 0 {
			continue
		}
		net := row.Debit - row.Credit
		out := TrialBalanceRow{
			AccountID: row.AccountID,
			Code:      row.Code,
			Name:      row.Name,
			Type:      row.Type,
		}
		if net >= 0 {
			out.Debit = net
		} else {
			out.Credit = -net
		}
		tb.TotalDebit += out.Debit
		tb.TotalCredit += out.Credit
		tb.Rows = append(tb.Rows, out)
	}
	tb.IsBalanced = math.Abs(tb.TotalDebit-tb.TotalCredit) <= ledger.BalanceEpsilon
	return tb, nil
}

// CashflowSummary totals cash and bank movement for the period.
func (s *Service) CashflowSummary(ctx context.Context, orgID int64, from, to time.Time) (CashflowSummary, error) {
	loader := func(ctx context.Context) (interface{}, error) {
		inflow, outflow, err := s.repo.CashMovement(ctx, orgID, from, to)
		if err != nil {
			return nil, err
		}
		return CashflowSummary{From: from, To: to, Inflow: inflow, Outflow: outflow, Net: inflow - outflow}, nil
	}

	key, err := s.cache.BuildKey(ctx, keyCashflow(orgID, from, to))
	if err != nil {
		return CashflowSummary{}, err
	}
	var summary CashflowSummary
	if err := s.cache.FetchJSON(ctx, key, &summary, loader); err != nil {
		return CashflowSummary{}, err
	}
	return summary, nil
}

// Overview assembles the dashboard aggregates in parallel. A sub-aggregate
// that fails is logged and left zero-valued; only a cancelled context fails
// the whole call.
func (s *Service) Overview(ctx context.Context, orgID int64, from, to time.Time) (Overview, error) {
	var overview Overview
	var tbFailed, cfFailed bool
	parent := ctx
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tb, err := s.TrialBalance(ctx, orgID, to)
		if err != nil {
			s.logger.Warn("trial balance aggregate failed", slog.Int64("org_id", orgID), slog.String("error", err.Error()))
			tbFailed = true
			return nil
		}
		overview.TrialBalance = tb
		return nil
	})

	g.Go(func() error {
		cf, err := s.CashflowSummary(ctx, orgID, from, to)
		if err != nil {
			s.logger.Warn("cashflow aggregate failed", slog.Int64("org_id", orgID), slog.String("error", err.Error()))
			cfFailed = true
			return nil
		}
		overview.Cashflow = cf
		return nil
	})

	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	// The group context is canceled once Wait returns; only the caller's
	// cancellation fails the call.
	if err := parent.Err(); err != nil {
		return Overview{}, err
	}
	if tbFailed {
		overview.Degraded = append(overview.Degraded, "trialBalance")
	}
	if cfFailed {
		overview.Degraded = append(overview.Degraded, "cashflow")
	}
	return overview, nil
}
