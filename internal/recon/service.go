package recon

import (
	"context"
	"errors"
	"math"

	"github.com/bizledger/bizledger/internal/ledger"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes subledger persistence inside a transaction.
type TxRepository interface {
	// TransactionsForUpdate returns the counterparty's transactions ordered
	// by date then id, locked against concurrent recomputation.
	TransactionsForUpdate(ctx context.Context, orgID, counterpartyID int64) ([]Transaction, error)
	UpdateRunningBalance(ctx context.Context, txnID int64, runningBalance float64) error
	UpdateCounterpartyBalance(ctx context.Context, orgID, counterpartyID int64, balance float64) error
	AppendTransaction(ctx context.Context, txn Transaction) (int64, error)
	SumCounterpartyBalances(ctx context.Context, orgID int64, kind CounterpartyKind) (float64, error)
}

// LedgerPort reads derived control-account balances from the general ledger.
type LedgerPort interface {
	ControlBalance(ctx context.Context, orgID int64, accountCode string) (float64, ledger.AccountType, error)
}

// Service derives counterparty running balances and cross-checks them
// against the general ledger.
type Service struct {
	repo RepositoryPort
	gl   LedgerPort
}

// NewService constructs the reconciliation service.
func NewService(repo RepositoryPort, gl LedgerPort) *Service {
	return &Service{repo: repo, gl: gl}
}

// RecomputeBalance rebuilds running balances for a counterparty as a left
// fold over its dated transaction history. The procedure is a pure function
// of that history, so running it repeatedly yields identical results.
func (s *Service) RecomputeBalance(ctx context.Context, orgID, counterpartyID int64) (RecomputeResult, error) {
	if orgID == 0 || counterpartyID == 0 {
		return RecomputeResult{}, errors.New("recon: org and counterparty required")
	}
	var result RecomputeResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := s.recomputeTx(ctx, tx, orgID, counterpartyID)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return RecomputeResult{}, err
	}
	return result, nil
}

// RecomputeBalanceTx runs the recomputation inside a caller-owned
// transaction, for composition with document posting.
func (s *Service) RecomputeBalanceTx(ctx context.Context, tx TxRepository, orgID, counterpartyID int64) (RecomputeResult, error) {
	return s.recomputeTx(ctx, tx, orgID, counterpartyID)
}

func (s *Service) recomputeTx(ctx context.Context, tx TxRepository, orgID, counterpartyID int64) (RecomputeResult, error) {
	txns, err := tx.TransactionsForUpdate(ctx, orgID, counterpartyID)
	if err != nil {
		return RecomputeResult{}, err
	}
	running := 0.0
	for i := range txns {
		signed, err := SignedAmount(txns[i].Kind, txns[i].Amount)
		if err != nil {
			return RecomputeResult{}, err
		}
		running += signed
		txns[i].RunningBalance = running
		if err := tx.UpdateRunningBalance(ctx, txns[i].ID, running); err != nil {
			return RecomputeResult{}, err
		}
	}
	if err := tx.UpdateCounterpartyBalance(ctx, orgID, counterpartyID, running); err != nil {
		return RecomputeResult{}, err
	}
	return RecomputeResult{Balance: running, Transactions: txns}, nil
}

// AppendTransactionTx records a new subledger movement and recomputes the
// counterparty inside the caller's unit of work.
func (s *Service) AppendTransactionTx(ctx context.Context, tx TxRepository, txn Transaction) (RecomputeResult, error) {
	if _, err := SignedAmount(txn.Kind, txn.Amount); err != nil {
		return RecomputeResult{}, err
	}
	if _, err := tx.AppendTransaction(ctx, txn); err != nil {
		return RecomputeResult{}, err
	}
	return s.recomputeTx(ctx, tx, txn.OrgID, txn.CounterpartyID)
}

// Reconcile compares an externally supplied subledger total against the
// GL-derived balance of the control account. Liability-type control accounts
// are credit normal, so the derived debit-minus-credit balance is negated
// before comparison.
func (s *Service) Reconcile(ctx context.Context, orgID int64, controlAccountCode string, subledgerTotal float64) (ReconcileResult, error) {
	glBalance, accountType, err := s.gl.ControlBalance(ctx, orgID, controlAccountCode)
	if err != nil {
		return ReconcileResult{}, err
	}
	if accountType == ledger.AccountTypeLiability || accountType == ledger.AccountTypeEquity {
		glBalance = -glBalance
	}
	diff := subledgerTotal - glBalance
	return ReconcileResult{
		ControlAccount: controlAccountCode,
		GLBalance:      glBalance,
		SubledgerTotal: subledgerTotal,
		Difference:     diff,
		IsReconciled:   math.Abs(diff) <= ReconcileEpsilon,
	}, nil
}

// ReconcileControl sums every counterparty balance of the given kind and
// reconciles the total against the control account.
func (s *Service) ReconcileControl(ctx context.Context, orgID int64, kind CounterpartyKind, controlAccountCode string) (ReconcileResult, error) {
	var total float64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		total, err = tx.SumCounterpartyBalances(ctx, orgID, kind)
		return err
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	return s.Reconcile(ctx, orgID, controlAccountCode, total)
}
