package ledger

import (
	"context"
	"errors"
	"fmt"
)

// maxTreeDepth bounds the parent-chain walk; a well-formed chart never nests
// this deep, so hitting the bound is treated as a cycle.
const maxTreeDepth = 64

// CreateAccount inserts a chart-of-accounts node after validating the parent
// chain. A child's type must equal its parent's and the chain must stay
// acyclic.
func (s *Service) CreateAccount(ctx context.Context, input AccountInput) (Account, error) {
	if input.OrgID == 0 || input.Code == "" || input.Name == "" {
		return Account{}, errors.New("ledger: org, code and name required")
	}
	switch input.Type {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
	default:
		return Account{}, errors.New("ledger: unknown account type")
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccountByCode(ctx, input.OrgID, input.Code); err == nil {
			return ErrDuplicateCode
		} else if !errors.Is(err, ErrAccountNotFound) {
			return err
		}
		if input.ParentID != nil {
			parent, err := tx.GetAccount(ctx, input.OrgID, *input.ParentID)
			if err != nil {
				return err
			}
			if parent.Type != input.Type {
				return ErrAccountTypeMismatch
			}
			if err := walkParentChain(ctx, tx, input.OrgID, parent, 0); err != nil {
				return err
			}
		}
		now := s.now().UTC()
		account = Account{
			OrgID:     input.OrgID,
			Code:      input.Code,
			Name:      input.Name,
			Type:      input.Type,
			SubType:   input.SubType,
			ParentID:  input.ParentID,
			IsSystem:  input.IsSystem,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		id, err := tx.InsertAccount(ctx, account)
		if err != nil {
			return err
		}
		account.ID = id
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// UpdateAccount changes name, sub-type, or parent. System accounts accept
// only a name change; their type and parent are frozen.
func (s *Service) UpdateAccount(ctx context.Context, orgID, accountID int64, input AccountInput) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccount(ctx, orgID, accountID)
		if err != nil {
			return err
		}
		if current.IsSystem {
			if input.Type != current.Type || !parentEqual(input.ParentID, current.ParentID) {
				return ErrSystemAccount
			}
		}
		if input.Type != current.Type {
			// Changing type would break the parent/child type invariant and
			// historic reporting; require a fresh account instead.
			return ErrAccountTypeMismatch
		}
		if input.ParentID != nil {
			if *input.ParentID == current.ID {
				return ErrAccountCycle
			}
			parent, err := tx.GetAccount(ctx, orgID, *input.ParentID)
			if err != nil {
				return err
			}
			if parent.Type != current.Type {
				return ErrAccountTypeMismatch
			}
			if err := checkNoCycle(ctx, tx, orgID, current.ID, parent); err != nil {
				return err
			}
		}
		current.Name = input.Name
		current.SubType = input.SubType
		current.ParentID = input.ParentID
		current.UpdatedAt = s.now().UTC()
		if err := tx.UpdateAccount(ctx, current); err != nil {
			return err
		}
		account = current
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// SetAccountActive soft-enables or disables an account. System accounts
// cannot be deactivated.
func (s *Service) SetAccountActive(ctx context.Context, orgID, accountID int64, active bool) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccount(ctx, orgID, accountID)
		if err != nil {
			return err
		}
		if current.IsSystem && !active {
			return ErrSystemAccount
		}
		current.IsActive = active
		current.UpdatedAt = s.now().UTC()
		return tx.UpdateAccount(ctx, current)
	})
}

// DeleteAccount hard-deletes an account only when nothing references it: no
// children, no journal lines, not a system account.
func (s *Service) DeleteAccount(ctx context.Context, orgID, accountID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccount(ctx, orgID, accountID)
		if err != nil {
			return err
		}
		if current.IsSystem {
			return ErrSystemAccount
		}
		children, err := tx.CountChildren(ctx, orgID, accountID)
		if err != nil {
			return err
		}
		lines, err := tx.CountAccountLines(ctx, accountID)
		if err != nil {
			return err
		}
		if children > 0 || lines > 0 {
			return fmt.Errorf("%w: %s", ErrAccountInUse, current.Code)
		}
		return tx.DeleteAccount(ctx, orgID, accountID)
	})
}

// ListAccounts returns the chart of accounts ordered by code.
func (s *Service) ListAccounts(ctx context.Context, orgID int64) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, orgID)
		return err
	})
	return accounts, err
}

// walkParentChain follows parent references upward with an explicit visited
// set and depth bound rather than recursion.
func walkParentChain(ctx context.Context, tx TxRepository, orgID int64, start Account, _ int) error {
	visited := map[int64]bool{}
	node := start
	for depth := 0; depth < maxTreeDepth; depth++ {
		if visited[node.ID] {
			return ErrAccountCycle
		}
		visited[node.ID] = true
		if node.ParentID == nil {
			return nil
		}
		parent, err := tx.GetAccount(ctx, orgID, *node.ParentID)
		if err != nil {
			return err
		}
		node = parent
	}
	return ErrAccountCycle
}

// checkNoCycle verifies that re-parenting account id under newParent does not
// create a loop: the chain above newParent must never reach id.
func checkNoCycle(ctx context.Context, tx TxRepository, orgID, id int64, newParent Account) error {
	visited := map[int64]bool{}
	node := newParent
	for depth := 0; depth < maxTreeDepth; depth++ {
		if node.ID == id {
			return ErrAccountCycle
		}
		if visited[node.ID] {
			return ErrAccountCycle
		}
		visited[node.ID] = true
		if node.ParentID == nil {
			return nil
		}
		parent, err := tx.GetAccount(ctx, orgID, *node.ParentID)
		if err != nil {
			return err
		}
		node = parent
	}
	return ErrAccountCycle
}

func parentEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
