package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizledger/bizledger/internal/sequence"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepo{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Bind exposes the ledger's transactional repository over an externally
// owned tx so posting can join another module's unit of work.
func Bind(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

func (r *txRepo) Sequences() sequence.Store {
	return sequence.NewTxStore(r.tx)
}

const accountColumns = `id, org_id, code, name, type, sub_type, parent_id, is_system, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var typ string
	err := row.Scan(&a.ID, &a.OrgID, &a.Code, &a.Name, &typ, &a.SubType, &a.ParentID, &a.IsSystem, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	a.Type = AccountType(typ)
	return a, nil
}

func (r *txRepo) GetAccount(ctx context.Context, orgID, accountID int64) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE org_id = $1 AND id = $2`, orgID, accountID)
	return scanAccount(row)
}

func (r *txRepo) GetAccountByCode(ctx context.Context, orgID int64, code string) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE org_id = $1 AND code = $2`, orgID, code)
	return scanAccount(row)
}

func (r *txRepo) ListAccounts(ctx context.Context, orgID int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE org_id = $1 ORDER BY code`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *txRepo) InsertAccount(ctx context.Context, a Account) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO accounts (org_id, code, name, type, sub_type, parent_id, is_system, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		a.OrgID, a.Code, a.Name, string(a.Type), a.SubType, a.ParentID, a.IsSystem, a.IsActive, a.CreatedAt, a.UpdatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateCode
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepo) UpdateAccount(ctx context.Context, a Account) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET name = $3, sub_type = $4, parent_id = $5, is_active = $6, updated_at = $7 WHERE org_id = $1 AND id = $2`,
		a.OrgID, a.ID, a.Name, a.SubType, a.ParentID, a.IsActive, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepo) DeleteAccount(ctx context.Context, orgID, accountID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE org_id = $1 AND id = $2 AND is_system = FALSE`, orgID, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepo) CountChildren(ctx context.Context, orgID, accountID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT count(*) FROM accounts WHERE org_id = $1 AND parent_id = $2`, orgID, accountID).Scan(&count)
	return count, err
}

func (r *txRepo) CountAccountLines(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT count(*) FROM journal_lines WHERE account_id = $1`, accountID).Scan(&count)
	return count, err
}

func (r *txRepo) InsertEntry(ctx context.Context, e JournalEntry) (int64, error) {
	var sourceKind, sourceID any
	if e.Source != nil {
		sourceKind = string(e.Source.Kind)
		sourceID = e.Source.ID
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (org_id, number, entry_date, description, status, source_kind, source_id, void_of_id, voided_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		e.OrgID, e.Number, e.Date, e.Description, string(e.Status), sourceKind, sourceID, e.VoidOfID, e.VoidedAt, e.CreatedAt, e.UpdatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		var id int64
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_id, debit, credit, description)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			entryID, line.AccountID, line.Debit, line.Credit, line.Description).Scan(&id)
		if err != nil {
			return nil, err
		}
		out = append(out, JournalLine{
			ID:          id,
			EntryID:     entryID,
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
		})
	}
	return out, nil
}

func (r *txRepo) GetEntryForUpdate(ctx context.Context, orgID, entryID int64) (JournalEntry, error) {
	var e JournalEntry
	var status string
	var sourceKind *string
	var sourceID *uuid.UUID
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, number, entry_date, description, status, source_kind, source_id, void_of_id, voided_at, created_at, updated_at
FROM journal_entries WHERE org_id = $1 AND id = $2 FOR UPDATE`, orgID, entryID).Scan(
		&e.ID, &e.OrgID, &e.Number, &e.Date, &e.Description, &status, &sourceKind, &sourceID, &e.VoidOfID, &e.VoidedAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return JournalEntry{}, ErrEntryNotFound
	}
	if err != nil {
		return JournalEntry{}, err
	}
	e.Status = EntryStatus(status)
	if sourceKind != nil && sourceID != nil {
		e.Source = &SourceRef{Kind: SourceKind(*sourceKind), ID: *sourceID}
	}

	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, description FROM journal_lines WHERE entry_id = $1 ORDER BY id`, e.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.Description); err != nil {
			return JournalEntry{}, err
		}
		e.Lines = append(e.Lines, line)
	}
	return e, rows.Err()
}

func (r *txRepo) UpdateEntryStatus(ctx context.Context, entryID int64, status EntryStatus, voidedAt *time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status = $2, voided_at = COALESCE($3, voided_at), updated_at = NOW() WHERE id = $1`, entryID, string(status), voidedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepo) ReplaceDraftLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id = $1`, entryID); err != nil {
		return nil, err
	}
	return r.InsertLines(ctx, entryID, lines)
}

func (r *txRepo) UpdateDraftHeader(ctx context.Context, entryID int64, date time.Time, description string) error {
	_, err := r.tx.Exec(ctx, `UPDATE journal_entries SET entry_date = $2, description = $3, updated_at = NOW() WHERE id = $1 AND status = 'DRAFT'`, entryID, date, description)
	return err
}

func (r *txRepo) DeleteEntry(ctx context.Context, entryID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id = $1`, entryID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id = $1 AND status = 'DRAFT'`, entryID)
	return err
}

// AccountBalance sums every non-draft line. VOID entries stay in the sum;
// their posted reversal is what cancels them.
func (r *txRepo) AccountBalance(ctx context.Context, orgID, accountID int64) (float64, error) {
	var balance float64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit - l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.org_id = $1 AND l.account_id = $2 AND e.status <> 'DRAFT'`, orgID, accountID).Scan(&balance)
	return balance, err
}
