package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bizledger/bizledger/internal/shared"
)

// TxStore reads and records issued numbers inside a caller-owned transaction.
// Callers allocating a number for a document pass their open tx so the number
// and the document commit or roll back together.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps an open transaction.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// LastNumber returns the most recently issued number for the series. It first
// upserts the per-series row in doc_series and holds its row lock, so two
// concurrent allocators serialize even when the series has no issued numbers
// yet.
func (s *TxStore) LastNumber(ctx context.Context, orgID int64, seriesKey string) (string, error) {
	if _, err := s.tx.Exec(ctx, `INSERT INTO doc_series (org_id, series_key) VALUES ($1, $2)
ON CONFLICT (org_id, series_key) DO UPDATE SET series_key = EXCLUDED.series_key`, orgID, seriesKey); err != nil {
		return "", err
	}
	var number string
	err := s.tx.QueryRow(ctx, `SELECT number FROM doc_numbers WHERE org_id = $1 AND series_key = $2 ORDER BY id DESC LIMIT 1`, orgID, seriesKey).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return number, nil
}

// Record registers the issued number. A unique violation means another
// transaction issued the same number first; the caller may retry.
func (s *TxStore) Record(ctx context.Context, orgID int64, seriesKey, number string, at time.Time) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO doc_numbers (org_id, series_key, number, issued_at) VALUES ($1, $2, $3, $4)`, orgID, seriesKey, number, at)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: number %s already issued", shared.ErrConflict, number)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
