package sequence

import (
	"context"
	"errors"
	"time"

	"github.com/bizledger/bizledger/internal/shared"
)

// Store persists issued numbers per (organization, series key). LastNumber is
// expected to lock the series row so concurrent allocations serialize on the
// same transaction boundary as the record that consumes the number.
type Store interface {
	LastNumber(ctx context.Context, orgID int64, seriesKey string) (string, error)
	Record(ctx context.Context, orgID int64, seriesKey, number string, at time.Time) error
}

// Service issues gap-free, monotonically increasing document numbers. The
// Store is passed per call because it must be bound to the transaction of the
// document that consumes the number.
type Service struct {
	now func() time.Time
}

// NewService constructs the generator.
func NewService() *Service {
	return &Service{now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Next issues the next number for the series. It must be called inside the
// same transaction as the insert that consumes the number; the Store row lock
// is what prevents two concurrent callers from both succeeding with the same
// number.
func (s *Service) Next(ctx context.Context, store Store, orgID int64, series Series) (string, error) {
	if orgID == 0 {
		return "", shared.ErrValidation
	}
	if series.Prefix == "" {
		return "", shared.ErrValidation
	}
	at := s.now().UTC()
	key := series.Key(at)
	last, err := store.LastNumber(ctx, orgID, key)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return "", err
	}
	n := 0
	if err == nil {
		n = ParseSuffix(last)
	}
	number := series.Format(n+1, at)
	if err := store.Record(ctx, orgID, key, number, at); err != nil {
		return "", err
	}
	return number, nil
}
