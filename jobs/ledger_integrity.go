package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/bizledger/bizledger/internal/jobs"
	"github.com/bizledger/bizledger/internal/ledger"
)

// LedgerIntegrityJob re-verifies the double-entry invariant over posted
// entries. An unbalanced posted entry means a write path bypassed the
// service layer; the job reports it and leaves the data untouched.
type LedgerIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob wires dependencies for the integrity handler.
func NewLedgerIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle processes ledger integrity tasks.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	started := time.Now()

	const query = `
SELECT e.id, e.org_id, COALESCE(SUM(l.debit - l.credit), 0) AS imbalance
FROM journal_entries e
LEFT JOIN journal_lines l ON l.entry_id = e.id
WHERE e.status = 'POSTED'
GROUP BY e.id, e.org_id
HAVING ABS(COALESCE(SUM(l.debit - l.credit), 0)) > $1`

	rows, err := j.Pool.Query(ctx, query, ledger.BalanceEpsilon)
	if err != nil {
		resultErr = err
		logger.Error("scan posted entries", slog.Any("error", err))
		return resultErr
	}
	defer rows.Close()

	broken := 0
	for rows.Next() {
		var entryID, orgID int64
		var imbalance float64
		if err := rows.Scan(&entryID, &orgID, &imbalance); err != nil {
			resultErr = err
			return resultErr
		}
		broken++
		logger.Error("posted entry out of balance",
			slog.Int64("entry_id", entryID),
			slog.Int64("org_id", orgID),
			slog.Float64("imbalance", imbalance))
	}
	if err := rows.Err(); err != nil {
		resultErr = err
		return resultErr
	}

	logger.Info("completed ledger integrity check",
		slog.Int("broken_entries", broken),
		slog.Duration("duration", time.Since(started)))
	return resultErr
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
