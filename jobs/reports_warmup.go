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
	"github.com/bizledger/bizledger/internal/reports"
)

// ReportsWarmupJob pre-populates the report cache so the first dashboard load
// after the nightly bump does not pay the cold-build cost.
type ReportsWarmupJob struct {
	Reports *reports.Service
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportsWarmupJob wires dependencies for the warmup handler.
func NewReportsWarmupJob(reportsSvc *reports.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportsWarmupJob {
	return &ReportsWarmupJob{
		Reports: reportsSvc,
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes report warmup tasks.
func (j *ReportsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload ReportsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReportsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	now := j.clock()
	logger.Info("starting reports warmup")

	orgIDs, err := fetchOrgIDs(ctx, j.Pool)
	if err != nil {
		resultErr = err
		logger.Error("load organizations", slog.Any("error", err))
		return resultErr
	}

	warmed := 0
	for _, orgID := range orgIDs {
		if err := j.warmOrg(ctx, orgID, now); err != nil {
			resultErr = err
			logger.Error("warm organization", slog.Int64("org_id", orgID), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}

	logger.Info("completed reports warmup",
		slog.Int("organizations", warmed),
		slog.Duration("duration", time.Since(now)))
	return resultErr
}

func (j *ReportsWarmupJob) warmOrg(ctx context.Context, orgID int64, now time.Time) error {
	// Keep each organization bounded so one slow tenant cannot stall the run.
	orgCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := j.Reports.TrialBalance(orgCtx, orgID, now); err != nil {
		return err
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	_, err := j.Reports.CashflowSummary(orgCtx, orgID, monthStart, now)
	return err
}

func (j *ReportsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *ReportsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
