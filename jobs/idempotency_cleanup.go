package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bizledger/bizledger/internal/jobs"
	"github.com/bizledger/bizledger/internal/shared"
)

// IdempotencyCleanupJob prunes idempotency keys older than the retention
// window. Keys must outlive any realistic client retry horizon.
type IdempotencyCleanupJob struct {
	Store   *shared.IdempotencyStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob wires dependencies for the cleanup handler.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes idempotency cleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		payload.Retention = 7 * 24 * time.Hour
	}

	tracker := j.metrics().Track(TaskIdempotencyCleanup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := j.Store.Cleanup(ctx, payload.Retention); err != nil {
		resultErr = err
		logger.Error("cleanup idempotency keys", slog.Any("error", err))
		return resultErr
	}
	logger.Info("cleaned up idempotency keys", slog.Duration("retention", payload.Retention))
	return resultErr
}

func (j *IdempotencyCleanupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
