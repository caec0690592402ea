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
	"github.com/bizledger/bizledger/internal/recon"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReconSweepJob reconciles the customer and supplier subledgers against their
// GL control accounts for every organization. Breaks are logged, never fixed.
type ReconSweepJob struct {
	Recon   *recon.Service
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReconSweepJob wires dependencies for the sweep handler.
func NewReconSweepJob(reconSvc *recon.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconSweepJob {
	return &ReconSweepJob{
		Recon:   reconSvc,
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes reconciliation sweep tasks.
func (j *ReconSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Recon == nil {
		return errors.New("recon sweep: handler not configured")
	}
	var payload ReconSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.CustomerControlCode == "" {
		payload.CustomerControlCode = "1200"
	}
	if payload.SupplierControlCode == "" {
		payload.SupplierControlCode = "2100"
	}

	tracker := j.metrics().Track(TaskReconSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	started := j.clock()
	logger.Info("starting recon sweep")

	orgIDs, err := fetchOrgIDs(ctx, j.Pool)
	if err != nil {
		resultErr = err
		logger.Error("load organizations", slog.Any("error", err))
		return resultErr
	}

	breaks := 0
	for _, orgID := range orgIDs {
		for _, target := range []struct {
			kind recon.CounterpartyKind
			code string
		}{
			{recon.CounterpartyCustomer, payload.CustomerControlCode},
			{recon.CounterpartySupplier, payload.SupplierControlCode},
		} {
			result, err := j.Recon.ReconcileControl(ctx, orgID, target.kind, target.code)
			if err != nil {
				resultErr = err
				logger.Error("reconcile control",
					slog.Int64("org_id", orgID),
					slog.String("kind", string(target.kind)),
					slog.String("control", target.code),
					slog.Any("error", err))
				return resultErr
			}
			if !result.IsReconciled {
				breaks++
				logger.Warn("reconciliation break",
					slog.Int64("org_id", orgID),
					slog.String("kind", string(target.kind)),
					slog.String("control", result.ControlAccount),
					slog.Float64("gl_balance", result.GLBalance),
					slog.Float64("subledger_total", result.SubledgerTotal),
					slog.Float64("difference", result.Difference))
			}
		}
	}

	logger.Info("completed recon sweep",
		slog.Int("organizations", len(orgIDs)),
		slog.Int("breaks", breaks),
		slog.Duration("duration", time.Since(started)))
	return resultErr
}

func (j *ReconSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *ReconSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
