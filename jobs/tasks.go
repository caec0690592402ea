package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskReconSweep reconciles every control account against its subledger.
	TaskReconSweep = "recon:sweep"
	// TaskLedgerIntegrity re-checks that every posted entry still balances.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskReportsWarmup pre-populates the report cache for every organization.
	TaskReportsWarmup = "reports:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ReconSweepPayload names the control accounts swept for each subledger kind.
type ReconSweepPayload struct {
	CustomerControlCode string `json:"customer_control_code"`
	SupplierControlCode string `json:"supplier_control_code"`
}

// NewReconSweepTask constructs an Asynq task for the reconciliation sweep.
func NewReconSweepTask(payload ReconSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconSweep, data, asynq.Queue(QueueDefault)), nil
}

// LedgerIntegrityPayload carries scheduling metadata for the integrity check.
type LedgerIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the ledger integrity check.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data, asynq.Queue(QueueDefault)), nil
}

// ReportsWarmupPayload carries scheduling metadata for report warmup.
type ReportsWarmupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReportsWarmupTask constructs an Asynq task for report cache warmup.
func NewReportsWarmupTask(at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(ReportsWarmupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, data, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload sets how long processed keys are retained.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}
