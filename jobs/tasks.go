package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/treasury-erp/treasury-erp/internal/workflow"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile compares every approved budget with its disbursements and settlements.
	TaskLedgerReconcile = "treasury:ledger:reconcile"
	// TaskIdempotencyCleanup removes expired idempotency keys.
	TaskIdempotencyCleanup = "treasury:idempotency:cleanup"
	// TaskSettlementOverspend flags a settlement that used more than was disbursed.
	TaskSettlementOverspend = "treasury:settlement:overspend"
)

// ReconcilePayload optionally narrows a reconciliation run.
type ReconcilePayload struct {
	Department string `json:"department,omitempty"`
	FiscalYear int    `json:"fiscal_year,omitempty"`
	Quarter    int    `json:"quarter,omitempty"`
}

// CleanupPayload overrides the retention window of one cleanup run.
type CleanupPayload struct {
	Retention time.Duration `json:"retention,omitempty"`
}

// NewReconcileTask constructs a ledger reconciliation task.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewCleanupTask constructs an idempotency cleanup task.
func NewCleanupTask(payload CleanupPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// NewOverspendTask constructs an overspend review task.
func NewOverspendTask(review workflow.OverspendReview) (*asynq.Task, error) {
	body, err := json.Marshal(review)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementOverspend, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}
