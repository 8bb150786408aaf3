package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/treasury-erp/treasury-erp/internal/jobs"
	"github.com/treasury-erp/treasury-erp/internal/workflow"
)

// OverspendJob raises a manual review signal for settlements that used more than was
// disbursed. It leaves the settlement status untouched.
type OverspendJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOverspendJob initialises the overspend review handler.
func NewOverspendJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *OverspendJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverspendJob{Logger: logger, Metrics: metrics}
}

// Handle processes one overspend review.
func (j *OverspendJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	var review workflow.OverspendReview
	if err := json.Unmarshal(t.Payload(), &review); err != nil {
		return asynq.SkipRetry
	}
	if review.SettlementID == uuid.Nil || !review.Overspend.IsPositive() {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskSettlementOverspend)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	j.Metrics.AddOverspend()
	j.Logger.Warn("settlement overspend requires review",
		slog.String("job", TaskSettlementOverspend),
		slog.String("request_id", review.RequestID.String()),
		slog.String("disbursement_id", review.DisbursementID.String()),
		slog.String("settlement_id", review.SettlementID.String()),
		slog.String("department", review.Department),
		slog.String("overspend", review.Overspend.String()),
	)
	return nil
}
