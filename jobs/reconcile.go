package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/treasury-erp/treasury-erp/internal/budget"
	jobmetrics "github.com/treasury-erp/treasury-erp/internal/jobs"
)

// OverviewSource reads the ledger read model. Satisfied by budget.Repository.
type OverviewSource interface {
	Overview(ctx context.Context, filter budget.OverviewFilter) ([]budget.OverviewLine, error)
}

// ReconcileJob recomputes every approved budget from its disbursements and settlements and
// reports budgets whose remaining amount disagrees. It never writes.
type ReconcileJob struct {
	Source  OverviewSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconcileJob initialises the reconciliation handler.
func NewReconcileJob(source OverviewSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle executes one reconciliation run.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil {
		return errors.New("ledger reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskLedgerReconcile)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	_, err := j.Run(ctx, payload)
	return err
}

// Run reconciles the budgets matching payload and returns the drifting lines.
func (j *ReconcileJob) Run(ctx context.Context, payload ReconcilePayload) ([]budget.OverviewLine, error) {
	start := time.Now()
	logger := j.logger()
	lines, err := j.Source.Overview(ctx, budget.OverviewFilter{
		Department: payload.Department,
		FiscalYear: payload.FiscalYear,
		Quarter:    payload.Quarter,
	})
	if err != nil {
		logger.Error("ledger reconcile failed", slog.Any("error", err))
		return nil, err
	}

	var drifting []budget.OverviewLine
	for _, line := range lines {
		drift := line.Drift()
		if drift.IsZero() {
			continue
		}
		drifting = append(drifting, line)
		logger.Warn("ledger drift detected",
			slog.String("budget_id", line.BudgetID.String()),
			slog.String("department", line.Department),
			slog.Int("fiscal_year", line.FiscalYear),
			slog.Int("fiscal_quarter", line.FiscalQuarter),
			slog.String("remaining", line.Remaining.String()),
			slog.String("expected", line.Expected().String()),
			slog.String("drift", drift.String()),
		)
	}
	j.Metrics.SetLedgerDrift(len(drifting))
	logger.Info("completed ledger reconcile",
		slog.Int("budgets", len(lines)),
		slog.Int("drifting", len(drifting)),
		slog.Duration("duration", time.Since(start)),
	)
	return drifting, nil
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default().With(slog.String("job", TaskLedgerReconcile))
	}
	return j.Logger.With(slog.String("job", TaskLedgerReconcile))
}
