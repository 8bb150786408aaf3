package perf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	"github.com/treasury-erp/treasury-erp/internal/budget"
	jobmetrics "github.com/treasury-erp/treasury-erp/internal/jobs"
	"github.com/treasury-erp/treasury-erp/jobs"
)

type overviewStub struct {
	lines []budget.OverviewLine
	fail  int
	calls int
}

func (s *overviewStub) Overview(ctx context.Context, filter budget.OverviewFilter) ([]budget.OverviewLine, error) {
	s.calls++
	if s.calls <= s.fail {
		return nil, errors.New("connection reset")
	}
	return s.lines, nil
}

func overviewLines(n int) []budget.OverviewLine {
	lines := make([]budget.OverviewLine, n)
	for i := range lines {
		lines[i] = budget.OverviewLine{
			BudgetID:      uuid.New(),
			Department:    "Engineering",
			FiscalYear:    2024,
			FiscalQuarter: 1 + i%4,
			Allocated:     decimal.NewFromInt(100000),
			Committed:     decimal.NewFromInt(2500),
			Spent:         decimal.NewFromInt(4000),
			Remaining:     decimal.NewFromInt(93500),
		}
	}
	return lines
}

func TestReconcileThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	source := &overviewStub{lines: overviewLines(500), fail: 3}
	job := jobs.NewReconcileJob(source, logger, metrics)
	task := asynq.NewTask(jobs.TaskLedgerReconcile, nil)

	for i := 0; i < 60; i++ {
		_ = job.Handle(context.Background(), task)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "treasury_jobs_total", map[string]string{"job": jobs.TaskLedgerReconcile, "status": "success"})
	failure := metricValue(t, families, "treasury_jobs_total", map[string]string{"job": jobs.TaskLedgerReconcile, "status": "failure"})
	if success+failure != 60 {
		t.Fatalf("expected 60 runs, got %f", success+failure)
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("reconcile success ratio too low: %f", ratio)
	}

	if drift := metricValue(t, families, "treasury_ledger_drift_budgets", nil); drift != 0 {
		t.Fatalf("balanced ledger reported drift: %f", drift)
	}

	if mean := histogramMean(t, families, "treasury_job_duration_seconds", map[string]string{"job": jobs.TaskLedgerReconcile}); mean > 0.5 {
		t.Fatalf("reconcile duration above budget: %f", mean)
	}
}

func BenchmarkReconcileRun(b *testing.B) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	job := jobs.NewReconcileJob(&overviewStub{lines: overviewLines(1000)}, logger, nil)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := job.Run(context.Background(), jobs.ReconcilePayload{}); err != nil {
			b.Fatal(err)
		}
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for key, want := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = lp.GetValue() == want
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
