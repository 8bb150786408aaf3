package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	driftCount  prometheus.Gauge
	overspends  prometheus.Counter
	keysCleaned prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetLedgerDrift records how many approved budgets disagreed with their disbursements and
// settlements in the latest reconciliation.
func (m *Metrics) SetLedgerDrift(count int) {
	if m == nil {
		return
	}
	m.driftCount.Set(float64(count))
}

// AddOverspend counts settlements flagged for manual review.
func (m *Metrics) AddOverspend() {
	if m == nil {
		return
	}
	m.overspends.Inc()
}

// AddKeysCleaned counts expired idempotency keys removed.
func (m *Metrics) AddKeysCleaned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.keysCleaned.Add(float64(n))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "treasury_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "treasury_ledger_drift_budgets",
		Help: "Approved budgets whose remaining amount disagrees with the ledger in the last reconciliation.",
	})
	overspends := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treasury_settlement_overspend_reviews_total",
		Help: "Settlements whose used amount exceeded the disbursement.",
	})
	cleaned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treasury_idempotency_keys_cleaned_total",
		Help: "Expired idempotency keys removed by the cleanup job.",
	})
	registerer.MustRegister(runs, failures, duration, drift, overspends, cleaned)
	return &Metrics{runs: runs, failures: failures, duration: duration, driftCount: drift, overspends: overspends, keysCleaned: cleaned}
}
