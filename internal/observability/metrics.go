package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/treasury-erp/treasury-erp/internal/platform/db"
	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// Workflow outcome labels.
const (
	OutcomeSuccess      = "success"
	OutcomeAutoRejected = "auto_rejected"
	OutcomeValidation   = "validation"
	OutcomeNotFound     = "not_found"
	OutcomeInvalidState = "invalid_state"
	OutcomeConflict     = "conflict"
	OutcomeOverdrawn    = "overdrawn"
	OutcomeError        = "error"
)

// Metrics collects the Prometheus metrics of the API process.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	workflowTotal   *prometheus.CounterVec
	movedAmount     *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "treasury_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	workflow := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_workflow_operations_total",
		Help: "Budget workflow operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	moved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_ledger_amount_total",
		Help: "Amounts moved through the budget ledger by direction.",
	}, []string{"direction"})
	registry.MustRegister(requests, duration, workflow, moved)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		workflowTotal:   workflow,
		movedAmount:     moved,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveWorkflow counts one workflow operation, deriving the outcome label from err when
// outcome is empty.
func (m *Metrics) ObserveWorkflow(operation, outcome string, err error) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = OutcomeFor(err)
	}
	m.workflowTotal.WithLabelValues(operation, outcome).Inc()
}

// WorkflowCounter returns the counter for one operation and outcome pair.
func (m *Metrics) WorkflowCounter(operation, outcome string) prometheus.Counter {
	return m.workflowTotal.WithLabelValues(operation, outcome)
}

// AddLedgerAmount accumulates money moved through the ledger. direction is "debit" or "credit".
func (m *Metrics) AddLedgerAmount(direction string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.movedAmount.WithLabelValues(direction).Add(amount)
}

// OutcomeFor maps an operation error to an outcome label.
func OutcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, shared.ErrValidation):
		return OutcomeValidation
	case errors.Is(err, shared.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, shared.ErrInvalidState):
		return OutcomeInvalidState
	case errors.Is(err, shared.ErrConflict), errors.Is(err, db.ErrTxConflict), errors.Is(err, db.ErrDuplicate):
		return OutcomeConflict
	case errors.Is(err, shared.ErrUnprocessable):
		return OutcomeOverdrawn
	default:
		return OutcomeError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
