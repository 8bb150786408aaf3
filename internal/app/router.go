package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/treasury-erp/treasury-erp/internal/budget"
	"github.com/treasury-erp/treasury-erp/internal/directory"
	"github.com/treasury-erp/treasury-erp/internal/observability"
	"github.com/treasury-erp/treasury-erp/internal/requests"
	"github.com/treasury-erp/treasury-erp/internal/workflow"
	"github.com/treasury-erp/treasury-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	BudgetHandler    *budget.Handler
	RequestsHandler  *requests.Handler
	WorkflowHandler  *workflow.Handler
	DirectoryHandler *directory.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with treasury defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.BudgetHandler != nil {
		r.Route("/budgets", params.BudgetHandler.MountRoutes)
	}
	r.Route("/requests", func(r chi.Router) {
		if params.RequestsHandler != nil {
			params.RequestsHandler.MountRoutes(r)
		}
		if params.WorkflowHandler != nil {
			params.WorkflowHandler.MountRequestRoutes(r)
		}
	})
	if params.WorkflowHandler != nil {
		r.Route("/disbursements", params.WorkflowHandler.MountDisbursementRoutes)
		r.Route("/settlements", params.WorkflowHandler.MountSettlementRoutes)
		r.Route("/payouts", params.WorkflowHandler.MountPayoutRoutes)
	}
	if params.DirectoryHandler != nil {
		r.Route("/departments", params.DirectoryHandler.MountDepartmentRoutes)
		r.Route("/users", params.DirectoryHandler.MountUserRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
