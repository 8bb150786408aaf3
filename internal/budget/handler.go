package budget

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/treasury-erp/treasury-erp/internal/platform/httpx"
	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// Handler manages budget endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers budget routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/overview", h.overview)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
}

type createRequest struct {
	Department      string          `json:"department" validate:"required"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	FiscalYear      int             `json:"fiscal_year" validate:"required"`
	FiscalQuarter   int             `json:"fiscal_quarter" validate:"required,min=1,max=4"`
	Comment         string          `json:"comment" validate:"required"`
}

type reviewRequest struct {
	ApproverID uuid.UUID `json:"approver_id" validate:"required"`
	Reason     string    `json:"reason"`
}

type listResponse struct {
	Budgets    []Budget          `json:"budgets"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.Create(r.Context(), CreateInput{
		Department:      req.Department,
		AllocatedAmount: req.AllocatedAmount,
		FiscalYear:      req.FiscalYear,
		FiscalQuarter:   req.FiscalQuarter,
		Comment:         req.Comment,
	})
	if err != nil {
		h.fail(w, "create budget", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	year, err := httpx.QueryInt(r, "year")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	quarter, err := httpx.QueryInt(r, "quarter")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, perPage := shared.PageFromQuery(r.URL.Query())
	budgets, pagination, err := h.service.List(r.Context(), ListFilter{
		Department: r.URL.Query().Get("department"),
		Status:     Status(r.URL.Query().Get("status")),
		FiscalYear: year,
		Quarter:    quarter,
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.fail(w, "list budgets", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Budgets: budgets, Pagination: pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get budget", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	year, err := httpx.QueryInt(r, "year")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	quarter, err := httpx.QueryInt(r, "quarter")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Overview(r.Context(), OverviewFilter{
		Department: r.URL.Query().Get("department"),
		FiscalYear: year,
		Quarter:    quarter,
	})
	if err != nil {
		h.fail(w, "budget overview", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(id uuid.UUID, req reviewRequest) (Budget, error) {
		return h.service.Approve(r.Context(), id, req.ApproverID)
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(id uuid.UUID, req reviewRequest) (Budget, error) {
		return h.service.Reject(r.Context(), id, req.ApproverID, req.Reason)
	})
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request, apply func(uuid.UUID, reviewRequest) (Budget, error)) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := apply(id, req)
	if err != nil {
		h.fail(w, "review budget", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
