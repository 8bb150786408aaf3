package requests

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

// Handler manages fund request intake endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers intake routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Get("/{id}/approvals", h.approvals)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/review", h.review)
	r.Post("/{id}/return", h.returnToQueue)
}

type createRequest struct {
	Department    string          `json:"department" validate:"required"`
	RequesterID   uuid.UUID       `json:"requester_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Purpose       string          `json:"purpose" validate:"required"`
	Priority      Priority        `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Notes         string          `json:"notes"`
	FiscalYear    int             `json:"fiscal_year" validate:"required"`
	FiscalQuarter int             `json:"fiscal_quarter" validate:"required,min=1,max=4"`
}

type updateRequest struct {
	Amount   *decimal.Decimal `json:"amount"`
	Purpose  *string          `json:"purpose"`
	Priority *Priority        `json:"priority"`
	Notes    *string          `json:"notes"`
}

type reviewerRequest struct {
	ReviewerID uuid.UUID `json:"reviewer_id" validate:"required"`
	Note       string    `json:"note"`
}

type listResponse struct {
	Requests   []FundRequest     `json:"requests"`
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
	fr, err := h.service.Create(r.Context(), CreateInput{
		Department:    req.Department,
		RequesterID:   req.RequesterID,
		Amount:        req.Amount,
		Purpose:       req.Purpose,
		Priority:      req.Priority,
		Notes:         req.Notes,
		FiscalYear:    req.FiscalYear,
		FiscalQuarter: req.FiscalQuarter,
	}, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.fail(w, "create fund request", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, fr)
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
	requester, err := httpx.QueryUUID(r, "requester_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, perPage := shared.PageFromQuery(r.URL.Query())
	out, pagination, err := h.service.List(r.Context(), ListFilter{
		Department:  r.URL.Query().Get("department"),
		Status:      Status(r.URL.Query().Get("status")),
		RequesterID: requester,
		FiscalYear:  year,
		Quarter:     quarter,
		Page:        page,
		PerPage:     perPage,
	})
	if err != nil {
		h.fail(w, "list fund requests", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Requests: out, Pagination: pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	fr, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get fund request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, fr)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	fr, err := h.service.UpdateDraft(r.Context(), id, UpdateInput(req))
	if err != nil {
		h.fail(w, "update fund request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, fr)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete fund request", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) approvals(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	logs, err := h.service.Approvals(r.Context(), id)
	if err != nil {
		h.fail(w, "list approvals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"approvals": logs})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	fr, err := h.service.Submit(r.Context(), id)
	if err != nil {
		h.fail(w, "submit fund request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, fr)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	h.withReviewer(w, r, func(id uuid.UUID, req reviewerRequest) (FundRequest, error) {
		return h.service.StartReview(r.Context(), id, req.ReviewerID)
	})
}

func (h *Handler) returnToQueue(w http.ResponseWriter, r *http.Request) {
	h.withReviewer(w, r, func(id uuid.UUID, req reviewerRequest) (FundRequest, error) {
		return h.service.ReturnToSubmitted(r.Context(), id, req.ReviewerID, req.Note)
	})
}

func (h *Handler) withReviewer(w http.ResponseWriter, r *http.Request, apply func(uuid.UUID, reviewerRequest) (FundRequest, error)) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reviewerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	fr, err := apply(id, req)
	if err != nil {
		h.fail(w, "review fund request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, fr)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
