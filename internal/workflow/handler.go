package workflow

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/treasury-erp/treasury-erp/internal/platform/httpx"
)

// Handler exposes approval, disbursement and settlement endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRequestRoutes registers workflow transitions under the /requests router.
func (h *Handler) MountRequestRoutes(r chi.Router) {
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/disburse", h.disburse)
	r.Post("/{id}/payout", h.disburse)
	r.Post("/{id}/settle", h.settleRequest)
}

// MountDisbursementRoutes registers /disbursements routes.
func (h *Handler) MountDisbursementRoutes(r chi.Router) {
	r.Get("/", h.listDisbursements)
	r.Post("/{id}/settle", h.settleDisbursement)
}

// MountSettlementRoutes registers /settlements routes.
func (h *Handler) MountSettlementRoutes(r chi.Router) {
	r.Get("/", h.listSettlements)
}

// MountPayoutRoutes registers the legacy /payouts alias of disbursement settlement.
func (h *Handler) MountPayoutRoutes(r chi.Router) {
	r.Post("/{id}/settle", h.settleDisbursement)
}

type approveRequest struct {
	ApproverID uuid.UUID `json:"approver_id" validate:"required"`
	Notes      string    `json:"notes"`
}

type rejectRequest struct {
	ApproverID uuid.UUID `json:"approver_id" validate:"required"`
	Reason     string    `json:"reason" validate:"required"`
}

type disburseRequest struct {
	DisburserID          uuid.UUID `json:"disburser_id" validate:"required"`
	TransactionReference string    `json:"transaction_reference" validate:"required"`
	Notes                string    `json:"notes"`
}

type settleRequest struct {
	SettlerID   uuid.UUID        `json:"settler_id" validate:"required"`
	AmountUsed  *decimal.Decimal `json:"amount_used" validate:"required"`
	Comment     string           `json:"comment" validate:"required"`
	Attachments []string         `json:"attachments"`
}

type disbursedResponse struct {
	Outcome string `json:"outcome"`
	Disbursed
}

type autoRejectedResponse struct {
	Outcome string `json:"outcome"`
	AutoRejected
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req approveRequest
	if !h.decode(w, r, &req) {
		return
	}
	fr, err := h.service.Approve(r.Context(), ApproveInput{RequestID: id, ApproverID: req.ApproverID, Notes: req.Notes})
	if err != nil {
		h.fail(w, "approve fund request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, fr)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req rejectRequest
	if !h.decode(w, r, &req) {
		return
	}
	fr, err := h.service.Reject(r.Context(), RejectInput{RequestID: id, ApproverID: req.ApproverID, Reason: req.Reason})
	if err != nil {
		h.fail(w, "reject fund request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, fr)
}

func (h *Handler) disburse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req disburseRequest
	if !h.decode(w, r, &req) {
		return
	}
	outcome, err := h.service.Disburse(r.Context(), DisburseInput{
		RequestID:            id,
		DisburserID:          req.DisburserID,
		TransactionReference: req.TransactionReference,
		Notes:                req.Notes,
	})
	if err != nil {
		h.fail(w, "disburse fund request", err)
		return
	}
	switch o := outcome.(type) {
	case Disbursed:
		httpx.JSON(w, http.StatusCreated, disbursedResponse{Outcome: "disbursed", Disbursed: o})
	case AutoRejected:
		httpx.JSON(w, http.StatusUnprocessableEntity, autoRejectedResponse{Outcome: "auto_rejected", AutoRejected: o})
	}
}

func (h *Handler) settleRequest(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, func(id uuid.UUID, in *SettleInput) { in.RequestID = id })
}

func (h *Handler) settleDisbursement(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, func(id uuid.UUID, in *SettleInput) { in.DisbursementID = id })
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request, target func(uuid.UUID, *SettleInput)) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req settleRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := SettleInput{
		SettlerID:   req.SettlerID,
		AmountUsed:  decimal.NewNullDecimal(*req.AmountUsed),
		Comment:     req.Comment,
		Attachments: req.Attachments,
	}
	target(id, &input)
	res, err := h.service.Settle(r.Context(), input)
	if err != nil {
		h.fail(w, "settle disbursement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) listDisbursements(w http.ResponseWriter, r *http.Request) {
	requestID, err := httpx.QueryUUID(r, "request_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Disbursements(r.Context(), requestID)
	if err != nil {
		h.fail(w, "list disbursements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"disbursements": out})
}

func (h *Handler) listSettlements(w http.ResponseWriter, r *http.Request) {
	requestID, err := httpx.QueryUUID(r, "request_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Settlements(r.Context(), requestID)
	if err != nil {
		h.fail(w, "list settlements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"settlements": out})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := httpx.DecodeJSON(r, dest); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := httpx.Validate(h.validator, dest); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
