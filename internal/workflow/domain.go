package workflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/treasury-erp/treasury-erp/internal/budget"
	"github.com/treasury-erp/treasury-erp/internal/requests"
)

// DisbursementStatus tracks whether a payout has been settled.
type DisbursementStatus string

const (
	DisbursementPending   DisbursementStatus = "pending"
	DisbursementCompleted DisbursementStatus = "completed"
)

// SettlementStatus enumerates settlement states. New settlements are completed; disputed is
// only ever set by manual review.
type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "pending"
	SettlementCompleted SettlementStatus = "completed"
	SettlementDisputed  SettlementStatus = "disputed"
)

// Disbursement records money paid out for an approved request.
type Disbursement struct {
	ID                   uuid.UUID          `json:"id"`
	RequestID            uuid.UUID          `json:"request_id"`
	Amount               decimal.Decimal    `json:"amount"`
	DisbursedBy          uuid.UUID          `json:"disbursed_by"`
	TransactionReference string             `json:"transaction_reference"`
	Notes                string             `json:"notes,omitempty"`
	DisbursedAt          time.Time          `json:"disbursed_at"`
	Status               DisbursementStatus `json:"status"`
}

// Settlement reconciles what was actually spent against a disbursement.
type Settlement struct {
	ID               uuid.UUID        `json:"id"`
	DisbursementID   uuid.UUID        `json:"disbursement_id"`
	RequestID        uuid.UUID        `json:"request_id"`
	InitialBudget    decimal.Decimal  `json:"initial_budget"`
	AmountUsed       decimal.Decimal  `json:"amount_used"`
	RemainingBalance decimal.Decimal  `json:"remaining_balance"`
	Comment          string           `json:"comment"`
	Attachments      []string         `json:"attachments"`
	SettledBy        uuid.UUID        `json:"settled_by"`
	SettledAt        time.Time        `json:"settled_at"`
	Status           SettlementStatus `json:"status"`
}

// Overspend returns how much more than the disbursed amount was used, zero otherwise.
func (s Settlement) Overspend(disbursed decimal.Decimal) decimal.Decimal {
	over := s.AmountUsed.Sub(disbursed)
	if over.IsPositive() {
		return over
	}
	return decimal.Zero
}

// ApproveInput approves a submitted or reviewed request.
type ApproveInput struct {
	RequestID  uuid.UUID
	ApproverID uuid.UUID
	Notes      string
}

// RejectInput rejects a submitted or reviewed request.
type RejectInput struct {
	RequestID  uuid.UUID
	ApproverID uuid.UUID
	Reason     string
}

// DisburseInput pays out an approved request.
type DisburseInput struct {
	RequestID            uuid.UUID
	DisburserID          uuid.UUID
	TransactionReference string
	Notes                string
}

// SettleInput settles a disbursed request. Exactly one of RequestID and DisbursementID
// identifies the disbursement; AmountUsed must be set.
type SettleInput struct {
	RequestID      uuid.UUID
	DisbursementID uuid.UUID
	SettlerID      uuid.UUID
	AmountUsed     decimal.NullDecimal
	Comment        string
	Attachments    []string
}

// DisburseOutcome is either Disbursed or AutoRejected.
type DisburseOutcome interface {
	disburseOutcome()
}

// Disbursed is the outcome when the budget covered the request.
type Disbursed struct {
	Request      requests.FundRequest `json:"request"`
	Disbursement Disbursement         `json:"disbursement"`
	Budget       budget.Budget        `json:"budget"`
}

// AutoRejected is the outcome when the budget could not cover the request. The rejection is
// committed; the budget is unchanged.
type AutoRejected struct {
	Request   requests.FundRequest `json:"request"`
	Budget    budget.Budget        `json:"budget"`
	Shortfall decimal.Decimal      `json:"shortfall"`
}

func (Disbursed) disburseOutcome()    {}
func (AutoRejected) disburseOutcome() {}

// SettleResult carries every row a settlement touched.
type SettleResult struct {
	Request      requests.FundRequest `json:"request"`
	Disbursement Disbursement         `json:"disbursement"`
	Settlement   Settlement           `json:"settlement"`
	Budget       budget.Budget        `json:"budget"`
}

// OverspendReview asks the back office to look at a settlement that used more than was paid out.
type OverspendReview struct {
	RequestID      uuid.UUID       `json:"request_id"`
	DisbursementID uuid.UUID       `json:"disbursement_id"`
	SettlementID   uuid.UUID       `json:"settlement_id"`
	Department     string          `json:"department"`
	Overspend      decimal.Decimal `json:"overspend"`
}
