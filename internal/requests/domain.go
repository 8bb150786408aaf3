package requests

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// Status enumerates fund request lifecycle states.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusDisbursed   Status = "disbursed"
	StatusSettled     Status = "settled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Priority ranks a request for reviewers.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// FundRequest asks for money against a department's quarterly budget.
type FundRequest struct {
	ID              uuid.UUID       `json:"id"`
	RequestNumber   string          `json:"request_number"`
	Department      string          `json:"department"`
	RequesterID     uuid.UUID       `json:"requester_id"`
	Amount          decimal.Decimal `json:"amount"`
	Purpose         string          `json:"purpose"`
	Priority        Priority        `json:"priority"`
	FiscalYear      int             `json:"fiscal_year"`
	FiscalQuarter   int             `json:"fiscal_quarter"`
	Status          Status          `json:"status"`
	ApproverID      *uuid.UUID      `json:"approver_id,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	SubmittedAt     *time.Time      `json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Period returns the fiscal quarter the request draws on.
func (r FundRequest) Period() shared.FiscalPeriod {
	return shared.FiscalPeriod{Year: r.FiscalYear, Quarter: r.FiscalQuarter}
}

// CreateInput carries the fields of a new draft.
type CreateInput struct {
	Department    string
	RequesterID   uuid.UUID
	Amount        decimal.Decimal
	Purpose       string
	Priority      Priority
	Notes         string
	FiscalYear    int
	FiscalQuarter int
}

// UpdateInput carries draft edits. Nil fields are left unchanged.
type UpdateInput struct {
	Amount   *decimal.Decimal
	Purpose  *string
	Priority *Priority
	Notes    *string
}

// ListFilter narrows request listings. Zero values match everything.
type ListFilter struct {
	Department  string
	Status      Status
	RequesterID uuid.UUID
	FiscalYear  int
	Quarter     int
	Page        int
	PerPage     int
}
