package budget

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// Status enumerates budget review statuses.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Budget is a departmental allocation for one fiscal quarter.
type Budget struct {
	ID              uuid.UUID           `json:"id"`
	Department      string              `json:"department"`
	AllocatedAmount decimal.Decimal     `json:"allocated_amount"`
	FiscalYear      int                 `json:"fiscal_year"`
	FiscalQuarter   int                 `json:"fiscal_quarter"`
	Comment         string              `json:"comment"`
	Status          Status              `json:"status"`
	RemainingAmount decimal.NullDecimal `json:"remaining_amount"`
	ApprovedBy      *uuid.UUID          `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time          `json:"approved_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Period returns the fiscal quarter the budget covers.
func (b Budget) Period() shared.FiscalPeriod {
	return shared.FiscalPeriod{Year: b.FiscalYear, Quarter: b.FiscalQuarter}
}

// Remaining returns the remaining amount, zero while unset.
func (b Budget) Remaining() decimal.Decimal {
	if !b.RemainingAmount.Valid {
		return decimal.Zero
	}
	return b.RemainingAmount.Decimal
}

// CreateInput carries the fields for a new pending budget.
type CreateInput struct {
	Department      string
	AllocatedAmount decimal.Decimal
	FiscalYear      int
	FiscalQuarter   int
	Comment         string
}

// ListFilter narrows budget listings. Zero values match everything.
type ListFilter struct {
	Department string
	Status     Status
	FiscalYear int
	Quarter    int
	Page       int
	PerPage    int
}

// OverviewFilter narrows the ledger overview. Zero values match everything.
type OverviewFilter struct {
	Department string
	FiscalYear int
	Quarter    int
}

// OverviewLine summarises one approved budget against the requests drawn on it.
type OverviewLine struct {
	BudgetID      uuid.UUID       `json:"budget_id"`
	Department    string          `json:"department"`
	FiscalYear    int             `json:"fiscal_year"`
	FiscalQuarter int             `json:"fiscal_quarter"`
	Allocated     decimal.Decimal `json:"allocated"`
	Remaining     decimal.Decimal `json:"remaining"`
	Committed     decimal.Decimal `json:"committed"`
	Spent         decimal.Decimal `json:"spent"`
	Utilisation   decimal.Decimal `json:"utilisation_pct"`
}

// Expected is the remaining amount implied by open disbursements and settled spend.
func (l OverviewLine) Expected() decimal.Decimal {
	return l.Allocated.Sub(l.Committed).Sub(l.Spent)
}

// Drift is the difference between the stored remaining amount and Expected.
func (l OverviewLine) Drift() decimal.Decimal {
	return l.Remaining.Sub(l.Expected())
}

// Overview aggregates overview lines.
type Overview struct {
	Lines       []OverviewLine  `json:"lines"`
	Allocated   decimal.Decimal `json:"allocated"`
	Remaining   decimal.Decimal `json:"remaining"`
	Committed   decimal.Decimal `json:"committed"`
	Spent       decimal.Decimal `json:"spent"`
	GeneratedAt time.Time       `json:"generated_at"`
}

func buildOverview(lines []OverviewLine, now time.Time) Overview {
	out := Overview{Lines: make([]OverviewLine, 0, len(lines)), GeneratedAt: now}
	for _, l := range lines {
		if l.Allocated.IsPositive() {
			l.Utilisation = l.Allocated.Sub(l.Remaining).Div(l.Allocated).Mul(decimal.NewFromInt(100)).Round(2)
		}
		out.Allocated = out.Allocated.Add(l.Allocated)
		out.Remaining = out.Remaining.Add(l.Remaining)
		out.Committed = out.Committed.Add(l.Committed)
		out.Spent = out.Spent.Add(l.Spent)
		out.Lines = append(out.Lines, l)
	}
	return out
}
