package budget

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// ErrOverdrawn indicates a ledger mutation would leave the remaining amount below zero.
var ErrOverdrawn = fmt.Errorf("%w: budget overdrawn", shared.ErrUnprocessable)

// Covers reports whether the remaining amount can absorb amount.
func Covers(b Budget, amount decimal.Decimal) bool {
	return b.Status == StatusApproved && b.RemainingAmount.Valid && b.RemainingAmount.Decimal.GreaterThanOrEqual(amount)
}

// Debit subtracts a disbursed amount from the remaining balance. Only RemainingAmount changes.
func Debit(b Budget, amount decimal.Decimal) (Budget, error) {
	if err := requireLedger(b); err != nil {
		return b, err
	}
	if !amount.IsPositive() {
		return b, fmt.Errorf("%w: debit amount must be positive", shared.ErrValidation)
	}
	next := b.RemainingAmount.Decimal.Sub(amount)
	if next.IsNegative() {
		return b, ErrOverdrawn
	}
	b.RemainingAmount = decimal.NewNullDecimal(next)
	return b, nil
}

// ApplyVariance adds delta (positive for underspend, negative for overspend) to the remaining
// balance. Only RemainingAmount changes.
func ApplyVariance(b Budget, delta decimal.Decimal) (Budget, error) {
	if err := requireLedger(b); err != nil {
		return b, err
	}
	next := b.RemainingAmount.Decimal.Add(delta)
	if next.IsNegative() {
		return b, ErrOverdrawn
	}
	b.RemainingAmount = decimal.NewNullDecimal(next)
	return b, nil
}

// Variance is what a settlement hands back to the budget: disbursed minus used.
func Variance(disbursed, used decimal.Decimal) decimal.Decimal {
	return disbursed.Sub(used)
}

func requireLedger(b Budget) error {
	if b.Status != StatusApproved {
		return fmt.Errorf("%w: budget %s is %s", shared.ErrInvalidState, b.ID, b.Status)
	}
	if !b.RemainingAmount.Valid {
		return fmt.Errorf("%w: budget %s has no remaining amount", shared.ErrInvalidState, b.ID)
	}
	return nil
}
