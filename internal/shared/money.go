package shared

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits stored for every amount (NUMERIC(18,2)).
const MoneyScale = 2

var moneyLimit = decimal.New(1, 18-MoneyScale)

// CheckMoney rejects amounts that the money columns cannot store exactly: more than two
// fractional digits, or more than sixteen integer digits.
func CheckMoney(field string, d decimal.Decimal) error {
	if !d.Equal(d.Round(MoneyScale)) {
		return fmt.Errorf("%w: %s must have at most %d decimal places", ErrValidation, field, MoneyScale)
	}
	if d.Abs().GreaterThanOrEqual(moneyLimit) {
		return fmt.Errorf("%w: %s is out of range", ErrValidation, field)
	}
	return nil
}
