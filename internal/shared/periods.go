package shared

import (
	"fmt"
	"time"
)

// Fiscal year bounds accepted by budgets and requests.
const (
	MinFiscalYear = 2000
	MaxFiscalYear = 2999
)

// FiscalPeriod identifies a budget quarter.
type FiscalPeriod struct {
	Year    int `json:"fiscal_year"`
	Quarter int `json:"fiscal_quarter"`
}

// NewFiscalPeriod validates year and quarter.
func NewFiscalPeriod(year, quarter int) (FiscalPeriod, error) {
	p := FiscalPeriod{Year: year, Quarter: quarter}
	if err := p.Validate(); err != nil {
		return FiscalPeriod{}, err
	}
	return p, nil
}

// Validate checks the period is well formed.
func (p FiscalPeriod) Validate() error {
	if p.Year < MinFiscalYear || p.Year > MaxFiscalYear {
		return fmt.Errorf("%w: fiscal year %d out of range", ErrValidation, p.Year)
	}
	if p.Quarter < 1 || p.Quarter > 4 {
		return fmt.Errorf("%w: fiscal quarter must be 1-4", ErrValidation)
	}
	return nil
}

func (p FiscalPeriod) String() string {
	return fmt.Sprintf("FY%d-Q%d", p.Year, p.Quarter)
}

// PeriodOf returns the calendar quarter containing t.
func PeriodOf(t time.Time) FiscalPeriod {
	return FiscalPeriod{Year: t.Year(), Quarter: (int(t.Month())-1)/3 + 1}
}
