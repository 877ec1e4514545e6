// Package payroll holds the enums shared by every payroll component: pay
// frequencies (and the one periods-per-year table), filing statuses and
// employment types, plus the money rounding helpers.
package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PayFrequency is the cadence of pay periods.
type PayFrequency string

const (
	Weekly      PayFrequency = "weekly"
	Biweekly    PayFrequency = "biweekly"
	Semimonthly PayFrequency = "semimonthly"
	Monthly     PayFrequency = "monthly"
)

// periodsPerYear is the only place this mapping lives. The calculators, YTD
// projections and pay stubs all go through PeriodsPerYear.
var periodsPerYear = map[PayFrequency]int64{
	Weekly:      52,
	Biweekly:    26,
	Semimonthly: 24,
	Monthly:     12,
}

// PeriodsPerYear returns how many pay periods of frequency f fit in a year.
func (f PayFrequency) PeriodsPerYear() (int64, error) {
	n, ok := periodsPerYear[f]
	if !ok {
		return 0, fmt.Errorf("unknown pay frequency %q", string(f))
	}
	return n, nil
}

// Valid reports whether f is a known frequency.
func (f PayFrequency) Valid() bool {
	_, ok := periodsPerYear[f]
	return ok
}

// FilingStatus selects the standard deduction and bracket ladder.
type FilingStatus string

const (
	Single                  FilingStatus = "single"
	MarriedFilingJointly    FilingStatus = "married_joint"
	MarriedFilingSeparately FilingStatus = "married_separate"
	HeadOfHousehold         FilingStatus = "head_of_household"
)

func (s FilingStatus) Valid() bool {
	switch s {
	case Single, MarriedFilingJointly, MarriedFilingSeparately, HeadOfHousehold:
		return true
	default:
		return false
	}
}

// EmploymentType picks the gross pay strategy.
type EmploymentType string

const (
	Hourly EmploymentType = "hourly"
	Salary EmploymentType = "salary"
)

// Round2 rounds an amount to cents, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// NonNegative floors d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
