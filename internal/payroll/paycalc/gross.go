package paycalc

import (
	"fmt"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/shopspring/decimal"
)

var overtimeMultiplier = decimal.RequireFromString("1.5")

// GrossPayCalculator computes gross pay for one employment type. The set of
// implementations is closed: hourly and salary.
type GrossPayCalculator interface {
	GrossPay(in Input) (decimal.Decimal, error)
}

// HourlyGross pays regular, holiday and PTO hours at the rate and overtime at
// time and a half.
type HourlyGross struct{}

func (HourlyGross) GrossPay(in Input) (decimal.Decimal, error) {
	rate := in.PayRate
	gross := in.Hours.Regular.Mul(rate).
		Add(in.Hours.Overtime.Mul(rate).Mul(overtimeMultiplier)).
		Add(in.Hours.Holiday.Mul(rate)).
		Add(in.Hours.PTO.Mul(rate)).
		Add(in.Tips).
		Add(in.Bonus)
	return payroll.Round2(gross), nil
}

// SalaryGross pays the annual salary divided across the year's periods.
type SalaryGross struct{}

func (SalaryGross) GrossPay(in Input) (decimal.Decimal, error) {
	n, err := in.PayFrequency.PeriodsPerYear()
	if err != nil {
		return decimal.Zero, err
	}
	perPeriod := in.PayRate.Div(decimal.NewFromInt(n))
	return payroll.Round2(perPeriod.Add(in.Tips).Add(in.Bonus)), nil
}

// ForEmploymentType selects the gross pay strategy.
func ForEmploymentType(t payroll.EmploymentType) (GrossPayCalculator, error) {
	switch t {
	case payroll.Hourly:
		return HourlyGross{}, nil
	case payroll.Salary:
		return SalaryGross{}, nil
	default:
		return nil, common.NewValidationError(common.ErrUnsupportedEmploymentType, fmt.Sprintf("employment type %q", string(t)))
	}
}
