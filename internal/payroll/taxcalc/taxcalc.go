// Package taxcalc turns a period's gross pay into income-tax withholding and
// the employee and employer FICA amounts.
//
// Two withholding strategies share the Calculator: the legacy per-period
// bracket table and the annualized standard-deduction method. Social security
// and medicare are computed the same way for both.
package taxcalc

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/shopspring/decimal"
)

var ErrNegativeAmount = errors.New("amounts must be non-negative")

// Input is one employee's taxable picture for one pay period.
type Input struct {
	// GrossPay is the social security and medicare base.
	GrossPay decimal.Decimal
	// WithholdingBase is the income-tax base, gross pay less pre-tax retirement.
	WithholdingBase decimal.Decimal
	// YtdGrossBefore is committed gross pay for the year, excluding this period.
	YtdGrossBefore decimal.Decimal
	FilingStatus   payroll.FilingStatus
	PayFrequency   payroll.PayFrequency
	// Allowances only matters for the legacy method.
	Allowances int
}

// Result holds rounded per-period amounts.
type Result struct {
	Withholding            decimal.Decimal
	SocialSecurity         decimal.Decimal
	Medicare               decimal.Decimal
	EmployerSocialSecurity decimal.Decimal
	EmployerMedicare       decimal.Decimal
}

// WithholdingMethod computes income-tax withholding for one period.
type WithholdingMethod interface {
	Withholding(base decimal.Decimal, freq payroll.PayFrequency, allowances int) (decimal.Decimal, error)
}

// Calculator combines a withholding strategy with the year's FICA parameters.
type Calculator struct {
	FICA   FICA
	Method WithholdingMethod
}

func New(fica FICA, method WithholdingMethod) *Calculator {
	return &Calculator{FICA: fica, Method: method}
}

// Compute runs withholding and FICA for in.
func (c *Calculator) Compute(in Input) (Result, error) {
	if in.GrossPay.IsNegative() || in.WithholdingBase.IsNegative() || in.YtdGrossBefore.IsNegative() {
		return Result{}, ErrNegativeAmount
	}
	if c.Method == nil {
		return Result{}, errors.New("no withholding method configured")
	}

	withholding, err := c.Method.Withholding(in.WithholdingBase, in.PayFrequency, in.Allowances)
	if err != nil {
		return Result{}, fmt.Errorf("withholding: %w", err)
	}

	ssTaxable := c.FICA.SocialSecurityTaxable(in.GrossPay, in.YtdGrossBefore)
	medicareBase, additional := c.FICA.medicareParts(in.GrossPay, in.YtdGrossBefore)

	return Result{
		Withholding:            withholding,
		SocialSecurity:         payroll.Round2(ssTaxable.Mul(c.FICA.SocialSecurityRate)),
		Medicare:               payroll.Round2(medicareBase.Add(additional)),
		EmployerSocialSecurity: payroll.Round2(ssTaxable.Mul(c.FICA.SocialSecurityRate)),
		EmployerMedicare:       payroll.Round2(medicareBase),
	}, nil
}
