// Package paycalc computes one payroll item: gross pay by employment type,
// retirement deductions, taxes, net pay and the year-to-date snapshot.
package paycalc

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/dmitrijs2005/paykeeper/internal/payroll/taxcalc"
	"github.com/shopspring/decimal"
)

// Hours worked in the period.
type Hours struct {
	Regular  decimal.Decimal
	Overtime decimal.Decimal
	Holiday  decimal.Decimal
	PTO      decimal.Decimal
}

// YTD is the cumulative picture carried on every item.
type YTD struct {
	Gross          decimal.Decimal
	Net            decimal.Decimal
	Withholding    decimal.Decimal
	SocialSecurity decimal.Decimal
	Medicare       decimal.Decimal
	Retirement     decimal.Decimal
}

// Add returns y + o field by field.
func (y YTD) Add(o YTD) YTD {
	return YTD{
		Gross:          y.Gross.Add(o.Gross),
		Net:            y.Net.Add(o.Net),
		Withholding:    y.Withholding.Add(o.Withholding),
		SocialSecurity: y.SocialSecurity.Add(o.SocialSecurity),
		Medicare:       y.Medicare.Add(o.Medicare),
		Retirement:     y.Retirement.Add(o.Retirement),
	}
}

// Input is the item snapshot plus the employee's prior committed YTD.
type Input struct {
	EmploymentType payroll.EmploymentType
	// PayRate is the hourly rate for hourly employees, the annual salary otherwise.
	PayRate      decimal.Decimal
	PayFrequency payroll.PayFrequency
	FilingStatus payroll.FilingStatus
	Allowances   int

	Hours Hours
	Tips  decimal.Decimal
	Bonus decimal.Decimal

	RetirementRate        decimal.Decimal
	RothRate              decimal.Decimal
	AdditionalWithholding decimal.Decimal
	Loan                  decimal.Decimal
	Insurance             decimal.Decimal

	PriorYTD YTD
}

// Result holds every computed field of an item.
type Result struct {
	GrossPay               decimal.Decimal
	Retirement             decimal.Decimal
	Roth                   decimal.Decimal
	Withholding            decimal.Decimal
	SocialSecurity         decimal.Decimal
	Medicare               decimal.Decimal
	EmployerSocialSecurity decimal.Decimal
	EmployerMedicare       decimal.Decimal
	AdditionalWithholding  decimal.Decimal
	Loan                   decimal.Decimal
	Insurance              decimal.Decimal
	TotalDeductions        decimal.Decimal
	NetPay                 decimal.Decimal
	YTD                    YTD
}

// TaxComputer is satisfied by *taxcalc.Calculator.
type TaxComputer interface {
	Compute(in taxcalc.Input) (taxcalc.Result, error)
}

// Validate rejects inputs no strategy can price.
func (in Input) Validate() error {
	one := decimal.NewFromInt(1)
	nonNegative := []struct {
		name string
		v    decimal.Decimal
	}{
		{"pay rate", in.PayRate},
		{"regular hours", in.Hours.Regular},
		{"overtime hours", in.Hours.Overtime},
		{"holiday hours", in.Hours.Holiday},
		{"pto hours", in.Hours.PTO},
		{"tips", in.Tips},
		{"bonus", in.Bonus},
		{"additional withholding", in.AdditionalWithholding},
		{"loan", in.Loan},
		{"insurance", in.Insurance},
	}
	var errs []error
	for _, f := range nonNegative {
		if f.v.IsNegative() {
			errs = append(errs, fmt.Errorf("%s must be non-negative", f.name))
		}
	}
	if in.RetirementRate.IsNegative() || in.RetirementRate.GreaterThan(one) {
		errs = append(errs, errors.New("retirement rate must be within [0,1]"))
	}
	if in.RothRate.IsNegative() || in.RothRate.GreaterThan(one) {
		errs = append(errs, errors.New("roth rate must be within [0,1]"))
	}
	if in.RetirementRate.Add(in.RothRate).GreaterThan(one) {
		errs = append(errs, errors.New("retirement and roth rates must not exceed 1 combined"))
	}
	if in.Allowances < 0 {
		errs = append(errs, errors.New("allowances must be non-negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return common.NewValidationError(common.ErrInvalidInput, err.Error())
	}
	return nil
}

// Calculate runs the full item pipeline. The same input always yields the
// same result.
func Calculate(in Input, tax TaxComputer) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	strategy, err := ForEmploymentType(in.EmploymentType)
	if err != nil {
		return Result{}, err
	}

	gross, err := strategy.GrossPay(in)
	if err != nil {
		return Result{}, err
	}

	// both computed on gross, not stacked
	retirement := payroll.Round2(gross.Mul(in.RetirementRate))
	roth := payroll.Round2(gross.Mul(in.RothRate))

	// pre-tax retirement lowers income tax only; FICA stays on full gross
	taxes, err := tax.Compute(taxcalc.Input{
		GrossPay:        gross,
		WithholdingBase: payroll.NonNegative(gross.Sub(retirement)),
		YtdGrossBefore:  in.PriorYTD.Gross,
		FilingStatus:    in.FilingStatus,
		PayFrequency:    in.PayFrequency,
		Allowances:      in.Allowances,
	})
	if err != nil {
		return Result{}, err
	}

	total := taxes.Withholding.
		Add(taxes.SocialSecurity).
		Add(taxes.Medicare).
		Add(in.AdditionalWithholding).
		Add(retirement).
		Add(roth).
		Add(in.Loan).
		Add(in.Insurance)
	net := gross.Sub(total)

	res := Result{
		GrossPay:               gross,
		Retirement:             retirement,
		Roth:                   roth,
		Withholding:            taxes.Withholding,
		SocialSecurity:         taxes.SocialSecurity,
		Medicare:               taxes.Medicare,
		EmployerSocialSecurity: taxes.EmployerSocialSecurity,
		EmployerMedicare:       taxes.EmployerMedicare,
		AdditionalWithholding:  in.AdditionalWithholding,
		Loan:                   in.Loan,
		Insurance:              in.Insurance,
		TotalDeductions:        total,
		NetPay:                 net,
	}
	res.YTD = in.PriorYTD.Add(YTD{
		Gross:          gross,
		Net:            net,
		Withholding:    taxes.Withholding,
		SocialSecurity: taxes.SocialSecurity,
		Medicare:       taxes.Medicare,
		Retirement:     retirement,
	})
	return res, nil
}

// OvertimePay is the overtime portion of an hourly item, used by YTD totals.
func OvertimePay(overtimeHours, rate decimal.Decimal) decimal.Decimal {
	return payroll.Round2(overtimeHours.Mul(rate).Mul(overtimeMultiplier))
}
