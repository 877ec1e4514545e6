package models

import (
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/dmitrijs2005/paykeeper/internal/payroll/paycalc"
	"github.com/shopspring/decimal"
)

// PayrollItem is one employee's line in one pay period. Employment type and
// pay rate are copied from the employee when the item is calculated and do
// not follow later employee edits.
type PayrollItem struct {
	ID             string
	PayPeriodID    string
	EmployeeID     string
	EmploymentType payroll.EmploymentType
	PayRate        decimal.Decimal

	RegularHours  decimal.Decimal
	OvertimeHours decimal.Decimal
	HolidayHours  decimal.Decimal
	PTOHours      decimal.Decimal
	Tips          decimal.Decimal
	Bonus         decimal.Decimal

	Loan                  decimal.Decimal
	Insurance             decimal.Decimal
	AdditionalWithholding decimal.Decimal
	Retirement            decimal.Decimal
	Roth                  decimal.Decimal

	GrossPay               decimal.Decimal
	Withholding            decimal.Decimal
	SocialSecurity         decimal.Decimal
	Medicare               decimal.Decimal
	EmployerSocialSecurity decimal.Decimal
	EmployerMedicare       decimal.Decimal
	TotalDeductions        decimal.Decimal
	NetPay                 decimal.Decimal

	YtdGross          decimal.Decimal
	YtdNet            decimal.Decimal
	YtdWithholding    decimal.Decimal
	YtdSocialSecurity decimal.Decimal
	YtdMedicare       decimal.Decimal
	YtdRetirement     decimal.Decimal

	CalculatedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OvertimePay is the derived overtime figure folded into YTD totals. Only
// hourly pay has overtime; a salary item's PayRate is the annual salary.
func (i *PayrollItem) OvertimePay() decimal.Decimal {
	if i.EmploymentType != payroll.Hourly {
		return decimal.Zero
	}
	return paycalc.OvertimePay(i.OvertimeHours, i.PayRate)
}
