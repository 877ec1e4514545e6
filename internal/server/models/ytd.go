package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type YtdScope string

const (
	ScopeEmployee   YtdScope = "employee"
	ScopeDepartment YtdScope = "department"
	ScopeCompany    YtdScope = "company"
)

func (s YtdScope) Valid() bool {
	switch s {
	case ScopeEmployee, ScopeDepartment, ScopeCompany:
		return true
	default:
		return false
	}
}

// YtdTotal is one cumulative row per (scope, entity, year). Rows only grow,
// except through an explicit reset.
type YtdTotal struct {
	ID             string
	Scope          YtdScope
	EntityID       string
	Year           int
	GrossPay       decimal.Decimal
	NetPay         decimal.Decimal
	Withholding    decimal.Decimal
	SocialSecurity decimal.Decimal
	Medicare       decimal.Decimal
	Retirement     decimal.Decimal
	Roth           decimal.Decimal
	Insurance      decimal.Decimal
	Loan           decimal.Decimal
	Tips           decimal.Decimal
	Bonus          decimal.Decimal
	OvertimePay    decimal.Decimal
	UpdatedAt      time.Time
}

// Accumulate adds item into t.
func (t *YtdTotal) Accumulate(item *PayrollItem) {
	t.GrossPay = t.GrossPay.Add(item.GrossPay)
	t.NetPay = t.NetPay.Add(item.NetPay)
	t.Withholding = t.Withholding.Add(item.Withholding)
	t.SocialSecurity = t.SocialSecurity.Add(item.SocialSecurity)
	t.Medicare = t.Medicare.Add(item.Medicare)
	t.Retirement = t.Retirement.Add(item.Retirement)
	t.Roth = t.Roth.Add(item.Roth)
	t.Insurance = t.Insurance.Add(item.Insurance)
	t.Loan = t.Loan.Add(item.Loan)
	t.Tips = t.Tips.Add(item.Tips)
	t.Bonus = t.Bonus.Add(item.Bonus)
	t.OvertimePay = t.OvertimePay.Add(item.OvertimePay())
}
