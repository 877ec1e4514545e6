// Package remittance builds the tax authority submission for a committed pay
// period and delivers it over HTTP.
package remittance

import (
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/dmitrijs2005/paykeeper/internal/timex"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const PayloadVersion = "1.0"

// keyNamespace scopes the name-based UUIDs used as idempotency keys.
var keyNamespace = uuid.MustParse("8d3f6a52-1c4b-4e0a-9b77-2f5e61c0d9a3")

// IdempotencyKey derives the key for a period from its id and commit time.
// The same inputs always give the same key.
func IdempotencyKey(periodID string, committedAt time.Time) string {
	name := periodID + "|" + committedAt.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(keyNamespace, []byte(name)).String()
}

type Payload struct {
	IdempotencyKey string     `json:"idempotency_key"`
	Source         string     `json:"source"`
	Version        string     `json:"version"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	PayPeriod      PeriodInfo `json:"pay_period"`
	Company        Company    `json:"company"`
	LineItems      []LineItem `json:"line_items"`
	Totals         Totals     `json:"totals"`
}

type PeriodInfo struct {
	ID          string     `json:"id"`
	StartDate   timex.Date `json:"start_date"`
	EndDate     timex.Date `json:"end_date"`
	PayDate     timex.Date `json:"pay_date"`
	CommittedAt *time.Time `json:"committed_at"`
}

type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	EIN  string `json:"ein"`
}

type LineItem struct {
	PayrollItemID             string                 `json:"payroll_item_id"`
	EmployeeID                string                 `json:"employee_id"`
	EmployeeName              string                 `json:"employee_name"`
	EmploymentType            payroll.EmploymentType `json:"employment_type"`
	GrossPay                  decimal.Decimal        `json:"gross_pay"`
	NetPay                    decimal.Decimal        `json:"net_pay"`
	WithholdingTax            decimal.Decimal        `json:"withholding_tax"`
	SocialSecurityTax         decimal.Decimal        `json:"social_security_tax"`
	MedicareTax               decimal.Decimal        `json:"medicare_tax"`
	AdditionalWithholding     decimal.Decimal        `json:"additional_withholding"`
	EmployerSocialSecurityTax decimal.Decimal        `json:"employer_social_security_tax"`
	EmployerMedicareTax       decimal.Decimal        `json:"employer_medicare_tax"`
	RetirementPayment         decimal.Decimal        `json:"retirement_payment"`
	RothRetirementPayment     decimal.Decimal        `json:"roth_retirement_payment"`
	YtdGross                  decimal.Decimal        `json:"ytd_gross"`
	YtdSocialSecurityTax      decimal.Decimal        `json:"ytd_social_security_tax"`
	YtdMedicareTax            decimal.Decimal        `json:"ytd_medicare_tax"`
	YtdWithholdingTax         decimal.Decimal        `json:"ytd_withholding_tax"`
}

type Totals struct {
	EmployeeCount             int             `json:"employee_count"`
	GrossPay                  decimal.Decimal `json:"gross_pay"`
	NetPay                    decimal.Decimal `json:"net_pay"`
	WithholdingTax            decimal.Decimal `json:"withholding_tax"`
	SocialSecurityTax         decimal.Decimal `json:"social_security_tax"`
	MedicareTax               decimal.Decimal `json:"medicare_tax"`
	EmployerSocialSecurityTax decimal.Decimal `json:"employer_social_security_tax"`
	EmployerMedicareTax       decimal.Decimal `json:"employer_medicare_tax"`
	TotalTaxLiability         decimal.Decimal `json:"total_tax_liability"`
}

// Submission is everything BuildPayload reads.
type Submission struct {
	Key       string
	Source    string
	Period    *models.PayPeriod
	Company   *models.Company
	Items     []*models.PayrollItem
	Employees map[string]*models.Employee
}

// BuildPayload assembles the JSON document for s. Employees missing from
// s.Employees get an empty name rather than failing the submission.
func BuildPayload(s Submission, submittedAt time.Time) *Payload {
	p := &Payload{
		IdempotencyKey: s.Key,
		Source:         s.Source,
		Version:        PayloadVersion,
		SubmittedAt:    submittedAt.UTC(),
		PayPeriod: PeriodInfo{
			ID:          s.Period.ID,
			StartDate:   timex.DateOf(s.Period.StartDate),
			EndDate:     timex.DateOf(s.Period.EndDate),
			PayDate:     timex.DateOf(s.Period.PayDate),
			CommittedAt: s.Period.CommittedAt,
		},
		LineItems: make([]LineItem, 0, len(s.Items)),
	}
	if s.Company != nil {
		p.Company = Company{ID: s.Company.ID, Name: s.Company.Name, EIN: s.Company.EIN}
	}

	employees := make(map[string]struct{})
	t := &p.Totals
	for _, it := range s.Items {
		var name string
		if e, ok := s.Employees[it.EmployeeID]; ok {
			name = e.FullName()
		}
		p.LineItems = append(p.LineItems, LineItem{
			PayrollItemID:             it.ID,
			EmployeeID:                it.EmployeeID,
			EmployeeName:              name,
			EmploymentType:            it.EmploymentType,
			GrossPay:                  it.GrossPay,
			NetPay:                    it.NetPay,
			WithholdingTax:            it.Withholding,
			SocialSecurityTax:         it.SocialSecurity,
			MedicareTax:               it.Medicare,
			AdditionalWithholding:     it.AdditionalWithholding,
			EmployerSocialSecurityTax: it.EmployerSocialSecurity,
			EmployerMedicareTax:       it.EmployerMedicare,
			RetirementPayment:         it.Retirement,
			RothRetirementPayment:     it.Roth,
			YtdGross:                  it.YtdGross,
			YtdSocialSecurityTax:      it.YtdSocialSecurity,
			YtdMedicareTax:            it.YtdMedicare,
			YtdWithholdingTax:         it.YtdWithholding,
		})

		employees[it.EmployeeID] = struct{}{}
		t.GrossPay = t.GrossPay.Add(it.GrossPay)
		t.NetPay = t.NetPay.Add(it.NetPay)
		t.WithholdingTax = t.WithholdingTax.Add(it.Withholding)
		t.SocialSecurityTax = t.SocialSecurityTax.Add(it.SocialSecurity)
		t.MedicareTax = t.MedicareTax.Add(it.Medicare)
		t.EmployerSocialSecurityTax = t.EmployerSocialSecurityTax.Add(it.EmployerSocialSecurity)
		t.EmployerMedicareTax = t.EmployerMedicareTax.Add(it.EmployerMedicare)
	}
	t.EmployeeCount = len(employees)
	// additional withholding is not part of the liability
	t.TotalTaxLiability = t.WithholdingTax.
		Add(t.SocialSecurityTax).
		Add(t.MedicareTax).
		Add(t.EmployerSocialSecurityTax).
		Add(t.EmployerMedicareTax)
	return p
}
