package httpapi

import (
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/dmitrijs2005/paykeeper/internal/server/services"
	"github.com/dmitrijs2005/paykeeper/internal/timex"
	"github.com/shopspring/decimal"
)

// Money travels as decimal strings.

type CreatePeriodRequest struct {
	StartDate     timex.Date `json:"start_date"`
	EndDate       timex.Date `json:"end_date"`
	PayDate       timex.Date `json:"pay_date"`
	EmployeeIDs   []string   `json:"employee_ids"`
	IncludeActive bool       `json:"include_active"`
}

func (r CreatePeriodRequest) input() services.CreatePeriodInput {
	return services.CreatePeriodInput{
		StartDate:     r.StartDate.Time,
		EndDate:       r.EndDate.Time,
		PayDate:       r.PayDate.Time,
		EmployeeIDs:   r.EmployeeIDs,
		IncludeActive: r.IncludeActive,
	}
}

type AddItemRequest struct {
	EmployeeID    string          `json:"employee_id" binding:"required"`
	RegularHours  decimal.Decimal `json:"regular_hours"`
	OvertimeHours decimal.Decimal `json:"overtime_hours"`
	HolidayHours  decimal.Decimal `json:"holiday_hours"`
	PTOHours      decimal.Decimal `json:"pto_hours"`
	Tips          decimal.Decimal `json:"tips"`
	Bonus         decimal.Decimal `json:"bonus"`
	Loan          decimal.Decimal `json:"loan"`
	Insurance     decimal.Decimal `json:"insurance"`
}

func (r AddItemRequest) input() services.ItemInput {
	return services.ItemInput{
		EmployeeID:    r.EmployeeID,
		RegularHours:  r.RegularHours,
		OvertimeHours: r.OvertimeHours,
		HolidayHours:  r.HolidayHours,
		PTOHours:      r.PTOHours,
		Tips:          r.Tips,
		Bonus:         r.Bonus,
		Loan:          r.Loan,
		Insurance:     r.Insurance,
	}
}

type UpdateItemRequest struct {
	RegularHours  *decimal.Decimal `json:"regular_hours"`
	OvertimeHours *decimal.Decimal `json:"overtime_hours"`
	HolidayHours  *decimal.Decimal `json:"holiday_hours"`
	PTOHours      *decimal.Decimal `json:"pto_hours"`
	Tips          *decimal.Decimal `json:"tips"`
	Bonus         *decimal.Decimal `json:"bonus"`
	Loan          *decimal.Decimal `json:"loan"`
	Insurance     *decimal.Decimal `json:"insurance"`
}

func (r UpdateItemRequest) patch() services.ItemPatch {
	return services.ItemPatch(r)
}

type CopyYearRequest struct {
	ToYear int `json:"to_year" binding:"required"`
}

type TaxSyncResponse struct {
	Status         models.TaxSyncStatus `json:"status"`
	Attempts       int                  `json:"attempts"`
	LastError      string               `json:"last_error,omitempty"`
	SyncedAt       *time.Time           `json:"synced_at,omitempty"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
}

type PeriodResponse struct {
	ID          string                 `json:"id"`
	CompanyID   string                 `json:"company_id"`
	StartDate   timex.Date             `json:"start_date"`
	EndDate     timex.Date             `json:"end_date"`
	PayDate     timex.Date             `json:"pay_date"`
	Status      models.PayPeriodStatus `json:"status"`
	CreatedBy   string                 `json:"created_by"`
	ApprovedBy  string                 `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time             `json:"approved_at,omitempty"`
	CommittedBy string                 `json:"committed_by,omitempty"`
	CommittedAt *time.Time             `json:"committed_at,omitempty"`
	TaxSync     TaxSyncResponse        `json:"tax_sync"`
	Items       []ItemResponse         `json:"items,omitempty"`
}

type ItemResponse struct {
	ID             string                 `json:"id"`
	EmployeeID     string                 `json:"employee_id"`
	EmploymentType payroll.EmploymentType `json:"employment_type,omitempty"`
	PayRate        decimal.Decimal        `json:"pay_rate"`

	RegularHours  decimal.Decimal `json:"regular_hours"`
	OvertimeHours decimal.Decimal `json:"overtime_hours"`
	HolidayHours  decimal.Decimal `json:"holiday_hours"`
	PTOHours      decimal.Decimal `json:"pto_hours"`
	Tips          decimal.Decimal `json:"tips"`
	Bonus         decimal.Decimal `json:"bonus"`
	Loan          decimal.Decimal `json:"loan"`
	Insurance     decimal.Decimal `json:"insurance"`

	GrossPay               decimal.Decimal `json:"gross_pay"`
	Withholding            decimal.Decimal `json:"withholding"`
	AdditionalWithholding  decimal.Decimal `json:"additional_withholding"`
	SocialSecurity         decimal.Decimal `json:"social_security"`
	Medicare               decimal.Decimal `json:"medicare"`
	EmployerSocialSecurity decimal.Decimal `json:"employer_social_security"`
	EmployerMedicare       decimal.Decimal `json:"employer_medicare"`
	Retirement             decimal.Decimal `json:"retirement"`
	Roth                   decimal.Decimal `json:"roth"`
	TotalDeductions        decimal.Decimal `json:"total_deductions"`
	NetPay                 decimal.Decimal `json:"net_pay"`

	YtdGross          decimal.Decimal `json:"ytd_gross"`
	YtdNet            decimal.Decimal `json:"ytd_net"`
	YtdWithholding    decimal.Decimal `json:"ytd_withholding"`
	YtdSocialSecurity decimal.Decimal `json:"ytd_social_security"`
	YtdMedicare       decimal.Decimal `json:"ytd_medicare"`

	CalculatedAt *time.Time `json:"calculated_at,omitempty"`
}

func periodResponse(p *models.PayPeriod, items []*models.PayrollItem) PeriodResponse {
	resp := PeriodResponse{
		ID:          p.ID,
		CompanyID:   p.CompanyID,
		StartDate:   timex.DateOf(p.StartDate),
		EndDate:     timex.DateOf(p.EndDate),
		PayDate:     timex.DateOf(p.PayDate),
		Status:      p.Status,
		CreatedBy:   p.CreatedBy,
		ApprovedBy:  p.ApprovedBy,
		ApprovedAt:  p.ApprovedAt,
		CommittedBy: p.CommittedBy,
		CommittedAt: p.CommittedAt,
		TaxSync: TaxSyncResponse{
			Status:         p.TaxSyncStatus,
			Attempts:       p.TaxSyncAttempts,
			LastError:      p.TaxSyncLastError,
			SyncedAt:       p.TaxSyncedAt,
			IdempotencyKey: p.IdempotencyKey,
		},
	}
	for _, it := range items {
		resp.Items = append(resp.Items, itemResponse(it))
	}
	return resp
}

func itemResponse(it *models.PayrollItem) ItemResponse {
	return ItemResponse{
		ID:                     it.ID,
		EmployeeID:             it.EmployeeID,
		EmploymentType:         it.EmploymentType,
		PayRate:                it.PayRate,
		RegularHours:           it.RegularHours,
		OvertimeHours:          it.OvertimeHours,
		HolidayHours:           it.HolidayHours,
		PTOHours:               it.PTOHours,
		Tips:                   it.Tips,
		Bonus:                  it.Bonus,
		Loan:                   it.Loan,
		Insurance:              it.Insurance,
		GrossPay:               it.GrossPay,
		Withholding:            it.Withholding,
		AdditionalWithholding:  it.AdditionalWithholding,
		SocialSecurity:         it.SocialSecurity,
		Medicare:               it.Medicare,
		EmployerSocialSecurity: it.EmployerSocialSecurity,
		EmployerMedicare:       it.EmployerMedicare,
		Retirement:             it.Retirement,
		Roth:                   it.Roth,
		TotalDeductions:        it.TotalDeductions,
		NetPay:                 it.NetPay,
		YtdGross:               it.YtdGross,
		YtdNet:                 it.YtdNet,
		YtdWithholding:         it.YtdWithholding,
		YtdSocialSecurity:      it.YtdSocialSecurity,
		YtdMedicare:            it.YtdMedicare,
		CalculatedAt:           it.CalculatedAt,
	}
}

type BracketResponse struct {
	Min  decimal.Decimal     `json:"min"`
	Max  decimal.NullDecimal `json:"max"`
	Rate decimal.Decimal     `json:"rate"`
}

type FilingStatusResponse struct {
	StandardDeduction decimal.Decimal   `json:"standard_deduction"`
	Brackets          []BracketResponse `json:"brackets"`
}

type TaxYearResponse struct {
	Year                        int                                           `json:"year"`
	Active                      bool                                          `json:"active"`
	SocialSecurityWageBase      decimal.Decimal                               `json:"ss_wage_base"`
	SocialSecurityRate          decimal.Decimal                               `json:"ss_rate"`
	MedicareRate                decimal.Decimal                               `json:"medicare_rate"`
	AdditionalMedicareRate      decimal.Decimal                               `json:"additional_medicare_rate"`
	AdditionalMedicareThreshold decimal.Decimal                               `json:"additional_medicare_threshold"`
	FilingStatuses              map[payroll.FilingStatus]FilingStatusResponse `json:"filing_statuses"`
}

func taxYearResponse(c *models.AnnualTaxConfig) TaxYearResponse {
	resp := TaxYearResponse{
		Year:                        c.Year,
		Active:                      c.Active,
		SocialSecurityWageBase:      c.SocialSecurityWageBase,
		SocialSecurityRate:          c.SocialSecurityRate,
		MedicareRate:                c.MedicareRate,
		AdditionalMedicareRate:      c.AdditionalMedicareRate,
		AdditionalMedicareThreshold: c.AdditionalMedicareThreshold,
		FilingStatuses:              make(map[payroll.FilingStatus]FilingStatusResponse, len(c.FilingStatuses)),
	}
	for _, fs := range c.FilingStatuses {
		out := FilingStatusResponse{StandardDeduction: fs.StandardDeduction}
		for _, b := range fs.Brackets {
			out.Brackets = append(out.Brackets, BracketResponse{Min: b.MinIncome, Max: b.MaxIncome, Rate: b.Rate})
		}
		resp.FilingStatuses[fs.FilingStatus] = out
	}
	return resp
}

type ChangeResponse struct {
	Action    string    `json:"action"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value,omitempty"`
	NewValue  string    `json:"new_value,omitempty"`
	ActorID   string    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

type YtdResponse struct {
	Scope          models.YtdScope `json:"scope"`
	EntityID       string          `json:"entity_id"`
	Year           int             `json:"year"`
	GrossPay       decimal.Decimal `json:"gross_pay"`
	NetPay         decimal.Decimal `json:"net_pay"`
	Withholding    decimal.Decimal `json:"withholding"`
	SocialSecurity decimal.Decimal `json:"social_security"`
	Medicare       decimal.Decimal `json:"medicare"`
	Retirement     decimal.Decimal `json:"retirement"`
	Roth           decimal.Decimal `json:"roth"`
	Tips           decimal.Decimal `json:"tips"`
	Bonus          decimal.Decimal `json:"bonus"`
	OvertimePay    decimal.Decimal `json:"overtime_pay"`
}
