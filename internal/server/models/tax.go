package models

import (
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/shopspring/decimal"
)

// AnnualTaxConfig is the authoritative rate set for one tax year. At most one
// config is active at a time.
type AnnualTaxConfig struct {
	ID                          string
	Year                        int
	SocialSecurityWageBase      decimal.Decimal
	SocialSecurityRate          decimal.Decimal
	MedicareRate                decimal.Decimal
	AdditionalMedicareRate      decimal.Decimal
	AdditionalMedicareThreshold decimal.Decimal
	Active                      bool
	CreatedAt                   time.Time
	UpdatedAt                   time.Time

	FilingStatuses []FilingStatusConfig
}

// FilingStatus returns the config for status, or nil.
func (c *AnnualTaxConfig) FilingStatus(status payroll.FilingStatus) *FilingStatusConfig {
	for i := range c.FilingStatuses {
		if c.FilingStatuses[i].FilingStatus == status {
			return &c.FilingStatuses[i]
		}
	}
	return nil
}

type FilingStatusConfig struct {
	ID                string
	TaxConfigID       string
	FilingStatus      payroll.FilingStatus
	StandardDeduction decimal.Decimal
	Brackets          []TaxBracket
}

// TaxBracket is one rung of the annual ladder. A NULL MaxIncome is the
// unbounded top bracket.
type TaxBracket struct {
	ID                   string
	FilingStatusConfigID string
	Position             int
	MinIncome            decimal.Decimal
	MaxIncome            decimal.NullDecimal
	Rate                 decimal.Decimal
}

// TaxTable is the legacy per-period withholding table for one
// (year, filing status, pay frequency). It carries its own FICA parameters.
type TaxTable struct {
	ID                          string
	Year                        int
	FilingStatus                payroll.FilingStatus
	PayFrequency                payroll.PayFrequency
	AllowanceAmount             decimal.Decimal
	SocialSecurityWageBase      decimal.Decimal
	SocialSecurityRate          decimal.Decimal
	MedicareRate                decimal.Decimal
	AdditionalMedicareRate      decimal.Decimal
	AdditionalMedicareThreshold decimal.Decimal

	Brackets []TaxTableBracket
}

type TaxTableBracket struct {
	Position  int
	MinIncome decimal.Decimal
	MaxIncome decimal.NullDecimal
	BaseTax   decimal.Decimal
	Threshold decimal.Decimal
	Rate      decimal.Decimal
}

// Change log actions.
const (
	TaxChangeCreate     = "create"
	TaxChangeUpdate     = "update"
	TaxChangeActivate   = "activate"
	TaxChangeDeactivate = "deactivate"
)

// TaxConfigChange is an append-only audit row. Rows are never updated.
type TaxConfigChange struct {
	ID        string
	Year      int
	Action    string
	Field     string
	OldValue  string
	NewValue  string
	ActorID   string
	CreatedAt time.Time
}
