package taxrates

import (
	"context"

	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/shopspring/decimal"
)

// RateFields is the set of annual FICA parameters an update may touch.
type RateFields struct {
	SocialSecurityWageBase      decimal.Decimal
	SocialSecurityRate          decimal.Decimal
	MedicareRate                decimal.Decimal
	AdditionalMedicareRate      decimal.Decimal
	AdditionalMedicareThreshold decimal.Decimal
}

type Repository interface {
	GetAnnualConfig(ctx context.Context, year int) (*models.AnnualTaxConfig, error)
	GetActiveAnnualConfig(ctx context.Context) (*models.AnnualTaxConfig, error)
	GetTaxTable(ctx context.Context, year int, status payroll.FilingStatus, freq payroll.PayFrequency) (*models.TaxTable, error)

	CreateAnnualConfig(ctx context.Context, cfg *models.AnnualTaxConfig) error
	CreateTaxTable(ctx context.Context, table *models.TaxTable) error
	UpdateRates(ctx context.Context, year int, fields RateFields) error
	UpdateStandardDeduction(ctx context.Context, year int, status payroll.FilingStatus, amount decimal.Decimal) error
	DeactivateAll(ctx context.Context) error
	SetActive(ctx context.Context, year int, active bool) error

	InsertChange(ctx context.Context, change *models.TaxConfigChange) error
	ListChanges(ctx context.Context, year int) ([]*models.TaxConfigChange, error)
}
