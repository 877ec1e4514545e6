package payrollitems

import (
	"context"

	"github.com/dmitrijs2005/paykeeper/internal/server/models"
)

type Repository interface {
	// Create returns common.ErrDuplicateEmployee when the employee already
	// has an item in the period.
	Create(ctx context.Context, item *models.PayrollItem) error
	GetByID(ctx context.Context, periodID, id string) (*models.PayrollItem, error)
	ListByPeriod(ctx context.Context, periodID string) ([]*models.PayrollItem, error)
	UpdateInputs(ctx context.Context, item *models.PayrollItem) error
	SaveCalculation(ctx context.Context, item *models.PayrollItem) error
	Delete(ctx context.Context, periodID, id string) error
}
