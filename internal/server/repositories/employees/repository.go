package employees

import (
	"context"

	"github.com/dmitrijs2005/paykeeper/internal/server/models"
)

// Repository is read-only; employee maintenance happens elsewhere.
type Repository interface {
	GetByID(ctx context.Context, id string) (*models.Employee, error)
	ListActive(ctx context.Context, companyID string) ([]*models.Employee, error)
}
