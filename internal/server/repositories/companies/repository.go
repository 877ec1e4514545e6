package companies

import (
	"context"

	"github.com/dmitrijs2005/paykeeper/internal/server/models"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*models.Company, error)
	GetDepartment(ctx context.Context, id string) (*models.Department, error)
}
