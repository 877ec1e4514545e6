package ytd

import (
	"context"

	"github.com/dmitrijs2005/paykeeper/internal/server/models"
)

// Repository is written to only by the YTD service.
type Repository interface {
	// Ensure creates a zero row for the key if none exists.
	Ensure(ctx context.Context, scope models.YtdScope, entityID string, year int) error
	Get(ctx context.Context, scope models.YtdScope, entityID string, year int) (*models.YtdTotal, error)
	// GetForUpdate takes a row lock held until the transaction ends.
	GetForUpdate(ctx context.Context, scope models.YtdScope, entityID string, year int) (*models.YtdTotal, error)
	Update(ctx context.Context, t *models.YtdTotal) error
	Reset(ctx context.Context, scope models.YtdScope, entityID string, year int) error
}
