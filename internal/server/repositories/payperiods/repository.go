package payperiods

import (
	"context"
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, p *models.PayPeriod) error
	GetByID(ctx context.Context, id string) (*models.PayPeriod, error)
	// GetForUpdate locks the period row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.PayPeriod, error)
	Delete(ctx context.Context, id string) error

	// Transition moves the period from one status to the next. It returns
	// common.ErrInvalidTransition when the period is no longer in from.
	Transition(ctx context.Context, id string, from, to models.PayPeriodStatus) error
	Approve(ctx context.Context, id, actorID string, at time.Time) error
	Commit(ctx context.Context, id, actorID string, at time.Time) error

	EnsureIdempotencyKey(ctx context.Context, id, candidate string) (string, error)
	MarkSyncing(ctx context.Context, id string) (int, error)
	MarkSynced(ctx context.Context, id string, at time.Time) error
	MarkSyncFailed(ctx context.Context, id, lastError string) error
	// ListUnsynced returns committed periods still owed a delivery: pending,
	// syncing, or failed with fewer than maxAttempts attempts.
	ListUnsynced(ctx context.Context, maxAttempts int) ([]models.UnsyncedPeriod, error)
}
