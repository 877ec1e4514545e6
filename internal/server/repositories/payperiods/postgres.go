// Package payperiods persists pay periods, their lifecycle status and their
// tax sync state. Status changes are guarded in SQL so a stale caller cannot
// move a period that has already advanced.
package payperiods

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/dbx"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const columns = `id, company_id, start_date, end_date, pay_date, status, created_by,
		approved_by, approved_at, committed_by, committed_at,
		tax_sync_status, tax_sync_attempts, tax_sync_last_error, tax_synced_at, idempotency_key,
		created_at, updated_at`

func scanPeriod(row *sql.Row) (*models.PayPeriod, error) {
	p := &models.PayPeriod{}
	var approvedBy, committedBy, key sql.NullString
	err := row.Scan(&p.ID, &p.CompanyID, &p.StartDate, &p.EndDate, &p.PayDate, &p.Status, &p.CreatedBy,
		&approvedBy, &p.ApprovedAt, &committedBy, &p.CommittedAt,
		&p.TaxSyncStatus, &p.TaxSyncAttempts, &p.TaxSyncLastError, &p.TaxSyncedAt, &key,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	p.ApprovedBy = approvedBy.String
	p.CommittedBy = committedBy.String
	p.IdempotencyKey = key.String
	return p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.PayPeriod) error {
	query := `
		INSERT INTO pay_periods (company_id, start_date, end_date, pay_date, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, status, tax_sync_status, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, p.CompanyID, p.StartDate, p.EndDate, p.PayDate, p.CreatedBy).
		Scan(&p.ID, &p.Status, &p.TaxSyncStatus, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if dbx.IsCheckViolation(err) {
			return common.NewValidationError(common.ErrInvalidDates, "start < end <= pay date")
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.PayPeriod, error) {
	return scanPeriod(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM pay_periods WHERE id = $1`, id))
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.PayPeriod, error) {
	return scanPeriod(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM pay_periods WHERE id = $1 FOR UPDATE`, id))
}

// Delete removes a period that is not committed. Items go with it.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pay_periods WHERE id = $1 AND status <> 'committed'`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return guarded(res, common.ErrPeriodCommitted)
}

// guarded maps a zero-row guarded update to onZero.
func guarded(res sql.Result, onZero error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return onZero
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) Transition(ctx context.Context, id string, from, to models.PayPeriodStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE pay_periods SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return guarded(res, common.ErrInvalidTransition)
}

func (r *PostgresRepository) Approve(ctx context.Context, id, actorID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pay_periods
		SET status = 'approved', approved_by = $2, approved_at = $3, updated_at = now()
		WHERE id = $1 AND status = 'calculated'`, id, actorID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return guarded(res, common.ErrInvalidTransition)
}

func (r *PostgresRepository) Commit(ctx context.Context, id, actorID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pay_periods
		SET status = 'committed', committed_by = $2, committed_at = $3, tax_sync_status = 'pending', updated_at = now()
		WHERE id = $1 AND status = 'approved'`, id, actorID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return guarded(res, common.ErrInvalidTransition)
}

// EnsureIdempotencyKey stores candidate unless a key is already set, and
// returns whichever key the period ends up with.
func (r *PostgresRepository) EnsureIdempotencyKey(ctx context.Context, id, candidate string) (string, error) {
	var key string
	err := r.db.QueryRowContext(ctx, `
		UPDATE pay_periods SET idempotency_key = COALESCE(idempotency_key, $2)
		WHERE id = $1
		RETURNING idempotency_key`, id, candidate).Scan(&key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return key, nil
}

// MarkSyncing starts an attempt and returns the new attempt count. Synced
// periods are never restarted.
func (r *PostgresRepository) MarkSyncing(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE pay_periods
		SET tax_sync_status = 'syncing', tax_sync_attempts = tax_sync_attempts + 1, updated_at = now()
		WHERE id = $1 AND status = 'committed' AND tax_sync_status <> 'synced'
		RETURNING tax_sync_attempts`, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrInvalidTransition
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}

func (r *PostgresRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pay_periods
		SET tax_sync_status = 'synced', tax_synced_at = $2, tax_sync_last_error = '', updated_at = now()
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return guarded(res, common.ErrNotFound)
}

func (r *PostgresRepository) MarkSyncFailed(ctx context.Context, id, lastError string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pay_periods
		SET tax_sync_status = 'failed', tax_sync_last_error = $2, updated_at = now()
		WHERE id = $1 AND tax_sync_status <> 'synced'`, id, lastError)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return guarded(res, common.ErrInvalidTransition)
}

// ListUnsynced returns committed periods left pending, stuck in syncing by a
// crash, or failed with automatic attempts to spare, oldest commit first.
func (r *PostgresRepository) ListUnsynced(ctx context.Context, maxAttempts int) ([]models.UnsyncedPeriod, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tax_sync_attempts FROM pay_periods
		WHERE status = 'committed'
		  AND (tax_sync_status IN ('pending', 'syncing')
		       OR (tax_sync_status = 'failed' AND tax_sync_attempts < $1))
		ORDER BY committed_at`, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.UnsyncedPeriod
	for rows.Next() {
		var p models.UnsyncedPeriod
		if err := rows.Scan(&p.ID, &p.Attempts); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
