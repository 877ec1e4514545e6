// Package ytd stores cumulative year-to-date totals keyed by
// (scope, entity, year).
package ytd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

const columns = `id, scope, entity_id, year, gross_pay, net_pay, withholding, social_security, medicare,
		retirement, roth, insurance, loan, tips, bonus, overtime_pay, updated_at`

func (r *PostgresRepository) Ensure(ctx context.Context, scope models.YtdScope, entityID string, year int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ytd_totals (scope, entity_id, year) VALUES ($1, $2, $3)
		ON CONFLICT (scope, entity_id, year) DO NOTHING`, string(scope), entityID, year)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) get(ctx context.Context, suffix string, scope models.YtdScope, entityID string, year int) (*models.YtdTotal, error) {
	query := `SELECT ` + columns + ` FROM ytd_totals WHERE scope = $1 AND entity_id = $2 AND year = $3` + suffix

	t := &models.YtdTotal{}
	err := r.db.QueryRowContext(ctx, query, string(scope), entityID, year).Scan(
		&t.ID, &t.Scope, &t.EntityID, &t.Year, &t.GrossPay, &t.NetPay, &t.Withholding, &t.SocialSecurity,
		&t.Medicare, &t.Retirement, &t.Roth, &t.Insurance, &t.Loan, &t.Tips, &t.Bonus, &t.OvertimePay, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Get(ctx context.Context, scope models.YtdScope, entityID string, year int) (*models.YtdTotal, error) {
	return r.get(ctx, "", scope, entityID, year)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, scope models.YtdScope, entityID string, year int) (*models.YtdTotal, error) {
	return r.get(ctx, " FOR UPDATE", scope, entityID, year)
}

func (r *PostgresRepository) Update(ctx context.Context, t *models.YtdTotal) error {
	query := `
		UPDATE ytd_totals
		SET gross_pay = $2, net_pay = $3, withholding = $4, social_security = $5, medicare = $6,
		    retirement = $7, roth = $8, insurance = $9, loan = $10, tips = $11, bonus = $12,
		    overtime_pay = $13, updated_at = now()
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, t.ID,
		t.GrossPay, t.NetPay, t.Withholding, t.SocialSecurity, t.Medicare,
		t.Retirement, t.Roth, t.Insurance, t.Loan, t.Tips, t.Bonus, t.OvertimePay)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) Reset(ctx context.Context, scope models.YtdScope, entityID string, year int) error {
	query := `
		UPDATE ytd_totals
		SET gross_pay = 0, net_pay = 0, withholding = 0, social_security = 0, medicare = 0,
		    retirement = 0, roth = 0, insurance = 0, loan = 0, tips = 0, bonus = 0,
		    overtime_pay = 0, updated_at = now()
		WHERE scope = $1 AND entity_id = $2 AND year = $3`

	res, err := r.db.ExecContext(ctx, query, string(scope), entityID, year)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
