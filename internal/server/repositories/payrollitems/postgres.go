// Package payrollitems persists payroll items. Callers are responsible for
// checking that the owning period is still editable; the repository only
// guarantees one item per (period, employee).
package payrollitems

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/dbx"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
)

const periodEmployeeKey = "payroll_items_period_employee_key"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const columns = `id, pay_period_id, employee_id, employment_type, pay_rate,
		regular_hours, overtime_hours, holiday_hours, pto_hours, tips, bonus,
		loan, insurance, additional_withholding, retirement, roth,
		gross_pay, withholding, social_security, medicare, employer_social_security, employer_medicare,
		total_deductions, net_pay,
		ytd_gross, ytd_net, ytd_withholding, ytd_social_security, ytd_medicare, ytd_retirement,
		calculated_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*models.PayrollItem, error) {
	i := &models.PayrollItem{}
	err := s.Scan(&i.ID, &i.PayPeriodID, &i.EmployeeID, &i.EmploymentType, &i.PayRate,
		&i.RegularHours, &i.OvertimeHours, &i.HolidayHours, &i.PTOHours, &i.Tips, &i.Bonus,
		&i.Loan, &i.Insurance, &i.AdditionalWithholding, &i.Retirement, &i.Roth,
		&i.GrossPay, &i.Withholding, &i.SocialSecurity, &i.Medicare, &i.EmployerSocialSecurity, &i.EmployerMedicare,
		&i.TotalDeductions, &i.NetPay,
		&i.YtdGross, &i.YtdNet, &i.YtdWithholding, &i.YtdSocialSecurity, &i.YtdMedicare, &i.YtdRetirement,
		&i.CalculatedAt, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return i, nil
}

func (r *PostgresRepository) Create(ctx context.Context, item *models.PayrollItem) error {
	query := `
		INSERT INTO payroll_items (pay_period_id, employee_id, employment_type, pay_rate,
			regular_hours, overtime_hours, holiday_hours, pto_hours, tips, bonus, loan, insurance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		item.PayPeriodID, item.EmployeeID, string(item.EmploymentType), item.PayRate,
		item.RegularHours, item.OvertimeHours, item.HolidayHours, item.PTOHours,
		item.Tips, item.Bonus, item.Loan, item.Insurance,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, periodEmployeeKey) {
			return common.NewValidationError(common.ErrDuplicateEmployee,
				fmt.Sprintf("employee %s already has an item in this period", item.EmployeeID))
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, periodID, id string) (*models.PayrollItem, error) {
	query := `SELECT ` + columns + ` FROM payroll_items WHERE pay_period_id = $1 AND id = $2`
	item, err := scanItem(r.db.QueryRowContext(ctx, query, periodID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return item, nil
}

func (r *PostgresRepository) ListByPeriod(ctx context.Context, periodID string) ([]*models.PayrollItem, error) {
	query := `SELECT ` + columns + ` FROM payroll_items WHERE pay_period_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, periodID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.PayrollItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
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

// UpdateInputs stores hours, supplemental pay and flat deductions.
func (r *PostgresRepository) UpdateInputs(ctx context.Context, item *models.PayrollItem) error {
	query := `
		UPDATE payroll_items
		SET regular_hours = $3, overtime_hours = $4, holiday_hours = $5, pto_hours = $6,
		    tips = $7, bonus = $8, loan = $9, insurance = $10, updated_at = now()
		WHERE pay_period_id = $1 AND id = $2`

	res, err := r.db.ExecContext(ctx, query, item.PayPeriodID, item.ID,
		item.RegularHours, item.OvertimeHours, item.HolidayHours, item.PTOHours,
		item.Tips, item.Bonus, item.Loan, item.Insurance)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

// SaveCalculation replaces every computed field, including the employment
// type and pay rate snapshot.
func (r *PostgresRepository) SaveCalculation(ctx context.Context, item *models.PayrollItem) error {
	query := `
		UPDATE payroll_items
		SET employment_type = $3, pay_rate = $4,
		    additional_withholding = $5, retirement = $6, roth = $7,
		    gross_pay = $8, withholding = $9, social_security = $10, medicare = $11,
		    employer_social_security = $12, employer_medicare = $13,
		    total_deductions = $14, net_pay = $15,
		    ytd_gross = $16, ytd_net = $17, ytd_withholding = $18,
		    ytd_social_security = $19, ytd_medicare = $20, ytd_retirement = $21,
		    calculated_at = $22, updated_at = now()
		WHERE pay_period_id = $1 AND id = $2`

	res, err := r.db.ExecContext(ctx, query, item.PayPeriodID, item.ID,
		string(item.EmploymentType), item.PayRate,
		item.AdditionalWithholding, item.Retirement, item.Roth,
		item.GrossPay, item.Withholding, item.SocialSecurity, item.Medicare,
		item.EmployerSocialSecurity, item.EmployerMedicare,
		item.TotalDeductions, item.NetPay,
		item.YtdGross, item.YtdNet, item.YtdWithholding,
		item.YtdSocialSecurity, item.YtdMedicare, item.YtdRetirement,
		item.CalculatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, periodID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM payroll_items WHERE pay_period_id = $1 AND id = $2`, periodID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}
