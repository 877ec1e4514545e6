package employees

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

const columns = `id, company_id, department_id, first_name, last_name, employment_type, pay_rate,
		pay_frequency, filing_status, allowances, retirement_rate, roth_rate, additional_withholding, status`

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(s scanner) (*models.Employee, error) {
	e := &models.Employee{}
	var department sql.NullString
	err := s.Scan(&e.ID, &e.CompanyID, &department, &e.FirstName, &e.LastName, &e.EmploymentType, &e.PayRate,
		&e.PayFrequency, &e.FilingStatus, &e.Allowances, &e.RetirementRate, &e.RothRate,
		&e.AdditionalWithholding, &e.Status)
	if err != nil {
		return nil, err
	}
	e.DepartmentID = department.String
	return e, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Employee, error) {
	e, err := scanEmployee(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM employees WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) ListActive(ctx context.Context, companyID string) ([]*models.Employee, error) {
	query := `SELECT ` + columns + ` FROM employees
		WHERE company_id = $1 AND status = 'active'
		ORDER BY last_name, first_name, id`

	rows, err := r.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
