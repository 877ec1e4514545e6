package companies

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

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Company, error) {
	c := &models.Company{}
	err := r.db.QueryRowContext(ctx, `SELECT id, name, ein FROM companies WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.EIN)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) GetDepartment(ctx context.Context, id string) (*models.Department, error) {
	d := &models.Department{}
	err := r.db.QueryRowContext(ctx, `SELECT id, company_id, name FROM departments WHERE id = $1`, id).
		Scan(&d.ID, &d.CompanyID, &d.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}
