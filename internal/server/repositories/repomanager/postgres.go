// Package repomanager wires the PostgreSQL repositories together and runs
// the embedded goose migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/paykeeper/internal/dbx"
	"github.com/dmitrijs2005/paykeeper/internal/server/migrations"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/companies"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/employees"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/payperiods"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/payrollitems"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/taxrates"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/ytd"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) TaxRates(db dbx.DBTX) taxrates.Repository {
	return taxrates.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Companies(db dbx.DBTX) companies.Repository {
	return companies.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Employees(db dbx.DBTX) employees.Repository {
	return employees.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) PayPeriods(db dbx.DBTX) payperiods.Repository {
	return payperiods.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) PayrollItems(db dbx.DBTX) payrollitems.Repository {
	return payrollitems.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Ytd(db dbx.DBTX) ytd.Repository {
	return ytd.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
