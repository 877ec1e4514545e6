package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/paykeeper/internal/dbx"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/companies"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/employees"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/payperiods"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/payrollitems"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/taxrates"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/ytd"
)

// RepositoryManager vends repositories bound to a DBTX, so one service call
// can use the same repositories against *sql.DB or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	TaxRates(db dbx.DBTX) taxrates.Repository
	Companies(db dbx.DBTX) companies.Repository
	Employees(db dbx.DBTX) employees.Repository
	PayPeriods(db dbx.DBTX) payperiods.Repository
	PayrollItems(db dbx.DBTX) payrollitems.Repository
	Ytd(db dbx.DBTX) ytd.Repository
}
