package ytd

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cols = []string{"id", "scope", "entity_id", "year", "gross_pay", "net_pay", "withholding", "social_security",
	"medicare", "retirement", "roth", "insurance", "loan", "tips", "bonus", "overtime_pay", "updated_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestEnsure(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+ytd_totals.*ON\s+CONFLICT\s+\(scope,\s*entity_id,\s*year\)\s+DO\s+NOTHING`).
		WithArgs("employee", "e-1", 2025).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.Ensure(context.Background(), models.ScopeEmployee, "e-1", 2025))
}

func TestGetForUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`(?s)FROM\s+ytd_totals\s+WHERE\s+scope\s*=\s*\$1\s+AND\s+entity_id\s*=\s*\$2\s+AND\s+year\s*=\s*\$3\s+FOR\s+UPDATE`).
		WithArgs("company", "co-1", 2025).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("y-1", "company", "co-1", 2025,
			"1000", "800", "50", "62", "14.5", "0", "0", "0", "0", "0", "0", "0", time.Now()))

	got, err := repo.GetForUpdate(context.Background(), models.ScopeCompany, "co-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, models.ScopeCompany, got.Scope)
	assert.True(t, got.GrossPay.Equal(decimal.NewFromInt(1000)))
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM\s+ytd_totals`).WillReturnError(sql.ErrNoRows)
	_, err := repo.Get(context.Background(), models.ScopeEmployee, "e-1", 2025)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	args := []driver.Value{"y-1"}
	for i := 0; i < 12; i++ {
		args = append(args, sqlmock.AnyArg())
	}
	mock.ExpectExec(`(?s)UPDATE\s+ytd_totals\s+SET\s+gross_pay\s*=\s*\$2.*WHERE\s+id\s*=\s*\$1`).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), &models.YtdTotal{ID: "y-1"}))
}

func TestReset(t *testing.T) {
	tests := []struct {
		name    string
		result  driverResult
		wantErr error
	}{
		{"zeroed", driverResult{rows: 1}, nil},
		{"missing row", driverResult{rows: 0}, common.ErrNotFound},
		{"db error", driverResult{err: errors.New("down")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			exp := mock.ExpectExec(`(?s)UPDATE\s+ytd_totals\s+SET\s+gross_pay\s*=\s*0`).
				WithArgs("employee", "e-1", 2025)
			if tt.result.err != nil {
				exp.WillReturnError(tt.result.err)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, tt.result.rows))
			}

			err := repo.Reset(context.Background(), models.ScopeEmployee, "e-1", 2025)
			switch {
			case tt.result.err != nil:
				require.Error(t, err)
				assert.Contains(t, err.Error(), "db error")
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			default:
				require.NoError(t, err)
			}
		})
	}
}

type driverResult struct {
	rows int64
	err  error
}
