package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) *sql.DB {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestFactories_ReturnRepos(t *testing.T) {
	db := newDB(t)
	m := NewPostgresRepositoryManager()

	assert.NotNil(t, m.TaxRates(db))
	assert.NotNil(t, m.Companies(db))
	assert.NotNil(t, m.Employees(db))
	assert.NotNil(t, m.PayPeriods(db))
	assert.NotNil(t, m.PayrollItems(db))
	assert.NotNil(t, m.Ytd(db))
}

func TestRunMigrations(t *testing.T) {
	tests := []struct {
		name    string
		up      func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error
		wantErr string
	}{
		{
			name: "success",
			up: func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
				if dir != "." {
					return errors.New("unexpected dir")
				}
				return nil
			},
		},
		{
			name: "error propagates",
			up: func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
				return errors.New("boom")
			},
			wantErr: "boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := gooseUpContext
			gooseUpContext = tt.up
			t.Cleanup(func() { gooseUpContext = orig })

			err := (&PostgresRepositoryManager{}).RunMigrations(context.Background(), newDB(t))
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
