// Package taxrates stores year-scoped tax configuration: annual FICA
// parameters, per-filing-status deductions and brackets, the legacy
// per-period tables, and the append-only change log.
package taxrates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/dbx"
	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/shopspring/decimal"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const annualColumns = `id, year, ss_wage_base, ss_rate, medicare_rate,
		additional_medicare_rate, additional_medicare_threshold, active, created_at, updated_at`

func (r *PostgresRepository) GetAnnualConfig(ctx context.Context, year int) (*models.AnnualTaxConfig, error) {
	query := `SELECT ` + annualColumns + ` FROM annual_tax_configs WHERE year = $1`
	return r.loadAnnual(ctx, query, year)
}

func (r *PostgresRepository) GetActiveAnnualConfig(ctx context.Context) (*models.AnnualTaxConfig, error) {
	query := `SELECT ` + annualColumns + ` FROM annual_tax_configs WHERE active`
	return r.loadAnnual(ctx, query)
}

func (r *PostgresRepository) loadAnnual(ctx context.Context, query string, args ...any) (*models.AnnualTaxConfig, error) {
	cfg := &models.AnnualTaxConfig{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&cfg.ID, &cfg.Year, &cfg.SocialSecurityWageBase, &cfg.SocialSecurityRate, &cfg.MedicareRate,
		&cfg.AdditionalMedicareRate, &cfg.AdditionalMedicareThreshold, &cfg.Active, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	statuses, err := r.loadFilingStatuses(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	cfg.FilingStatuses = statuses
	return cfg, nil
}

func (r *PostgresRepository) loadFilingStatuses(ctx context.Context, configID string) ([]models.FilingStatusConfig, error) {
	query := `
		SELECT f.id, f.filing_status, f.standard_deduction,
		       b.id, b.position, b.min_income, b.max_income, b.rate
		FROM filing_status_configs f
		LEFT JOIN tax_brackets b ON b.filing_status_config_id = f.id
		WHERE f.tax_config_id = $1
		ORDER BY f.filing_status, b.position`

	rows, err := r.db.QueryContext(ctx, query, configID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.FilingStatusConfig
	for rows.Next() {
		var (
			fs        models.FilingStatusConfig
			bracketID sql.NullString
			position  sql.NullInt64
			minIncome decimal.NullDecimal
			maxIncome decimal.NullDecimal
			rate      decimal.NullDecimal
		)
		if err := rows.Scan(&fs.ID, &fs.FilingStatus, &fs.StandardDeduction,
			&bracketID, &position, &minIncome, &maxIncome, &rate); err != nil {
			return nil, err
		}
		fs.TaxConfigID = configID

		if n := len(result); n == 0 || result[n-1].ID != fs.ID {
			result = append(result, fs)
		}
		if bracketID.Valid {
			last := &result[len(result)-1]
			last.Brackets = append(last.Brackets, models.TaxBracket{
				ID:                   bracketID.String,
				FilingStatusConfigID: fs.ID,
				Position:             int(position.Int64),
				MinIncome:            minIncome.Decimal,
				MaxIncome:            maxIncome,
				Rate:                 rate.Decimal,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) GetTaxTable(ctx context.Context, year int, status payroll.FilingStatus, freq payroll.PayFrequency) (*models.TaxTable, error) {
	query := `
		SELECT id, year, filing_status, pay_frequency, allowance_amount, ss_wage_base, ss_rate,
		       medicare_rate, additional_medicare_rate, additional_medicare_threshold
		FROM tax_tables
		WHERE year = $1 AND filing_status = $2 AND pay_frequency = $3`

	t := &models.TaxTable{}
	err := r.db.QueryRowContext(ctx, query, year, string(status), string(freq)).Scan(
		&t.ID, &t.Year, &t.FilingStatus, &t.PayFrequency, &t.AllowanceAmount, &t.SocialSecurityWageBase,
		&t.SocialSecurityRate, &t.MedicareRate, &t.AdditionalMedicareRate, &t.AdditionalMedicareThreshold,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT position, min_income, max_income, base_tax, threshold, rate
		FROM tax_table_brackets WHERE tax_table_id = $1 ORDER BY position`, t.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b models.TaxTableBracket
		if err := rows.Scan(&b.Position, &b.MinIncome, &b.MaxIncome, &b.BaseTax, &b.Threshold, &b.Rate); err != nil {
			return nil, err
		}
		t.Brackets = append(t.Brackets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateAnnualConfig inserts cfg with its filing statuses and brackets and
// fills in the generated ids. Run it inside a transaction.
func (r *PostgresRepository) CreateAnnualConfig(ctx context.Context, cfg *models.AnnualTaxConfig) error {
	query := `
		INSERT INTO annual_tax_configs (year, ss_wage_base, ss_rate, medicare_rate,
			additional_medicare_rate, additional_medicare_threshold, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		cfg.Year, cfg.SocialSecurityWageBase, cfg.SocialSecurityRate, cfg.MedicareRate,
		cfg.AdditionalMedicareRate, cfg.AdditionalMedicareThreshold, cfg.Active,
	).Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return common.NewValidationError(common.ErrInvalidInput, fmt.Sprintf("tax year %d already exists", cfg.Year))
		}
		return fmt.Errorf("db error: %w", err)
	}

	for i := range cfg.FilingStatuses {
		fs := &cfg.FilingStatuses[i]
		fs.TaxConfigID = cfg.ID
		err := r.db.QueryRowContext(ctx, `
			INSERT INTO filing_status_configs (tax_config_id, filing_status, standard_deduction)
			VALUES ($1, $2, $3) RETURNING id`,
			cfg.ID, string(fs.FilingStatus), fs.StandardDeduction,
		).Scan(&fs.ID)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		for j := range fs.Brackets {
			b := &fs.Brackets[j]
			b.FilingStatusConfigID = fs.ID
			err := r.db.QueryRowContext(ctx, `
				INSERT INTO tax_brackets (filing_status_config_id, position, min_income, max_income, rate)
				VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				fs.ID, b.Position, b.MinIncome, b.MaxIncome, b.Rate,
			).Scan(&b.ID)
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}
	}
	return nil
}

func (r *PostgresRepository) CreateTaxTable(ctx context.Context, t *models.TaxTable) error {
	query := `
		INSERT INTO tax_tables (year, filing_status, pay_frequency, allowance_amount, ss_wage_base, ss_rate,
			medicare_rate, additional_medicare_rate, additional_medicare_threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		t.Year, string(t.FilingStatus), string(t.PayFrequency), t.AllowanceAmount, t.SocialSecurityWageBase,
		t.SocialSecurityRate, t.MedicareRate, t.AdditionalMedicareRate, t.AdditionalMedicareThreshold,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	for _, b := range t.Brackets {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO tax_table_brackets (tax_table_id, position, min_income, max_income, base_tax, threshold, rate)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID, b.Position, b.MinIncome, b.MaxIncome, b.BaseTax, b.Threshold, b.Rate)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
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

func (r *PostgresRepository) UpdateRates(ctx context.Context, year int, f RateFields) error {
	query := `
		UPDATE annual_tax_configs
		SET ss_wage_base = $2, ss_rate = $3, medicare_rate = $4,
		    additional_medicare_rate = $5, additional_medicare_threshold = $6, updated_at = now()
		WHERE year = $1`

	res, err := r.db.ExecContext(ctx, query, year,
		f.SocialSecurityWageBase, f.SocialSecurityRate, f.MedicareRate,
		f.AdditionalMedicareRate, f.AdditionalMedicareThreshold)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) UpdateStandardDeduction(ctx context.Context, year int, status payroll.FilingStatus, amount decimal.Decimal) error {
	query := `
		UPDATE filing_status_configs f
		SET standard_deduction = $3
		FROM annual_tax_configs c
		WHERE f.tax_config_id = c.id AND c.year = $1 AND f.filing_status = $2`

	res, err := r.db.ExecContext(ctx, query, year, string(status), amount)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) DeactivateAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `UPDATE annual_tax_configs SET active = false, updated_at = now() WHERE active`)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetActive(ctx context.Context, year int, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE annual_tax_configs SET active = $2, updated_at = now() WHERE year = $1`, year, active)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) InsertChange(ctx context.Context, c *models.TaxConfigChange) error {
	query := `
		INSERT INTO tax_config_changes (year, action, field, old_value, new_value, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, c.Year, c.Action, c.Field, c.OldValue, c.NewValue, c.ActorID).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListChanges(ctx context.Context, year int) ([]*models.TaxConfigChange, error) {
	query := `
		SELECT id, year, action, field, old_value, new_value, actor_id, created_at
		FROM tax_config_changes WHERE year = $1 ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, year)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.TaxConfigChange
	for rows.Next() {
		c := &models.TaxConfigChange{}
		if err := rows.Scan(&c.ID, &c.Year, &c.Action, &c.Field, &c.OldValue, &c.NewValue, &c.ActorID, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
