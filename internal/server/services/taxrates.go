package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/dbx"
	"github.com/dmitrijs2005/paykeeper/internal/logging"
	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/dmitrijs2005/paykeeper/internal/payroll/taxcalc"
	"github.com/dmitrijs2005/paykeeper/internal/server/actor"
	"github.com/dmitrijs2005/paykeeper/internal/server/events"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/taxrates"
	"github.com/shopspring/decimal"
)

// TaxRateService resolves tax calculators and owns every tax configuration
// change. Each change writes an append-only audit row in the same
// transaction.
type TaxRateService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	events      events.Sink
	log         logging.Logger
	now         func() time.Time
}

func NewTaxRateService(db *sql.DB, repomanager repomanager.RepositoryManager, sink events.Sink, log logging.Logger) *TaxRateService {
	return &TaxRateService{
		db:          db,
		repomanager: repomanager,
		events:      sink,
		log:         log.With("module", "taxrates"),
		now:         time.Now,
	}
}

// Calculator returns the calculator for a tax year, filing status and pay
// frequency, reading through db so callers can resolve inside their own
// transaction. An annual config for the year wins; otherwise the legacy
// per-period table is used.
func (s *TaxRateService) Calculator(ctx context.Context, db dbx.DBTX, year int, status payroll.FilingStatus, freq payroll.PayFrequency) (*taxcalc.Calculator, error) {
	repo := s.repomanager.TaxRates(db)

	cfg, err := repo.GetAnnualConfig(ctx, year)
	if err == nil {
		return annualizedCalculator(cfg, status)
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	table, err := repo.GetTaxTable(ctx, year, status, freq)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewConfigurationError(common.ErrTaxRateNotFound,
			fmt.Sprintf("year %d, filing status %s, pay frequency %s", year, status, freq))
	}
	if err != nil {
		return nil, err
	}
	return legacyCalculator(table), nil
}

func annualizedCalculator(cfg *models.AnnualTaxConfig, status payroll.FilingStatus) (*taxcalc.Calculator, error) {
	fs := cfg.FilingStatus(status)
	if fs == nil {
		return nil, common.NewConfigurationError(common.ErrTaxRateNotFound,
			fmt.Sprintf("year %d has no %s brackets", cfg.Year, status))
	}

	brackets := make([]taxcalc.Bracket, 0, len(fs.Brackets))
	for _, b := range fs.Brackets {
		br := taxcalc.Bracket{Min: b.MinIncome, Rate: b.Rate}
		if b.MaxIncome.Valid {
			m := b.MaxIncome.Decimal
			br.Max = &m
		}
		brackets = append(brackets, br)
	}
	if err := taxcalc.ValidateBrackets(brackets); err != nil {
		return nil, common.NewConfigurationError(common.ErrInvalidTaxConfig,
			fmt.Sprintf("year %d %s: %v", cfg.Year, status, err))
	}

	fica := taxcalc.FICA{
		WageBase:                    cfg.SocialSecurityWageBase,
		SocialSecurityRate:          cfg.SocialSecurityRate,
		MedicareRate:                cfg.MedicareRate,
		AdditionalMedicareRate:      cfg.AdditionalMedicareRate,
		AdditionalMedicareThreshold: cfg.AdditionalMedicareThreshold,
	}
	return taxcalc.New(fica, taxcalc.Annualized{StandardDeduction: fs.StandardDeduction, Brackets: brackets}), nil
}

func legacyCalculator(t *models.TaxTable) *taxcalc.Calculator {
	brackets := make([]taxcalc.LegacyBracket, 0, len(t.Brackets))
	for _, b := range t.Brackets {
		br := taxcalc.LegacyBracket{Min: b.MinIncome, BaseTax: b.BaseTax, Threshold: b.Threshold, Rate: b.Rate}
		if b.MaxIncome.Valid {
			m := b.MaxIncome.Decimal
			br.Max = &m
		}
		brackets = append(brackets, br)
	}

	fica := taxcalc.FICA{
		WageBase:                    t.SocialSecurityWageBase,
		SocialSecurityRate:          t.SocialSecurityRate,
		MedicareRate:                t.MedicareRate,
		AdditionalMedicareRate:      t.AdditionalMedicareRate,
		AdditionalMedicareThreshold: t.AdditionalMedicareThreshold,
	}
	return taxcalc.New(fica, taxcalc.Legacy{AllowancePerPeriod: t.AllowanceAmount, Brackets: brackets})
}

func (s *TaxRateService) Get(ctx context.Context, year int) (*models.AnnualTaxConfig, error) {
	return s.repomanager.TaxRates(s.db).GetAnnualConfig(ctx, year)
}

func (s *TaxRateService) Changes(ctx context.Context, year int) ([]*models.TaxConfigChange, error) {
	return s.repomanager.TaxRates(s.db).ListChanges(ctx, year)
}

// RatePatch carries the fields an update touches. Nil fields stay as they
// are.
type RatePatch struct {
	SocialSecurityWageBase      *decimal.Decimal                         `json:"ss_wage_base,omitempty"`
	SocialSecurityRate          *decimal.Decimal                         `json:"ss_rate,omitempty"`
	MedicareRate                *decimal.Decimal                         `json:"medicare_rate,omitempty"`
	AdditionalMedicareRate      *decimal.Decimal                         `json:"additional_medicare_rate,omitempty"`
	AdditionalMedicareThreshold *decimal.Decimal                         `json:"additional_medicare_threshold,omitempty"`
	StandardDeductions          map[payroll.FilingStatus]decimal.Decimal `json:"standard_deductions,omitempty"`
}

type rateField struct {
	name   string
	patch  *decimal.Decimal
	target *decimal.Decimal
	isRate bool
}

func (p RatePatch) fields(f *taxrates.RateFields) []rateField {
	return []rateField{
		{"ss_wage_base", p.SocialSecurityWageBase, &f.SocialSecurityWageBase, false},
		{"ss_rate", p.SocialSecurityRate, &f.SocialSecurityRate, true},
		{"medicare_rate", p.MedicareRate, &f.MedicareRate, true},
		{"additional_medicare_rate", p.AdditionalMedicareRate, &f.AdditionalMedicareRate, true},
		{"additional_medicare_threshold", p.AdditionalMedicareThreshold, &f.AdditionalMedicareThreshold, false},
	}
}

func (p RatePatch) validate() error {
	var errs []error
	for _, f := range p.fields(&taxrates.RateFields{}) {
		if f.patch == nil {
			continue
		}
		if f.isRate {
			errs = append(errs, checkRate(f.name, *f.patch))
		} else {
			errs = append(errs, checkAmount(f.name, *f.patch))
		}
	}
	for st, v := range p.StandardDeductions {
		if !st.Valid() {
			errs = append(errs, fmt.Errorf("unknown filing status %q", st))
		}
		errs = append(errs, checkAmount("standard_deduction."+string(st), v))
	}
	if err := errors.Join(errs...); err != nil {
		return common.NewValidationError(common.ErrInvalidInput, err.Error())
	}
	return nil
}

// UpdateRates applies patch to year and records one audit row per changed
// field.
func (s *TaxRateService) UpdateRates(ctx context.Context, act actor.Actor, year int, patch RatePatch) (*models.AnnualTaxConfig, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	if err := patch.validate(); err != nil {
		return nil, err
	}

	var updated *models.AnnualTaxConfig
	var changed int
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.TaxRates(tx)

		cfg, err := repo.GetAnnualConfig(ctx, year)
		if err != nil {
			return err
		}

		var changes []*models.TaxConfigChange
		record := func(field string, before, after decimal.Decimal) {
			changes = append(changes, &models.TaxConfigChange{
				Year:     year,
				Action:   models.TaxChangeUpdate,
				Field:    field,
				OldValue: before.String(),
				NewValue: after.String(),
				ActorID:  act.UserID,
			})
		}

		fields := taxrates.RateFields{
			SocialSecurityWageBase:      cfg.SocialSecurityWageBase,
			SocialSecurityRate:          cfg.SocialSecurityRate,
			MedicareRate:                cfg.MedicareRate,
			AdditionalMedicareRate:      cfg.AdditionalMedicareRate,
			AdditionalMedicareThreshold: cfg.AdditionalMedicareThreshold,
		}
		ratesChanged := false
		for _, f := range patch.fields(&fields) {
			if f.patch == nil || f.patch.Equal(*f.target) {
				continue
			}
			record(f.name, *f.target, *f.patch)
			*f.target = *f.patch
			ratesChanged = true
		}
		if ratesChanged {
			if err := repo.UpdateRates(ctx, year, fields); err != nil {
				return err
			}
		}

		statuses := make([]payroll.FilingStatus, 0, len(patch.StandardDeductions))
		for st := range patch.StandardDeductions {
			statuses = append(statuses, st)
		}
		sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

		for _, st := range statuses {
			amount := patch.StandardDeductions[st]
			fs := cfg.FilingStatus(st)
			if fs == nil {
				return common.NewValidationError(common.ErrInvalidInput,
					fmt.Sprintf("tax year %d has no %s configuration", year, st))
			}
			if fs.StandardDeduction.Equal(amount) {
				continue
			}
			if err := repo.UpdateStandardDeduction(ctx, year, st, amount); err != nil {
				return err
			}
			record("standard_deduction."+string(st), fs.StandardDeduction, amount)
		}

		for _, c := range changes {
			if err := repo.InsertChange(ctx, c); err != nil {
				return err
			}
		}
		changed = len(changes)

		if changed == 0 {
			updated = cfg
			return nil
		}
		updated, err = repo.GetAnnualConfig(ctx, year)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed > 0 {
		s.log.Info(ctx, "tax rates updated", "year", year, "fields", changed, "actor_id", act.UserID)
		s.emit(ctx, act, year, models.TaxChangeUpdate, map[string]any{"fields": changed})
	}
	return updated, nil
}

// CopyYear deep-copies the deductions and brackets of from into a new,
// inactive config for to.
func (s *TaxRateService) CopyYear(ctx context.Context, act actor.Actor, from, to int) (*models.AnnualTaxConfig, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	if from == to || to <= 0 {
		return nil, common.NewValidationError(common.ErrInvalidInput, fmt.Sprintf("cannot copy tax year %d to %d", from, to))
	}

	var created *models.AnnualTaxConfig
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.TaxRates(tx)

		src, err := repo.GetAnnualConfig(ctx, from)
		if err != nil {
			return err
		}
		if _, err := repo.GetAnnualConfig(ctx, to); err == nil {
			return common.NewValidationError(common.ErrInvalidInput, fmt.Sprintf("tax year %d already exists", to))
		} else if !errors.Is(err, common.ErrNotFound) {
			return err
		}

		created = copyAnnualConfig(src, to)
		if err := repo.CreateAnnualConfig(ctx, created); err != nil {
			return err
		}
		return repo.InsertChange(ctx, &models.TaxConfigChange{
			Year:     to,
			Action:   models.TaxChangeCreate,
			Field:    "copied_from",
			NewValue: fmt.Sprint(from),
			ActorID:  act.UserID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "tax year copied", "from", from, "to", to, "actor_id", act.UserID)
	s.emit(ctx, act, to, models.TaxChangeCreate, map[string]any{"copied_from": from})
	return created, nil
}

func copyAnnualConfig(src *models.AnnualTaxConfig, year int) *models.AnnualTaxConfig {
	dst := &models.AnnualTaxConfig{
		Year:                        year,
		SocialSecurityWageBase:      src.SocialSecurityWageBase,
		SocialSecurityRate:          src.SocialSecurityRate,
		MedicareRate:                src.MedicareRate,
		AdditionalMedicareRate:      src.AdditionalMedicareRate,
		AdditionalMedicareThreshold: src.AdditionalMedicareThreshold,
	}
	for _, fs := range src.FilingStatuses {
		c := models.FilingStatusConfig{FilingStatus: fs.FilingStatus, StandardDeduction: fs.StandardDeduction}
		for _, b := range fs.Brackets {
			c.Brackets = append(c.Brackets, models.TaxBracket{
				Position:  b.Position,
				MinIncome: b.MinIncome,
				MaxIncome: b.MaxIncome,
				Rate:      b.Rate,
			})
		}
		dst.FilingStatuses = append(dst.FilingStatuses, c)
	}
	return dst
}

// Activate makes year the single active config.
func (s *TaxRateService) Activate(ctx context.Context, act actor.Actor, year int) error {
	if err := act.Validate(); err != nil {
		return err
	}

	var previous int
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.TaxRates(tx)
		return s.activate(ctx, repo, act, year, &previous)
	})
	if err != nil {
		return err
	}

	s.log.Info(ctx, "tax year activated", "year", year, "previous", previous, "actor_id", act.UserID)
	s.emit(ctx, act, year, models.TaxChangeActivate, map[string]any{"previous": previous})
	return nil
}

func (s *TaxRateService) activate(ctx context.Context, repo taxrates.Repository, act actor.Actor, year int, previous *int) error {
	target, err := repo.GetAnnualConfig(ctx, year)
	if err != nil {
		return err
	}
	if target.Active {
		*previous = year
		return nil
	}

	prev, err := repo.GetActiveAnnualConfig(ctx)
	switch {
	case err == nil:
		*previous = prev.Year
	case !errors.Is(err, common.ErrNotFound):
		return err
	}

	if err := repo.DeactivateAll(ctx); err != nil {
		return err
	}
	if err := repo.SetActive(ctx, year, true); err != nil {
		return err
	}

	if prev != nil {
		if err := repo.InsertChange(ctx, &models.TaxConfigChange{
			Year: prev.Year, Action: models.TaxChangeDeactivate, Field: "active",
			OldValue: "true", NewValue: "false", ActorID: act.UserID,
		}); err != nil {
			return err
		}
	}
	return repo.InsertChange(ctx, &models.TaxConfigChange{
		Year: year, Action: models.TaxChangeActivate, Field: "active",
		OldValue: "false", NewValue: "true", ActorID: act.UserID,
	})
}

func (s *TaxRateService) Deactivate(ctx context.Context, act actor.Actor, year int) error {
	if err := act.Validate(); err != nil {
		return err
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.TaxRates(tx)

		cfg, err := repo.GetAnnualConfig(ctx, year)
		if err != nil {
			return err
		}
		if !cfg.Active {
			return nil
		}
		if err := repo.SetActive(ctx, year, false); err != nil {
			return err
		}
		return repo.InsertChange(ctx, &models.TaxConfigChange{
			Year: year, Action: models.TaxChangeDeactivate, Field: "active",
			OldValue: "true", NewValue: "false", ActorID: act.UserID,
		})
	})
	if err != nil {
		return err
	}

	s.log.Info(ctx, "tax year deactivated", "year", year, "actor_id", act.UserID)
	s.emit(ctx, act, year, models.TaxChangeDeactivate, nil)
	return nil
}

// ImportYear creates a year from a parsed file, with its legacy tables, and
// activates it when the file asks for that.
func (s *TaxRateService) ImportYear(ctx context.Context, act actor.Actor, f *TaxYearFile) (*models.AnnualTaxConfig, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, common.NewValidationError(common.ErrInvalidInput, err.Error())
	}

	cfg := f.AnnualConfig()
	tables := f.Tables()
	var previous int
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.TaxRates(tx)

		if len(cfg.FilingStatuses) > 0 {
			if err := repo.CreateAnnualConfig(ctx, cfg); err != nil {
				return err
			}
		}
		for _, t := range tables {
			if err := repo.CreateTaxTable(ctx, t); err != nil {
				return err
			}
		}
		if err := repo.InsertChange(ctx, &models.TaxConfigChange{
			Year:     f.Year,
			Action:   models.TaxChangeCreate,
			Field:    "imported",
			NewValue: fmt.Sprintf("%d filing statuses, %d tax tables", len(cfg.FilingStatuses), len(tables)),
			ActorID:  act.UserID,
		}); err != nil {
			return err
		}

		if f.Activate && len(cfg.FilingStatuses) > 0 {
			if err := s.activate(ctx, repo, act, f.Year, &previous); err != nil {
				return err
			}
			cfg.Active = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "tax year imported", "year", f.Year, "filing_statuses", len(cfg.FilingStatuses),
		"tax_tables", len(tables), "active", cfg.Active, "actor_id", act.UserID)
	s.emit(ctx, act, f.Year, models.TaxChangeCreate, map[string]any{"imported": true})
	return cfg, nil
}

func (s *TaxRateService) emit(ctx context.Context, act actor.Actor, year int, action string, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["action"] = action
	s.events.Emit(ctx, events.Event{
		Type:       events.TaxConfigChanged,
		ActorID:    act.UserID,
		RecordType: "tax_year",
		RecordID:   fmt.Sprint(year),
		Metadata:   meta,
		At:         s.now(),
	})
}
