package services

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/dmitrijs2005/paykeeper/internal/payroll/taxcalc"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// TaxYearFile is the YAML document payrollctl imports. Amounts are decimal
// strings.
//
//	year: 2025
//	social_security: {wage_base: "176100", rate: "0.062"}
//	medicare: {rate: "0.0145", additional_rate: "0.009", additional_threshold: "200000"}
//	filing_statuses:
//	  single:
//	    standard_deduction: "15000"
//	    brackets:
//	      - {min: "0", max: "11925", rate: "0.10"}
//	      - {min: "11925", rate: "0.12"}
type TaxYearFile struct {
	Year           int  `yaml:"year"`
	Activate       bool `yaml:"activate"`
	SocialSecurity struct {
		WageBase decimal.Decimal `yaml:"wage_base"`
		Rate     decimal.Decimal `yaml:"rate"`
	} `yaml:"social_security"`
	Medicare struct {
		Rate                decimal.Decimal `yaml:"rate"`
		AdditionalRate      decimal.Decimal `yaml:"additional_rate"`
		AdditionalThreshold decimal.Decimal `yaml:"additional_threshold"`
	} `yaml:"medicare"`
	FilingStatuses map[payroll.FilingStatus]FilingStatusFile `yaml:"filing_statuses"`
	TaxTables      []TaxTableFile                            `yaml:"tax_tables"`
}

type FilingStatusFile struct {
	StandardDeduction decimal.Decimal `yaml:"standard_deduction"`
	Brackets          []BracketFile   `yaml:"brackets"`
}

type BracketFile struct {
	Min  decimal.Decimal  `yaml:"min"`
	Max  *decimal.Decimal `yaml:"max"`
	Rate decimal.Decimal  `yaml:"rate"`
}

// TaxTableFile is a legacy per-period table. FICA parameters are taken from
// the enclosing year.
type TaxTableFile struct {
	FilingStatus    payroll.FilingStatus `yaml:"filing_status"`
	PayFrequency    payroll.PayFrequency `yaml:"pay_frequency"`
	AllowanceAmount decimal.Decimal      `yaml:"allowance_amount"`
	Brackets        []struct {
		Min       decimal.Decimal  `yaml:"min"`
		Max       *decimal.Decimal `yaml:"max"`
		BaseTax   decimal.Decimal  `yaml:"base_tax"`
		Threshold decimal.Decimal  `yaml:"threshold"`
		Rate      decimal.Decimal  `yaml:"rate"`
	} `yaml:"brackets"`
}

func ParseTaxYearFile(r io.Reader) (*TaxYearFile, error) {
	var f TaxYearFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse tax year file: %w", err)
	}
	return &f, nil
}

func (f *TaxYearFile) sortedStatuses() []payroll.FilingStatus {
	out := make([]payroll.FilingStatus, 0, len(f.FilingStatuses))
	for st := range f.FilingStatuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks rate ranges and that every bracket ladder partitions
// [0, inf).
func (f *TaxYearFile) Validate() error {
	var errs []error
	if f.Year < 1900 || f.Year > 9999 {
		errs = append(errs, fmt.Errorf("year %d out of range", f.Year))
	}
	errs = append(errs, checkRate("social_security.rate", f.SocialSecurity.Rate),
		checkRate("medicare.rate", f.Medicare.Rate),
		checkRate("medicare.additional_rate", f.Medicare.AdditionalRate),
		checkAmount("social_security.wage_base", f.SocialSecurity.WageBase),
		checkAmount("medicare.additional_threshold", f.Medicare.AdditionalThreshold))
	if len(f.FilingStatuses) == 0 && len(f.TaxTables) == 0 {
		errs = append(errs, errors.New("no filing statuses or tax tables"))
	}
	for _, st := range f.sortedStatuses() {
		fs := f.FilingStatuses[st]
		if !st.Valid() {
			errs = append(errs, fmt.Errorf("unknown filing status %q", st))
			continue
		}
		errs = append(errs, checkAmount(string(st)+".standard_deduction", fs.StandardDeduction))
		if err := taxcalc.ValidateBrackets(fs.bracketLadder()); err != nil {
			errs = append(errs, fmt.Errorf("%s brackets: %w", st, err))
		}
	}
	for i, t := range f.TaxTables {
		if !t.FilingStatus.Valid() || !t.PayFrequency.Valid() {
			errs = append(errs, fmt.Errorf("tax_tables[%d]: unknown filing status or pay frequency", i))
		}
		if len(t.Brackets) == 0 {
			errs = append(errs, fmt.Errorf("tax_tables[%d]: no brackets", i))
		}
	}
	return errors.Join(errs...)
}

func (fs FilingStatusFile) bracketLadder() []taxcalc.Bracket {
	out := make([]taxcalc.Bracket, 0, len(fs.Brackets))
	for _, b := range fs.Brackets {
		out = append(out, taxcalc.Bracket{Min: b.Min, Max: b.Max, Rate: b.Rate})
	}
	return out
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

// AnnualConfig converts the file into an inactive config record.
func (f *TaxYearFile) AnnualConfig() *models.AnnualTaxConfig {
	cfg := &models.AnnualTaxConfig{
		Year:                        f.Year,
		SocialSecurityWageBase:      f.SocialSecurity.WageBase,
		SocialSecurityRate:          f.SocialSecurity.Rate,
		MedicareRate:                f.Medicare.Rate,
		AdditionalMedicareRate:      f.Medicare.AdditionalRate,
		AdditionalMedicareThreshold: f.Medicare.AdditionalThreshold,
	}
	for _, st := range f.sortedStatuses() {
		fs := f.FilingStatuses[st]
		c := models.FilingStatusConfig{FilingStatus: st, StandardDeduction: fs.StandardDeduction}
		for i, b := range fs.Brackets {
			c.Brackets = append(c.Brackets, models.TaxBracket{
				Position:  i,
				MinIncome: b.Min,
				MaxIncome: nullDecimal(b.Max),
				Rate:      b.Rate,
			})
		}
		cfg.FilingStatuses = append(cfg.FilingStatuses, c)
	}
	return cfg
}

// Tables converts the legacy tables.
func (f *TaxYearFile) Tables() []*models.TaxTable {
	out := make([]*models.TaxTable, 0, len(f.TaxTables))
	for _, t := range f.TaxTables {
		table := &models.TaxTable{
			Year:                        f.Year,
			FilingStatus:                t.FilingStatus,
			PayFrequency:                t.PayFrequency,
			AllowanceAmount:             t.AllowanceAmount,
			SocialSecurityWageBase:      f.SocialSecurity.WageBase,
			SocialSecurityRate:          f.SocialSecurity.Rate,
			MedicareRate:                f.Medicare.Rate,
			AdditionalMedicareRate:      f.Medicare.AdditionalRate,
			AdditionalMedicareThreshold: f.Medicare.AdditionalThreshold,
		}
		for i, b := range t.Brackets {
			table.Brackets = append(table.Brackets, models.TaxTableBracket{
				Position:  i,
				MinIncome: b.Min,
				MaxIncome: nullDecimal(b.Max),
				BaseTax:   b.BaseTax,
				Threshold: b.Threshold,
				Rate:      b.Rate,
			})
		}
		out = append(out, table)
	}
	return out
}

func checkRate(name string, v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be within [0,1]", name)
	}
	return nil
}

func checkAmount(name string, v decimal.Decimal) error {
	if v.IsNegative() {
		return fmt.Errorf("%s must be non-negative", name)
	}
	return nil
}
