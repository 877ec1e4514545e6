package taxcalc

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/shopspring/decimal"
)

// Bracket is one rung of an annual progressive ladder. A nil Max is the
// unbounded top bracket.
type Bracket struct {
	Min  decimal.Decimal
	Max  *decimal.Decimal
	Rate decimal.Decimal
}

// ValidateBrackets checks that brackets partition [0, inf): ascending,
// contiguous, non-overlapping, with only the last one unbounded.
func ValidateBrackets(brackets []Bracket) error {
	if len(brackets) == 0 {
		return errors.New("no brackets")
	}
	if !brackets[0].Min.IsZero() {
		return errors.New("first bracket must start at 0")
	}
	for i, b := range brackets {
		if b.Rate.IsNegative() || b.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("bracket %d: rate out of range", i)
		}
		last := i == len(brackets)-1
		if b.Max == nil {
			if !last {
				return fmt.Errorf("bracket %d: only the top bracket may be unbounded", i)
			}
			continue
		}
		if !b.Max.GreaterThan(b.Min) {
			return fmt.Errorf("bracket %d: max must exceed min", i)
		}
		if last {
			return errors.New("top bracket must be unbounded")
		}
		if !brackets[i+1].Min.Equal(*b.Max) {
			return fmt.Errorf("bracket %d: gap or overlap with next bracket", i)
		}
	}
	return nil
}

// ProgressiveTax applies the ladder to an annual amount.
func ProgressiveTax(annual decimal.Decimal, brackets []Bracket) decimal.Decimal {
	ordered := make([]Bracket, len(brackets))
	copy(ordered, brackets)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Min.LessThan(ordered[j].Min) })

	remaining := payroll.NonNegative(annual)
	tax := decimal.Zero
	for _, b := range ordered {
		if !remaining.IsPositive() {
			break
		}
		take := remaining
		if b.Max != nil {
			take = decimal.Min(remaining, b.Max.Sub(b.Min))
		}
		tax = tax.Add(take.Mul(b.Rate))
		remaining = remaining.Sub(take)
	}
	return tax
}

// Annualized is the standard-deduction method: deduct the per-period share of
// the annual standard deduction, annualize, run the ladder, de-annualize.
type Annualized struct {
	StandardDeduction decimal.Decimal
	Brackets          []Bracket
}

func (a Annualized) Withholding(base decimal.Decimal, freq payroll.PayFrequency, _ int) (decimal.Decimal, error) {
	n, err := freq.PeriodsPerYear()
	if err != nil {
		return decimal.Zero, err
	}
	periods := decimal.NewFromInt(n)

	perPeriodDeduction := a.StandardDeduction.Div(periods)
	taxable := payroll.NonNegative(base.Sub(perPeriodDeduction))
	annualTax := ProgressiveTax(taxable.Mul(periods), a.Brackets)

	// rounding happens once, here
	return payroll.Round2(annualTax.Div(periods)), nil
}

// LegacyBracket is one row of a per-period withholding table.
type LegacyBracket struct {
	Min       decimal.Decimal
	Max       *decimal.Decimal
	BaseTax   decimal.Decimal
	Threshold decimal.Decimal
	Rate      decimal.Decimal
}

func (b LegacyBracket) contains(x decimal.Decimal) bool {
	if x.LessThan(b.Min) {
		return false
	}
	return b.Max == nil || x.LessThanOrEqual(*b.Max)
}

// Legacy is the per-period table method used when no annual configuration
// exists for the year.
type Legacy struct {
	AllowancePerPeriod decimal.Decimal
	Brackets           []LegacyBracket
}

func (l Legacy) Withholding(base decimal.Decimal, _ payroll.PayFrequency, allowances int) (decimal.Decimal, error) {
	if allowances < 0 {
		return decimal.Zero, errors.New("allowances must be non-negative")
	}
	x := payroll.NonNegative(base.Sub(l.AllowancePerPeriod.Mul(decimal.NewFromInt(int64(allowances)))))
	for _, b := range l.Brackets {
		if b.contains(x) {
			w := b.BaseTax.Add(x.Sub(b.Threshold).Mul(b.Rate))
			return payroll.Round2(payroll.NonNegative(w)), nil
		}
	}
	return decimal.Zero, nil
}
