package taxcalc

import (
	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/shopspring/decimal"
)

// FICA carries the year's social security and medicare parameters.
type FICA struct {
	WageBase                    decimal.Decimal
	SocialSecurityRate          decimal.Decimal
	MedicareRate                decimal.Decimal
	AdditionalMedicareRate      decimal.Decimal
	AdditionalMedicareThreshold decimal.Decimal
}

// SocialSecurityTaxable is min(gross, max(wageBase - ytdBefore, 0)). Once the
// year's gross reaches the wage base it stays zero for the rest of the year.
func (f FICA) SocialSecurityTaxable(gross, ytdBefore decimal.Decimal) decimal.Decimal {
	remaining := payroll.NonNegative(f.WageBase.Sub(ytdBefore))
	return decimal.Min(gross, remaining)
}

// SocialSecurity is the employee social security tax for the period.
func (f FICA) SocialSecurity(gross, ytdBefore decimal.Decimal) decimal.Decimal {
	return payroll.Round2(f.SocialSecurityTaxable(gross, ytdBefore).Mul(f.SocialSecurityRate))
}

// AdditionalMedicareTaxable is the slice of this paycheck above the threshold.
func (f FICA) AdditionalMedicareTaxable(gross, ytdBefore decimal.Decimal) decimal.Decimal {
	switch {
	case ytdBefore.GreaterThanOrEqual(f.AdditionalMedicareThreshold):
		return gross
	case ytdBefore.Add(gross).LessThanOrEqual(f.AdditionalMedicareThreshold):
		return decimal.Zero
	default:
		return ytdBefore.Add(gross).Sub(f.AdditionalMedicareThreshold)
	}
}

// Medicare is base plus additional medicare for the employee, rounded.
func (f FICA) Medicare(gross, ytdBefore decimal.Decimal) decimal.Decimal {
	base, additional := f.medicareParts(gross, ytdBefore)
	return payroll.Round2(base.Add(additional))
}

// medicareParts returns the unrounded base and additional amounts. The employer
// matches only the base part.
func (f FICA) medicareParts(gross, ytdBefore decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	base := gross.Mul(f.MedicareRate)
	additional := f.AdditionalMedicareTaxable(gross, ytdBefore).Mul(f.AdditionalMedicareRate)
	return base, additional
}
