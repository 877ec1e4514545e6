package paycalc

import (
	"errors"
	"testing"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/dmitrijs2005/paykeeper/internal/payroll/taxcalc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func legacyCalc() *taxcalc.Calculator {
	return taxcalc.New(taxcalc.FICA{
		WageBase:                    d("168600"),
		SocialSecurityRate:          d("0.062"),
		MedicareRate:                d("0.0145"),
		AdditionalMedicareRate:      d("0.009"),
		AdditionalMedicareThreshold: d("200000"),
	}, taxcalc.Legacy{
		AllowancePerPeriod: d("165.38"),
		Brackets: []taxcalc.LegacyBracket{
			{Min: d("0"), Max: ptr("600"), BaseTax: d("0"), Threshold: d("0"), Rate: d("0")},
			{Min: d("600"), BaseTax: d("0"), Threshold: d("600"), Rate: d("0.10")},
		},
	})
}

// recordingTax captures what the item pipeline hands to the tax calculator.
type recordingTax struct {
	got taxcalc.Input
	res taxcalc.Result
	err error
}

func (r *recordingTax) Compute(in taxcalc.Input) (taxcalc.Result, error) {
	r.got = in
	return r.res, r.err
}

func TestCalculate_HourlyScenario(t *testing.T) {
	res, err := Calculate(Input{
		EmploymentType: payroll.Hourly,
		PayRate:        d("9.25"),
		PayFrequency:   payroll.Biweekly,
		FilingStatus:   payroll.Single,
		Hours:          Hours{Regular: d("56.48")},
	}, legacyCalc())
	require.NoError(t, err)

	assert.Equal(t, "522.44", res.GrossPay.StringFixed(2))
	assert.Equal(t, "32.39", res.SocialSecurity.StringFixed(2))
	assert.Equal(t, "7.58", res.Medicare.StringFixed(2))
	assert.Equal(t, "0.00", res.Withholding.StringFixed(2))
	assert.Equal(t, "482.47", res.NetPay.StringFixed(2))
	assert.True(t, res.NetPay.Equal(res.GrossPay.Sub(res.TotalDeductions)))
	assert.Equal(t, "522.44", res.YTD.Gross.StringFixed(2))
	assert.Equal(t, "482.47", res.YTD.Net.StringFixed(2))
}

func TestHourlyGross_Formula(t *testing.T) {
	in := Input{
		PayRate: d("20"),
		Hours:   Hours{Regular: d("80"), Overtime: d("5"), Holiday: d("8"), PTO: d("4")},
		Tips:    d("12.50"),
		Bonus:   d("100"),
	}
	got, err := HourlyGross{}.GrossPay(in)
	require.NoError(t, err)
	// 1600 + 150 + 160 + 80 + 12.50 + 100
	assert.Equal(t, "2102.50", got.StringFixed(2))
}

func TestSalaryGross_Formula(t *testing.T) {
	tests := []struct {
		freq payroll.PayFrequency
		want string
	}{
		{payroll.Weekly, "1350.00"},
		{payroll.Biweekly, "2600.00"},
		{payroll.Semimonthly, "2808.33"},
		{payroll.Monthly, "5516.67"},
	}
	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			got, err := SalaryGross{}.GrossPay(Input{
				PayRate:      d("65000"),
				PayFrequency: tt.freq,
				Bonus:        d("100"),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestForEmploymentType_Unsupported(t *testing.T) {
	_, err := ForEmploymentType(payroll.EmploymentType("contractor"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnsupportedEmploymentType))
	assert.True(t, common.IsValidation(err))
}

func TestCalculate_PreTaxRetirementOnlyReducesWithholdingBase(t *testing.T) {
	tax := &recordingTax{res: taxcalc.Result{
		Withholding:    d("50"),
		SocialSecurity: d("62"),
		Medicare:       d("14.50"),
	}}
	res, err := Calculate(Input{
		EmploymentType: payroll.Salary,
		PayRate:        d("26000"),
		PayFrequency:   payroll.Biweekly,
		RetirementRate: d("0.05"),
		RothRate:       d("0.03"),
		PriorYTD:       YTD{Gross: d("4000")},
	}, tax)
	require.NoError(t, err)

	assert.Equal(t, "1000.00", tax.got.GrossPay.StringFixed(2))
	assert.Equal(t, "950.00", tax.got.WithholdingBase.StringFixed(2))
	assert.Equal(t, "4000.00", tax.got.YtdGrossBefore.StringFixed(2))

	// independent percentages of gross
	assert.Equal(t, "50.00", res.Retirement.StringFixed(2))
	assert.Equal(t, "30.00", res.Roth.StringFixed(2))
}

func TestCalculate_NetEqualsGrossMinusDeductions(t *testing.T) {
	res, err := Calculate(Input{
		EmploymentType:        payroll.Hourly,
		PayRate:               d("31.10"),
		PayFrequency:          payroll.Weekly,
		FilingStatus:          payroll.Single,
		Hours:                 Hours{Regular: d("40"), Overtime: d("6.5")},
		Tips:                  d("44.10"),
		Bonus:                 d("250"),
		RetirementRate:        d("0.06"),
		RothRate:              d("0.02"),
		AdditionalWithholding: d("25"),
		Loan:                  d("40"),
		Insurance:             d("61.25"),
		PriorYTD:              YTD{Gross: d("30000"), Net: d("22000")},
	}, legacyCalc())
	require.NoError(t, err)

	sum := res.Withholding.Add(res.SocialSecurity).Add(res.Medicare).
		Add(res.AdditionalWithholding).Add(res.Retirement).Add(res.Roth).
		Add(res.Loan).Add(res.Insurance)
	assert.True(t, sum.Equal(res.TotalDeductions))
	assert.True(t, res.NetPay.Equal(res.GrossPay.Sub(res.TotalDeductions)))
	assert.True(t, res.YTD.Gross.Equal(d("30000").Add(res.GrossPay)))
	assert.True(t, res.YTD.Net.Equal(d("22000").Add(res.NetPay)))
}

func TestCalculate_Idempotent(t *testing.T) {
	in := Input{
		EmploymentType: payroll.Hourly,
		PayRate:        d("18.75"),
		PayFrequency:   payroll.Biweekly,
		Hours:          Hours{Regular: d("80"), PTO: d("8")},
		RetirementRate: d("0.04"),
	}
	a, err := Calculate(in, legacyCalc())
	require.NoError(t, err)
	b, err := Calculate(in, legacyCalc())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"negative hours", Input{Hours: Hours{Regular: d("-1")}}},
		{"negative rate", Input{PayRate: d("-10")}},
		{"retirement above one", Input{RetirementRate: d("1.1")}},
		{"rates sum above one", Input{RetirementRate: d("0.6"), RothRate: d("0.5")}},
		{"negative allowances", Input{Allowances: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			require.Error(t, err)
			assert.True(t, common.IsValidation(err))
		})
	}
	require.NoError(t, Input{RetirementRate: d("0.5"), RothRate: d("0.5")}.Validate())
}

func TestCalculate_TaxErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	_, err := Calculate(Input{EmploymentType: payroll.Hourly, PayFrequency: payroll.Weekly}, &recordingTax{err: boom})
	require.ErrorIs(t, err, boom)
}

func TestOvertimePay(t *testing.T) {
	assert.Equal(t, "150.00", OvertimePay(d("5"), d("20")).StringFixed(2))
}
