package services

import (
	"fmt"
	"math"

	"github.com/facturaIA/tax-extraction-service/internal/models"
)

// CrossValidation is the outcome of reconciling a validation payload with a record.
// Nil corrections mean the record's value was kept.
type CrossValidation struct {
	CorrectedIncome  *float64
	CorrectedTaxable *float64
	Diagnostics      models.Diagnostics
}

// Apply returns record with the corrections written in.
func (c CrossValidation) Apply(record models.ExtractedTaxRecord) models.ExtractedTaxRecord {
	if c.CorrectedIncome != nil {
		record.TotalIncome = *c.CorrectedIncome
	}
	if c.CorrectedTaxable != nil {
		record.TaxableAmount = *c.CorrectedTaxable
	}
	return record
}

// TaxValidator applies plausibility rules to extracted tax figures. It never
// rejects a record; it corrects within bounds and reports what it did.
type TaxValidator struct {
	revenueTolerance   float64 // relative (0.10 = 10%)
	pbtTolerance       float64 // absolute
	grossProfitRatio   float64 // relative to revenue
	highTaxRatio       float64 // tax share of profit before tax
	expenseWarnRatio   float64
	expenseCapRatio    float64
	residualMinimum    float64
	residualIncomeRate float64
}

// NewTaxValidator creates a validator with the default thresholds.
func NewTaxValidator() *TaxValidator {
	return &TaxValidator{
		revenueTolerance:   0.10,
		pbtTolerance:       100,
		grossProfitRatio:   0.20,
		highTaxRatio:       0.50,
		expenseWarnRatio:   3,
		expenseCapRatio:    5,
		residualMinimum:    1000,
		residualIncomeRate: 0.10,
	}
}

// CrossValidate reconciles the validation figures with the record. All rules
// are evaluated independently.
func (v *TaxValidator) CrossValidate(val models.ValidationPayload, record models.ExtractedTaxRecord) CrossValidation {
	var out CrossValidation

	// 1. Revenue
	if rev := val.Revenue; rev != nil && finite(*rev) && *rev > 0 {
		income := record.TotalIncome
		if income == 0 || math.Abs(*rev-income)/math.Abs(income) > v.revenueTolerance {
			corrected := *rev
			out.CorrectedIncome = &corrected
			out.Diagnostics.Correct("totalIncome", "revenue_mismatch",
				fmt.Sprintf("totalIncome %.2f replaced by validation revenue %.2f", income, corrected))
		}
	}

	// 2. Profit before tax
	if pbt := val.ProfitBeforeTax; pbt != nil && finite(*pbt) {
		if math.Abs(*pbt-record.TaxableAmount) > v.pbtTolerance {
			corrected := *pbt
			out.CorrectedTaxable = &corrected
			out.Diagnostics.Correct("taxableAmount", "pbt_mismatch",
				fmt.Sprintf("taxableAmount %.2f replaced by validation profit before tax %.2f", record.TaxableAmount, corrected))
		}
	}

	// 3. Advisory checks
	v.validateGrossProfit(val, &out.Diagnostics)
	v.validateProfitChain(val, &out.Diagnostics)

	return out
}

// validateGrossProfit compares revenue less cost of sales with profit before
// tax plus operating expenses.
func (v *TaxValidator) validateGrossProfit(val models.ValidationPayload, d *models.Diagnostics) {
	if val.Revenue == nil || val.CostOfSales == nil || val.ProfitBeforeTax == nil || val.OperatingExpenses == nil {
		return
	}
	revenue := *val.Revenue
	if revenue <= 0 {
		return
	}
	gross := revenue - *val.CostOfSales
	implied := *val.ProfitBeforeTax + *val.OperatingExpenses
	if math.Abs(gross-implied) > revenue*v.grossProfitRatio {
		d.Warn("costOfSales", "gross_profit_mismatch",
			fmt.Sprintf("gross profit %.2f differs from profit before tax plus operating expenses %.2f", round2(gross), round2(implied)))
	}
}

func (v *TaxValidator) validateProfitChain(val models.ValidationPayload, d *models.Diagnostics) {
	npat := val.NetProfitAfterTax
	if val.RetainedEarnings != nil && *val.RetainedEarnings > 0 && npat != nil && *npat <= 0 {
		d.Warn("retainedEarnings", "retained_without_profit",
			"retained earnings are positive while net profit after tax is not")
	}
	if npat == nil || val.ProfitBeforeTax == nil {
		return
	}
	pbt := *val.ProfitBeforeTax
	if *npat > pbt {
		d.Warn("netProfitAfterTax", "negative_tax",
			fmt.Sprintf("net profit after tax %.2f exceeds profit before tax %.2f", *npat, pbt))
	}
	if pbt > 0 && pbt-*npat > pbt*v.highTaxRatio {
		d.Warn("netProfitAfterTax", "high_tax_rate",
			fmt.Sprintf("effective tax rate %.1f%% is unusually high", (pbt-*npat)/pbt*100))
	}
}

// ApplySoftConstraints normalises a record from any source. Applying it twice
// gives the same record as applying it once.
func (v *TaxValidator) ApplySoftConstraints(record models.ExtractedTaxRecord) (models.ExtractedTaxRecord, models.Diagnostics) {
	var d models.Diagnostics

	for _, f := range []struct {
		name string
		val  *float64
	}{
		{"totalIncome", &record.TotalIncome},
		{"totalExpenses", &record.TotalExpenses},
		{"totalDeductions", &record.TotalDeductions},
		{"taxableAmount", &record.TaxableAmount},
	} {
		if !finite(*f.val) {
			d.Warn(f.name, "non_finite", fmt.Sprintf("%s was %v, reset to 0", f.name, *f.val))
			*f.val = 0
		}
	}

	income := record.TotalIncome
	if income > 0 && record.TotalExpenses > income*v.expenseWarnRatio {
		d.Warn("totalExpenses", "expense_ratio",
			fmt.Sprintf("totalExpenses %.2f exceed %.0fx totalIncome %.2f", record.TotalExpenses, v.expenseWarnRatio, income))
		if limit := income * v.expenseCapRatio; record.TotalExpenses > limit {
			d.Correct("totalExpenses", "expense_cap",
				fmt.Sprintf("totalExpenses %.2f capped at %.2f", record.TotalExpenses, limit))
			record.TotalExpenses = limit
		}
	}

	residual := record.Residual()
	tolerance := math.Max(v.residualMinimum, income*v.residualIncomeRate)
	if finite(residual) && math.Abs(record.TaxableAmount-residual) > tolerance {
		if record.TaxableAmount == 0 && residual != 0 {
			d.Correct("taxableAmount", "taxable_filled",
				fmt.Sprintf("taxableAmount was 0, set to computed residual %.2f", residual))
			record.TaxableAmount = residual
		} else {
			d.Warn("taxableAmount", "taxable_inconsistent",
				fmt.Sprintf("taxableAmount %.2f differs from computed residual %.2f", record.TaxableAmount, residual))
		}
	}

	if record.TotalIncome <= 0 && record.BusinessType != models.HoldingCompany {
		d.Warn("totalIncome", "non_positive_income",
			fmt.Sprintf("totalIncome is %.2f for an operating entity", record.TotalIncome))
	}

	return record, d
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// round2 rounds to 2 decimal places
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
