package ai

import (
	"regexp"
	"strings"

	"github.com/facturaIA/tax-extraction-service/internal/models"
)

// Shape is the layout of a parsed model response.
type Shape string

const (
	ShapeEnhanced           Shape = "enhanced"
	ShapeFinancialStatement Shape = "financial_statement"
	ShapeSimplified         Shape = "simplified"
	ShapeStandard           Shape = "standard"
)

const validationDataKey = "validationData"

var (
	statementKeys = []string{"Balance_Sheet", "Profit_and_Loss", "Retained_Earnings"}
	canonicalKeys = []string{"taxpayerName", "taxYear", "totalIncome", "totalExpenses", "totalDeductions", "taxableAmount", "taxId", "businessType"}

	simplifiedIncomeKeys     = []string{"Revenue", "Income", "Sales", "Turnover"}
	simplifiedExpenseKeys    = []string{"Expenses", "TotalExpenses"}
	simplifiedPBTKeys        = []string{"ProfitBeforeTax", "Profit_Before_Tax"}
	simplifiedDeductionsKeys = []string{"Deductions", "CapitalAllowances"}

	// Item value fields, highest priority first.
	itemAmountKeys = []string{"Amount", "Expenses", "Cost"}
	itemLabelKeys  = []string{"Account", "account", "Item", "Description"}

	itemPBTRe        = regexp.MustCompile(`(?i)profit.*before.*tax|\bpbt\b`)
	itemDeductionRe  = regexp.MustCompile(`(?i)capital\s+allowances?|depreciation|deductions?|tax\s+relief`)
	itemExpenseRe    = regexp.MustCompile(`(?i)general|administrative|admin|operating|total\s+expenses|\bexpenses\b`)
	itemRevenueRe    = regexp.MustCompile(`(?i)revenue|income|sales|turnover`)
	itemNotRevenueRe = regexp.MustCompile(`(?i)cost\s+of|\btax\b`)
)

// Classify tags obj with its shape. Checks run in a fixed order: validation
// payload, statement arrays, simplified keys, then standard.
func Classify(obj map[string]any) Shape {
	if _, ok := obj[validationDataKey].(map[string]any); ok {
		return ShapeEnhanced
	}
	for _, k := range statementKeys {
		if _, ok := obj[k].([]any); ok {
			return ShapeFinancialStatement
		}
	}
	if hasAny(obj, canonicalKeys) {
		return ShapeStandard
	}
	for _, group := range [][]string{simplifiedIncomeKeys, simplifiedExpenseKeys, simplifiedPBTKeys, simplifiedDeductionsKeys} {
		if hasAny(obj, group) {
			return ShapeSimplified
		}
	}
	return ShapeStandard
}

// Normalizer maps each shape to the canonical record.
type Normalizer struct {
	Detector EntityDetector
	// Year supplies the default tax year.
	Year func() int
}

// Normalize maps obj to a record. For the enhanced shape the validation payload
// is returned separately; it never appears in the record.
func (n Normalizer) Normalize(obj map[string]any, shape Shape, documentText string) (models.ExtractedTaxRecord, *models.ValidationPayload) {
	switch shape {
	case ShapeEnhanced:
		v := validationFrom(obj[validationDataKey].(map[string]any))
		return n.standard(obj), &v
	case ShapeFinancialStatement:
		return n.financialStatement(obj, documentText), nil
	case ShapeSimplified:
		return n.simplified(obj, documentText), nil
	default:
		return n.standard(obj), nil
	}
}

func (n Normalizer) standard(obj map[string]any) models.ExtractedTaxRecord {
	var r models.ExtractedTaxRecord
	r.TaxpayerName = stringField(obj, "taxpayerName")
	r.TaxID = stringField(obj, "taxId")
	r.BusinessType = stringField(obj, "businessType")
	if y, ok := toFloat(obj["taxYear"]); ok && y >= 1900 && y <= 2999 {
		r.TaxYear = int(y)
	}
	r.TotalIncome = numberField(obj, "totalIncome")
	r.TotalExpenses = numberField(obj, "totalExpenses")
	r.TotalDeductions = numberField(obj, "totalDeductions")
	r.TaxableAmount = numberField(obj, "taxableAmount")
	r.FillDefaults(n.year())
	return r
}

func (n Normalizer) financialStatement(obj map[string]any, doc string) models.ExtractedTaxRecord {
	r := n.fromDocument(doc)

	items, _ := obj["Profit_and_Loss"].([]any)
	var income, expenses, deductions, pbt float64
	var haveIncome, haveExpenses, haveDeductions, havePBT bool
	for _, it := range items {
		item, ok := it.(map[string]any)
		if !ok {
			continue
		}
		label := firstString(item, itemLabelKeys)
		if label == "" {
			continue
		}
		amount, ok := firstNumber(item, itemAmountKeys)
		if !ok {
			continue
		}
		switch {
		case itemPBTRe.MatchString(label):
			if !havePBT {
				pbt, havePBT = amount, true
			}
		case itemDeductionRe.MatchString(label):
			if !haveDeductions {
				deductions, haveDeductions = amount, true
			}
		case itemRevenueRe.MatchString(label) && !itemNotRevenueRe.MatchString(label):
			if !haveIncome {
				income, haveIncome = amount, true
			}
		case itemExpenseRe.MatchString(label):
			if !haveExpenses {
				expenses, haveExpenses = amount, true
			}
		}
	}

	r.TotalIncome = income
	r.TotalExpenses = expenses
	r.TotalDeductions = deductions
	if pbt != 0 {
		r.TaxableAmount = pbt
	} else {
		r.TaxableAmount = r.Residual()
	}
	return r
}

func (n Normalizer) simplified(obj map[string]any, doc string) models.ExtractedTaxRecord {
	r := n.fromDocument(doc)
	scan := ScanText(doc)

	if v, ok := firstNumber(obj, simplifiedIncomeKeys); ok {
		r.TotalIncome = v
	} else {
		r.TotalIncome = scan.Income
	}
	if v, ok := firstNumber(obj, simplifiedExpenseKeys); ok {
		r.TotalExpenses = v
	} else {
		r.TotalExpenses = scan.Expenses
	}
	if v, ok := firstNumber(obj, simplifiedDeductionsKeys); ok {
		r.TotalDeductions = v
	} else {
		r.TotalDeductions = scan.Deductions
	}
	switch v, ok := firstNumber(obj, simplifiedPBTKeys); {
	case ok:
		r.TaxableAmount = v
	case scan.HasPBT:
		r.TaxableAmount = scan.ProfitBeforeTax
	default:
		r.TaxableAmount = r.Residual()
	}
	return r
}

// FromText builds a record entirely from document text; it is the last
// recovery stage.
func (n Normalizer) FromText(text string) models.ExtractedTaxRecord {
	r := n.fromDocument(text)
	scan := ScanText(text)
	r.TotalIncome = scan.Income
	r.TotalExpenses = scan.Expenses
	r.TotalDeductions = scan.Deductions
	r.TaxableAmount = scan.Taxable()
	return r
}

// fromDocument fills identity fields and the tax year from document text.
func (n Normalizer) fromDocument(doc string) models.ExtractedTaxRecord {
	r := models.DefaultRecord(n.year())
	ent := n.detector().Detect(doc)
	r.TaxpayerName = ent.Name
	r.BusinessType = ent.BusinessType
	r.TaxYear = ScanTaxYear(doc, r.TaxYear)
	if id := ScanTaxID(doc); id != "" {
		r.TaxID = id
	}
	r.FillDefaults(n.year())
	return r
}

func (n Normalizer) detector() EntityDetector {
	if n.Detector == nil {
		return HeuristicEntityDetector{}
	}
	return n.Detector
}

func (n Normalizer) year() int {
	if n.Year == nil {
		return currentYear()
	}
	return n.Year()
}

func validationFrom(m map[string]any) models.ValidationPayload {
	get := func(key string) *float64 {
		if v, ok := toFloat(m[key]); ok {
			return &v
		}
		return nil
	}
	return models.ValidationPayload{
		Revenue:           get("revenue"),
		ProfitBeforeTax:   get("profitBeforeTax"),
		NetProfitAfterTax: get("netProfitAfterTax"),
		RetainedEarnings:  get("retainedEarnings"),
		CostOfSales:       get("costOfSales"),
		OperatingExpenses: get("operatingExpenses"),
	}
}

func hasAny(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func numberField(obj map[string]any, key string) float64 {
	v, _ := toFloat(obj[key])
	return v
}

func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		if s := stringField(obj, k); s != "" {
			return s
		}
	}
	return ""
}

func firstNumber(obj map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		if v, ok := toFloat(obj[k]); ok {
			return v, true
		}
	}
	return 0, false
}
