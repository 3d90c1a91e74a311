package ai

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	amountRe   = regexp.MustCompile(`\(?\s*-?\s*(?:[£$€¥]|RM|USD|GBP|EUR|MYR)?\s*\d[\d,]*(?:\.\d+)?\s*\)?`)
	bareYearRe = regexp.MustCompile(`^(?:19|20)\d{2}$`)
	taxYearRe  = regexp.MustCompile(`\b20\d{2}\b`)
	currencyRe = regexp.MustCompile(`(?i)[£$€¥]|RM|USD|GBP|EUR|MYR`)
	taxIDRe    = regexp.MustCompile(`(?i)\b(?:tax\s*(?:id\b|reference|ref\.?|no\.?|number)|TIN\b|UTR\b|company\s+(?:no\.?|number|registration\s+no\.?))\s*[:#.]?\s*([A-Z0-9][A-Z0-9\-/]{4,})`)

	pbtLineRe        = regexp.MustCompile(`(?i)profit\s*(?:/\s*\(?loss\)?\s*)?before\s+tax|loss\s+before\s+tax|\bpbt\b`)
	deductionLineRe  = regexp.MustCompile(`(?i)capital\s+allowances?|depreciation|tax\s+relief|allowable\s+deductions?`)
	totalExpenseRe   = regexp.MustCompile(`(?i)total\s+(?:operating\s+)?expenses`)
	expenseLineRe    = regexp.MustCompile(`(?i)general\s*(?:&|and)\s*admin|administrative\s+expenses|operating\s+expenses|cost\s+of\s+sales|direct\s+(?:costs?|expenses)|\bexpenses\b`)
	revenueLineRe    = regexp.MustCompile(`(?i)\b(?:revenue|turnover|sales)\b`)
	otherIncomeRe    = regexp.MustCompile(`(?i)\bother\s+(?:operating\s+)?income\b`)
	revenueExcludeRe = regexp.MustCompile(`(?i)cost\s+of|\btax`)
)

// TextFigures holds the amounts found by scanning document lines.
type TextFigures struct {
	Income          float64
	Expenses        float64
	Deductions      float64
	ProfitBeforeTax float64

	HasIncome     bool
	HasExpenses   bool
	HasDeductions bool
	HasPBT        bool
}

// Taxable is profit before tax when found, else income minus expenses and deductions.
func (f TextFigures) Taxable() float64 {
	if f.HasPBT {
		return f.ProfitBeforeTax
	}
	return f.Income - f.Expenses - f.Deductions
}

// ScanText pattern-matches document lines for income, expenses, deductions and
// profit before tax. A line is attributed to one category only, checked in the
// order PBT, deductions, expenses, income.
func ScanText(text string) TextFigures {
	var (
		f            TextFigures
		revenueFound bool
		totalExp     float64
		hasTotalExp  bool
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case pbtLineRe.MatchString(line):
			if f.HasPBT {
				continue
			}
			if v, ok := lineAmount(line); ok {
				f.ProfitBeforeTax, f.HasPBT = v, true
			}
		case deductionLineRe.MatchString(line):
			if v, ok := lineAmount(line); ok {
				f.Deductions += math.Abs(v)
				f.HasDeductions = true
			}
		case totalExpenseRe.MatchString(line):
			if v, ok := lineAmount(line); ok && !hasTotalExp {
				totalExp, hasTotalExp = math.Abs(v), true
			}
		case expenseLineRe.MatchString(line):
			if v, ok := lineAmount(line); ok {
				f.Expenses += math.Abs(v)
				f.HasExpenses = true
			}
		case otherIncomeRe.MatchString(line):
			if v, ok := lineAmount(line); ok {
				f.Income += v
				f.HasIncome = true
			}
		case revenueLineRe.MatchString(line) && !revenueExcludeRe.MatchString(line):
			if revenueFound {
				continue
			}
			if v, ok := lineAmount(line); ok {
				f.Income += v
				f.HasIncome, revenueFound = true, true
			}
		}
	}
	// A stated total replaces the sum of individual expense lines.
	if hasTotalExp {
		f.Expenses, f.HasExpenses = totalExp, true
	}
	return f
}

// ScanTaxYear returns the first 20xx year in text, or fallback.
func ScanTaxYear(text string, fallback int) int {
	if m := taxYearRe.FindString(text); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			return y
		}
	}
	return fallback
}

// ScanTaxID returns a tax or company reference number, or "" when none is printed.
func ScanTaxID(text string) string {
	if m := taxIDRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// lineAmount picks the first amount on the line that is not a bare year,
// falling back to the first amount of any kind.
func lineAmount(line string) (float64, bool) {
	var fallback *float64
	for _, m := range amountRe.FindAllString(line, -1) {
		v, ok := ParseAmount(m)
		if !ok {
			continue
		}
		if bareYearRe.MatchString(strings.TrimSpace(m)) {
			if fallback == nil {
				fallback = &v
			}
			continue
		}
		return v, true
	}
	if fallback != nil {
		return *fallback, true
	}
	return 0, false
}

// ParseAmount converts a printed amount to a number: "(1,680)" is -1680,
// currency markers and thousands separators are ignored.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = currencyRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	if negative {
		d = d.Neg()
	}
	v := d.InexactFloat64()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// toFloat reads a JSON value as a number. Numeric strings are accepted with
// the same rules as printed amounts.
func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case json.Number:
		return ParseAmount(val.String())
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, false
		}
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		return ParseAmount(val)
	default:
		return 0, false
	}
}
