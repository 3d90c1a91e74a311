package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1,680", 1680, true},
		{"(1,680)", -1680, true},
		{"-250.50", -250.5, true},
		{"$13,247", 13247, true},
		{"RM 2,000.75", 2000.75, true},
		{"£(500)", 0, false},
		{"(£500)", -500, true},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "input %q", tt.in)
		}
	}
}

func TestScanText_ParenthesisedProfitBeforeTax(t *testing.T) {
	f := ScanText("Profit before tax (1,680)")
	assert.True(t, f.HasPBT)
	assert.Equal(t, -1680.0, f.ProfitBeforeTax)
	assert.Equal(t, -1680.0, f.Taxable())
}

func TestScanText_Statement(t *testing.T) {
	doc := `CACHE TECHNOLOGY COMPANY LIMITED
Statement of Profit or Loss for the year ended 31 December 2023
                                   2023        2022
Revenue                          13,247      11,020
Cost of sales                    (2,100)     (1,900)
Other income                        500         300
General & admin expenses        (14,927)    (12,000)
Depreciation                        800         700
Capital allowances                  400         350
Income tax expense                  120         100
`
	f := ScanText(doc)

	assert.Equal(t, 13747.0, f.Income)
	assert.Equal(t, 17027.0, f.Expenses)
	assert.Equal(t, 1200.0, f.Deductions)
	assert.False(t, f.HasPBT)
	assert.Equal(t, 13747.0-17027.0-1200.0, f.Taxable())
}

func TestScanText_TotalExpensesReplacesLineItems(t *testing.T) {
	doc := "Sales 10,000\nOperating expenses 2,000\nAdministrative expenses 1,000\nTotal expenses 3,500\n"
	f := ScanText(doc)
	assert.Equal(t, 10000.0, f.Income)
	assert.Equal(t, 3500.0, f.Expenses)
}

func TestScanText_FirstRevenueLineOnly(t *testing.T) {
	f := ScanText("Revenue 1,000\nRevenue growth 25\nTax on revenue 90")
	assert.Equal(t, 1000.0, f.Income)
}

func TestScanText_Empty(t *testing.T) {
	f := ScanText("")
	assert.Zero(t, f.Income)
	assert.Zero(t, f.Taxable())
	assert.False(t, f.HasIncome)
}

func TestScanTaxYear(t *testing.T) {
	assert.Equal(t, 2023, ScanTaxYear("for the year ended 31 December 2023", 1999))
	assert.Equal(t, 1999, ScanTaxYear("no year here", 1999))
	assert.Equal(t, 1999, ScanTaxYear("reference 120234", 1999))
}

func TestScanTaxID(t *testing.T) {
	assert.Equal(t, "C2584563202", ScanTaxID("Tax reference: C2584563202"))
	assert.Equal(t, "1234567-X", ScanTaxID("Company No. 1234567-X"))
	assert.Equal(t, "", ScanTaxID("nothing to see"))
}
