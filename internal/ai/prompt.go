package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/facturaIA/tax-extraction-service/internal/models"
)

// PromptBuilder renders extraction and report prompts. MaxDocumentChars caps the
// embedded document text; 0 embeds it whole. A truncated document always carries
// a visible marker so the model and the logs can tell.
type PromptBuilder struct {
	MaxDocumentChars int
}

const extractionInstructions = `You are a financial data extraction engine for company tax documents (financial statements, tax computations, management accounts).

## OUTPUT CONTRACT

Return ONLY one flat JSON object. No markdown fences, no comments, no explanations before or after it.
Use exactly these keys:
{
  "taxpayerName": "registered company or individual name, string",
  "taxYear": 2023,
  "totalIncome": 0,
  "totalExpenses": 0,
  "totalDeductions": 0,
  "taxableAmount": 0,
  "taxId": "tax reference number, string",
  "businessType": "nature of business, string"
}
Numbers must be plain JSON numbers. Use 0 for an amount you cannot find and "Not provided" for a missing string.

## FIELD HEURISTICS

- totalIncome: revenue, turnover, sales, gross income, plus other income.
- totalExpenses: general and administrative expenses, operating expenses, cost of sales, direct costs, total expenses.
- totalDeductions: capital allowances, depreciation, tax relief, allowable deductions.
- taxableAmount: profit before tax (also "profit/(loss) before taxation", "PBT"). If absent, use totalIncome - totalExpenses - totalDeductions.
- taxYear: the financial year the statements cover, as a 4-digit year.

## NUMBER RULES

- A number in parentheses is negative: (1,680) means -1680.
- Strip currency symbols and codes ($, £, €, RM, USD).
- Strip thousands separators: 13,247 means 13247.
- Do not scale figures; report them exactly as printed.

Optionally, when the document shows them, add a "validationData" object with revenue, profitBeforeTax, netProfitAfterTax, retainedEarnings, costOfSales, operatingExpenses as numbers.
`

// BuildExtractionPrompt renders the extraction instruction for documentText and
// optional caller context.
func (b PromptBuilder) BuildExtractionPrompt(documentText, docContext string) string {
	doc := documentText
	if b.MaxDocumentChars > 0 {
		total := utf8.RuneCountInString(documentText)
		if total > b.MaxDocumentChars {
			runes := []rune(documentText)
			doc = string(runes[:b.MaxDocumentChars]) +
				fmt.Sprintf("\n[document truncated: %d of %d characters]", b.MaxDocumentChars, total)
		}
	}

	var sb strings.Builder
	sb.WriteString(extractionInstructions)
	sb.WriteString("\n## DOCUMENT TEXT\n\n")
	sb.WriteString(doc)
	sb.WriteString("\n")
	if strings.TrimSpace(docContext) != "" {
		sb.WriteString("\n## ADDITIONAL CONTEXT\n\n")
		sb.WriteString(docContext)
		sb.WriteString("\n")
	}
	return sb.String()
}

// BuildExtractionPrompt renders the extraction prompt without a length cap.
func BuildExtractionPrompt(documentText, docContext string) string {
	return PromptBuilder{}.BuildExtractionPrompt(documentText, docContext)
}

// BuildReportGenerationPrompt renders the narrative-report instruction for a record.
func BuildReportGenerationPrompt(r models.ExtractedTaxRecord) string {
	return fmt.Sprintf(`You are a tax advisor writing a concise report for a company director.

Write the report in Markdown with exactly these sections:
1. Executive Summary
2. Income Analysis
3. Expense Analysis
4. Deductions and Allowances
5. Taxable Amount
6. Observations and Recommendations

Use only the figures below. Do not invent numbers. Keep it under 600 words.

## FIGURES

Taxpayer name: %s
Tax ID: %s
Business type: %s
Tax year: %d
Total income: %.2f
Total expenses: %.2f
Total deductions: %.2f
Taxable amount: %.2f
`,
		r.TaxpayerName, r.TaxID, r.BusinessType, r.TaxYear,
		r.TotalIncome, r.TotalExpenses, r.TotalDeductions, r.TaxableAmount)
}
