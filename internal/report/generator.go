// Package report turns an extracted tax record into a narrative Markdown report.
package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/tax-extraction-service/internal/ai"
	"github.com/facturaIA/tax-extraction-service/internal/logging"
	"github.com/facturaIA/tax-extraction-service/internal/models"
)

// Completer sends a free-form prompt to the first live provider that answers.
type Completer interface {
	Complete(ctx context.Context, prompt string) (text, provider string, err error)
}

// Report is a rendered report. Provider is empty when the template fallback produced it.
type Report struct {
	Content  string
	Provider string
}

// Generator writes reports with a provider and falls back to a fixed template.
type Generator struct {
	completer Completer
	log       logging.Logger
	tmpl      *template.Template
	now       func() time.Time
}

// NewGenerator creates a generator. A nil completer always uses the template.
func NewGenerator(completer Completer, log logging.Logger) *Generator {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Generator{
		completer: completer,
		log:       log.Named("report"),
		tmpl:      template.Must(template.New("report").Funcs(funcs).Parse(fallbackTemplate)),
		now:       time.Now,
	}
}

// Generate never fails: a provider error or empty narrative falls back to the template.
func (g *Generator) Generate(ctx context.Context, record models.ExtractedTaxRecord) Report {
	if g.completer != nil {
		text, provider, err := g.completer.Complete(ctx, ai.BuildReportGenerationPrompt(record))
		if err == nil && strings.TrimSpace(text) != "" {
			g.log.Info("report.generated", logging.String("provider", provider))
			return Report{Content: strings.TrimSpace(text), Provider: provider}
		}
		g.log.Warn("report.fallback", logging.Err(err))
	}
	return Report{Content: g.render(record)}
}

func (g *Generator) render(record models.ExtractedTaxRecord) string {
	var buf bytes.Buffer
	data := struct {
		models.ExtractedTaxRecord
		Residual    float64
		Margin      string
		GeneratedAt string
	}{
		ExtractedTaxRecord: record,
		Residual:           record.Residual(),
		Margin:             margin(record),
		GeneratedAt:        g.now().UTC().Format("2006-01-02"),
	}
	if err := g.tmpl.Execute(&buf, data); err != nil {
		// The template is static; an execution error means a programming mistake.
		return fmt.Sprintf("# Tax Report\n\nReport rendering failed: %v\n", err)
	}
	return buf.String()
}

func margin(r models.ExtractedTaxRecord) string {
	if r.TotalIncome == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", r.TaxableAmount/r.TotalIncome*100)
}

var funcs = template.FuncMap{
	"money": func(f float64) string { return decimal.NewFromFloat(f).StringFixedBank(2) },
}

const fallbackTemplate = `# Tax Report: {{.TaxpayerName}}

_Generated {{.GeneratedAt}} from extracted figures. No narrative provider was available._

## Executive Summary
{{.TaxpayerName}} ({{.BusinessType}}) reported total income of {{money .TotalIncome}} for tax year {{.TaxYear}}, with a taxable amount of {{money .TaxableAmount}}.

## Income Analysis
| Item | Amount |
|---|---|
| Total income | {{money .TotalIncome}} |
| Total expenses | {{money .TotalExpenses}} |
| Total deductions | {{money .TotalDeductions}} |

## Tax Calculation
Income less expenses and deductions is {{money .Residual}}. The reported taxable amount is {{money .TaxableAmount}} (taxable margin {{.Margin}}).

## Taxpayer Details
- Tax ID: {{.TaxID}}
- Business type: {{.BusinessType}}

## Recommendations
Review the source document for figures marked as not provided before filing.
`
