package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/facturaIA/tax-extraction-service/internal/logging"
	"github.com/facturaIA/tax-extraction-service/internal/models"
	"github.com/facturaIA/tax-extraction-service/internal/services"
)

func newTestExtractor(t *testing.T, preferred string, opts ExtractorOptions, providers ...*fakeProvider) (*Extractor, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	log := logging.NewFromCore(core)

	reg := NewRegistry(preferred, log)
	for _, p := range providers {
		reg.Register(p)
	}
	reg.InitializeAll(context.Background())

	if opts.Year == nil {
		opts.Year = func() int { return 2020 }
	}
	return NewExtractor(reg, services.NewTaxValidator(), log, opts), logs
}

func TestExtract_FallbackOrdering(t *testing.T) {
	a := &fakeProvider{name: "a", live: true, err: callFailure("a", errors.New("rate limited"))}
	b := &fakeProvider{name: "b", live: true, reply: `{"taxpayerName": "B LTD", "totalIncome": 1000, "totalExpenses": 400, "taxableAmount": 600}`}
	c := &fakeProvider{name: "c", live: true, reply: `{"taxpayerName": "C LTD"}`}

	e, logs := newTestExtractor(t, "a", ExtractorOptions{}, b, c, a)

	res := e.ExtractDetailed(context.Background(), "doc", "")

	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, int32(0), c.calls.Load())
	assert.Equal(t, []string{"a", "b"}, res.Attempts)
	assert.Equal(t, "b", res.Provider)
	assert.Equal(t, models.OutcomeExtracted, res.Outcome)
	assert.Equal(t, "B LTD", res.Record.TaxpayerName)
	assert.Equal(t, 600.0, res.Record.TaxableAmount)
	assert.Equal(t, 1, logs.FilterMessage("extract.provider.failed").Len())
}

func TestExtract_TotalExhaustion(t *testing.T) {
	a := &fakeProvider{name: "a", live: true, err: callFailure("a", errors.New("down"))}
	dead := &fakeProvider{name: "dead", live: false}

	e, logs := newTestExtractor(t, "", ExtractorOptions{}, a, dead)

	res := e.ExtractDetailed(context.Background(), "Revenue 100", "")

	assert.Equal(t, models.OutcomeDefault, res.Outcome)
	assert.Equal(t, models.DefaultRecord(2020), res.Record)
	assert.Equal(t, int32(0), dead.calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("extract.exhausted").Len())
	// The default record has zero income, which is reported.
	assert.NotEmpty(t, res.Diagnostics.Warnings)
}

func TestExtract_NoProviders(t *testing.T) {
	e, _ := newTestExtractor(t, "", ExtractorOptions{})
	rec := e.Extract(context.Background(), "anything", "")
	assert.Equal(t, models.DefaultRecord(2020), rec)
}

func TestExtract_InvokeTimeoutFallsBack(t *testing.T) {
	slow := &fakeProvider{name: "slow", live: true, block: true}
	fast := &fakeProvider{name: "fast", live: true, reply: `{"totalIncome": 10, "taxableAmount": 10}`}

	e, _ := newTestExtractor(t, "slow", ExtractorOptions{InvokeTimeout: 20 * time.Millisecond}, slow, fast)

	res := e.ExtractDetailed(context.Background(), "doc", "")

	assert.Equal(t, "fast", res.Provider)
	assert.Equal(t, []string{"slow", "fast"}, res.Attempts)
}

func TestExtract_CrossValidationDiagnosticsAreLogged(t *testing.T) {
	p := &fakeProvider{name: "p", live: true, reply: `{"totalIncome": 0, "taxableAmount": 0,
		"validationData": {"revenue": 50000, "profitBeforeTax": 15000}}`}

	e, logs := newTestExtractor(t, "", ExtractorOptions{}, p)

	res := e.ExtractDetailed(context.Background(), "doc", "")

	assert.Equal(t, string(ShapeEnhanced), res.Shape)
	assert.Equal(t, 50000.0, res.Record.TotalIncome)
	assert.Equal(t, 15000.0, res.Record.TaxableAmount)
	require.Len(t, res.Diagnostics.Corrections, 2)

	corrections := logs.FilterMessage("extract.correction").All()
	require.Len(t, corrections, 2)
	assert.Equal(t, zapcore.WarnLevel, corrections[0].Level)
	assert.Equal(t, "totalIncome", corrections[0].ContextMap()["field"])
	assert.Equal(t, "taxableAmount", corrections[1].ContextMap()["field"])
}

func TestExtract_TextFallbackOutcome(t *testing.T) {
	p := &fakeProvider{name: "p", live: true, reply: "I could not find structured data."}
	doc := "ACME TRADING LIMITED\nRevenue 5,000\nProfit before tax (1,680)\n"

	e, _ := newTestExtractor(t, "", ExtractorOptions{}, p)
	res := e.ExtractDetailed(context.Background(), doc, "")

	assert.Equal(t, models.OutcomeTextFallback, res.Outcome)
	assert.Equal(t, string(StageText), res.Stage)
	assert.Equal(t, -1680.0, res.Record.TaxableAmount)
	assert.Equal(t, 5000.0, res.Record.TotalIncome)
}

func TestExtract_CachesSuccessfulResults(t *testing.T) {
	p := &fakeProvider{name: "p", live: true, reply: `{"totalIncome": 10, "taxableAmount": 10}`}
	e, _ := newTestExtractor(t, "", ExtractorOptions{CacheTTL: time.Minute}, p)

	first := e.ExtractDetailed(context.Background(), "doc", "ctx")
	second := e.ExtractDetailed(context.Background(), "doc", "ctx")
	e.ExtractDetailed(context.Background(), "doc", "other")

	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestExtract_CachedResultIsNotShared(t *testing.T) {
	p := &fakeProvider{name: "p", live: true, reply: `{"totalIncome": 0, "taxableAmount": 0}`}
	e, _ := newTestExtractor(t, "", ExtractorOptions{CacheTTL: time.Minute}, p)

	first := e.ExtractDetailed(context.Background(), "doc", "")
	require.NotEmpty(t, first.Diagnostics.Warnings)
	first.Attempts[0] = "tampered"
	first.Diagnostics.Warnings[0].Message = "tampered"

	hit := e.ExtractDetailed(context.Background(), "doc", "")
	assert.Equal(t, []string{"p"}, hit.Attempts)
	assert.NotEqual(t, "tampered", hit.Diagnostics.Warnings[0].Message)
	hit.Attempts[0] = "tampered"
	hit.Diagnostics.Warnings[0].Message = "tampered"

	again := e.ExtractDetailed(context.Background(), "doc", "")
	assert.Equal(t, []string{"p"}, again.Attempts)
	assert.NotEqual(t, "tampered", again.Diagnostics.Warnings[0].Message)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestExtract_PromptCarriesDocumentAndContext(t *testing.T) {
	p := &fakeProvider{name: "p", live: true, reply: `{}`}
	e, _ := newTestExtractor(t, "", ExtractorOptions{}, p)

	e.Extract(context.Background(), "Turnover 9,000", "small company")

	require.Len(t, p.prompts, 1)
	assert.Contains(t, p.prompts[0], "Turnover 9,000")
	assert.Contains(t, p.prompts[0], "small company")
}

func TestExtract_AlwaysFinite(t *testing.T) {
	replies := []string{
		"",
		"```json\n{\"totalIncome\": 1e400}\n```",
		`{"totalIncome": "Infinity", "totalExpenses": -1e308, "taxableAmount": 1e308}`,
		`{"Profit_and_Loss": [{"Account": "Revenue", "Amount": 1e308}, {"Account": "Operating expenses", "Amount": 1e308}]}`,
	}
	for _, reply := range replies {
		p := &fakeProvider{name: "p", live: true, reply: reply}
		e, _ := newTestExtractor(t, "", ExtractorOptions{}, p)
		rec := e.Extract(context.Background(), "", "")
		assert.True(t, rec.IsFinite(), "reply %q", reply)
	}
}

func TestComplete(t *testing.T) {
	a := &fakeProvider{name: "a", live: true, err: callFailure("a", errors.New("nope"))}
	b := &fakeProvider{name: "b", live: true, reply: "narrative"}
	e, _ := newTestExtractor(t, "", ExtractorOptions{}, a, b)

	text, provider, err := e.Complete(context.Background(), "write")
	require.NoError(t, err)
	assert.Equal(t, "narrative", text)
	assert.Equal(t, "b", provider)

	empty, _ := newTestExtractor(t, "", ExtractorOptions{})
	_, _, err = empty.Complete(context.Background(), "write")
	assert.ErrorIs(t, err, ErrNoProviders)
}
