package ai

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func num(t *testing.T, v any) float64 {
	t.Helper()
	f, ok := toFloat(v)
	require.True(t, ok, "value %v is not numeric", v)
	return f
}

func TestRecoverObject_Direct(t *testing.T) {
	obj, stage, err := RecoverObject(`{"totalIncome": 500}`)
	require.NoError(t, err)
	assert.Equal(t, StageDirect, stage)
	assert.Equal(t, json.Number("500"), obj["totalIncome"])
}

func TestRecoverObject_FencedTrailingComma(t *testing.T) {
	raw := "```json\n{\"totalIncome\": 500, \"totalExpenses\": 300,}\n```"

	obj, stage, err := RecoverObject(raw)

	require.NoError(t, err)
	assert.Equal(t, StageCleaned, stage)
	assert.Equal(t, 500.0, num(t, obj["totalIncome"]))
	assert.Equal(t, 300.0, num(t, obj["totalExpenses"]))
}

func TestRecoverObject_Cleaned(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"prose around", `Here is the data: {"totalIncome": 10} Hope this helps!`},
		{"line comment", "{\n\"totalIncome\": 10 // from page 2\n}"},
		{"block comment", `{"totalIncome": /* revenue */ 10}`},
		{"nested trailing commas", `{"totalIncome": 10, "items": [1, 2,],}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, stage, err := RecoverObject(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, StageCleaned, stage)
			assert.Equal(t, 10.0, num(t, obj["totalIncome"]))
		})
	}
}

func TestRecoverObject_CommentMarkersInsideStrings(t *testing.T) {
	obj, _, err := RecoverObject(`{"taxpayerName": "http://acme.example // ltd", "totalIncome": 1,}`)
	require.NoError(t, err)
	assert.Equal(t, "http://acme.example // ltd", obj["taxpayerName"])
}

func TestRecoverObject_Rescue(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, obj map[string]any)
	}{
		{
			name: "unquoted keys",
			raw:  `{totalIncome: 100, totalExpenses: 40}`,
			check: func(t *testing.T, obj map[string]any) {
				assert.Equal(t, 100.0, num(t, obj["totalIncome"]))
				assert.Equal(t, 40.0, num(t, obj["totalExpenses"]))
			},
		},
		{
			name: "single quotes",
			raw:  `{'taxpayerName': 'ACME LIMITED', 'totalIncome': 5}`,
			check: func(t *testing.T, obj map[string]any) {
				assert.Equal(t, "ACME LIMITED", obj["taxpayerName"])
			},
		},
		{
			name: "bare word values",
			raw:  `{"businessType": Technology, "taxId": Not provided, "ok": true}`,
			check: func(t *testing.T, obj map[string]any) {
				assert.Equal(t, "Technology", obj["businessType"])
				assert.Equal(t, "Not provided", obj["taxId"])
				assert.Equal(t, true, obj["ok"])
			},
		},
		{
			name: "truncated object",
			raw:  `{"taxpayerName": "ACME", "totalIncome": 900, "businessType": "Trad`,
			check: func(t *testing.T, obj map[string]any) {
				assert.Equal(t, 900.0, num(t, obj["totalIncome"]))
				assert.Equal(t, "Trad", obj["businessType"])
			},
		},
		{
			name: "separators inside single-quoted value",
			raw:  `{taxpayerName: 'Smith, Jones: Ltd', totalIncome: 500}`,
			check: func(t *testing.T, obj map[string]any) {
				assert.Equal(t, "Smith, Jones: Ltd", obj["taxpayerName"])
				assert.Equal(t, 500.0, num(t, obj["totalIncome"]))
			},
		},
		{
			name: "key-like text inside value",
			raw:  `{taxpayerName: 'ACME', note: 'period: Jan, 2023', totalIncome: 500}`,
			check: func(t *testing.T, obj map[string]any) {
				assert.Equal(t, "ACME", obj["taxpayerName"])
				assert.Equal(t, "period: Jan, 2023", obj["note"])
				assert.Equal(t, 500.0, num(t, obj["totalIncome"]))
			},
		},
		{
			name: "bare value beside quoted text",
			raw:  `{taxpayerName: ACME LTD, note: "a, b: C", totalIncome: 500}`,
			check: func(t *testing.T, obj map[string]any) {
				assert.Equal(t, "ACME LTD", obj["taxpayerName"])
				assert.Equal(t, "a, b: C", obj["note"])
			},
		},
		{
			name: "control characters",
			raw:  "{\"totalIncome\":\x00 7\x07}",
			check: func(t *testing.T, obj map[string]any) {
				assert.Equal(t, 7.0, num(t, obj["totalIncome"]))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, stage, err := RecoverObject(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, StageRescue, stage)
			tt.check(t, obj)
		})
	}
}

func TestOutsideStrings(t *testing.T) {
	upper := func(seg string) string { return strings.ToUpper(seg) }

	assert.Equal(t, `{A: "b, c:" D}`, outsideStrings(`{a: "b, c:" d}`, upper))
	assert.Equal(t, `X "esc \" q" Y`, outsideStrings(`x "esc \" q" y`, upper))
	assert.Equal(t, `K: "open`, outsideStrings(`k: "open`, upper))
}

func TestRecoverObject_Unrecoverable(t *testing.T) {
	for _, raw := range []string{"", "no json here", "[1, 2, 3]", "null", "\x00\x01\x02"} {
		_, _, err := RecoverObject(raw)
		assert.ErrorIs(t, err, ErrUnrecoverable, "input %q", raw)
	}
}

func TestParser_TextFallback(t *testing.T) {
	p := Parser{Normalizer: Normalizer{Year: func() int { return 2022 }}}
	doc := "ACME TRADING LIMITED\nRevenue 12,000\nProfit before tax (1,680)\n"

	out := p.Parse("Sorry, I cannot help with that.", doc)

	assert.Equal(t, StageText, out.Stage)
	assert.Error(t, out.RecoveryErr)
	assert.Equal(t, -1680.0, out.Record.TaxableAmount)
	assert.Equal(t, 12000.0, out.Record.TotalIncome)
	assert.Equal(t, "ACME TRADING LIMITED", out.Record.TaxpayerName)
	assert.Equal(t, "Trading", out.Record.BusinessType)
	assert.Equal(t, 2022, out.Record.TaxYear)
}

func TestParser_TextFallbackUsesRawWithoutDocument(t *testing.T) {
	p := Parser{}
	out := p.Parse("Revenue: 4,000\nTotal expenses: 1,000", "")
	assert.Equal(t, StageText, out.Stage)
	assert.Equal(t, 4000.0, out.Record.TotalIncome)
	assert.Equal(t, 1000.0, out.Record.TotalExpenses)
	assert.Equal(t, 3000.0, out.Record.TaxableAmount)
}

func TestParser_TotalOverArbitraryInput(t *testing.T) {
	p := Parser{Normalizer: Normalizer{Year: func() int { return 2024 }}}
	inputs := []string{
		"",
		"{",
		"}",
		"{{{{",
		`{"totalIncome": "NaN"}`,
		`{"totalIncome": 1e400}`,
		`{"totalIncome": null, "taxYear": "soon"}`,
		`{"Profit_and_Loss": "not an array"}`,
		`{"Profit_and_Loss": [1, "x", null, {"Account": 5}]}`,
		`{"validationData": {"revenue": "abc"}}`,
		"\xff\xfe\xfd",
		`[{"totalIncome": 1}]`,
	}
	for _, in := range inputs {
		out := p.Parse(in, "")
		r := out.Record
		assert.True(t, r.IsFinite(), "input %q", in)
		assert.NotEmpty(t, r.TaxpayerName, "input %q", in)
		assert.NotEmpty(t, r.TaxID, "input %q", in)
		assert.NotEmpty(t, r.BusinessType, "input %q", in)
		assert.NotZero(t, r.TaxYear, "input %q", in)
	}
}
