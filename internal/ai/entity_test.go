package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/facturaIA/tax-extraction-service/internal/models"
)

func TestHeuristicEntityDetector(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantName string
		wantType string
	}{
		{
			name:     "trailing limited with keyword",
			text:     "Annual Report\nCACHE TECHNOLOGY COMPANY LIMITED\nRevenue 100",
			wantName: "CACHE TECHNOLOGY COMPANY LIMITED",
			wantType: "Technology",
		},
		{
			name:     "trailing limited without keyword",
			text:     "Blue Harbour Shipping LIMITED",
			wantName: "Blue Harbour Shipping LIMITED",
			wantType: "Blue Harbour Shipping",
		},
		{
			name:     "limited wins over earlier all-caps line",
			text:     "ACME CORP\nNorthwind Trading LIMITED",
			wantName: "Northwind Trading LIMITED",
			wantType: "Trading",
		},
		{
			name:     "all caps suffix",
			text:     "Directors report\nORBIT SOFTWARE INC\n",
			wantName: "ORBIT SOFTWARE INC",
			wantType: "Technology",
		},
		{
			name:     "holding company",
			text:     "APEX HOLDINGS LTD",
			wantName: "APEX HOLDINGS LTD",
			wantType: models.HoldingCompany,
		},
		{
			name:     "financial statements of",
			text:     "Financial Statements of Riverbend Partners",
			wantName: "Riverbend Partners",
			wantType: models.NotSpecified,
		},
		{
			name:     "statement of for",
			text:     "Statement of Comprehensive Income for Delta Build Group",
			wantName: "Delta Build Group",
			wantType: "Construction",
		},
		{
			name:     "period phrase is not a name",
			text:     "Statement of Financial Position for the year ended 2023",
			wantName: models.NotProvided,
			wantType: models.NotSpecified,
		},
		{
			name:     "name before financial statements",
			text:     "Kestrel Analytics Financial Statements 2023",
			wantName: "Kestrel Analytics",
			wantType: models.NotSpecified,
		},
		{
			name:     "nothing",
			text:     "revenue 100\nexpenses 50",
			wantName: models.NotProvided,
			wantType: models.NotSpecified,
		},
		{
			name:     "empty",
			text:     "",
			wantName: models.NotProvided,
			wantType: models.NotSpecified,
		},
	}
	d := HeuristicEntityDetector{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Detect(tt.text)
			assert.Equal(t, tt.wantName, got.Name)
			assert.Equal(t, tt.wantType, got.BusinessType)
		})
	}
}

type fixedDetector struct{ ent Entity }

func (f fixedDetector) Detect(string) Entity { return f.ent }

func TestNormalizer_UsesInjectedDetector(t *testing.T) {
	n := Normalizer{Detector: fixedDetector{Entity{Name: "Injected", BusinessType: "Retail"}}, Year: fixedYear}
	rec := n.FromText("CACHE TECHNOLOGY COMPANY LIMITED")
	assert.Equal(t, "Injected", rec.TaxpayerName)
	assert.Equal(t, "Retail", rec.BusinessType)
}
