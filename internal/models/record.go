package models

import "math"

// Placeholder values used when a field could not be extracted.
const (
	NotProvided  = "Not provided"
	NotSpecified = "Not specified"

	// HoldingCompany is the business type that may legitimately report zero operating revenue.
	HoldingCompany = "Holding Company"
)

// ExtractedTaxRecord is the canonical financial summary every extraction path converges to.
type ExtractedTaxRecord struct {
	TaxpayerName    string  `json:"taxpayerName"`
	TaxYear         int     `json:"taxYear"`
	TotalIncome     float64 `json:"totalIncome"`
	TotalExpenses   float64 `json:"totalExpenses"`
	TotalDeductions float64 `json:"totalDeductions"`
	TaxableAmount   float64 `json:"taxableAmount"`
	TaxID           string  `json:"taxId"`
	BusinessType    string  `json:"businessType"`
}

// DefaultRecord returns a record with every field set to its documented placeholder.
func DefaultRecord(year int) ExtractedTaxRecord {
	return ExtractedTaxRecord{
		TaxpayerName: NotProvided,
		TaxYear:      year,
		TaxID:        NotProvided,
		BusinessType: NotSpecified,
	}
}

// FillDefaults replaces empty string fields and a zero tax year with placeholders.
func (r *ExtractedTaxRecord) FillDefaults(year int) {
	if r.TaxpayerName == "" {
		r.TaxpayerName = NotProvided
	}
	if r.TaxID == "" {
		r.TaxID = NotProvided
	}
	if r.BusinessType == "" {
		r.BusinessType = NotSpecified
	}
	if r.TaxYear <= 0 {
		r.TaxYear = year
	}
}

// IsFinite reports whether every numeric field holds a finite value.
func (r ExtractedTaxRecord) IsFinite() bool {
	for _, v := range []float64{r.TotalIncome, r.TotalExpenses, r.TotalDeductions, r.TaxableAmount} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Residual is income minus expenses minus deductions.
func (r ExtractedTaxRecord) Residual() float64 {
	return r.TotalIncome - r.TotalExpenses - r.TotalDeductions
}

// ValidationPayload carries the optional cross-checking figures a model may emit
// alongside the primary record. Nil means the model did not report the figure.
type ValidationPayload struct {
	Revenue           *float64 `json:"revenue,omitempty"`
	ProfitBeforeTax   *float64 `json:"profitBeforeTax,omitempty"`
	NetProfitAfterTax *float64 `json:"netProfitAfterTax,omitempty"`
	RetainedEarnings  *float64 `json:"retainedEarnings,omitempty"`
	CostOfSales       *float64 `json:"costOfSales,omitempty"`
	OperatingExpenses *float64 `json:"operatingExpenses,omitempty"`
}

// IsEmpty reports whether no validation figure is present.
func (v ValidationPayload) IsEmpty() bool {
	return v.Revenue == nil && v.ProfitBeforeTax == nil && v.NetProfitAfterTax == nil &&
		v.RetainedEarnings == nil && v.CostOfSales == nil && v.OperatingExpenses == nil
}

// Issue is one warning or correction raised while finalising a record.
type Issue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return i.Field + ": " + i.Message
}

// Diagnostics accumulates the warnings and corrections produced while finalising a record.
type Diagnostics struct {
	Warnings    []Issue `json:"warnings"`
	Corrections []Issue `json:"corrections"`
}

// Warn appends a warning.
func (d *Diagnostics) Warn(field, code, msg string) {
	d.Warnings = append(d.Warnings, Issue{Field: field, Code: code, Message: msg})
}

// Correct appends a correction.
func (d *Diagnostics) Correct(field, code, msg string) {
	d.Corrections = append(d.Corrections, Issue{Field: field, Code: code, Message: msg})
}

// Merge appends all entries of other.
func (d *Diagnostics) Merge(other Diagnostics) {
	d.Warnings = append(d.Warnings, other.Warnings...)
	d.Corrections = append(d.Corrections, other.Corrections...)
}

// Outcome tells callers where a record came from without comparing against placeholders.
type Outcome string

const (
	// OutcomeExtracted means a provider answered and the answer parsed as structured data.
	OutcomeExtracted Outcome = "extracted"
	// OutcomeTextFallback means a provider answered but only regex text scanning produced figures.
	OutcomeTextFallback Outcome = "text_fallback"
	// OutcomeDefault means every provider failed (or none is enabled) and the record is all placeholders.
	OutcomeDefault Outcome = "default"
)

// ExtractionResult is the detailed form of an extraction: the canonical record plus provenance.
type ExtractionResult struct {
	Record      ExtractedTaxRecord `json:"record"`
	Outcome     Outcome            `json:"outcome"`
	Provider    string             `json:"provider,omitempty"`
	Stage       string             `json:"stage,omitempty"`
	Shape       string             `json:"shape,omitempty"`
	Attempts    []string           `json:"attempts,omitempty"`
	Diagnostics Diagnostics        `json:"diagnostics"`
}
