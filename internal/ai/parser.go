package ai

import (
	"strings"

	"github.com/facturaIA/tax-extraction-service/internal/models"
)

// ParseOutcome is the record recovered from one raw model response.
type ParseOutcome struct {
	Record     models.ExtractedTaxRecord
	Validation *models.ValidationPayload
	Stage      Stage
	Shape      Shape
	// RecoveryErr is the last structured-stage error when Stage is StageText.
	RecoveryErr error
}

// Parser turns raw model output into a canonical record. It never fails:
// when no structured stage succeeds the record is scanned from text.
type Parser struct {
	Normalizer Normalizer
}

func (p Parser) Parse(raw, documentText string) ParseOutcome {
	obj, stage, err := RecoverObject(raw)
	if err != nil {
		source := documentText
		if strings.TrimSpace(source) == "" {
			source = raw
		}
		return ParseOutcome{
			Record:      p.Normalizer.FromText(source),
			Stage:       StageText,
			RecoveryErr: err,
		}
	}

	shape := Classify(obj)
	rec, val := p.Normalizer.Normalize(obj, shape, documentText)
	return ParseOutcome{Record: rec, Validation: val, Stage: stage, Shape: shape}
}
