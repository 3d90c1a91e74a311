package ai

import (
	"regexp"
	"strings"

	"github.com/facturaIA/tax-extraction-service/internal/models"
)

// Entity is the taxpayer identity recovered from document text.
type Entity struct {
	Name         string
	BusinessType string
}

// EntityDetector finds the company name and business type in document text.
type EntityDetector interface {
	Detect(text string) Entity
}

var (
	trailingLimitedRe = regexp.MustCompile(`^(.+?)\s+LIMITED\.?$`)
	allCapsCompanyRe  = regexp.MustCompile(`^[A-Z0-9&.,'()\- ]*[A-Z][A-Z0-9&.,'()\- ]*\b(?:COMPANY|LIMITED|LTD|INC|CORP)\.?$`)
	headerRes         = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^statement\s+of\s+.+?\s+for\s+(.{4,99})$`),
		regexp.MustCompile(`(?i)^financial\s+statements\s+of\s+(.{4,99})$`),
		regexp.MustCompile(`(?i)^(.{4,99}?)\s+financial\s+statements\b`),
	}
	periodPhraseRe = regexp.MustCompile(`(?i)^(?:the\s+)?(?:year|period|financial\s+year)\b`)

	businessKeywords = []struct {
		re   *regexp.Regexp
		kind string
	}{
		{regexp.MustCompile(`\b(?:TECHNOLOGY|TECHNOLOGIES|TECH|SOFTWARE|IT)\b`), "Technology"},
		{regexp.MustCompile(`\b(?:TRADING|TRADE|TRADERS)\b`), "Trading"},
		{regexp.MustCompile(`\b(?:CONSTRUCTION|BUILD|BUILDERS)\b`), "Construction"},
		{regexp.MustCompile(`\b(?:HOLDING|HOLDINGS)\b`), models.HoldingCompany},
	}
)

// HeuristicEntityDetector runs a ranked cascade of line patterns; the first
// match wins. Nothing found yields the placeholder strings.
type HeuristicEntityDetector struct{}

func (HeuristicEntityDetector) Detect(text string) Entity {
	lines := documentLines(text)

	for _, line := range lines {
		if m := trailingLimitedRe.FindStringSubmatch(line); m != nil {
			return Entity{Name: line, BusinessType: inferBusinessType(line, strings.TrimSpace(m[1]))}
		}
	}
	for _, line := range lines {
		if allCapsCompanyRe.MatchString(line) {
			return Entity{Name: line, BusinessType: inferBusinessType(line, models.NotSpecified)}
		}
	}
	for _, re := range headerRes {
		for _, line := range lines {
			m := re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			name := strings.Trim(strings.TrimSpace(m[1]), ".,:;")
			if len(name) < 4 || periodPhraseRe.MatchString(name) {
				continue
			}
			return Entity{Name: name, BusinessType: inferBusinessType(name, models.NotSpecified)}
		}
	}
	return Entity{Name: models.NotProvided, BusinessType: models.NotSpecified}
}

// inferBusinessType maps industry keywords in name to a business type, or
// returns fallback when none is present.
func inferBusinessType(name, fallback string) string {
	upper := strings.ToUpper(name)
	for _, k := range businessKeywords {
		if k.re.MatchString(upper) {
			return k.kind
		}
	}
	if fallback == "" {
		return models.NotSpecified
	}
	return fallback
}

func documentLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
