package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/facturaIA/tax-extraction-service/internal/logging"
	"github.com/facturaIA/tax-extraction-service/internal/models"
	"github.com/facturaIA/tax-extraction-service/internal/services"
)

// ErrNoProviders is returned by Complete when no provider is live.
var ErrNoProviders = errors.New("no live providers")

// ExtractorOptions tunes an Extractor. Zero values disable the optional behaviour.
type ExtractorOptions struct {
	InvokeTimeout    time.Duration
	CacheTTL         time.Duration
	MaxDocumentChars int
	Detector         EntityDetector
	// Year returns the default tax year; defaults to the current calendar year.
	Year func() int
}

// Extractor handles AI-based extraction of tax figures from document text
type Extractor struct {
	registry      *Registry
	prompts       PromptBuilder
	parser        Parser
	validator     *services.TaxValidator
	log           logging.Logger
	invokeTimeout time.Duration
	year          func() int
	results       *cache.Cache
}

// NewExtractor creates an extractor over the live providers in registry.
func NewExtractor(registry *Registry, validator *services.TaxValidator, log logging.Logger, opts ExtractorOptions) *Extractor {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if validator == nil {
		validator = services.NewTaxValidator()
	}
	year := opts.Year
	if year == nil {
		year = currentYear
	}
	e := &Extractor{
		registry:      registry,
		prompts:       PromptBuilder{MaxDocumentChars: opts.MaxDocumentChars},
		parser:        Parser{Normalizer: Normalizer{Detector: opts.Detector, Year: year}},
		validator:     validator,
		log:           log.Named("extractor"),
		invokeTimeout: opts.InvokeTimeout,
		year:          year,
	}
	if opts.CacheTTL > 0 {
		e.results = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return e
}

// Extract returns the canonical record for documentText. It never fails.
func (e *Extractor) Extract(ctx context.Context, documentText, docContext string) models.ExtractedTaxRecord {
	return e.ExtractDetailed(ctx, documentText, docContext).Record
}

// ExtractDetailed tries each live provider in preference order and returns the
// first successful result together with its provenance and diagnostics. When
// every provider fails the default record is returned with OutcomeDefault.
func (e *Extractor) ExtractDetailed(ctx context.Context, documentText, docContext string) models.ExtractionResult {
	key := cacheKey(documentText, docContext)
	if e.results != nil {
		if v, ok := e.results.Get(key); ok {
			e.log.Debug("extract.cache_hit", logging.String("key", key[:12]))
			return cloneResult(v.(models.ExtractionResult))
		}
	}

	start := time.Now()
	candidates := e.registry.OrderedCandidates()
	e.log.Info("extract.start",
		logging.Int("doc_chars", len(documentText)),
		logging.Any("candidates", candidates))

	prompt := e.prompts.BuildExtractionPrompt(documentText, docContext)
	var attempts []string
	for _, name := range candidates {
		attempts = append(attempts, name)
		p, ok := e.registry.Provider(name)
		if !ok {
			e.log.Warn("extract.provider.failed", logging.String("provider", name), logging.Err(unavailable(name)))
			continue
		}

		callStart := time.Now()
		raw, err := e.invoke(ctx, p, prompt)
		if err != nil {
			e.log.Warn("extract.provider.failed",
				logging.String("provider", name),
				logging.Duration("elapsed", time.Since(callStart)),
				logging.Err(err))
			continue
		}

		out := e.parser.Parse(raw, documentText)
		if out.RecoveryErr != nil {
			e.log.Warn("extract.parse.text_fallback", logging.String("provider", name), logging.Err(out.RecoveryErr))
		}
		result := e.finalize(out)
		result.Provider = name
		result.Attempts = attempts
		e.emit(result)
		e.log.Info("extract.done",
			logging.String("provider", name),
			logging.String("outcome", string(result.Outcome)),
			logging.String("stage", result.Stage),
			logging.Duration("elapsed", time.Since(start)))

		if e.results != nil {
			e.results.Set(key, cloneResult(result), cache.DefaultExpiration)
		}
		return result
	}

	rec, diag := e.validator.ApplySoftConstraints(models.DefaultRecord(e.year()))
	result := models.ExtractionResult{
		Record:      rec,
		Outcome:     models.OutcomeDefault,
		Attempts:    attempts,
		Diagnostics: diag,
	}
	e.emit(result)
	e.log.Warn("extract.exhausted",
		logging.Int("attempts", len(attempts)),
		logging.Duration("elapsed", time.Since(start)))
	return result
}

// finalize cross-validates enhanced results and applies soft constraints to
// every record.
func (e *Extractor) finalize(out ParseOutcome) models.ExtractionResult {
	var diag models.Diagnostics
	rec := out.Record
	if out.Validation != nil && !out.Validation.IsEmpty() {
		cv := e.validator.CrossValidate(*out.Validation, rec)
		rec = cv.Apply(rec)
		diag.Merge(cv.Diagnostics)
	}
	rec, soft := e.validator.ApplySoftConstraints(rec)
	diag.Merge(soft)

	outcome := models.OutcomeExtracted
	if out.Stage == StageText {
		outcome = models.OutcomeTextFallback
	}
	return models.ExtractionResult{
		Record:      rec,
		Outcome:     outcome,
		Stage:       string(out.Stage),
		Shape:       string(out.Shape),
		Diagnostics: diag,
	}
}

func (e *Extractor) emit(result models.ExtractionResult) {
	for _, c := range result.Diagnostics.Corrections {
		e.log.Emit(logging.LevelWarn, "extract.correction",
			logging.String("field", c.Field), logging.String("code", c.Code), logging.String("detail", c.Message))
	}
	for _, w := range result.Diagnostics.Warnings {
		e.log.Emit(logging.LevelWarn, "extract.warning",
			logging.String("field", w.Field), logging.String("code", w.Code), logging.String("detail", w.Message))
	}
}

// Complete sends prompt to the live providers in preference order and returns
// the first answer and the provider that gave it.
func (e *Extractor) Complete(ctx context.Context, prompt string) (string, string, error) {
	var lastErr error = ErrNoProviders
	for _, name := range e.registry.OrderedCandidates() {
		p, ok := e.registry.Provider(name)
		if !ok {
			continue
		}
		text, err := e.invoke(ctx, p, prompt)
		if err != nil {
			e.log.Warn("complete.provider.failed", logging.String("provider", name), logging.Err(err))
			lastErr = err
			continue
		}
		return text, name, nil
	}
	return "", "", lastErr
}

// invoke bounds one provider call by the per-call timeout. Expiry and panics
// are reported as call failures.
func (e *Extractor) invoke(ctx context.Context, p Provider, prompt string) (string, error) {
	if e.invokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.invokeTimeout)
		defer cancel()
	}

	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: callFailure(p.Name(), fmt.Errorf("panic: %v", r))}
			}
		}()
		text, err := p.Invoke(ctx, prompt)
		ch <- reply{text: text, err: err}
	}()

	select {
	case r := <-ch:
		return r.text, r.err
	case <-ctx.Done():
		return "", callFailure(p.Name(), ctx.Err())
	}
}

// cloneResult copies the slices so cached entries never alias a caller's result.
func cloneResult(r models.ExtractionResult) models.ExtractionResult {
	r.Attempts = slices.Clone(r.Attempts)
	r.Diagnostics.Warnings = slices.Clone(r.Diagnostics.Warnings)
	r.Diagnostics.Corrections = slices.Clone(r.Diagnostics.Corrections)
	return r
}

func cacheKey(documentText, docContext string) string {
	h := sha256.New()
	h.Write([]byte(documentText))
	h.Write([]byte{0})
	h.Write([]byte(docContext))
	return hex.EncodeToString(h.Sum(nil))
}

func currentYear() int {
	return time.Now().Year()
}
