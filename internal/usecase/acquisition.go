package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/ports"
	"PromptHarvester/internal/reconcile"
	"PromptHarvester/internal/scrape"
)

const (
	defaultStrategyDelay    = 2 * time.Second
	defaultInstitutionDelay = 3 * time.Second
)

// AcquisitionDeps wires all driven adapters into the acquisition flow.
type AcquisitionDeps struct {
	Registry     *scrape.Registry
	Prompts      ports.PromptRepository
	Institutions ports.InstitutionRepository
	Validator    ports.Validator
	Logger       *slog.Logger

	// StrategyDelay paces strategies inside one institution's flow;
	// InstitutionDelay paces institutions in batch mode. Zero values get
	// the 2s/3s defaults.
	StrategyDelay    time.Duration
	InstitutionDelay time.Duration

	// Sleep is injectable for tests; nil gets a context-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration)
}

// Acquisition orchestrates strategies, reconciliation, validation, and
// persistence for one institution at a time.
type Acquisition struct {
	registry         *scrape.Registry
	prompts          ports.PromptRepository
	institutions     ports.InstitutionRepository
	validator        ports.Validator
	logger           *slog.Logger
	strategyDelay    time.Duration
	institutionDelay time.Duration
	sleep            func(ctx context.Context, d time.Duration)
}

// NewAcquisition constructs the orchestration component.
func NewAcquisition(deps AcquisitionDeps) *Acquisition {
	a := &Acquisition{
		registry:         deps.Registry,
		prompts:          deps.Prompts,
		institutions:     deps.Institutions,
		validator:        deps.Validator,
		logger:           deps.Logger,
		strategyDelay:    deps.StrategyDelay,
		institutionDelay: deps.InstitutionDelay,
		sleep:            deps.Sleep,
	}
	if a.strategyDelay == 0 {
		a.strategyDelay = defaultStrategyDelay
	}
	if a.institutionDelay == 0 {
		a.institutionDelay = defaultInstitutionDelay
	}
	if a.sleep == nil {
		a.sleep = func(ctx context.Context, d time.Duration) {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
			}
		}
	}
	return a
}

// HarvestInstitution runs every registered strategy for the school, then
// reconciles, validates, and persists. A school with no data is a normal
// business outcome reported in the summary, not an error.
func (a *Acquisition) HarvestInstitution(ctx context.Context, institutionName string, year int) (domain.InstitutionOutcome, int) {
	return a.HarvestWith(ctx, institutionName, year, a.registry.All())
}

// HarvestWith is HarvestInstitution constrained to an explicit strategy
// list; the run orchestrator uses it for the shared cross-institution pass.
func (a *Acquisition) HarvestWith(ctx context.Context, institutionName string, year int, strategies []scrape.Strategy) (domain.InstitutionOutcome, int) {
	outcome := domain.InstitutionOutcome{InstitutionName: institutionName}

	results := a.runStrategies(ctx, institutionName, year, strategies)
	if len(results) == 0 {
		outcome.Error = "no configured source yielded prompts"
		return outcome, 0
	}

	merged := reconcile.Merge(results)

	inst, err := a.institutions.UpsertByName(ctx, institutionName)
	if err != nil {
		outcome.Error = fmt.Sprintf("resolve institution: %v", err)
		return outcome, 0
	}

	provenance := provenanceFor(results)
	changed := 0
	previousYear, err := a.prompts.ListByInstitutionYear(ctx, inst.ID, year-1)
	if err != nil {
		a.warn("load previous cycle", "institution", institutionName, "error", err)
		previousYear = nil
	}

	for i, candidate := range merged {
		verdict, err := a.validator.Validate(ctx, candidate, institutionName)
		if err != nil {
			// Validators recover internally; a hard error still only
			// costs this one candidate.
			a.warn("validate candidate", "institution", institutionName, "error", err)
			continue
		}
		if !verdict.IsValid {
			a.info("dropping invalid candidate", "institution", institutionName,
				"prompt", snippetOf(candidate.PromptText), "issues", verdict.Issues)
			continue
		}
		outcome.EssaysFound++

		exists, err := a.prompts.ExistsByNaturalKey(ctx, inst.ID, year, candidate.PromptText)
		if err != nil {
			a.warn("natural key lookup", "institution", institutionName, "error", err)
			continue
		}
		if exists {
			a.info("prompt already stored", "institution", institutionName,
				"prompt", snippetOf(candidate.PromptText))
			continue
		}

		prompt := buildPrompt(inst.ID, year, i, candidate, verdict, provenance)
		if _, err := a.prompts.Create(ctx, prompt); err != nil {
			// Partial institution writes are tolerated, not rolled back.
			a.warn("persist prompt", "institution", institutionName, "error", err)
			continue
		}
		outcome.NewPrompts++
		if len(previousYear) > 0 && !textInPrompts(previousYear, candidate.PromptText) {
			changed++
		}
	}

	outcome.Success = outcome.EssaysFound > 0
	if !outcome.Success && outcome.Error == "" {
		outcome.Error = "no valid prompts extracted"
	}
	return outcome, changed
}

// HarvestCatalog applies the single-institution flow to every school in the
// catalog. One institution's failure never aborts the batch.
func (a *Acquisition) HarvestCatalog(ctx context.Context, year int) ([]domain.InstitutionOutcome, int) {
	names := a.CatalogInstitutions(ctx)

	var (
		outcomes []domain.InstitutionOutcome
		changed  int
	)
	for i, name := range names {
		if i > 0 {
			a.sleep(ctx, a.institutionDelay)
		}
		if ctx.Err() != nil {
			break
		}
		outcome, c := a.HarvestInstitution(ctx, name, year)
		outcomes = append(outcomes, outcome)
		changed += c
	}
	return outcomes, changed
}

// CatalogInstitutions is the union of every strategy's configured schools.
func (a *Acquisition) CatalogInstitutions(ctx context.Context) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, strategy := range a.registry.All() {
		configured, err := strategy.Institutions(ctx)
		if err != nil {
			a.warn("list strategy institutions", "strategy", strategy.Name(), "error", err)
			continue
		}
		for _, name := range configured {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// runStrategies executes strategies sequentially with the politeness delay.
// Strategy failures are logged and treated as "no result" for that source.
func (a *Acquisition) runStrategies(ctx context.Context, institutionName string, year int, strategies []scrape.Strategy) []domain.SourceResult {
	var results []domain.SourceResult
	for i, strategy := range strategies {
		if i > 0 {
			a.sleep(ctx, a.strategyDelay)
		}
		if ctx.Err() != nil {
			break
		}

		result, err := strategy.Scrape(ctx, institutionName, year)
		if err != nil {
			a.warn("strategy failed", "strategy", strategy.Name(),
				"institution", institutionName, "error", err)
			continue
		}
		if result == nil || len(result.Candidates) == 0 {
			continue
		}
		results = append(results, *result)
	}
	return results
}

func buildPrompt(institutionID int64, year, sortOrder int, candidate domain.PromptCandidate, verdict domain.Verdict, provenance []domain.ProvenanceEntry) domain.PersistedPrompt {
	status := domain.ReviewPending
	if verdict.Confidence >= domain.VerifiedConfidenceThreshold {
		status = domain.ReviewVerified
	}

	category := verdict.Category
	if category == "" {
		category = candidate.Category
	}
	if category == "" {
		category = domain.CategoryOther
	}

	translated := verdict.Translation
	if translated == "" {
		translated = candidate.TranslatedText
	}

	return domain.PersistedPrompt{
		InstitutionID:   institutionID,
		ApplicationYear: year,
		Category:        category,
		PromptText:      candidate.PromptText,
		TranslatedText:  translated,
		WordLimit:       candidate.WordLimit,
		IsRequired:      candidate.IsRequired,
		SortOrder:       sortOrder,
		ReviewStatus:    status,
		AdvisoryTips:    verdict.Tips,
		Provenance:      provenance,
	}
}

// provenanceFor records every source that contributed to this institution's
// batch, with the source's best candidate confidence.
func provenanceFor(results []domain.SourceResult) []domain.ProvenanceEntry {
	entries := make([]domain.ProvenanceEntry, 0, len(results))
	for _, result := range results {
		best := 0.0
		for _, c := range result.Candidates {
			if c.ConfidenceScore > best {
				best = c.ConfidenceScore
			}
		}
		entries = append(entries, domain.ProvenanceEntry{
			SourceKind: result.SourceKind,
			SourceURL:  result.SourceURL,
			RawSnippet: result.RawSnippet,
			Confidence: best,
		})
	}
	return entries
}

func textInPrompts(prompts []domain.PersistedPrompt, text string) bool {
	for _, p := range prompts {
		if p.PromptText == text {
			return true
		}
	}
	return false
}

func snippetOf(text string) string {
	runes := []rune(text)
	if len(runes) > 60 {
		return string(runes[:60]) + "…"
	}
	return text
}

func (a *Acquisition) warn(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}

func (a *Acquisition) info(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Info(msg, args...)
	}
}
