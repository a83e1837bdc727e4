package usecase

import (
	"context"
	"fmt"

	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/reconcile"
)

// PreviewCandidate pairs a reconciled candidate with its verdict for
// human-in-the-loop curation.
type PreviewCandidate struct {
	Candidate domain.PromptCandidate `json:"candidate"`
	Verdict   domain.Verdict         `json:"verdict"`
}

// PreviewResult is a dry-run of the acquisition flow: nothing is persisted.
type PreviewResult struct {
	InstitutionName string                `json:"institutionName"`
	ApplicationYear int                   `json:"applicationYear"`
	Sources         []domain.SourceResult `json:"sources"`
	Candidates      []PreviewCandidate    `json:"candidates"`
}

// ConfirmCandidate is one caller-selected entry from an earlier preview.
type ConfirmCandidate struct {
	Candidate  domain.PromptCandidate `json:"candidate"`
	SourceKind domain.SourceKind      `json:"sourceKind"`
	SourceURL  string                 `json:"sourceUrl"`
}

// Preview runs the scrape/reconcile/validate chain without persisting.
// An empty strategyNames selects every registered strategy.
func (a *Acquisition) Preview(ctx context.Context, institutionName string, year int, strategyNames []string) (PreviewResult, error) {
	strategies := a.registry.All()
	if len(strategyNames) > 0 {
		strategies = strategies[:0:0]
		for _, name := range strategyNames {
			strategy, err := a.registry.Resolve(name)
			if err != nil {
				return PreviewResult{}, err
			}
			strategies = append(strategies, strategy)
		}
	}

	result := PreviewResult{
		InstitutionName: institutionName,
		ApplicationYear: year,
		Sources:         a.runStrategies(ctx, institutionName, year, strategies),
	}

	for _, candidate := range reconcile.Merge(result.Sources) {
		verdict, err := a.validator.Validate(ctx, candidate, institutionName)
		if err != nil {
			a.warn("validate preview candidate", "institution", institutionName, "error", err)
			continue
		}
		result.Candidates = append(result.Candidates, PreviewCandidate{
			Candidate: candidate,
			Verdict:   verdict,
		})
	}
	return result, nil
}

// ConfirmSave persists a curated subset of a previous preview. The curation
// itself is the human review, so saved prompts are VERIFIED immediately.
// Natural-key duplicates are skipped silently; the count of newly persisted
// prompts is returned.
func (a *Acquisition) ConfirmSave(ctx context.Context, institutionName string, year int, selected []ConfirmCandidate) (int, error) {
	inst, err := a.institutions.UpsertByName(ctx, institutionName)
	if err != nil {
		return 0, fmt.Errorf("resolve institution: %w", err)
	}

	saved := 0
	for i, entry := range selected {
		exists, err := a.prompts.ExistsByNaturalKey(ctx, inst.ID, year, entry.Candidate.PromptText)
		if err != nil {
			return saved, fmt.Errorf("natural key lookup: %w", err)
		}
		if exists {
			continue
		}

		prompt := buildPrompt(inst.ID, year, i, entry.Candidate,
			domain.Verdict{IsValid: true, Confidence: 1, Category: entry.Candidate.Category},
			[]domain.ProvenanceEntry{{
				SourceKind: entry.SourceKind,
				SourceURL:  entry.SourceURL,
				Confidence: entry.Candidate.ConfidenceScore,
			}})
		if _, err := a.prompts.Create(ctx, prompt); err != nil {
			return saved, fmt.Errorf("persist prompt: %w", err)
		}
		saved++
	}
	return saved, nil
}
