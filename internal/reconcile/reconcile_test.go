package reconcile

import (
	"strings"
	"testing"

	"PromptHarvester/internal/domain"
)

func result(kind domain.SourceKind, candidates ...domain.PromptCandidate) domain.SourceResult {
	return domain.SourceResult{
		InstitutionName: "Example University",
		ApplicationYear: 2026,
		SourceKind:      kind,
		Candidates:      candidates,
	}
}

func TestMergeKeepsHighestConfidence(t *testing.T) {
	t.Parallel()

	prompt := "Describe a community you belong to and your place within it."
	merged := Merge([]domain.SourceResult{
		result(domain.SourceStatic, domain.PromptCandidate{PromptText: prompt, ConfidenceScore: 0.7}),
		result(domain.SourceConfigured, domain.PromptCandidate{PromptText: prompt, ConfidenceScore: 0.9}),
		result(domain.SourceAggregator, domain.PromptCandidate{PromptText: prompt, ConfidenceScore: 0.6}),
	})

	if len(merged) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(merged))
	}
	if merged[0].ConfidenceScore != 0.9 {
		t.Fatalf("expected confidence 0.9, got %v", merged[0].ConfidenceScore)
	}
}

func TestMergeTiesKeepFirstSeen(t *testing.T) {
	t.Parallel()

	prompt := "Why do you want to attend Example University?"
	first := domain.PromptCandidate{PromptText: prompt, ConfidenceScore: 0.7, Category: domain.CategoryWhySchool}
	second := domain.PromptCandidate{PromptText: prompt, ConfidenceScore: 0.7, Category: domain.CategoryOther}

	merged := Merge([]domain.SourceResult{
		result(domain.SourceStatic, first),
		result(domain.SourceAggregator, second),
	})

	if len(merged) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(merged))
	}
	if merged[0].Category != domain.CategoryWhySchool {
		t.Fatalf("tie did not keep first-seen candidate: %+v", merged[0])
	}
}

func TestMergeKeysOnEightyCharPrefix(t *testing.T) {
	t.Parallel()

	base := strings.Repeat("a", 80)
	merged := Merge([]domain.SourceResult{
		result(domain.SourceStatic,
			domain.PromptCandidate{PromptText: base + " tail one", ConfidenceScore: 0.5},
			domain.PromptCandidate{PromptText: base + " tail two", ConfidenceScore: 0.8},
		),
	})

	if len(merged) != 1 {
		t.Fatalf("expected prefix-equal prompts to merge, got %d", len(merged))
	}
	if merged[0].ConfidenceScore != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", merged[0].ConfidenceScore)
	}
}

func TestMergeDistinctPromptsSurvive(t *testing.T) {
	t.Parallel()

	merged := Merge([]domain.SourceResult{
		result(domain.SourceStatic,
			domain.PromptCandidate{PromptText: "Tell us about an extracurricular activity.", ConfidenceScore: 0.7},
			domain.PromptCandidate{PromptText: "Describe a challenge you overcame.", ConfidenceScore: 0.7},
		),
	})

	if len(merged) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(merged))
	}
}
