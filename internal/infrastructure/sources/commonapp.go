package sources

import (
	"context"
	"log/slog"

	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/ports"
	"PromptHarvester/internal/scrape"
)

const commonAppURL = "https://www.commonapp.org/apply/essay-prompts"

// fallbackConfidence is high: the fallback list is the published prompt set,
// which has been stable across recent cycles.
const fallbackConfidence = 0.95

// commonAppFallback is the current-cycle personal statement prompt set, used
// whenever live extraction fails so this source never goes fully empty.
var commonAppFallback = []string{
	"Some students have a background, identity, interest, or talent that is so meaningful they believe their application would be incomplete without it. If this sounds like you, then please share your story.",
	"The lessons we take from obstacles we encounter can be fundamental to later success. Recount a time when you faced a challenge, setback, or failure. How did it affect you, and what did you learn from the experience?",
	"Reflect on a time when you questioned or challenged a belief or idea. What prompted your thinking? What was the outcome?",
	"Reflect on something that someone has done for you that has made you happy or thankful in a surprising way. How has this gratitude affected or motivated you?",
	"Discuss an accomplishment, event, or realization that sparked a period of personal growth and a new understanding of yourself or others.",
	"Describe a topic, idea, or concept you find so engaging that it makes you lose all track of time. Why does it captivate you? What or who do you turn to when you want to learn more?",
	"Share an essay on any topic of your choice. It can be one you've already written, one that responds to a different prompt, or one of your own design.",
}

// CommonAppStrategy serves the shared cross-institution prompt set. The
// institution parameter is ignored: one prompt set applies to every member
// school.
type CommonAppStrategy struct {
	fetcher   ports.Fetcher
	extractor ports.Extractor
	logger    *slog.Logger
}

var _ scrape.Strategy = (*CommonAppStrategy)(nil)

// NewCommonAppStrategy accepts a nil extractor; extraction then always falls
// back to the published list.
func NewCommonAppStrategy(fetcher ports.Fetcher, extractor ports.Extractor, log *slog.Logger) *CommonAppStrategy {
	return &CommonAppStrategy{fetcher: fetcher, extractor: extractor, logger: log}
}

func (s *CommonAppStrategy) Name() string            { return "commonapp" }
func (s *CommonAppStrategy) Kind() domain.SourceKind { return domain.SourceCommonApp }

// Institutions returns nil: membership is not enumerated here.
func (s *CommonAppStrategy) Institutions(ctx context.Context) ([]string, error) {
	return nil, nil
}

// Scrape tries live extraction and falls back to the hard-coded prompt set
// on any failure, so the pipeline never loses this source entirely.
func (s *CommonAppStrategy) Scrape(ctx context.Context, institutionName string, year int) (*domain.SourceResult, error) {
	candidates, raw := s.liveCandidates(ctx)
	if len(candidates) == 0 {
		candidates = s.fallbackCandidates()
	}

	return &domain.SourceResult{
		InstitutionName: institutionName,
		ApplicationYear: year,
		Candidates:      candidates,
		SourceKind:      domain.SourceCommonApp,
		SourceURL:       commonAppURL,
		RawSnippet:      raw,
	}, nil
}

func (s *CommonAppStrategy) liveCandidates(ctx context.Context) ([]domain.PromptCandidate, string) {
	if s.extractor == nil {
		return nil, ""
	}

	body, err := s.fetcher.Fetch(ctx, commonAppURL)
	if err != nil {
		s.warn("common app fetch failed, using fallback prompts", "error", err)
		return nil, ""
	}

	candidates, err := s.extractor.ExtractPrompts(ctx, domain.CommonAppInstitution, body,
		"Extract the personal statement essay prompts for the current application cycle.")
	if err != nil {
		s.warn("common app extraction failed, using fallback prompts", "error", err)
		return nil, ""
	}
	for i := range candidates {
		candidates[i].Category = domain.CategoryPersonalStatement
		candidates[i].IsRequired = true
	}
	return candidates, snippet(body, 500)
}

func (s *CommonAppStrategy) fallbackCandidates() []domain.PromptCandidate {
	out := make([]domain.PromptCandidate, 0, len(commonAppFallback))
	for _, text := range commonAppFallback {
		out = append(out, domain.PromptCandidate{
			PromptText:      text,
			WordLimit:       650,
			Category:        domain.CategoryPersonalStatement,
			IsRequired:      true,
			ConfidenceScore: fallbackConfidence,
		})
	}
	return out
}

func (s *CommonAppStrategy) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
