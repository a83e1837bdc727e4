package validate

import (
	"context"
	"log/slog"

	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/ports"
)

// RubricClient is the text-understanding call the validator delegates to.
type RubricClient interface {
	Judge(ctx context.Context, candidate domain.PromptCandidate, institutionName string) (domain.Verdict, error)
}

// Validator scores candidates against the institution. When the rubric
// client is absent or fails, it returns a permissive default instead of an
// error: the pipeline keeps noisy data for the human review queue rather
// than discarding it.
type Validator struct {
	rubric RubricClient
	logger *slog.Logger
}

var _ ports.Validator = (*Validator)(nil)

// New accepts a nil rubric client; every verdict is then a fallback.
func New(rubric RubricClient, log *slog.Logger) *Validator {
	return &Validator{rubric: rubric, logger: log}
}

// Validate delegates to the rubric call and falls back permissively on any
// failure. The returned error is always nil; failures are recovered here.
func (v *Validator) Validate(ctx context.Context, candidate domain.PromptCandidate, institutionName string) (domain.Verdict, error) {
	if v.rubric == nil {
		return fallbackVerdict(candidate), nil
	}

	verdict, err := v.rubric.Judge(ctx, candidate, institutionName)
	if err != nil {
		if v.logger != nil {
			v.logger.Warn("rubric call failed, passing candidate through", "institution", institutionName, "error", err)
		}
		return fallbackVerdict(candidate), nil
	}
	if verdict.Category == "" {
		verdict.Category = candidate.Category
	}
	return verdict, nil
}

func fallbackVerdict(candidate domain.PromptCandidate) domain.Verdict {
	confidence := candidate.ConfidenceScore
	if confidence == 0 {
		confidence = 0.5
	}
	return domain.Verdict{
		IsValid:    true,
		Confidence: confidence,
		Category:   candidate.Category,
		Fallback:   true,
	}
}
