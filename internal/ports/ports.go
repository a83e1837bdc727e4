package ports

import (
	"context"
	"time"

	"PromptHarvester/internal/domain"
)

// Fetcher retrieves remote page bodies. Implementations must refuse targets
// that resolve to private address space before any network I/O happens.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Extractor turns cleaned page text into prompt candidates, guided by an
// optional admin-supplied hint.
type Extractor interface {
	ExtractPrompts(ctx context.Context, institutionName, pageText, hint string) ([]domain.PromptCandidate, error)
}

// Validator scores a single candidate against the institutional context.
type Validator interface {
	Validate(ctx context.Context, candidate domain.PromptCandidate, institutionName string) (domain.Verdict, error)
}

// PromptRepository persists deduplicated prompts with provenance.
type PromptRepository interface {
	// ExistsByNaturalKey reports whether a prompt with the same
	// (institution, year, exact text) triple is already stored.
	ExistsByNaturalKey(ctx context.Context, institutionID int64, year int, promptText string) (bool, error)
	Create(ctx context.Context, prompt domain.PersistedPrompt) (int64, error)
	ListByInstitutionYear(ctx context.Context, institutionID int64, year int) ([]domain.PersistedPrompt, error)
	// Coverage returns how many institutions have at least one verified
	// prompt for the year, and the total institution count.
	Coverage(ctx context.Context, year int) (verified, total int, err error)
	YearOverYearChanges(ctx context.Context, year int) ([]domain.PromptChange, error)
}

// InstitutionRepository resolves institution names to durable identities.
type InstitutionRepository interface {
	UpsertByName(ctx context.Context, name string) (domain.Institution, error)
	List(ctx context.Context) ([]domain.Institution, error)
}

// SourceConfigRepository manages admin-configured generic sources.
type SourceConfigRepository interface {
	// ListByInstitutionName returns the institution's configs ordered by
	// descending priority.
	ListByInstitutionName(ctx context.Context, name string) ([]domain.SourceConfig, error)
	List(ctx context.Context) ([]domain.SourceConfig, error)
	InstitutionNames(ctx context.Context) ([]string, error)
	Create(ctx context.Context, cfg domain.SourceConfig) (int64, error)
	Update(ctx context.Context, cfg domain.SourceConfig) error
	Delete(ctx context.Context, id int64) error
	// MarkRun records the outcome of the strategy's latest attempt.
	MarkRun(ctx context.Context, id int64, at time.Time, outcome domain.RunOutcome, runErr string) error
}

// RunRepository persists pipeline-run audit records.
type RunRepository interface {
	Create(ctx context.Context, run domain.PipelineRun) error
	Finish(ctx context.Context, run domain.PipelineRun) error
	Get(ctx context.Context, id string) (domain.PipelineRun, error)
	ListRecent(ctx context.Context, limit int) ([]domain.PipelineRun, error)
}

// Scheduler drives calendar-triggered pipeline runs.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
