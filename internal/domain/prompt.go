package domain

import "time"

// Category is the coarse classification assigned to an essay prompt.
type Category string

const (
	CategoryPersonalStatement Category = "PERSONAL_STATEMENT"
	CategoryWhySchool         Category = "WHY_SCHOOL"
	CategoryExtracurricular   Category = "EXTRACURRICULAR"
	CategoryCommunity         Category = "COMMUNITY"
	CategoryDiversity         Category = "DIVERSITY"
	CategoryChallenge         Category = "CHALLENGE"
	CategorySupplemental      Category = "SUPPLEMENTAL"
	CategoryOther             Category = "OTHER"
)

// ReviewStatus tracks the human-review lifecycle of a persisted prompt.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "PENDING"
	ReviewVerified ReviewStatus = "VERIFIED"
	ReviewRejected ReviewStatus = "REJECTED"
)

// VerifiedConfidenceThreshold marks prompts as VERIFIED without review when
// the validator scores them at or above it.
const VerifiedConfidenceThreshold = 0.8

// CommonAppInstitution files the shared cross-institution prompt set. It is
// not a real school and is excluded from per-school coverage statistics.
const CommonAppInstitution = "Common Application"

// PromptCandidate is an unvalidated extraction produced by one source
// strategy. It carries no identity beyond its text.
type PromptCandidate struct {
	PromptText      string
	TranslatedText  string
	WordLimit       int
	Category        Category
	IsRequired      bool
	ConfidenceScore float64
}

// SourceResult is the outcome of one (strategy, institution) execution.
type SourceResult struct {
	InstitutionName string
	ApplicationYear int
	Candidates      []PromptCandidate
	SourceKind      SourceKind
	SourceURL       string
	RawSnippet      string
}

// ProvenanceEntry records one source's contribution to a persisted prompt.
type ProvenanceEntry struct {
	SourceKind SourceKind
	SourceURL  string
	RawSnippet string
	Confidence float64
}

// PersistedPrompt is the durable, reviewed record of one essay prompt.
// Its natural key is (InstitutionID, ApplicationYear, PromptText).
type PersistedPrompt struct {
	ID              int64
	InstitutionID   int64
	ApplicationYear int
	Category        Category
	PromptText      string
	TranslatedText  string
	WordLimit       int
	IsRequired      bool
	SortOrder       int
	ReviewStatus    ReviewStatus
	AdvisoryTips    string
	TopicTag        string
	Provenance      []ProvenanceEntry
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Institution is a school that may have zero or more configured sources.
type Institution struct {
	ID   int64
	Name string
}

// Verdict is the validator's judgement of one candidate.
type Verdict struct {
	IsValid     bool
	Confidence  float64
	Translation string
	Tips        string
	Category    Category
	Issues      []string
	// Fallback marks a permissive default produced because the
	// text-understanding service was unavailable.
	Fallback bool
}

// PromptChangeType distinguishes year-over-year prompt diffs.
type PromptChangeType string

const (
	PromptAdded   PromptChangeType = "added"
	PromptRemoved PromptChangeType = "removed"
)

// PromptChange is one entry of the year-over-year dashboard diff.
type PromptChange struct {
	InstitutionName string           `json:"institutionName"`
	ApplicationYear int              `json:"applicationYear"`
	PromptText      string           `json:"promptText"`
	Change          PromptChangeType `json:"change"`
}
