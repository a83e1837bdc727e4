package domain

import "time"

// SourceKind identifies one family of prompt sources.
type SourceKind string

const (
	SourceStatic     SourceKind = "static"
	SourceCommonApp  SourceKind = "commonapp"
	SourceConfigured SourceKind = "configured"
	SourceAggregator SourceKind = "aggregator"
)

// RunOutcome is the terminal status of one configured-source attempt.
type RunOutcome string

const (
	RunOutcomeSuccess RunOutcome = "success"
	RunOutcomeEmpty   RunOutcome = "empty"
	RunOutcomeFailed  RunOutcome = "failed"
)

// SourceConfig is an admin-managed description of one generic prompt source
// for an institution, consumed by the configured strategy in priority order.
type SourceConfig struct {
	ID            int64      `json:"id"`
	InstitutionID int64      `json:"institutionId"`
	SourceKind    SourceKind `json:"sourceKind"`
	URL           string     `json:"url"`
	Slug          string     `json:"slug,omitempty"`
	// ExtractionGroup narrows extraction to these CSS selectors
	// (comma-separated); empty means the whole cleaned page.
	ExtractionGroup string `json:"extractionGroup,omitempty"`
	// RemovalSelectors are stripped from the page before extraction, in
	// addition to the default nav/script/style boilerplate.
	RemovalSelectors string     `json:"removalSelectors,omitempty"`
	Priority         int        `json:"priority"`
	ExtractionHints  string     `json:"extractionHints,omitempty"`
	LastRunAt        *time.Time `json:"lastRunAt,omitempty"`
	LastRunStatus    RunOutcome `json:"lastRunStatus,omitempty"`
	LastRunError     string     `json:"lastRunError,omitempty"`
}
