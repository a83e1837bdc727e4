package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/ports"
	"PromptHarvester/internal/scrape"
)

// staticConfidence reflects the reliability tier of hand-maintained official
// admissions pages: high, but still heuristic extraction.
const staticConfidence = 0.7

// StaticStrategy scrapes a hand-maintained table of official per-institution
// essay pages with the selector cascade and phrasing heuristics.
type StaticStrategy struct {
	pages   map[string]string
	fetcher ports.Fetcher
	logger  *slog.Logger
}

var _ scrape.Strategy = (*StaticStrategy)(nil)

// NewStaticStrategy wires the name→URL table from config.
func NewStaticStrategy(pages map[string]string, fetcher ports.Fetcher, log *slog.Logger) *StaticStrategy {
	return &StaticStrategy{pages: pages, fetcher: fetcher, logger: log}
}

func (s *StaticStrategy) Name() string            { return "static" }
func (s *StaticStrategy) Kind() domain.SourceKind { return domain.SourceStatic }

// Institutions lists the table keys in stable order.
func (s *StaticStrategy) Institutions(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s.pages))
	for name := range s.pages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Scrape fetches the institution's configured page and extracts candidates.
func (s *StaticStrategy) Scrape(ctx context.Context, institutionName string, year int) (*domain.SourceResult, error) {
	pageURL, ok := s.lookup(institutionName)
	if !ok {
		return nil, nil
	}

	body, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("static source %s: %w", institutionName, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	candidates := extractHeuristic(doc, institutionName)
	if len(candidates) == 0 {
		if s.logger != nil {
			s.logger.Debug("static page yielded no candidates", "institution", institutionName, "url", pageURL)
		}
		return nil, nil
	}
	for i := range candidates {
		candidates[i].ConfidenceScore = staticConfidence
	}

	return &domain.SourceResult{
		InstitutionName: institutionName,
		ApplicationYear: year,
		Candidates:      candidates,
		SourceKind:      domain.SourceStatic,
		SourceURL:       pageURL,
		RawSnippet:      snippet(doc.Text(), 500),
	}, nil
}

func (s *StaticStrategy) lookup(institutionName string) (string, bool) {
	if u, ok := s.pages[institutionName]; ok {
		return u, true
	}
	for name, u := range s.pages {
		if strings.EqualFold(name, institutionName) {
			return u, true
		}
	}
	return "", false
}
