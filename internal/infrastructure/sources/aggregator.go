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

// aggregatorConfidence is lower than the official-page tier: third-party
// catalogs lag behind institutional updates.
const aggregatorConfidence = 0.6

// AggregatorStrategy scrapes a third-party prompt catalog, mapping
// institution names to the catalog's URL slugs.
type AggregatorStrategy struct {
	baseURL string
	slugs   map[string]string
	fetcher ports.Fetcher
	logger  *slog.Logger
}

var _ scrape.Strategy = (*AggregatorStrategy)(nil)

// NewAggregatorStrategy wires the catalog base URL and name→slug table.
func NewAggregatorStrategy(baseURL string, slugs map[string]string, fetcher ports.Fetcher, log *slog.Logger) *AggregatorStrategy {
	return &AggregatorStrategy{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		slugs:   slugs,
		fetcher: fetcher,
		logger:  log,
	}
}

func (s *AggregatorStrategy) Name() string            { return "aggregator" }
func (s *AggregatorStrategy) Kind() domain.SourceKind { return domain.SourceAggregator }

// Institutions lists the slug-table keys in stable order.
func (s *AggregatorStrategy) Institutions(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s.slugs))
	for name := range s.slugs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Scrape fetches the catalog page for the institution's slug and extracts
// question-like or imperative texts through the selector cascade.
func (s *AggregatorStrategy) Scrape(ctx context.Context, institutionName string, year int) (*domain.SourceResult, error) {
	slug, ok := s.lookup(institutionName)
	if !ok {
		return nil, nil
	}
	pageURL := fmt.Sprintf("%s/%s", s.baseURL, slug)

	body, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("aggregator source %s: %w", institutionName, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	candidates := extractHeuristic(doc, institutionName)
	if len(candidates) == 0 {
		if s.logger != nil {
			s.logger.Debug("aggregator page yielded no candidates", "institution", institutionName, "slug", slug)
		}
		return nil, nil
	}
	for i := range candidates {
		candidates[i].ConfidenceScore = aggregatorConfidence
	}

	return &domain.SourceResult{
		InstitutionName: institutionName,
		ApplicationYear: year,
		Candidates:      candidates,
		SourceKind:      domain.SourceAggregator,
		SourceURL:       pageURL,
		RawSnippet:      snippet(doc.Text(), 500),
	}, nil
}

func (s *AggregatorStrategy) lookup(institutionName string) (string, bool) {
	if slug, ok := s.slugs[institutionName]; ok {
		return slug, true
	}
	for name, slug := range s.slugs {
		if strings.EqualFold(name, institutionName) {
			return slug, true
		}
	}
	return "", false
}
