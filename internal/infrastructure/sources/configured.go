package sources

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/ports"
	"PromptHarvester/internal/scrape"
)

// boilerplateSelectors are removed from every configured page before the
// text reaches the extractor.
var boilerplateSelectors = []string{
	"script", "style", "noscript", "nav", "header", "footer", "aside",
	"form", "iframe", ".cookie-banner", ".site-nav",
}

const configuredDefaultConfidence = 0.8

// ConfiguredStrategy runs admin-managed SourceConfig rows through the
// fetch → strip → narrow → LLM-extract pipeline, in priority order, stopping
// at the first config that yields candidates. The attempt outcome is written
// back onto the config row either way.
type ConfiguredStrategy struct {
	configs   ports.SourceConfigRepository
	fetcher   ports.Fetcher
	extractor ports.Extractor
	sanitize  *bluemonday.Policy
	logger    *slog.Logger
	now       func() time.Time
}

var _ scrape.Strategy = (*ConfiguredStrategy)(nil)

// NewConfiguredStrategy wires repositories and the optional extractor.
func NewConfiguredStrategy(configs ports.SourceConfigRepository, fetcher ports.Fetcher, extractor ports.Extractor, log *slog.Logger) *ConfiguredStrategy {
	return &ConfiguredStrategy{
		configs:   configs,
		fetcher:   fetcher,
		extractor: extractor,
		sanitize:  bluemonday.StrictPolicy(),
		logger:    log,
		now:       time.Now,
	}
}

func (s *ConfiguredStrategy) Name() string            { return "configured" }
func (s *ConfiguredStrategy) Kind() domain.SourceKind { return domain.SourceConfigured }

// Institutions lists every school with at least one config row.
func (s *ConfiguredStrategy) Institutions(ctx context.Context) ([]string, error) {
	return s.configs.InstitutionNames(ctx)
}

// Scrape walks the institution's configs by priority and returns the first
// non-empty extraction, or (nil, nil) when no config produces anything.
func (s *ConfiguredStrategy) Scrape(ctx context.Context, institutionName string, year int) (*domain.SourceResult, error) {
	if s.extractor == nil {
		return nil, nil
	}

	cfgs, err := s.configs.ListByInstitutionName(ctx, institutionName)
	if err != nil {
		return nil, fmt.Errorf("load source configs for %s: %w", institutionName, err)
	}

	for _, cfg := range cfgs {
		candidates, raw, err := s.runConfig(ctx, cfg, institutionName)
		if err != nil {
			s.markRun(ctx, cfg.ID, domain.RunOutcomeFailed, err.Error())
			if s.logger != nil {
				s.logger.Warn("configured source failed", "institution", institutionName, "url", cfg.URL, "error", err)
			}
			continue
		}
		if len(candidates) == 0 {
			s.markRun(ctx, cfg.ID, domain.RunOutcomeEmpty, "")
			continue
		}

		s.markRun(ctx, cfg.ID, domain.RunOutcomeSuccess, "")
		return &domain.SourceResult{
			InstitutionName: institutionName,
			ApplicationYear: year,
			Candidates:      candidates,
			SourceKind:      domain.SourceConfigured,
			SourceURL:       cfg.URL,
			RawSnippet:      raw,
		}, nil
	}

	return nil, nil
}

func (s *ConfiguredStrategy) runConfig(ctx context.Context, cfg domain.SourceConfig, institutionName string) ([]domain.PromptCandidate, string, error) {
	body, err := s.fetcher.Fetch(ctx, cfg.URL)
	if err != nil {
		return nil, "", err
	}

	text, err := s.pageText(body, cfg)
	if err != nil {
		return nil, "", err
	}
	if text == "" {
		return nil, "", nil
	}

	candidates, err := s.extractor.ExtractPrompts(ctx, institutionName, text, cfg.ExtractionHints)
	if err != nil {
		return nil, "", fmt.Errorf("extract prompts: %w", err)
	}
	for i := range candidates {
		if candidates[i].ConfidenceScore == 0 {
			candidates[i].ConfidenceScore = configuredDefaultConfidence
		}
		if candidates[i].Category == "" {
			candidates[i].Category = domain.CategorySupplemental
		}
	}
	return candidates, snippet(text, 500), nil
}

// pageText strips boilerplate plus admin removal selectors, optionally
// narrows to the config's extraction group, and sanitizes down to text.
func (s *ConfiguredStrategy) pageText(body string, cfg domain.SourceConfig) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", cfg.URL, err)
	}

	remove := append([]string{}, boilerplateSelectors...)
	remove = append(remove, splitSelectors(cfg.RemovalSelectors)...)
	for _, sel := range remove {
		doc.Find(sel).Remove()
	}

	scope := doc.Selection
	if groups := splitSelectors(cfg.ExtractionGroup); len(groups) > 0 {
		scope = doc.Find(strings.Join(groups, ", "))
		if scope.Length() == 0 {
			return "", nil
		}
	}

	var parts []string
	scope.Each(func(_ int, sel *goquery.Selection) {
		if html, err := goquery.OuterHtml(sel); err == nil {
			parts = append(parts, html)
		}
	})
	return normalizeText(s.sanitize.Sanitize(strings.Join(parts, "\n"))), nil
}

func (s *ConfiguredStrategy) markRun(ctx context.Context, id int64, outcome domain.RunOutcome, runErr string) {
	if err := s.configs.MarkRun(ctx, id, s.now(), outcome, runErr); err != nil && s.logger != nil {
		s.logger.Warn("mark source config run", "config", id, "error", err)
	}
}

func splitSelectors(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
