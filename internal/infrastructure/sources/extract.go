package sources

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"PromptHarvester/internal/domain"
)

const (
	// Heuristic strategies never emit more than this many candidates per
	// institution; anything beyond is selector noise.
	maxCandidates = 10

	minPromptLen = 25
	maxPromptLen = 800

	// prefixKeyLen is the lowercase-prefix length heuristic strategies use
	// to drop near-identical extractions from overlapping selectors.
	prefixKeyLen = 50
)

var (
	imperativeExpr = regexp.MustCompile(`(?i)\b(describe|tell us|share|discuss|explain|reflect on|write about|elaborate)\b`)
	whyExpr        = regexp.MustCompile(`(?i)\bwhy\b`)
	wordLimitExpr  = regexp.MustCompile(`(?i)(\d{2,4})[\s-]*words?\b`)
	spaceExpr      = regexp.MustCompile(`\s+`)
)

// containerSelectors is the cascade tried in order when extracting prompt
// text from admissions pages; the first selector with any hit wins.
var containerSelectors = []string{
	".essay-prompts li",
	".supplemental-essays li",
	".prompts li",
	"article li",
	"main li",
	"blockquote",
	".prompt",
	"article p",
	"main p",
	"li",
}

// extractHeuristic walks the selector cascade and keeps texts that read like
// essay prompts for the institution: imperative phrasing, a question, or a
// "why <school>" pattern. Dedup is by 50-char lowercase prefix, capped at 10.
func extractHeuristic(doc *goquery.Document, institutionName string) []domain.PromptCandidate {
	var texts []string
	for _, sel := range containerSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if t := normalizeText(s.Text()); t != "" {
				texts = append(texts, t)
			}
		})
		if len(texts) > 0 {
			break
		}
	}

	seen := map[string]struct{}{}
	var out []domain.PromptCandidate
	for _, text := range texts {
		if !looksLikePrompt(text, institutionName) {
			continue
		}
		key := prefixKey(text, prefixKeyLen)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		out = append(out, domain.PromptCandidate{
			PromptText: text,
			WordLimit:  parseWordLimit(text),
			Category:   guessCategory(text),
			IsRequired: true,
		})
		if len(out) >= maxCandidates {
			break
		}
	}
	return out
}

func looksLikePrompt(text, institutionName string) bool {
	if len(text) < minPromptLen || len(text) > maxPromptLen {
		return false
	}
	if imperativeExpr.MatchString(text) || strings.Contains(text, "?") {
		return true
	}
	lower := strings.ToLower(text)
	if whyExpr.MatchString(text) && institutionName != "" {
		// "Why <institution>" phrasing; match on the leading word of the
		// name so "Why Stanford?" hits "Stanford University".
		first := strings.ToLower(strings.Fields(institutionName)[0])
		return strings.Contains(lower, first)
	}
	return false
}

func guessCategory(text string) domain.Category {
	lower := strings.ToLower(text)
	switch {
	case whyExpr.MatchString(text) && (strings.Contains(lower, "college") ||
		strings.Contains(lower, "university") || strings.Contains(lower, "school")):
		return domain.CategoryWhySchool
	case strings.Contains(lower, "community"):
		return domain.CategoryCommunity
	case strings.Contains(lower, "extracurricular") || strings.Contains(lower, "activity"):
		return domain.CategoryExtracurricular
	case strings.Contains(lower, "challenge") || strings.Contains(lower, "obstacle") ||
		strings.Contains(lower, "setback"):
		return domain.CategoryChallenge
	case strings.Contains(lower, "diversity") || strings.Contains(lower, "background") ||
		strings.Contains(lower, "identity"):
		return domain.CategoryDiversity
	default:
		return domain.CategorySupplemental
	}
}

func parseWordLimit(text string) int {
	m := wordLimitExpr.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	limit, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return limit
}

func normalizeText(raw string) string {
	return strings.TrimSpace(spaceExpr.ReplaceAllString(raw, " "))
}

func prefixKey(text string, n int) string {
	key := strings.ToLower(normalizeText(text))
	if len(key) > n {
		key = key[:n]
	}
	return key
}

func snippet(body string, n int) string {
	body = normalizeText(body)
	if len(body) > n {
		body = body[:n]
	}
	return body
}
