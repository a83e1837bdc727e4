package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"PromptHarvester/internal/config"
	"PromptHarvester/internal/domain"
	"PromptHarvester/internal/ports"
)

const extractSystemPrompt = `You extract college application essay prompts from page text.
Respond with a JSON array only. Each element: {"promptText": string,
"translatedText": string, "wordLimit": number, "category": one of
PERSONAL_STATEMENT|WHY_SCHOOL|EXTRACURRICULAR|COMMUNITY|DIVERSITY|CHALLENGE|SUPPLEMENTAL|OTHER,
"isRequired": boolean, "confidence": number between 0 and 1}.
Return [] when the text contains no essay prompts.`

const judgeSystemPrompt = `You review one candidate college essay prompt.
Respond with a JSON object only: {"isValid": boolean, "confidence": number
between 0 and 1, "translation": string, "tips": string of at most 50 words,
"category": one of PERSONAL_STATEMENT|WHY_SCHOOL|EXTRACURRICULAR|COMMUNITY|DIVERSITY|CHALLENGE|SUPPLEMENTAL|OTHER,
"issues": array of strings}.`

// Client talks to an OpenAI-compatible chat completions API for prompt
// extraction and validation rubric calls.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ ports.Extractor = (*Client)(nil)

// NewClient builds a client from configuration, or nil when no API key is
// configured; callers treat a nil client as "capability absent".
func NewClient(cfg config.LLMConfig) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ExtractPrompts asks the model for prompt candidates in the page text.
func (c *Client) ExtractPrompts(ctx context.Context, institutionName, pageText, hint string) ([]domain.PromptCandidate, error) {
	user := fmt.Sprintf("Institution: %s\n", institutionName)
	if hint != "" {
		user += fmt.Sprintf("Hint: %s\n", hint)
	}
	user += "Page text:\n" + clip(pageText, 24000)

	content, err := c.complete(ctx, extractSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var items []struct {
		PromptText     string  `json:"promptText"`
		TranslatedText string  `json:"translatedText"`
		WordLimit      int     `json:"wordLimit"`
		Category       string  `json:"category"`
		IsRequired     *bool   `json:"isRequired"`
		Confidence     float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &items); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}

	out := make([]domain.PromptCandidate, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.PromptText) == "" {
			continue
		}
		required := true
		if it.IsRequired != nil {
			required = *it.IsRequired
		}
		out = append(out, domain.PromptCandidate{
			PromptText:      strings.TrimSpace(it.PromptText),
			TranslatedText:  it.TranslatedText,
			WordLimit:       it.WordLimit,
			Category:        parseCategory(it.Category),
			IsRequired:      required,
			ConfidenceScore: clamp01(it.Confidence),
		})
	}
	return out, nil
}

// Judge runs the validation rubric over one candidate.
func (c *Client) Judge(ctx context.Context, candidate domain.PromptCandidate, institutionName string) (domain.Verdict, error) {
	user := fmt.Sprintf("Institution: %s\nCandidate prompt:\n%s", institutionName, candidate.PromptText)

	content, err := c.complete(ctx, judgeSystemPrompt, user)
	if err != nil {
		return domain.Verdict{}, err
	}

	var resp struct {
		IsValid     bool     `json:"isValid"`
		Confidence  float64  `json:"confidence"`
		Translation string   `json:"translation"`
		Tips        string   `json:"tips"`
		Category    string   `json:"category"`
		Issues      []string `json:"issues"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &resp); err != nil {
		return domain.Verdict{}, fmt.Errorf("decode rubric response: %w", err)
	}

	return domain.Verdict{
		IsValid:     resp.IsValid,
		Confidence:  clamp01(resp.Confidence),
		Translation: resp.Translation,
		Tips:        resp.Tips,
		Category:    parseCategory(resp.Category),
		Issues:      resp.Issues,
	}, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("llm client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("llm client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"temperature": 0,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("llm error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

func parseCategory(raw string) domain.Category {
	switch domain.Category(strings.ToUpper(strings.TrimSpace(raw))) {
	case domain.CategoryPersonalStatement, domain.CategoryWhySchool,
		domain.CategoryExtracurricular, domain.CategoryCommunity,
		domain.CategoryDiversity, domain.CategoryChallenge,
		domain.CategorySupplemental, domain.CategoryOther:
		return domain.Category(strings.ToUpper(strings.TrimSpace(raw)))
	default:
		return domain.CategoryOther
	}
}

// stripFences removes a markdown code fence if the model wrapped its JSON.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	return strings.TrimSpace(content)
}

func clip(text string, n int) string {
	if len(text) > n {
		return text[:n]
	}
	return text
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
