// Package enrich adapts an external text-generation model for document
// summaries, tags, semantic ranking and corpus-grounded answers. Every
// operation degrades to a fixed placeholder instead of failing the caller.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Fixed outputs for degraded and failure modes. Callers match on these
// values, so they are part of the client contract.
const (
	SummaryDisabledPlaceholder = "Auto-summary disabled (no API key)"
	SummaryErrorPlaceholder    = "Error generating summary"
	TagDisabled                = "ai-disabled"
	TagError                   = "ai-error"
	AnswerDisabledPlaceholder  = "Q&A disabled (no API key)"
	AnswerErrorPlaceholder     = "Error generating answer"
	SearchDisabledNotice       = "Semantic search disabled (no API key)"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-1.5-flash"
	defaultMaxTags = 6
	defaultTimeout = 30 * time.Second

	// One retry with identical input, then the terminal placeholder.
	generateRetries = 1

	// Per-document excerpt length used when building ranking context.
	excerptRunes = 800

	groundingFallbackPhrase = "I don't know based on the provided documents."
)

var errEmptyCompletion = errors.New("model returned no text")

// Config configures the enrichment client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	MaxTags int
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client calls the generative model. It holds no per-call state and is safe
// for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxTags    int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a client. An empty APIKey yields a client that serves
// only the disabled-mode placeholders and never reaches the network.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTags := cfg.MaxTags
	if maxTags <= 0 {
		maxTags = defaultMaxTags
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		maxTags:    maxTags,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Enabled reports whether a model credential is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// MaxTags exposes the configured tag limit.
func (c *Client) MaxTags() int {
	return c.maxTags
}

// CorpusDoc is the slice of a document the model needs for ranking and Q&A.
type CorpusDoc struct {
	Title   string
	Content string
}

// RankedDoc is one entry of a structured semantic-search response.
type RankedDoc struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// SearchResult carries either a parsed ranking (Items) or, when the model
// output was not well-formed JSON, the raw text. The two outcomes are
// distinct: Items is nil exactly when the structured parse failed.
type SearchResult struct {
	Items []RankedDoc `json:"items"`
	Raw   string      `json:"raw,omitempty"`
}

// Summarize condenses content into 2-4 sentences. It never returns an error:
// disabled mode and exhausted retries both produce fixed placeholders.
func (c *Client) Summarize(ctx context.Context, content string) string {
	if !c.Enabled() {
		return SummaryDisabledPlaceholder
	}

	prompt := fmt.Sprintf("Summarize the following document into 2-4 concise sentences:\n\n%s", content)
	text, err := c.generate(ctx, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		return SummaryErrorPlaceholder
	}
	return strings.TrimSpace(text)
}

// GenerateTags derives up to the configured number of short tags from
// content. The result is always non-empty.
func (c *Client) GenerateTags(ctx context.Context, content string) []string {
	if !c.Enabled() {
		return []string{TagDisabled}
	}

	prompt := fmt.Sprintf(
		"Extract up to %d short single-word or phrase tags for this document. Return them comma-separated:\n\n%s",
		c.maxTags, content)
	text, err := c.generate(ctx, prompt)
	if err != nil {
		return []string{TagError}
	}

	tags := splitTags(text, c.maxTags)
	if len(tags) == 0 {
		return []string{TagError}
	}
	return tags
}

// SemanticSearch asks the model to rank the corpus against the query. A
// well-formed JSON response becomes Items; anything else is surfaced as Raw.
func (c *Client) SemanticSearch(ctx context.Context, query string, corpus []CorpusDoc, limit int) SearchResult {
	if !c.Enabled() {
		return SearchResult{Raw: SearchDisabledNotice}
	}
	if limit <= 0 {
		limit = 5
	}

	blocks := make([]string, 0, len(corpus))
	for _, doc := range corpus {
		blocks = append(blocks, fmt.Sprintf("Title: %s\nContent excerpt: %s", doc.Title, excerpt(doc.Content)))
	}
	prompt := fmt.Sprintf(
		"You are a search assistant. Given the query: %q, return the top %d relevant docs from this context. Format as JSON: [{\"title\":\"...\",\"reason\":\"...\"}]\n\nCONTEXT:\n%s",
		query, limit, strings.Join(blocks, "\n\n---\n\n"))

	raw, err := c.generate(ctx, prompt)
	if err != nil {
		return SearchResult{Raw: raw}
	}

	var items []RankedDoc
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &items); err != nil {
		return SearchResult{Raw: raw}
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return SearchResult{Items: items}
}

// AnswerQuestion answers strictly from the supplied corpus. The grounded-only
// policy lives in the instruction text and is best-effort, not verified.
func (c *Client) AnswerQuestion(ctx context.Context, question string, corpus []CorpusDoc) string {
	if !c.Enabled() {
		return AnswerDisabledPlaceholder
	}

	blocks := make([]string, 0, len(corpus))
	for _, doc := range corpus {
		blocks = append(blocks, fmt.Sprintf("Title: %s\nContent: %s", doc.Title, doc.Content))
	}
	prompt := fmt.Sprintf(
		"Answer the user's question using ONLY these docs. If not found, say %q.\n\nDOCUMENTS:\n%s\n\nQUESTION: %s\n\nAnswer:",
		groundingFallbackPhrase, strings.Join(blocks, "\n\n---\n\n"), question)

	answer, err := c.generate(ctx, prompt)
	if err != nil || strings.TrimSpace(answer) == "" {
		return AnswerErrorPlaceholder
	}
	return strings.TrimSpace(answer)
}

// generate performs one model call with a single bounded retry on failure.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= generateRetries; attempt++ {
		text, err := c.callModel(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		c.logger.Warn("model call failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return "", lastErr
}

func (c *Client) callModel(ctx context.Context, prompt string) (string, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Parts []part `json:"parts"`
	}
	payload := struct {
		Contents []content `json:"contents"`
	}{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("x-goog-api-key", c.apiKey)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode >= 300 {
		return "", fmt.Errorf("model call failed: %s", response.Status)
	}

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return "", err
	}

	var decoded struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", err
	}
	if len(decoded.Candidates) == 0 {
		return "", errEmptyCompletion
	}

	var builder strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		builder.WriteString(p.Text)
	}
	if builder.Len() == 0 {
		return "", errEmptyCompletion
	}
	return builder.String(), nil
}

// splitTags turns free-form model output into a bounded ordered tag list:
// split on comma and newline, trim, drop empties, truncate.
func splitTags(raw string, maxTags int) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	tags := make([]string, 0, len(fields))
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed == "" {
			continue
		}
		tags = append(tags, trimmed)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptRunes {
		return content
	}
	return string(runes[:excerptRunes])
}
