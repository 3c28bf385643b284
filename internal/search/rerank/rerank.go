// Package rerank re-orders fused search results with an LLM judge,
// choosing among no-op, small, large, and fast model tiers, and falling
// back to the original fusion order whenever the model call fails, times
// out, or returns an unparsable response.
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"

	"github.com/simpleflo/arabhybrid/internal/observability"
)

// maxCandidateChars is the per-candidate prompt truncation limit: long
// book-page snippets get cut down so the rerank prompt stays within the
// model's effective context window.
const maxCandidateChars = 800

// Candidate is one item to be judged, identified by its position in the
// caller's original (already fused) ordering.
type Candidate struct {
	Index int
	Text  string
}

// Provider issues the actual LLM call that produces a reranked index order.
type Provider interface {
	Rerank(ctx context.Context, model, query string, candidates []Candidate) ([]int, error)
	// RerankPrompt runs a caller-assembled prompt (used by UnifiedRerank,
	// whose tri-domain prompt shape Rerank's single-domain buildPrompt
	// doesn't cover) and parses the response as a permutation of [0, n).
	RerankPrompt(ctx context.Context, model, prompt string, n int) ([]int, error)
}

// OllamaProvider reranks via a local Ollama chat/generate call, asking the
// model to return a JSON array of candidate indices in relevance order.
type OllamaProvider struct {
	client *api.Client
	logger zerolog.Logger
}

// NewOllamaProvider constructs an OllamaProvider against the given host.
func NewOllamaProvider(host string) (*OllamaProvider, error) {
	if host == "" {
		host = "http://localhost:11434"
	}
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host url: %w", err)
	}
	return &OllamaProvider{
		client: api.NewClient(hostURL, nil),
		logger: observability.Logger("search.rerank.ollama"),
	}, nil
}

// Rerank asks the model to order candidates by relevance to query,
// returning the candidates' original indices best-first.
func (p *OllamaProvider) Rerank(ctx context.Context, model, query string, candidates []Candidate) ([]int, error) {
	return p.RerankPrompt(ctx, model, buildPrompt(query, candidates), len(candidates))
}

// RerankPrompt sends a pre-built prompt to the model and parses the
// response as a permutation of [0, n).
func (p *OllamaProvider) RerankPrompt(ctx context.Context, model, prompt string, n int) ([]int, error) {
	var sb strings.Builder
	req := &api.GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: boolPtr(false),
		Options: map[string]interface{}{
			"temperature": 0.0,
		},
	}

	err := p.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama generate: %w", err)
	}

	return parseIndexArray(sb.String(), n)
}

func boolPtr(b bool) *bool { return &b }

// buildPrompt constructs the rerank prompt, truncating each candidate's
// text to maxCandidateChars.
func buildPrompt(query string, candidates []Candidate) string {
	var sb strings.Builder
	sb.WriteString("You are a relevance ranking assistant for Arabic and Islamic text search.\n")
	sb.WriteString("Given a search query and a numbered list of candidate passages, return a JSON array\n")
	sb.WriteString("of the candidate numbers ordered from most to least relevant. Include every number\n")
	sb.WriteString("exactly once. Respond with ONLY the JSON array, nothing else.\n\n")
	fmt.Fprintf(&sb, "Query: %s\n\nCandidates:\n", query)
	for _, c := range candidates {
		text := c.Text
		if r := []rune(text); len(r) > maxCandidateChars {
			text = string(r[:maxCandidateChars]) + "..."
		}
		fmt.Fprintf(&sb, "[%d] %s\n", c.Index, text)
	}
	return sb.String()
}

var indexArrayPattern = regexp.MustCompile(`\[[\d,\s]*\]`)

// parseIndexArray extracts the first JSON integer array from the model's
// response and validates it as a permutation of [0, n). On any mismatch it
// returns an error so the caller can fall back to the original order.
func parseIndexArray(response string, n int) ([]int, error) {
	match := indexArrayPattern.FindString(response)
	if match == "" {
		return nil, fmt.Errorf("no JSON array found in rerank response")
	}

	var indices []int
	if err := json.Unmarshal([]byte(match), &indices); err != nil {
		return nil, fmt.Errorf("parse rerank indices: %w", err)
	}

	if len(indices) != n {
		return nil, fmt.Errorf("rerank returned %d indices, want %d", len(indices), n)
	}
	seen := make(map[int]bool, n)
	for _, idx := range indices {
		if idx < 0 || idx >= n || seen[idx] {
			return nil, fmt.Errorf("rerank returned invalid permutation")
		}
		seen[idx] = true
	}
	return indices, nil
}

// UnifiedItem is one candidate fed into the unified tri-domain rerank
// prompt, tagged with the domain it came from so the model can weigh
// book pages, ayahs, and hadiths against one query in a single pass.
type UnifiedItem struct {
	Domain string
	Text   string
}

// buildUnifiedPrompt is buildPrompt's tri-domain sibling: each candidate
// line is prefixed with its domain tag so the model can reason about
// heterogeneous content types in one ranking pass.
func buildUnifiedPrompt(query string, items []UnifiedItem) string {
	var sb strings.Builder
	sb.WriteString("You are a relevance ranking assistant for Arabic and Islamic text search.\n")
	sb.WriteString("The candidates below span three content types: book pages, Quran ayahs, and\n")
	sb.WriteString("hadiths, each tagged with its type. Given a search query and a numbered list of\n")
	sb.WriteString("tagged candidate passages, return a JSON array of the candidate numbers ordered\n")
	sb.WriteString("from most to least relevant, regardless of type. Include every number exactly\n")
	sb.WriteString("once. Respond with ONLY the JSON array, nothing else.\n\n")
	fmt.Fprintf(&sb, "Query: %s\n\nCandidates:\n", query)
	for i, item := range items {
		text := item.Text
		if r := []rune(text); len(r) > maxCandidateChars {
			text = string(r[:maxCandidateChars]) + "..."
		}
		fmt.Fprintf(&sb, "[%d] (%s) %s\n", i, item.Domain, text)
	}
	return sb.String()
}

// UnifiedRerank judges book, ayah, and hadith candidates together in a
// single LLM call instead of one call per domain, so the relative ordering
// across domains is consistent. Returns a permutation of [0, len(items))
// best-first; on fewer than 3 total items, ChoiceNone, an unresolved
// model, a timeout, or a malformed response it falls back to the identity
// order, matching the single-domain Rerank's safety contract.
func (r *Reranker) UnifiedRerank(ctx context.Context, choice Choice, query string, items []UnifiedItem) []int {
	identity := make([]int, len(items))
	for i := range identity {
		identity[i] = i
	}
	if choice == ChoiceNone || len(items) < 3 {
		return identity
	}

	model := r.models.resolve(choice)
	if model == "" {
		return identity
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := buildUnifiedPrompt(query, items)
	order, err := r.provider.RerankPrompt(timeoutCtx, model, prompt, len(items))
	if err != nil {
		r.logger.Warn().Err(err).Str("choice", string(choice)).Msg("unified rerank failed, passing through original order")
		return identity
	}
	return order
}

// Choice selects a reranking model tier.
type Choice string

const (
	ChoiceNone  Choice = "none"
	ChoiceSmall Choice = "small"
	ChoiceLarge Choice = "large"
	ChoiceFast  Choice = "fast"
)

// ModelSet maps each non-"none" choice to a concrete model name.
type ModelSet struct {
	Small string
	Large string
	Fast  string
}

func (m ModelSet) resolve(choice Choice) string {
	switch choice {
	case ChoiceSmall:
		return m.Small
	case ChoiceLarge:
		return m.Large
	case ChoiceFast:
		return m.Fast
	default:
		return ""
	}
}

// Reranker re-orders candidates using a Provider, enforcing a strict
// per-request timeout and passing through the original order on any
// failure so a slow or broken LLM never blocks a search response.
type Reranker struct {
	provider Provider
	models   ModelSet
	timeout  time.Duration
	logger   zerolog.Logger
}

// New constructs a Reranker.
func New(provider Provider, models ModelSet, timeout time.Duration) *Reranker {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Reranker{provider: provider, models: models, timeout: timeout, logger: observability.Logger("search.rerank")}
}

// Rerank reorders texts (indexed 0..len(texts)) according to choice,
// returning a permutation of [0, len(texts)). ChoiceNone and a nil/empty
// texts slice both return the identity order immediately.
func (r *Reranker) Rerank(ctx context.Context, choice Choice, query string, texts []string) []int {
	identity := make([]int, len(texts))
	for i := range identity {
		identity[i] = i
	}
	if choice == ChoiceNone || len(texts) == 0 {
		return identity
	}

	model := r.models.resolve(choice)
	if model == "" {
		return identity
	}

	candidates := make([]Candidate, len(texts))
	for i, t := range texts {
		candidates[i] = Candidate{Index: i, Text: t}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	order, err := r.provider.Rerank(timeoutCtx, model, query, candidates)
	if err != nil {
		r.logger.Warn().Err(err).Str("choice", string(choice)).Msg("rerank failed, passing through original order")
		return identity
	}
	return order
}
