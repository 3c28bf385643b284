// Package expand generates paraphrased query variants for the refine
// pipeline: an LLM proposes up to four alternative phrasings, each
// carrying less weight than the original query in the downstream
// multi-query RRF merge, and the result set is cached for ten minutes
// since the same query arrives repeatedly during iterative refinement.
package expand

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
	"github.com/simpleflo/arabhybrid/internal/search/cache"
)

// MaxExpansions bounds how many paraphrases the expander will return.
const MaxExpansions = 4

// PrimaryWeight is the original query's weight in the multi-query merge.
const PrimaryWeight = 1.0

// ExpansionWeight is each paraphrase's weight in the multi-query merge.
const ExpansionWeight = 0.3

// Generator produces raw text from a prompt; the same abstraction the
// reranker uses, kept separate here since expansion calls a larger model
// tuned for generation rather than classification.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// WeightedQuery pairs an expanded query string with its merge weight and
// the model's stated reason for proposing it (empty for the primary query).
type WeightedQuery struct {
	Query  string
	Weight float64
	Reason string
}

// Expander produces weighted query expansions, cached by normalized query.
type Expander struct {
	generator Generator
	model     string
	cache     *cache.TTLCache
	logger    zerolog.Logger
}

// New constructs an Expander. ttl is normally 10 minutes, per the refine
// pipeline's expansion cache policy.
func New(generator Generator, model string, ttl time.Duration) *Expander {
	return &Expander{
		generator: generator,
		model:     model,
		cache:     cache.New(ttl, 1000),
		logger:    observability.Logger("search.expand"),
	}
}

// Expand returns the original query (weight 1.0) plus up to MaxExpansions
// LLM-generated paraphrases, each carrying the model's own confidence
// weight and stated reason. On any generation or parse failure it degrades
// to returning just the original query, since the refine pipeline works
// correctly - just less thoroughly - without expansions.
func (e *Expander) Expand(ctx context.Context, normalizedQuery string) []WeightedQuery {
	result := []WeightedQuery{{Query: normalizedQuery, Weight: PrimaryWeight}}

	if cached, ok := e.cache.Get(normalizedQuery); ok {
		return append(result, cached.([]WeightedQuery)...)
	}

	expansions, err := e.generate(ctx, normalizedQuery)
	if err != nil {
		e.logger.Warn().Err(err).Msg("query expansion failed, continuing with original query only")
		return result
	}

	e.cache.Set(normalizedQuery, expansions)
	return append(result, expansions...)
}

// Stats reports the expansion cache's hit/miss/eviction counters.
func (e *Expander) Stats() cache.Stats {
	return e.cache.Stats()
}

// Clear empties the expansion cache.
func (e *Expander) Clear() {
	e.cache.Clear()
}

func (e *Expander) generate(ctx context.Context, query string) ([]WeightedQuery, error) {
	prompt := expansionPrompt(query)
	response, err := e.generator.Generate(ctx, e.model, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate expansions: %w", err)
	}
	return parseExpansions(response)
}

// expansionPrompt builds the paraphrase-generation prompt, delimiting the
// user query with clear tags so it cannot be mistaken for an instruction.
func expansionPrompt(query string) string {
	return fmt.Sprintf(`You rewrite Arabic and Islamic search queries into alternative phrasings
that preserve meaning while using different words, so a search engine can
find results the original phrasing might miss.

<query>
%s
</query>

Respond with ONLY a JSON array of up to %d alternative phrasings, ordered
from most to least confident. Each element must be a JSON object with
three fields: "query" (the alternative phrasing), "weight" (a number from
0 to 1 expressing your confidence that this phrasing will surface useful
additional results, decreasing across the array, e.g. 0.9, 0.7, 0.5), and
"reason" (a short phrase explaining why this phrasing might help). Do not
include the original query itself.`, sanitizeQuery(query), MaxExpansions)
}

// sanitizeQuery strips characters that could break out of the prompt's
// delimiter tags.
func sanitizeQuery(q string) string {
	q = strings.ReplaceAll(q, "</query>", "")
	q = strings.ReplaceAll(q, "<query>", "")
	return q
}

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// rawExpansion is the wire shape of one element in the model's expansion
// array.
type rawExpansion struct {
	Query  string  `json:"query"`
	Weight float64 `json:"weight"`
	Reason string  `json:"reason"`
}

// parseExpansions extracts the first JSON array from the model's response
// and truncates it to MaxExpansions entries. A missing, zero or negative
// weight falls back to ExpansionWeight rather than dropping the item; a
// weight above 1 is clamped to 1.
func parseExpansions(response string) ([]WeightedQuery, error) {
	match := jsonArrayPattern.FindString(response)
	if match == "" {
		return nil, fmt.Errorf("no JSON array found in expansion response")
	}

	var raw []rawExpansion
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, fmt.Errorf("parse expansion array: %w", err)
	}

	if len(raw) > MaxExpansions {
		raw = raw[:MaxExpansions]
	}

	out := make([]WeightedQuery, 0, len(raw))
	for _, r := range raw {
		if r.Query == "" {
			continue
		}
		weight := r.Weight
		switch {
		case weight <= 0:
			weight = ExpansionWeight
		case weight > 1:
			weight = 1
		}
		out = append(out, WeightedQuery{Query: r.Query, Weight: weight, Reason: r.Reason})
	}
	return out, nil
}

// OllamaGenerator implements Generator over a local Ollama chat model,
// mirroring rerank.OllamaProvider's client construction.
type OllamaGenerator struct {
	client *api.Client
}

// NewOllamaGenerator constructs an OllamaGenerator against the given host.
func NewOllamaGenerator(host string) (*OllamaGenerator, error) {
	if host == "" {
		host = "http://localhost:11434"
	}
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host url: %w", err)
	}
	return &OllamaGenerator{client: api.NewClient(hostURL, nil)}, nil
}

// Generate implements Generator.
func (g *OllamaGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	var out strings.Builder
	stream := false
	req := &api.GenerateRequest{Model: model, Prompt: prompt, Stream: &stream}
	err := g.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return out.String(), nil
}
