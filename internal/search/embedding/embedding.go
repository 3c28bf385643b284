// Package embedding provides the embedding service: a pluggable backend
// (Ollama or OpenRouter) fronted by a two-tier cache (in-memory TTL, then a
// persistent Redis-backed key-value store) so repeated queries and
// re-indexed pages never pay for the same vector twice.
package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/simpleflo/arabhybrid/internal/observability"
	"github.com/simpleflo/arabhybrid/internal/search/cache"
)

// Backend generates vector embeddings for text.
type Backend interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// OllamaConfig configures the local Ollama embedding backend.
type OllamaConfig struct {
	Host      string
	Model     string
	Dimension int
	BatchSize int
}

// OllamaBackend generates embeddings via a local Ollama server.
type OllamaBackend struct {
	client    *api.Client
	model     string
	dimension int
	batchSize int
	logger    zerolog.Logger
	mu        sync.RWMutex
	ready     bool
}

// NewOllamaBackend constructs an OllamaBackend.
func NewOllamaBackend(cfg OllamaConfig) (*OllamaBackend, error) {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}

	hostURL, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host url: %w", err)
	}

	return &OllamaBackend{
		client:    api.NewClient(hostURL, http.DefaultClient),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		logger:    observability.Logger("search.embedding.ollama"),
	}, nil
}

// ensureModel pulls the embedding model on first use, memoizing readiness.
func (b *OllamaBackend) ensureModel(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return nil
	}

	if _, err := b.client.Show(ctx, &api.ShowRequest{Model: b.model}); err == nil {
		b.ready = true
		return nil
	}

	b.logger.Info().Str("model", b.model).Msg("pulling embedding model")
	if err := b.client.Pull(ctx, &api.PullRequest{Model: b.model}, func(api.ProgressResponse) error { return nil }); err != nil {
		return fmt.Errorf("pull embedding model %s: %w", b.model, err)
	}
	b.ready = true
	return nil
}

// EmbedBatch embeds every text concurrently, bounded by batchSize.
func (b *OllamaBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := b.ensureModel(ctx); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	sem := make(chan struct{}, b.batchSize)
	var wg sync.WaitGroup

	for i, text := range texts {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, txt string) {
			defer wg.Done()
			defer func() { <-sem }()
			vec, err := b.embedOne(ctx, txt)
			if err != nil {
				errs[idx] = err
				return
			}
			out[idx] = vec
		}(i, text)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("embedding failed for text %d: %w", i, err)
		}
	}
	return out, nil
}

func (b *OllamaBackend) embedOne(ctx context.Context, text string) ([]float32, error) {
	resp, err := b.client.Embed(ctx, &api.EmbedRequest{Model: b.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings in response")
	}
	vec := make([]float32, len(resp.Embeddings[0]))
	for i, v := range resp.Embeddings[0] {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimension returns the backend's vector width.
func (b *OllamaBackend) Dimension() int { return b.dimension }

// Model returns the backend's model name.
func (b *OllamaBackend) Model() string { return b.model }

// OpenRouterConfig configures the hosted OpenRouter embedding backend.
type OpenRouterConfig struct {
	APIKey      string
	Model       string
	Dimension   int
	CallTimeout time.Duration
	MaxAttempts int
	BaseURL     string // overridable for tests; defaults to the real API
}

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1/embeddings"

// OpenRouterBackend generates embeddings via the OpenRouter HTTP API, with
// exponential backoff on 429 responses: min(3000*2^attempt, 60000)ms.
type OpenRouterBackend struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	dimension   int
	maxAttempts int
	baseURL     string
	logger      zerolog.Logger
}

// NewOpenRouterBackend constructs an OpenRouterBackend.
func NewOpenRouterBackend(cfg OpenRouterConfig) *OpenRouterBackend {
	if cfg.Model == "" {
		cfg.Model = "openai/text-embedding-3-small"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenRouterBaseURL
	}
	return &OpenRouterBackend{
		httpClient:  &http.Client{Timeout: cfg.CallTimeout},
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		dimension:   cfg.Dimension,
		maxAttempts: cfg.MaxAttempts,
		baseURL:     cfg.BaseURL,
		logger:      observability.Logger("search.embedding.openrouter"),
	}
}

type openRouterEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openRouterEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch submits the whole batch in a single OpenRouter request,
// retrying on HTTP 429 with exponential backoff up to MaxAttempts times.
func (b *OpenRouterBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(openRouterEmbedRequest{Model: b.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < b.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Min(3000*math.Pow(2, float64(attempt)), 60000)) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build embed request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := b.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limited (attempt %d)", attempt+1)
			b.logger.Warn().Int("attempt", attempt+1).Msg("openrouter rate limited, backing off")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("openrouter embed status %d", resp.StatusCode)
		}

		var parsed openRouterEmbedResponse
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode embed response: %w", err)
		}
		// OpenRouter does not guarantee data[] comes back in request order;
		// each element's index must be used to place it, not its position.
		vecs := make([][]float32, len(texts))
		for _, d := range parsed.Data {
			if d.Index < 0 || d.Index >= len(vecs) {
				continue
			}
			vecs[d.Index] = d.Embedding
		}
		return vecs, nil
	}
	return nil, fmt.Errorf("openrouter embed exhausted %d attempts: %w", b.maxAttempts, lastErr)
}

// Dimension returns the backend's vector width.
func (b *OpenRouterBackend) Dimension() int { return b.dimension }

// Model returns the backend's model name.
func (b *OpenRouterBackend) Model() string { return b.model }

// memoryCache is the minimal interface the Service needs from the TTL cache,
// so tests can swap in a fake without importing the cache package's full API.
type memoryCache interface {
	GetMany(keys []string) (hits map[string]interface{}, misses []string)
	SetMany(values map[string]interface{})
	Clear()
	Stats() cache.Stats
}

// Service fronts a Backend with a two-tier cache: in-memory TTL first,
// Redis second, falling through to the backend only on a double miss.
type Service struct {
	backend Backend
	memory  memoryCache
	redis   *redis.Client
	logger  zerolog.Logger
}

// NewService wires a backend, in-memory cache and optional Redis client
// into the embedding service. redisClient may be nil to disable the
// persistent tier.
func NewService(backend Backend, memory memoryCache, redisClient *redis.Client) *Service {
	return &Service{
		backend: backend,
		memory:  memory,
		redis:   redisClient,
		logger:  observability.Logger("search.embedding"),
	}
}

// CacheKey derives the two-tier cache key for a (model, text) pair so that
// switching embedding models never serves a stale vector.
func CacheKey(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return "embed:" + model + ":" + hex.EncodeToString(h[:16])
}

// EmbedMany resolves embeddings for every text, consulting the memory cache,
// then Redis, and finally the backend for whatever remains, backfilling
// both cache tiers with freshly computed vectors.
func (s *Service) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	model := s.backend.Model()
	for i, t := range texts {
		keys[i] = CacheKey(model, t)
	}

	result := make([][]float32, len(texts))
	memHits, memMisses := s.memory.GetMany(keys)
	keyToIndex := make(map[string][]int, len(keys))
	for i, k := range keys {
		keyToIndex[k] = append(keyToIndex[k], i)
	}
	for k, v := range memHits {
		for _, i := range keyToIndex[k] {
			result[i] = v.([]float32)
		}
	}

	var redisMisses []string
	if s.redis != nil && len(memMisses) > 0 {
		redisHits := s.fetchFromRedis(ctx, memMisses)
		backfill := make(map[string]interface{}, len(redisHits))
		for k, vec := range redisHits {
			for _, i := range keyToIndex[k] {
				result[i] = vec
			}
			backfill[k] = vec
		}
		s.memory.SetMany(backfill)
		for _, k := range memMisses {
			if _, ok := redisHits[k]; !ok {
				redisMisses = append(redisMisses, k)
			}
		}
	} else {
		redisMisses = memMisses
	}

	if len(redisMisses) == 0 {
		return result, nil
	}

	missTexts := make([]string, 0, len(redisMisses))
	missKeys := make([]string, 0, len(redisMisses))
	seen := make(map[string]bool, len(redisMisses))
	for _, k := range redisMisses {
		if seen[k] {
			continue
		}
		seen[k] = true
		missKeys = append(missKeys, k)
		missTexts = append(missTexts, texts[keyToIndex[k][0]])
	}

	vecs, err := s.backend.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, fmt.Errorf("embed backend: %w", err)
	}

	backfillMemory := make(map[string]interface{}, len(missKeys))
	for i, k := range missKeys {
		backfillMemory[k] = vecs[i]
		for _, idx := range keyToIndex[k] {
			result[idx] = vecs[i]
		}
	}
	s.memory.SetMany(backfillMemory)
	s.storeToRedis(ctx, backfillMemory)

	return result, nil
}

// Embed resolves a single embedding through the two-tier cache.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *Service) fetchFromRedis(ctx context.Context, keys []string) map[string][]float32 {
	hits := make(map[string][]float32, len(keys))
	vals, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		s.logger.Warn().Err(err).Msg("redis embedding cache mget failed")
		return hits
	}
	for i, v := range vals {
		if v == nil {
			continue
		}
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			continue
		}
		hits[keys[i]] = vec
	}
	return hits
}

func (s *Service) storeToRedis(ctx context.Context, values map[string]interface{}) {
	if s.redis == nil {
		return
	}
	pipe := s.redis.Pipeline()
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		pipe.Set(ctx, k, raw, 30*24*time.Hour)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("redis embedding cache pipeline set failed")
	}
}

// Dimension returns the underlying backend's vector width.
func (s *Service) Dimension() int { return s.backend.Dimension() }

// Model returns the underlying backend's model name.
func (s *Service) Model() string { return s.backend.Model() }

// CacheStats reports the in-memory cache tier's hit/miss/eviction counters.
func (s *Service) CacheStats() cache.Stats { return s.memory.Stats() }

// ClearCache empties the in-memory cache tier. The persistent Redis tier is
// untouched, so a clear only forces same-process requests to re-resolve.
func (s *Service) ClearCache() { s.memory.Clear() }

// Warm embeds every text and discards the result, populating both cache
// tiers so later searches over the same text hit warm.
func (s *Service) Warm(ctx context.Context, texts []string) error {
	_, err := s.EmbedMany(ctx, texts)
	return err
}
