// Package graphctx resolves graph context for ayah results from a
// FalkorDB (Redis-backed) knowledge graph: the ayahs an ayah relates to,
// which justify a small score boost. Named entities are not looked up;
// Context.Entities stays empty. It is a
// non-blocking, best-effort step - the orchestrator gives it a short
// deadline and proceeds without context on any failure or timeout.
package graphctx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/simpleflo/arabhybrid/internal/observability"
)

// Config configures the FalkorDB connection.
type Config struct {
	Host           string
	Port           int
	Password       string
	Database       int
	GraphName      string
	PoolSize       int
	ConnectTimeout time.Duration
}

// Resolver queries a FalkorDB Cypher graph for ayah context.
type Resolver struct {
	client    *redis.Client
	graphName string
	logger    zerolog.Logger
}

// New constructs a Resolver over a FalkorDB connection.
func New(cfg Config) *Resolver {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.GraphName == "" {
		cfg.GraphName = "arabhybrid_kg"
	}

	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.Database,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.ConnectTimeout,
	})

	return &Resolver{client: client, graphName: cfg.GraphName, logger: observability.Logger("search.graphctx")}
}

// Context is the graph-derived information attached to an ayah result.
type Context struct {
	RelatedAyahs   []string // "surah:ayah" keys of thematically linked ayahs
	Entities       []string // named entities mentioned in the ayah
	ScoreBoost     float64  // additive boost applied to the ayah's fused score
}

// ResolveAyah looks up graph context for a single ayah, identified by
// surah:ayah. It never returns an error to the caller: a query failure
// logs a warning and yields an empty, zero-boost Context, since graph
// context is an enhancement, not a required signal.
func (r *Resolver) ResolveAyah(ctx context.Context, surah, ayah int) Context {
	key := sanitizeCypherString(fmt.Sprintf("%d:%d", surah, ayah))
	query := fmt.Sprintf(`
		MATCH (a:Ayah {key: '%s'})-[:RELATES_TO]->(related:Ayah)
		RETURN related.key
		LIMIT 5
	`, key)

	result, err := r.query(ctx, query)
	if err != nil {
		r.logger.Warn().Err(err).Str("ayah", key).Msg("graph context lookup failed")
		return Context{}
	}

	var related []string
	for _, row := range result {
		if cols, ok := row.([]interface{}); ok && len(cols) > 0 {
			if s, ok := cols[0].(string); ok {
				related = append(related, s)
			}
		}
	}

	boost := 0.0
	if len(related) > 0 {
		boost = 0.02
	}
	return Context{RelatedAyahs: related, ScoreBoost: boost}
}

func (r *Resolver) query(ctx context.Context, cypher string) ([]interface{}, error) {
	result, err := r.client.Do(ctx, "GRAPH.QUERY", r.graphName, cypher).Result()
	if err != nil {
		return nil, fmt.Errorf("graph query: %w", err)
	}
	if arr, ok := result.([]interface{}); ok {
		return arr, nil
	}
	return nil, nil
}

// HealthCheck verifies connectivity to FalkorDB.
func (r *Resolver) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection.
func (r *Resolver) Close() error {
	return r.client.Close()
}

// sanitizeCypherString escapes quotes and strips null bytes, preventing
// Cypher injection through ayah keys derived from user-controlled input.
func sanitizeCypherString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "'", "\\'")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}
