package query

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelsearch/kestrel/internal/config"
	"github.com/kestrelsearch/kestrel/internal/embed"
	"github.com/kestrelsearch/kestrel/internal/ops"
	"github.com/kestrelsearch/kestrel/internal/schema"
)

// exactSeedScore is the base score given to documents that only the
// exact-term pass found, so they can surface in fusion at all.
const exactSeedScore = 0.05

// DefaultDeadline bounds a search when config leaves it unset.
const DefaultDeadline = 5 * time.Second

// Weights are the channel weights of hybrid fusion.
type Weights struct {
	Semantic float64
	Keyword  float64
	Vector   float64
}

// Options configures one search call.
type Options struct {
	Filter     string
	TopK       int
	Weights    Weights
	Deadline   time.Duration
	ExactBoost float64
}

// Result is one fused hit.
type Result struct {
	ID       string
	Score    float64
	Content  string
	Captions []string
	Document ops.Document
}

// searchService is the slice of ops the searcher needs.
type searchService interface {
	Search(ctx context.Context, indexName string, req *ops.SearchRequest) (*ops.SearchResponse, error)
}

// HybridSearcher fans a query out over the semantic, exact-term, and
// vector channels and fuses the results deterministically.
type HybridSearcher struct {
	svc      searchService
	embedder embed.Embedder
	index    string
	logger   *slog.Logger
}

// NewHybridSearcher creates a searcher over indexName.
func NewHybridSearcher(svc searchService, embedder embed.Embedder, indexName string, logger *slog.Logger) *HybridSearcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridSearcher{svc: svc, embedder: embedder, index: indexName, logger: logger}
}

// OptionsFromConfig derives default search options from config.
func OptionsFromConfig(cfg config.SearchConfig, topK int) Options {
	return Options{
		TopK: topK,
		Weights: Weights{
			Semantic: cfg.SemanticWeight,
			Keyword:  cfg.KeywordWeight,
			Vector:   cfg.VectorWeight,
		},
		Deadline:   cfg.Deadline,
		ExactBoost: cfg.ExactBoost,
	}
}

// Search runs the three channels in parallel under the deadline and
// returns the fused top TopK results. A channel that fails or misses
// the deadline contributes nothing; the search itself still succeeds.
// For identical index state, query, filter, and weights the returned
// order is identical call to call.
func (h *HybridSearcher) Search(ctx context.Context, queryText string, opts Options) ([]Result, error) {
	if opts.TopK <= 0 {
		return nil, nil
	}
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	fetch := opts.TopK * 2
	var semantic, exact, vector []ops.SearchResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semantic = h.channel(gctx, "semantic", &ops.SearchRequest{
			Search:                queryText,
			QueryType:             "semantic",
			SemanticConfiguration: schema.SemanticConfigName,
			Filter:                opts.Filter,
			Top:                   fetch,
			Captions:              "extractive",
			Answers:               "extractive",
			DisableRandomization:  true,
		})
		return nil
	})
	g.Go(func() error {
		terms := ExtractExactTerms(queryText)
		if len(terms) == 0 {
			return nil
		}
		filter := Render(And(Raw(opts.Filter), ExactTermsClause(terms)))
		exact = h.channel(gctx, "exact", &ops.SearchRequest{
			Search:               queryText,
			Filter:               filter,
			Top:                  fetch,
			DisableRandomization: true,
		})
		return nil
	})
	g.Go(func() error {
		vec, err := h.embedder.Embed(gctx, queryText)
		if err != nil || len(vec) == 0 {
			if err != nil {
				h.logger.Warn("vector channel skipped", slog.String("error", err.Error()))
			}
			return nil
		}
		vector = h.channel(gctx, "vector", &ops.SearchRequest{
			Filter: opts.Filter,
			Top:    fetch,
			VectorQueries: []ops.VectorQuery{{
				Kind:   "vector",
				Vector: vec,
				K:      fetch,
				Fields: schema.VectorFieldName,
			}},
		})
		return nil
	})
	_ = g.Wait()

	return fuse(semantic, exact, vector, opts), nil
}

// channel runs one search pass, converting failure into an empty
// contribution.
func (h *HybridSearcher) channel(ctx context.Context, name string, req *ops.SearchRequest) []ops.SearchResult {
	resp, err := h.svc.Search(ctx, h.index, req)
	if err != nil {
		h.logger.Warn("search channel failed",
			slog.String("channel", name),
			slog.String("error", err.Error()))
		return nil
	}
	return resp.Results
}

type fusedEntry struct {
	result Result
	score  float64
}

// fuse computes the weighted score per document across channels.
// Reranked hits take the semantic weight, purely lexical hits the
// keyword weight, vector hits the vector weight; exact-pass presence
// adds the boost on top.
func fuse(semantic, exact, vector []ops.SearchResult, opts Options) []Result {
	entries := map[string]*fusedEntry{}
	get := func(r ops.SearchResult) *fusedEntry {
		id := r.Document.Key()
		e, ok := entries[id]
		if !ok {
			e = &fusedEntry{result: resultFrom(id, r)}
			entries[id] = e
		}
		return e
	}

	for _, r := range semantic {
		e := get(r)
		if r.RerankerScore != nil {
			e.score += opts.Weights.Semantic * *r.RerankerScore
		} else {
			e.score += opts.Weights.Keyword * r.Score
		}
	}
	for _, r := range vector {
		get(r).score += opts.Weights.Vector * r.Score
	}
	for _, r := range exact {
		id := r.Document.Key()
		if e, ok := entries[id]; ok {
			e.score += opts.ExactBoost
		} else {
			e := get(r)
			e.score = exactSeedScore + opts.ExactBoost
		}
	}

	out := make([]Result, 0, len(entries))
	for _, e := range entries {
		e.result.Score = e.score
		out = append(out, e.result)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > opts.TopK {
		out = out[:opts.TopK]
	}
	return out
}

func resultFrom(id string, r ops.SearchResult) Result {
	content, _ := r.Document["content"].(string)
	captions := make([]string, 0, len(r.Captions))
	for _, c := range r.Captions {
		captions = append(captions, c.Text)
	}
	return Result{
		ID:       id,
		Content:  content,
		Captions: captions,
		Document: r.Document,
	}
}
