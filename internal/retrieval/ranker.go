// Package retrieval ranks tutorials for a finished diagnostic session by
// blending semantic similarity, keyword overlap, and accumulated feedback.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fixloop/fixloop/internal/embeddings"
	"github.com/fixloop/fixloop/internal/tutorials"
	"github.com/fixloop/fixloop/internal/vectordb"
)

// Config holds the ranking weights.
type Config struct {
	// VectorWeight is the share of the blended score taken from semantic
	// similarity. Keyword overlap gets the remainder.
	VectorWeight float64
	// FeedbackGamma scales how strongly feedback history bends the blend.
	FeedbackGamma float64
	// CandidateLimit caps how many vector candidates are considered.
	CandidateLimit int
}

// DefaultConfig returns the standard ranking weights.
func DefaultConfig() Config {
	return Config{
		VectorWeight:   0.6,
		FeedbackGamma:  0.3,
		CandidateLimit: 50,
	}
}

// VectorSearcher is the slice of vectordb.VectorStore the ranker needs.
type VectorSearcher interface {
	Search(ctx context.Context, query string, limit int, filter *vectordb.SearchFilter) ([]vectordb.SearchResult, error)
}

// TutorialSource provides keyword matches and tutorial lookups.
type TutorialSource interface {
	KeywordSearch(ctx context.Context, category string, queryTokens []string, limit int) ([]tutorials.KeywordMatch, error)
	Get(ctx context.Context, id string) (*tutorials.Tutorial, error)
}

// FeedbackSource provides aggregate feedback scores by tutorial id.
type FeedbackSource interface {
	Scores(ctx context.Context) (map[string]float64, error)
}

// Recommendation is one ranked tutorial with its score breakdown.
type Recommendation struct {
	Tutorial      tutorials.Tutorial `json:"tutorial"`
	Score         float64            `json:"score"`
	VectorScore   float64            `json:"vector_score"`
	KeywordScore  float64            `json:"keyword_score"`
	FeedbackScore float64            `json:"feedback_score"`
}

// Ranker blends the three retrieval signals into one ordering.
type Ranker struct {
	cfg      Config
	vectors  VectorSearcher
	corpus   TutorialSource
	feedback FeedbackSource
}

// NewRanker creates a ranker over the given sources.
func NewRanker(cfg Config, vectors VectorSearcher, corpus TutorialSource, feedback FeedbackSource) *Ranker {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultConfig().CandidateLimit
	}
	return &Ranker{cfg: cfg, vectors: vectors, corpus: corpus, feedback: feedback}
}

// Recommend returns up to limit tutorials for the category, best first.
// The query is typically the session's problem description joined with its
// confirmed symptoms. When the embedding backend is unavailable the ranking
// degrades to keyword overlap alone rather than failing the session.
func (r *Ranker) Recommend(ctx context.Context, category, query string, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = 3
	}

	type candidate struct {
		tutorial *tutorials.Tutorial
		vector   float64
		keyword  float64
	}
	candidates := make(map[string]*candidate)

	filter := &vectordb.SearchFilter{Category: &category}
	results, err := r.vectors.Search(ctx, query, r.cfg.CandidateLimit, filter)
	switch {
	case errors.Is(err, embeddings.ErrUnavailable):
		results = nil
	case err != nil:
		return nil, fmt.Errorf("vector search: %w", err)
	}
	for _, res := range results {
		candidates[res.Document.ID] = &candidate{vector: float64(res.Similarity)}
	}

	tokens := tutorials.Tokenize(query)
	matches, err := r.corpus.KeywordSearch(ctx, category, tokens, r.cfg.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	for i := range matches {
		m := &matches[i]
		c, ok := candidates[m.Tutorial.ID]
		if !ok {
			c = &candidate{}
			candidates[m.Tutorial.ID] = c
		}
		c.keyword = m.Score
		c.tutorial = &m.Tutorial
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	// Vector-only candidates still need their corpus row.
	for id, c := range candidates {
		if c.tutorial != nil {
			continue
		}
		t, err := r.corpus.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			// Indexed but no longer in the corpus; drop it.
			delete(candidates, id)
			continue
		}
		c.tutorial = t
	}

	fbScores, err := r.feedback.Scores(ctx)
	if err != nil {
		return nil, fmt.Errorf("feedback scores: %w", err)
	}

	recs := make([]Recommendation, 0, len(candidates))
	for id, c := range candidates {
		base := r.cfg.VectorWeight*c.vector + (1-r.cfg.VectorWeight)*c.keyword
		fb := fbScores[id]
		recs = append(recs, Recommendation{
			Tutorial:      *c.tutorial,
			Score:         base * (1 + r.cfg.FeedbackGamma*fb),
			VectorScore:   c.vector,
			KeywordScore:  c.keyword,
			FeedbackScore: fb,
		})
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		if recs[i].VectorScore != recs[j].VectorScore {
			return recs[i].VectorScore > recs[j].VectorScore
		}
		return recs[i].Tutorial.ID < recs[j].Tutorial.ID
	})

	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// BuildQuery joins a problem description with confirmed symptoms into one
// retrieval query.
func BuildQuery(description string, symptoms []string) string {
	parts := make([]string, 0, 1+len(symptoms))
	if description != "" {
		parts = append(parts, description)
	}
	parts = append(parts, symptoms...)
	return strings.Join(parts, " ")
}
