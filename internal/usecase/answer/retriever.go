// Package answer holds the retrieval and synthesis halves of the question
// answering path: Retriever finds grounded passages, Synthesizer turns them
// into a cited response.
package answer

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/m4s1t4/karen/internal/domain"
	"github.com/m4s1t4/karen/internal/metrics"
)

// RetrieverConfig tunes passage retrieval.
type RetrieverConfig struct {
	TopK      int
	Threshold float64
}

// Retriever returns ranked, threshold-filtered passages for a query.
type Retriever struct {
	embedder Embedder
	searcher ChunkSearcher
	cfg      RetrieverConfig
	log      *zap.Logger
}

// NewRetriever creates a retriever.
func NewRetriever(e Embedder, s ChunkSearcher, cfg RetrieverConfig, log *zap.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.7
	}
	return &Retriever{embedder: e, searcher: s, cfg: cfg, log: log}
}

// Retrieve returns passages relevant to the query within the scope, with
// stable 1-based ordinals. Scopes without data short-circuit to an empty
// result before any embedding or search call is made.
func (r *Retriever) Retrieve(ctx context.Context, query, scopeID string) ([]domain.Passage, error) {
	hasData, err := r.searcher.HasData(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("check scope data: %w", err)
	}
	if !hasData {
		metrics.RetrievalPassages.Observe(0)
		return nil, nil
	}

	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.searcher.QuerySimilar(ctx, scopeID, vec, r.cfg.TopK, r.cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	passages := make([]domain.Passage, len(hits))
	for i, hit := range hits {
		passages[i] = domain.Passage{
			Ordinal: i + 1,
			Content: hit.Content,
			Source:  filepath.Base(hit.Meta.Source),
			Page:    hit.Meta.Page,
			Score:   hit.Score,
		}
	}

	metrics.RetrievalPassages.Observe(float64(len(passages)))
	r.log.Debug("retrieved passages",
		zap.String("chat_id", scopeID),
		zap.Int("count", len(passages)),
	)
	return passages, nil
}
