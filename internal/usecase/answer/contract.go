package answer

import (
	"context"

	"github.com/m4s1t4/karen/internal/domain"
)

// Embedder vectorizes a single query text.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// ChunkSearcher answers scoped similarity queries. HasData gates the whole
// retrieval so empty scopes cost neither an embedding nor a search call.
type ChunkSearcher interface {
	HasData(ctx context.Context, scopeID string) (bool, error)
	QuerySimilar(ctx context.Context, scopeID string, vector []float32, topK int, threshold float64) ([]domain.ScoredChunk, error)
}

// Answer is the synthesizer output: final text (with the sources trailer
// already appended) plus the citations the model actually used.
type Answer struct {
	Text      string
	Citations []domain.Citation
}
