package ingest

import (
	"context"

	"github.com/m4s1t4/karen/internal/domain"
	"github.com/m4s1t4/karen/internal/loader"
)

// Loader extracts text units from a source file.
type Loader interface {
	Load(ctx context.Context, path string) ([]loader.Unit, error)
}

// Chunker splits one text unit into chunks carrying its provenance.
type Chunker interface {
	Split(text string, meta domain.ChunkMeta) []domain.Chunk
}

// Embedder vectorizes a batch of texts. A nil vector in the result marks an
// input whose embedding failed validation.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore persists embedded chunks under a conversation scope.
type ChunkStore interface {
	Store(ctx context.Context, scopeID string, chs []domain.Chunk) (stored, retried int, err error)
}

// ScopeResolver resolves or creates the conversation scope chunks are
// ingested into.
type ScopeResolver interface {
	Exists(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, title, description string) (domain.Chat, error)
}

// Summary reports the outcome of one file ingestion. NumChunks counts the
// chunks that survived embedding validation; DroppedChunks counts the ones
// that did not. Chunks carry content and provenance only, never embeddings,
// so downstream use (e.g. a welcome message) cannot re-trigger vectorization.
type Summary struct {
	FileName      string         `json:"file_name"`
	ScopeID       string         `json:"chat_id"`
	NumChunks     int            `json:"num_chunks"`
	StoredChunks  int            `json:"stored_chunks"`
	DroppedChunks int            `json:"dropped_chunks"`
	Retries       int            `json:"retries"`
	Chunks        []domain.Chunk `json:"-"`
}

// SuccessRate is stored chunks over accepted chunks, in [0,1].
func (s *Summary) SuccessRate() float64 {
	if s.NumChunks <= 0 {
		return 0
	}
	return float64(s.StoredChunks) / float64(s.NumChunks)
}
