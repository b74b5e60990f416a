package domain

// KeyPrefix namespaces every key this service writes to the store.
const KeyPrefix = "karen:"

// ChunkMeta is the provenance carried by every stored chunk. Source and Page
// survive into citations, so they are mandatory at ingestion time (Page is 0
// for unpaged sources).
type ChunkMeta struct {
	Source      string
	Page        int
	ChunkIndex  int
	TotalChunks int
}

// Chunk is one passage of a source document. Immutable once stored; owned by
// the chat scope it was ingested into.
type Chunk struct {
	Content   string
	Meta      ChunkMeta
	Embedding []float32
}

// ScoredChunk pairs a chunk with its similarity to a query vector.
type ScoredChunk struct {
	Chunk
	Score float64
}

// Passage is a retrieval hit handed to the synthesizer. Ordinal is 1-based
// and stable for the lifetime of one response; inline citation markers
// reference it.
type Passage struct {
	Ordinal int
	Content string
	Source  string
	Page    int
	Score   float64
}

// Citation is a passage the model actually cited, attached to the assistant
// message metadata.
type Citation struct {
	Ordinal    int     `json:"ordinal"`
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Page       int     `json:"page,omitempty"`
	Similarity float64 `json:"similarity"`
}
