package domain

import "context"

// DefaultVectorDim matches text-embedding-ada-002. Override via config for
// other models.
const DefaultVectorDim = 1536

// EmbeddingProvider is the raw vectorization backend: one API call per
// invocation, no batching or retry policy of its own. The embedding client
// in usecase/embedding layers both on top.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) (EmbeddingResult, error)
}

// EmbeddingResult carries the vectors and token usage of one provider call.
type EmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// ChatTurn is one message handed to the completion provider.
type ChatTurn struct {
	Role    string
	Content string
}

// Completer generates text from a conversation at the given temperature.
type Completer interface {
	Complete(ctx context.Context, turns []ChatTurn, temperature float32) (string, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
