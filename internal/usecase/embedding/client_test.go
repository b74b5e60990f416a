package embedding

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/m4s1t4/karen/internal/domain"
	"github.com/m4s1t4/karen/internal/metrics"
	"github.com/m4s1t4/karen/internal/retry"
)

func TestMain(m *testing.M) {
	metrics.RegisterRAGMetrics()
	os.Exit(m.Run())
}

// mockProvider implements domain.EmbeddingProvider for tests.
type mockProvider struct {
	embedFn func(ctx context.Context, texts []string) (domain.EmbeddingResult, error)
	calls   [][]string
}

func (m *mockProvider) Embed(ctx context.Context, texts []string) (domain.EmbeddingResult, error) {
	m.calls = append(m.calls, texts)
	if m.embedFn != nil {
		return m.embedFn(ctx, texts)
	}
	return uniformResult(texts, 4), nil
}

func uniformResult(texts []string, dim int) domain.EmbeddingResult {
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vec := make([]float32, dim)
		vec[0] = float32(i + 1)
		vecs[i] = vec
	}
	return domain.EmbeddingResult{Embeddings: vecs, TotalTokens: len(texts)}
}

func newTestClient(t *testing.T, p *mockProvider, batchSize int) *Client {
	t.Helper()
	c := New(p, Config{BatchSize: batchSize, Dim: 4, CacheSize: 2}, zap.NewNop())
	c.prw = retry.Policy{
		MaxAttempts: 5,
		MinDelay:    time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Retryable:   retry.Transient,
	}
	return c
}

func TestEmbedBatch_SplitsAtBatchSize(t *testing.T) {
	p := &mockProvider{}
	c := newTestClient(t, p, 2)

	texts := []string{"a", "b", "c", "d", "e"}
	vecs, err := c.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 5 {
		t.Fatalf("expected 5 vectors, got %d", len(vecs))
	}
	if len(p.calls) != 3 {
		t.Fatalf("expected 3 provider calls for batch size 2, got %d", len(p.calls))
	}
	if len(p.calls[2]) != 1 {
		t.Fatalf("expected last call with 1 input, got %d", len(p.calls[2]))
	}
	for i, v := range vecs {
		if v == nil {
			t.Fatalf("vector %d is nil", i)
		}
	}
}

func TestEmbedBatch_RetriesTransientFailure(t *testing.T) {
	call := 0
	p := &mockProvider{embedFn: func(_ context.Context, texts []string) (domain.EmbeddingResult, error) {
		call++
		if call < 3 {
			return domain.EmbeddingResult{}, errors.New("429 rate limit exceeded")
		}
		return uniformResult(texts, 4), nil
	}}
	c := newTestClient(t, p, 10)

	vecs, err := c.EmbedBatch(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("expected recovery after retries, got %v", err)
	}
	if call != 3 {
		t.Fatalf("expected 3 attempts, got %d", call)
	}
	if vecs[0] == nil {
		t.Fatal("expected vector after retry")
	}
}

func TestEmbedBatch_ExhaustedRetriesFail(t *testing.T) {
	p := &mockProvider{embedFn: func(_ context.Context, _ []string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{}, errors.New("503 service unavailable")
	}}
	c := newTestClient(t, p, 10)

	_, err := c.EmbedBatch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	if len(p.calls) != 5 {
		t.Fatalf("expected 5 attempts, got %d", len(p.calls))
	}
}

func TestEmbedBatch_NonTransientFailsFast(t *testing.T) {
	p := &mockProvider{embedFn: func(_ context.Context, _ []string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{}, errors.New("invalid api key")
	}}
	c := newTestClient(t, p, 10)

	_, err := c.EmbedBatch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(p.calls) != 1 {
		t.Fatalf("expected single attempt for non-transient error, got %d", len(p.calls))
	}
}

func TestEmbedBatch_DropsWrongDimensionality(t *testing.T) {
	p := &mockProvider{embedFn: func(_ context.Context, texts []string) (domain.EmbeddingResult, error) {
		vecs := make([][]float32, len(texts))
		for i := range vecs {
			if i == 1 {
				vecs[i] = []float32{1, 2} // malformed
				continue
			}
			vecs[i] = []float32{1, 2, 3, 4}
		}
		return domain.EmbeddingResult{Embeddings: vecs}, nil
	}}
	c := newTestClient(t, p, 10)

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vecs[0] == nil || vecs[2] == nil {
		t.Fatal("valid vectors must survive")
	}
	if vecs[1] != nil {
		t.Fatal("malformed vector must come back nil")
	}
}

func TestEmbedOne_CachesResult(t *testing.T) {
	p := &mockProvider{}
	c := newTestClient(t, p, 10)
	ctx := context.Background()

	first, err := c.EmbedOne(ctx, "question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.EmbedOne(ctx, "question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.calls) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(p.calls))
	}
	if first[0] != second[0] {
		t.Fatal("cache returned a different vector")
	}
}

func TestEmbedOne_CacheEvictsOldest(t *testing.T) {
	p := &mockProvider{}
	c := newTestClient(t, p, 10) // cache capacity 2
	ctx := context.Background()

	for _, q := range []string{"one", "two", "three"} {
		if _, err := c.EmbedOne(ctx, q); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// "one" was evicted, so this costs another provider call
	if _, err := c.EmbedOne(ctx, "one"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.calls) != 4 {
		t.Fatalf("expected 4 provider calls, got %d", len(p.calls))
	}
}

func TestEmbedOne_WrongDimensionalityIsFatal(t *testing.T) {
	p := &mockProvider{embedFn: func(_ context.Context, _ []string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{Embeddings: [][]float32{{1, 2}}}, nil
	}}
	c := newTestClient(t, p, 10)

	_, err := c.EmbedOne(context.Background(), "question")
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}
