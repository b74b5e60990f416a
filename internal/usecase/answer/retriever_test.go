package answer

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/m4s1t4/karen/internal/domain"
	"github.com/m4s1t4/karen/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterRAGMetrics()
	os.Exit(m.Run())
}

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	calls   int
}

func (m *mockEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return []float32{1, 0, 0, 0}, nil
}

type mockSearcher struct {
	hasData bool
	queryFn func(ctx context.Context, scopeID string, vec []float32, topK int, threshold float64) ([]domain.ScoredChunk, error)
	queries int
}

func (m *mockSearcher) HasData(_ context.Context, _ string) (bool, error) {
	return m.hasData, nil
}

func (m *mockSearcher) QuerySimilar(
	ctx context.Context, scopeID string, vec []float32, topK int, threshold float64,
) ([]domain.ScoredChunk, error) {
	m.queries++
	if m.queryFn != nil {
		return m.queryFn(ctx, scopeID, vec, topK, threshold)
	}
	return nil, nil
}

func newTestRetriever(t *testing.T) (*Retriever, *mockEmbedder, *mockSearcher) {
	t.Helper()
	e := &mockEmbedder{}
	s := &mockSearcher{hasData: true}
	return NewRetriever(e, s, RetrieverConfig{TopK: 5, Threshold: 0.7}, zap.NewNop()), e, s
}

func TestRetrieve_EmptyScopeShortCircuits(t *testing.T) {
	r, e, s := newTestRetriever(t)
	s.hasData = false

	passages, err := r.Retrieve(context.Background(), "question", "chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if passages != nil {
		t.Fatalf("expected no passages, got %d", len(passages))
	}
	if e.calls != 0 {
		t.Fatal("embedding must not be called for an empty scope")
	}
	if s.queries != 0 {
		t.Fatal("similarity search must not be called for an empty scope")
	}
}

func TestRetrieve_AnnotatesOrdinalsAndBasenames(t *testing.T) {
	r, _, s := newTestRetriever(t)
	s.queryFn = func(_ context.Context, scopeID string, _ []float32, topK int, threshold float64) ([]domain.ScoredChunk, error) {
		if scopeID != "chat-1" || topK != 5 || threshold != 0.7 {
			t.Errorf("query params not forwarded: %s %d %v", scopeID, topK, threshold)
		}
		return []domain.ScoredChunk{
			{Chunk: domain.Chunk{Content: "first", Meta: domain.ChunkMeta{Source: "/data/uploads/report.pdf", Page: 3}}, Score: 0.93},
			{Chunk: domain.Chunk{Content: "second", Meta: domain.ChunkMeta{Source: "notes.txt"}}, Score: 0.74},
		}, nil
	}

	passages, err := r.Retrieve(context.Background(), "question", "chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(passages) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(passages))
	}
	if passages[0].Ordinal != 1 || passages[1].Ordinal != 2 {
		t.Fatalf("ordinals not 1-based sequential: %+v", passages)
	}
	if passages[0].Source != "report.pdf" {
		t.Fatalf("source not reduced to basename: %s", passages[0].Source)
	}
	if passages[0].Page != 3 || passages[0].Score != 0.93 {
		t.Fatalf("annotations lost: %+v", passages[0])
	}
}

func TestRetrieve_EmbedFailurePropagates(t *testing.T) {
	r, e, _ := newTestRetriever(t)
	e.embedFn = func(_ context.Context, _ string) ([]float32, error) {
		return nil, errors.New("after 5 attempts: 429")
	}

	if _, err := r.Retrieve(context.Background(), "question", "chat-1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetrieve_QueryFailurePropagates(t *testing.T) {
	r, _, s := newTestRetriever(t)
	s.queryFn = func(_ context.Context, _ string, _ []float32, _ int, _ float64) ([]domain.ScoredChunk, error) {
		return nil, errors.New("index gone")
	}

	if _, err := r.Retrieve(context.Background(), "question", "chat-1"); err == nil {
		t.Fatal("expected error")
	}
}
