package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/m4s1t4/karen/internal/domain"
	"github.com/m4s1t4/karen/internal/loader"
	"github.com/m4s1t4/karen/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterRAGMetrics()
	os.Exit(m.Run())
}

// --- mocks ---

type mockLoader struct {
	loadFn func(ctx context.Context, path string) ([]loader.Unit, error)
}

func (m *mockLoader) Load(ctx context.Context, path string) ([]loader.Unit, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, path)
	}
	return []loader.Unit{{Text: "page one text", Source: path, Page: 1}}, nil
}

// wordChunker splits on whitespace, one chunk per word.
type wordChunker struct{}

func (wordChunker) Split(text string, meta domain.ChunkMeta) []domain.Chunk {
	words := strings.Fields(text)
	chunks := make([]domain.Chunk, len(words))
	for i, w := range words {
		m := meta
		m.ChunkIndex = i
		m.TotalChunks = len(words)
		chunks[i] = domain.Chunk{Content: w, Meta: m}
	}
	return chunks
}

type mockEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	embedFn func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batches = append(m.batches, texts)
	m.mu.Unlock()
	if m.embedFn != nil {
		return m.embedFn(ctx, texts)
	}
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{1, 0, 0, 0}
	}
	return vecs, nil
}

type mockChunkStore struct {
	storeFn func(ctx context.Context, scopeID string, chs []domain.Chunk) (int, int, error)
	got     []domain.Chunk
	scope   string
}

func (m *mockChunkStore) Store(ctx context.Context, scopeID string, chs []domain.Chunk) (int, int, error) {
	m.got = chs
	m.scope = scopeID
	if m.storeFn != nil {
		return m.storeFn(ctx, scopeID, chs)
	}
	return len(chs), 0, nil
}

type mockScopes struct {
	existsFn func(ctx context.Context, id string) (bool, error)
	createFn func(ctx context.Context, title, description string) (domain.Chat, error)
	created  bool
}

func (m *mockScopes) Exists(ctx context.Context, id string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, id)
	}
	return false, nil
}

func (m *mockScopes) Create(ctx context.Context, title, description string) (domain.Chat, error) {
	m.created = true
	if m.createFn != nil {
		return m.createFn(ctx, title, description)
	}
	return domain.Chat{ID: "fresh-scope"}, nil
}

type fixture struct {
	svc    *Service
	loader *mockLoader
	embed  *mockEmbedder
	store  *mockChunkStore
	scopes *mockScopes
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		loader: &mockLoader{},
		embed:  &mockEmbedder{},
		store:  &mockChunkStore{},
		scopes: &mockScopes{},
	}
	f.svc = New(f.loader, wordChunker{}, f.embed, f.store, f.scopes, cfg, zap.NewNop())
	return f
}

// --- scope resolution ---

func TestIngest_ExistingScopeIsKept(t *testing.T) {
	f := newFixture(t, Config{})
	f.scopes.existsFn = func(_ context.Context, id string) (bool, error) { return id == "chat-1", nil }

	summary, err := f.svc.Ingest(context.Background(), "/tmp/doc.pdf", "chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ScopeID != "chat-1" {
		t.Fatalf("expected scope chat-1, got %s", summary.ScopeID)
	}
	if f.scopes.created {
		t.Fatal("existing scope must not be recreated")
	}
}

func TestIngest_MissingScopeIsRecreatedAndReturned(t *testing.T) {
	f := newFixture(t, Config{})

	summary, err := f.svc.Ingest(context.Background(), "/tmp/doc.pdf", "gone")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ScopeID != "fresh-scope" {
		t.Fatalf("expected new scope id in summary, got %s", summary.ScopeID)
	}
	if f.store.scope != "fresh-scope" {
		t.Fatalf("chunks stored under wrong scope: %s", f.store.scope)
	}
}

func TestIngest_EmptyScopeCreates(t *testing.T) {
	f := newFixture(t, Config{})

	summary, err := f.svc.Ingest(context.Background(), "/tmp/doc.pdf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ScopeID != "fresh-scope" {
		t.Fatalf("expected created scope, got %s", summary.ScopeID)
	}
}

// --- pipeline stages ---

func TestIngest_NoTextUnitsFails(t *testing.T) {
	f := newFixture(t, Config{})
	f.loader.loadFn = func(_ context.Context, _ string) ([]loader.Unit, error) {
		return nil, domain.ErrNoTextUnits
	}

	_, err := f.svc.Ingest(context.Background(), "/tmp/empty.pdf", "")
	if !errors.Is(err, domain.ErrNoTextUnits) {
		t.Fatalf("expected ErrNoTextUnits, got %v", err)
	}
}

func TestIngest_ChunksRenumberedAcrossUnits(t *testing.T) {
	f := newFixture(t, Config{})
	f.loader.loadFn = func(_ context.Context, path string) ([]loader.Unit, error) {
		return []loader.Unit{
			{Text: "alpha beta", Source: path, Page: 1},
			{Text: "gamma", Source: path, Page: 2},
		}, nil
	}

	summary, err := f.svc.Ingest(context.Background(), "/tmp/doc.pdf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.NumChunks != 3 {
		t.Fatalf("expected 3 chunks, got %d", summary.NumChunks)
	}
	for i, ch := range f.store.got {
		if ch.Meta.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, ch.Meta.ChunkIndex)
		}
		if ch.Meta.TotalChunks != 3 {
			t.Errorf("chunk %d has total %d", i, ch.Meta.TotalChunks)
		}
	}
	if f.store.got[2].Meta.Page != 2 {
		t.Errorf("page metadata lost: %+v", f.store.got[2].Meta)
	}
}

func TestIngest_EmbeddingMergedByBatchIndex(t *testing.T) {
	f := newFixture(t, Config{MaxWorkers: 4, EmbedBatchSize: 2})
	words := make([]string, 10)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	f.loader.loadFn = func(_ context.Context, path string) ([]loader.Unit, error) {
		return []loader.Unit{{Text: strings.Join(words, " "), Source: path, Page: 1}}, nil
	}
	// vector encodes the input word so order is verifiable after the merge
	f.embed.embedFn = func(_ context.Context, texts []string) ([][]float32, error) {
		vecs := make([][]float32, len(texts))
		for i, txt := range texts {
			var n int
			fmt.Sscanf(txt, "w%d", &n)
			vecs[i] = []float32{float32(n), 0, 0, 0}
		}
		return vecs, nil
	}

	_, err := f.svc.Ingest(context.Background(), "/tmp/doc.pdf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, ch := range f.store.got {
		if int(ch.Embedding[0]) != i {
			t.Fatalf("chunk %d carries vector of input %d: merge order broken", i, int(ch.Embedding[0]))
		}
	}
}

func TestIngest_DroppedEmbeddingsCounted(t *testing.T) {
	f := newFixture(t, Config{EmbedBatchSize: 100})
	f.loader.loadFn = func(_ context.Context, path string) ([]loader.Unit, error) {
		return []loader.Unit{{Text: "a b c d", Source: path, Page: 1}}, nil
	}
	f.embed.embedFn = func(_ context.Context, texts []string) ([][]float32, error) {
		vecs := make([][]float32, len(texts))
		for i := range vecs {
			if i%2 == 0 {
				vecs[i] = []float32{1, 0, 0, 0}
			}
		}
		return vecs, nil
	}

	summary, err := f.svc.Ingest(context.Background(), "/tmp/doc.pdf", "")
	if err != nil {
		t.Fatalf("dropped chunks must not fail ingestion: %v", err)
	}
	if summary.DroppedChunks != 2 {
		t.Fatalf("expected 2 dropped, got %d", summary.DroppedChunks)
	}
	if summary.NumChunks != 2 {
		t.Fatalf("num_chunks must count accepted chunks only, got %d", summary.NumChunks)
	}
	if summary.StoredChunks != 2 {
		t.Fatalf("expected 2 stored, got %d", summary.StoredChunks)
	}
	if len(f.store.got) != 2 {
		t.Fatalf("dropped chunks must not reach the store, got %d", len(f.store.got))
	}
}

func TestIngest_SummaryCountsAcceptedChunks(t *testing.T) {
	f := newFixture(t, Config{EmbedBatchSize: 100})
	f.loader.loadFn = func(_ context.Context, path string) ([]loader.Unit, error) {
		return []loader.Unit{
			{Text: "a b c", Source: path, Page: 1},
			{Text: "d e", Source: path, Page: 2},
			{Text: "f g", Source: path, Page: 3},
		}, nil
	}
	// 7 chunks, the fourth embedding fails validation
	f.embed.embedFn = func(_ context.Context, texts []string) ([][]float32, error) {
		vecs := make([][]float32, len(texts))
		for i := range vecs {
			if i != 3 {
				vecs[i] = []float32{1, 0, 0, 0}
			}
		}
		return vecs, nil
	}

	summary, err := f.svc.Ingest(context.Background(), "/tmp/report.pdf", "")
	if err != nil {
		t.Fatalf("one invalid embedding must not fail ingestion: %v", err)
	}
	if summary.NumChunks != 6 {
		t.Fatalf("expected num_chunks 6, got %d", summary.NumChunks)
	}
	if summary.StoredChunks != 6 {
		t.Fatalf("expected 6 stored, got %d", summary.StoredChunks)
	}
	if summary.DroppedChunks != 1 {
		t.Fatalf("expected 1 dropped, got %d", summary.DroppedChunks)
	}
	if rate := summary.SuccessRate(); rate != 1 {
		t.Fatalf("all accepted chunks stored, expected success rate 1, got %v", rate)
	}
}

func TestIngest_AllEmbeddingsDroppedFails(t *testing.T) {
	f := newFixture(t, Config{})
	f.embed.embedFn = func(_ context.Context, texts []string) ([][]float32, error) {
		return make([][]float32, len(texts)), nil
	}

	_, err := f.svc.Ingest(context.Background(), "/tmp/doc.pdf", "")
	if !errors.Is(err, domain.ErrNoValidEmbeddings) {
		t.Fatalf("expected ErrNoValidEmbeddings, got %v", err)
	}
}

func TestIngest_EmbeddingExhaustionAborts(t *testing.T) {
	f := newFixture(t, Config{})
	f.embed.embedFn = func(_ context.Context, _ []string) ([][]float32, error) {
		return nil, errors.New("after 5 attempts: 503")
	}

	_, err := f.svc.Ingest(context.Background(), "/tmp/doc.pdf", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if f.store.got != nil {
		t.Fatal("store must not be reached after embed failure")
	}
}

func TestIngest_ZeroStoredFails(t *testing.T) {
	f := newFixture(t, Config{})
	f.store.storeFn = func(_ context.Context, _ string, _ []domain.Chunk) (int, int, error) {
		return 0, 4, nil
	}

	_, err := f.svc.Ingest(context.Background(), "/tmp/doc.pdf", "")
	if !errors.Is(err, domain.ErrNothingStored) {
		t.Fatalf("expected ErrNothingStored, got %v", err)
	}
}

func TestIngest_PartialStoreIsDegradedNotFailed(t *testing.T) {
	f := newFixture(t, Config{})
	f.loader.loadFn = func(_ context.Context, path string) ([]loader.Unit, error) {
		return []loader.Unit{{Text: "a b c d e f", Source: path, Page: 1}}, nil
	}
	f.store.storeFn = func(_ context.Context, _ string, chs []domain.Chunk) (int, int, error) {
		return len(chs) - 2, 4, nil
	}

	summary, err := f.svc.Ingest(context.Background(), "/tmp/doc.pdf", "")
	if err != nil {
		t.Fatalf("partial store must not fail: %v", err)
	}
	if summary.StoredChunks != 4 || summary.Retries != 4 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if rate := summary.SuccessRate(); rate >= 1 || rate <= 0 {
		t.Fatalf("expected degraded success rate, got %v", rate)
	}
}

// --- summary ---

func TestIngest_SummaryStripsEmbeddings(t *testing.T) {
	f := newFixture(t, Config{})

	summary, err := f.svc.Ingest(context.Background(), "/data/uploads/report.pdf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.FileName != "report.pdf" {
		t.Fatalf("expected basename, got %s", summary.FileName)
	}
	for _, ch := range summary.Chunks {
		if ch.Embedding != nil {
			t.Fatal("summary chunks must not carry embeddings")
		}
	}
	// stored chunks keep theirs
	for _, ch := range f.store.got {
		if ch.Embedding == nil {
			t.Fatal("stored chunks must keep embeddings")
		}
	}
}
