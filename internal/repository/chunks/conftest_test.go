package chunks

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/m4s1t4/karen/internal/db"
	"github.com/m4s1t4/karen/internal/domain"
	"github.com/m4s1t4/karen/internal/retry"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetMultiFn    func(ctx context.Context, items []db.HashSetItem) error
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	scanFn         func(ctx context.Context, pattern string) ([]string, error)
	delFn          func(ctx context.Context, keys ...string) error
	getFn          func(ctx context.Context, key string) ([]byte, error)
	incrByFn       func(ctx context.Context, key string, val int64) (int64, error)
	createIndexFn  func(ctx context.Context, def *db.VectorIndex) error
	indexExistsFn  func(ctx context.Context, name string) (bool, error)
	searchKNNFn    func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	supportsSearch bool
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return nil, nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	if m.delFn != nil {
		return m.delFn(ctx, keys...)
	}
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, &db.Error{Op: db.OpGet, Err: db.ErrKeyNotFound}
}

func (m *mockStore) IncrBy(ctx context.Context, key string, val int64) (int64, error) {
	if m.incrByFn != nil {
		return m.incrByFn(ctx, key, val)
	}
	return val, nil
}

func (m *mockStore) CreateVectorIndex(ctx context.Context, def *db.VectorIndex) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SupportsVectorSearch(context.Context) bool {
	return m.supportsSearch
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{supportsSearch: true}
	repo := New(ms, Config{BatchSize: 2, Dim: 4}, zap.NewNop())
	// fast backoff so retry exhaustion tests stay quick
	repo.prw = retry.Policy{
		MaxAttempts: 5,
		MinDelay:    time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Retryable:   func(error) bool { return true },
	}
	return repo, ms
}

func testChunks(n int) []domain.Chunk {
	chs := make([]domain.Chunk, n)
	for i := range chs {
		chs[i] = domain.Chunk{
			Content: "passage " + string(rune('a'+i)),
			Meta: domain.ChunkMeta{
				Source:      "doc.pdf",
				Page:        1,
				ChunkIndex:  i,
				TotalChunks: n,
			},
			Embedding: []float32{float32(i), 1, 0, 0},
		}
	}
	return chs
}
