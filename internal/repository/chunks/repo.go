// Package chunks persists document chunks as Redis hashes under a
// per-conversation scope and answers scoped similarity queries, natively
// via FT.SEARCH KNN or by in-process cosine scoring when the search
// module is absent.
package chunks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/m4s1t4/karen/internal/db"
	"github.com/m4s1t4/karen/internal/domain"
	"github.com/m4s1t4/karen/internal/retry"
)

const (
	// IndexName is the FT index over all chunk hashes.
	IndexName = "karen_chunks_idx"

	keyPrefix   = domain.KeyPrefix + "chunks:"
	countPrefix = domain.KeyPrefix + "chunkcount:"

	fieldContent     = "__content"
	fieldVector      = "__vector"
	fieldChatID      = "chat_id"
	fieldSource      = "source"
	fieldPage        = "page"
	fieldChunkIndex  = "chunk_index"
	fieldTotalChunks = "total_chunks"
)

// store is the consumer interface for chunk persistence (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, keys ...string) error
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	CreateVectorIndex(ctx context.Context, def *db.VectorIndex) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SupportsVectorSearch(ctx context.Context) bool
}

// Config tunes batching and retry behavior for chunk inserts.
type Config struct {
	BatchSize int           // sub-batch size for HSET pipelines
	Pause     time.Duration // pause between sub-batches
	Dim       int           // expected embedding dimensionality
}

// Repo implements the vector store used by ingestion and retrieval.
type Repo struct {
	store store
	cfg   Config
	prw   retry.Policy
	log   *zap.Logger
}

// New creates a chunk repository.
func New(s store, cfg Config, log *zap.Logger) *Repo {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Dim <= 0 {
		cfg.Dim = domain.DefaultVectorDim
	}
	return &Repo{
		store: s,
		cfg:   cfg,
		prw: retry.Policy{
			MaxAttempts: 5,
			MinDelay:    1 * time.Second,
			MaxDelay:    30 * time.Second,
			Retryable:   func(error) bool { return true },
		},
		log: log,
	}
}

// EnsureIndex creates the FT vector index if the backend supports search
// and the index does not exist yet. Without the search module queries fall
// back to in-process scoring, so a missing index is not an error.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	if !r.store.SupportsVectorSearch(ctx) {
		r.log.Warn("search module unavailable, similarity queries will score in-process")
		return nil
	}

	exists, err := r.store.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.VectorIndex{
		Name:      IndexName,
		Prefix:    keyPrefix,
		TagField:  fieldChatID,
		VecField:  fieldVector,
		Dim:       r.cfg.Dim,
		HNSWM:     16,
		HNSWEFCon: 200,
	}
	if err := r.store.CreateVectorIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Store persists chunks in sequential sub-batches. Each sub-batch is retried
// with exponential backoff; a sub-batch that still fails is dropped and the
// remaining ones proceed. Returns the number of chunks stored and the total
// retry attempts made. Cancellation is honored between sub-batches only.
func (r *Repo) Store(ctx context.Context, scopeID string, chs []domain.Chunk) (int, int, error) {
	var stored, retried int
	var stopErr error

	for start := 0; start < len(chs) && stopErr == nil; start += r.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		if start > 0 && r.cfg.Pause > 0 {
			select {
			case <-ctx.Done():
				stopErr = ctx.Err()
			case <-time.After(r.cfg.Pause):
			}
			if stopErr != nil {
				break
			}
		}

		end := min(start+r.cfg.BatchSize, len(chs))
		items := make([]db.HashSetItem, 0, end-start)
		for _, ch := range chs[start:end] {
			items = append(items, db.HashSetItem{
				Key:    keyPrefix + scopeID + ":" + uuid.NewString(),
				Fields: buildHashFields(&ch, scopeID),
			})
		}

		attempts, err := r.prw.Do(ctx, func(ctx context.Context) error {
			return r.store.HSetMulti(ctx, items)
		})
		retried += attempts
		if err != nil {
			r.log.Warn("chunk sub-batch dropped after retries",
				zap.String("scope_id", scopeID),
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(items)),
				zap.Error(err),
			)
			continue
		}
		stored += len(items)
	}

	if stored > 0 {
		// counted even when the loop stopped early, so HasData stays truthful
		cctx := context.WithoutCancel(ctx)
		if _, err := r.store.IncrBy(cctx, countPrefix+scopeID, int64(stored)); err != nil {
			r.log.Warn("chunk counter update failed", zap.String("scope_id", scopeID), zap.Error(err))
		}
	}

	return stored, retried, stopErr
}

// HasData reports whether any chunks were ever stored for the scope. Backed
// by a plain counter so retrieval can short-circuit without touching the index.
func (r *Repo) HasData(ctx context.Context, scopeID string) (bool, error) {
	raw, err := r.store.Get(ctx, countPrefix+scopeID)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get chunk counter: %w", err)
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse chunk counter: %w", err)
	}
	return n > 0, nil
}

// QuerySimilar returns up to topK chunks of the scope whose cosine similarity
// to the query vector is at least threshold, ranked by descending score. Ties
// keep insertion order. Uses native KNN search when available.
func (r *Repo) QuerySimilar(
	ctx context.Context, scopeID string, vector []float32, topK int, threshold float64,
) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	if r.store.SupportsVectorSearch(ctx) {
		return r.queryNative(ctx, scopeID, vector, topK, threshold)
	}
	return r.queryFallback(ctx, scopeID, vector, topK, threshold)
}

func (r *Repo) queryNative(
	ctx context.Context, scopeID string, vector []float32, topK int, threshold float64,
) ([]domain.ScoredChunk, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName: IndexName,
		TagField:  fieldChatID,
		TagValue:  scopeID,
		VecField:  fieldVector,
		Vector:    vector,
		K:         topK,
		ReturnFields: []string{
			fieldContent, fieldSource, fieldPage, fieldChunkIndex, fieldTotalChunks,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	out := make([]domain.ScoredChunk, 0, len(res.Entries))
	for _, entry := range res.Entries {
		if entry.Score < threshold {
			continue
		}
		ch, err := parseHashFields(entry.Fields)
		if err != nil {
			r.log.Warn("skipping malformed chunk hash", zap.String("key", entry.Key), zap.Error(err))
			continue
		}
		out = append(out, domain.ScoredChunk{Chunk: ch, Score: entry.Score})
	}
	return out, nil
}

// queryFallback pulls all scoped chunk hashes and scores them in-process.
// Candidates are ordered by chunk index before the stable sort so equal
// scores resolve to the earlier-ingested chunk, matching native search.
func (r *Repo) queryFallback(
	ctx context.Context, scopeID string, vector []float32, topK int, threshold float64,
) ([]domain.ScoredChunk, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+scopeID+":*")
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch chunks: %w", err)
	}

	scored := make([]domain.ScoredChunk, 0, len(hashes))
	for i, fields := range hashes {
		ch, err := parseHashFields(fields)
		if err != nil {
			r.log.Warn("skipping malformed chunk hash", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		score := db.CosineSimilarity(vector, ch.Embedding)
		if score < threshold {
			continue
		}
		ch.Embedding = nil
		scored = append(scored, domain.ScoredChunk{Chunk: ch, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Meta.ChunkIndex < scored[j].Meta.ChunkIndex
	})
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// DeleteScope removes all chunk hashes and the counter for a scope.
func (r *Repo) DeleteScope(ctx context.Context, scopeID string) error {
	keys, err := r.store.Scan(ctx, keyPrefix+scopeID+":*")
	if err != nil {
		return fmt.Errorf("scan chunks: %w", err)
	}
	keys = append(keys, countPrefix+scopeID)
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}
