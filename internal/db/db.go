// Package db defines the storage facade the repositories are written
// against. The redis subpackage implements it via rueidis; repositories
// consume the narrow sub-interfaces they need, never the facade itself.
package db

import (
	"context"
	"time"
)

// Store is the full database facade.
type Store interface {
	Pinger
	HashStore
	KVStore
	IndexManager
	VectorSearcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem holds a single key+fields pair for pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// HashStore provides hash-based record operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// KVStore provides plain key-value and counter operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	Del(ctx context.Context, keys ...string) error
}

// VectorIndex describes the FT index over chunk hashes: a TAG column for the
// chat scope and an HNSW vector column with cosine distance.
type VectorIndex struct {
	Name      string
	Prefix    string
	TagField  string
	VecField  string
	Dim       int
	HNSWM     int
	HNSWEFCon int
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateVectorIndex(ctx context.Context, def *VectorIndex) error
	IndexExists(ctx context.Context, name string) (bool, error)
	DropIndex(ctx context.Context, name string) error
}

// KNNQuery is a scoped vector similarity query.
type KNNQuery struct {
	IndexName    string
	TagField     string
	TagValue     string
	VecField     string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchEntry is one hit of a KNN search. Score is cosine similarity in [0,1].
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// SearchResult holds KNN search hits.
type SearchResult struct {
	Total   int64
	Entries []SearchEntry
}

// VectorSearcher provides native similarity search over an FT index.
// SupportsVectorSearch reports whether the backend has the search module;
// callers fall back to in-process scoring when it does not.
type VectorSearcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	SupportsVectorSearch(ctx context.Context) bool
}
