package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/m4s1t4/karen/internal/db"
)

// CreateVectorIndex creates the FT index over chunk hashes: one TAG column
// for the chat scope and one HNSW FLOAT32 cosine vector column.
func (s *Store) CreateVectorIndex(ctx context.Context, def *db.VectorIndex) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// DropIndex removes an FT index by name.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	cmd := s.b().Arbitrary("FT.DROPINDEX").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO; "unknown index name" means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

// SupportsVectorSearch probes whether the search module is loaded by issuing
// FT._LIST. Plain Redis without RediSearch answers "unknown command" and the
// caller falls back to in-process scoring.
func (s *Store) SupportsVectorSearch(ctx context.Context) bool {
	cmd := s.b().Arbitrary("FT._LIST").Build()
	err := s.do(ctx, cmd).Error()
	if err == nil {
		return true
	}
	return !isRedisErr(err, "unknown command")
}

func buildCreateArgs(idx *db.VectorIndex) ([]string, error) {
	if idx.Name == "" {
		return nil, errors.New("index name is required")
	}
	if idx.TagField == "" || idx.VecField == "" {
		return nil, errors.New("tag and vector fields are required")
	}
	if idx.Dim <= 0 {
		return nil, errors.New("vector DIM must be positive")
	}

	args := []string{idx.Name, "ON", "HASH"}

	if idx.Prefix != "" {
		args = append(args, "PREFIX", "1", idx.Prefix)
	}

	args = append(args, "SCHEMA", idx.TagField, "TAG")

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(idx.Dim),
		"DISTANCE_METRIC", "COSINE",
	}
	if idx.HNSWM > 0 {
		attrs = append(attrs, "M", strconv.Itoa(idx.HNSWM))
	}
	if idx.HNSWEFCon > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(idx.HNSWEFCon))
	}

	args = append(args, idx.VecField, "VECTOR", "HNSW", strconv.Itoa(len(attrs)))
	args = append(args, attrs...)

	return args, nil
}
