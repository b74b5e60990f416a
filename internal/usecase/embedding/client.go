// Package embedding layers batching, retries, validation and an in-process
// cache on top of the raw embedding provider.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/m4s1t4/karen/internal/domain"
	"github.com/m4s1t4/karen/internal/metrics"
	"github.com/m4s1t4/karen/internal/retry"
)

// Config tunes the embedding client.
type Config struct {
	BatchSize int // max inputs per provider call
	Dim       int // expected vector dimensionality
	CacheSize int // single-text cache capacity
}

// Client is the embedding client used by ingestion and retrieval.
type Client struct {
	provider domain.EmbeddingProvider
	cfg      Config
	prw      retry.Policy
	cache    *fifoCache
	log      *zap.Logger
}

// New creates an embedding client.
func New(provider domain.EmbeddingProvider, cfg Config, log *zap.Logger) *Client {
	if cfg.BatchSize <= 0 || cfg.BatchSize > 100 {
		cfg.BatchSize = 100
	}
	if cfg.Dim <= 0 {
		cfg.Dim = domain.DefaultVectorDim
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	return &Client{
		provider: provider,
		cfg:      cfg,
		prw: retry.Policy{
			MaxAttempts: 5,
			MinDelay:    4 * time.Second,
			MaxDelay:    10 * time.Second,
			Retryable:   retry.Transient,
		},
		cache: newFIFOCache(cfg.CacheSize),
		log:   log,
	}
}

// EmbedBatch vectorizes texts, splitting into provider calls of at most
// BatchSize inputs. The result is aligned with the input: a vector whose
// dimensionality does not match the configured one comes back nil so the
// caller can drop that item. Fails only when a provider call is exhausted.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(texts))
		batch := texts[start:end]

		var result domain.EmbeddingResult
		retries, err := c.prw.Do(ctx, func(ctx context.Context) error {
			var callErr error
			result, callErr = c.provider.Embed(ctx, batch)
			return callErr
		})
		if retries > 0 {
			c.log.Warn("embedding call retried",
				zap.Int("retries", retries),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
		}
		if err != nil {
			return nil, fmt.Errorf("embed batch of %d: %w", len(batch), err)
		}

		for i, vec := range result.Embeddings {
			if len(vec) != c.cfg.Dim {
				c.log.Warn("dropping embedding with unexpected dimensionality",
					zap.Int("got", len(vec)),
					zap.Int("want", c.cfg.Dim),
				)
				continue
			}
			out[start+i] = vec
		}
	}

	return out, nil
}

// EmbedOne vectorizes a single text with a bounded in-process cache in
// front, used for query embedding where repeats are common. A cache hit
// costs no provider call.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.get(text); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return vec, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || vecs[0] == nil {
		return nil, fmt.Errorf("embedding has wrong dimensionality: %w", domain.ErrVectorDimMismatch)
	}

	c.cache.put(text, vecs[0])
	return vecs[0], nil
}
