// Package ingest runs the per-file pipeline: load, chunk, embed, store,
// summarize. Embedding fans out over a bounded worker pool; everything else
// is sequential.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/m4s1t4/karen/internal/domain"
	"github.com/m4s1t4/karen/internal/metrics"
)

// Config tunes the ingestion pipeline.
type Config struct {
	MaxWorkers     int // embedding worker pool cap
	EmbedBatchSize int // chunks per worker batch
}

// Service is the ingestion pipeline.
type Service struct {
	loader   Loader
	chunker  Chunker
	embedder Embedder
	chunks   ChunkStore
	scopes   ScopeResolver
	cfg      Config
	log      *zap.Logger
}

// New creates an ingestion service.
func New(
	l Loader, c Chunker, e Embedder, cs ChunkStore, sr ScopeResolver,
	cfg Config, log *zap.Logger,
) *Service {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 8
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 100
	}
	return &Service{
		loader:   l,
		chunker:  c,
		embedder: e,
		chunks:   cs,
		scopes:   sr,
		cfg:      cfg,
		log:      log,
	}
}

// Ingest processes one file into the given conversation scope. A missing or
// empty scope ID resolves to a freshly created scope; the summary carries
// the ID actually used, which the caller must report back.
func (s *Service) Ingest(ctx context.Context, filePath, scopeID string) (*Summary, error) {
	start := time.Now()

	summary, err := s.ingest(ctx, filePath, scopeID)

	status := "success"
	switch {
	case err != nil:
		status = "failed"
	case summary.SuccessRate() < 1:
		status = "degraded"
	}
	metrics.IngestDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	return summary, err
}

func (s *Service) ingest(ctx context.Context, filePath, scopeID string) (*Summary, error) {
	scopeID, err := s.resolveScope(ctx, scopeID)
	if err != nil {
		return nil, err
	}

	units, err := s.loader.Load(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filePath, err)
	}

	var chunks []domain.Chunk
	for _, u := range units {
		chunks = append(chunks, s.chunker.Split(u.Text, domain.ChunkMeta{
			Source: u.Source,
			Page:   u.Page,
		})...)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunk %s: %w", filePath, domain.ErrNoTextUnits)
	}
	// chunk indexes are per unit at this point; renumber across the file
	for i := range chunks {
		chunks[i].Meta.ChunkIndex = i
		chunks[i].Meta.TotalChunks = len(chunks)
	}

	vectors, err := s.embedAll(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", filePath, err)
	}

	accepted := make([]domain.Chunk, 0, len(chunks))
	dropped := 0
	for i, vec := range vectors {
		if vec == nil {
			dropped++
			continue
		}
		chunks[i].Embedding = vec
		accepted = append(accepted, chunks[i])
	}
	metrics.IngestedChunksTotal.WithLabelValues("dropped").Add(float64(dropped))
	if len(accepted) == 0 {
		return nil, fmt.Errorf("embed %s: %w", filePath, domain.ErrNoValidEmbeddings)
	}

	stored, retried, err := s.chunks.Store(ctx, scopeID, accepted)
	metrics.IngestedChunksTotal.WithLabelValues("stored").Add(float64(stored))
	metrics.IngestedChunksTotal.WithLabelValues("failed").Add(float64(len(accepted) - stored))
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", filePath, err)
	}
	if stored == 0 {
		return nil, fmt.Errorf("store %s: %w", filePath, domain.ErrNothingStored)
	}
	if stored < len(accepted) {
		s.log.Warn("ingestion degraded",
			zap.String("file", filePath),
			zap.Int("accepted", len(accepted)),
			zap.Int("stored", stored),
		)
	}

	return &Summary{
		FileName:      filepath.Base(filePath),
		ScopeID:       scopeID,
		NumChunks:     len(accepted),
		StoredChunks:  stored,
		DroppedChunks: dropped,
		Retries:       retried,
		Chunks:        stripEmbeddings(accepted),
	}, nil
}

// resolveScope returns a usable scope ID, creating a chat when the given one
// is empty or missing. A missing referenced scope is recoverable but logged,
// never silently swapped.
func (s *Service) resolveScope(ctx context.Context, scopeID string) (string, error) {
	if scopeID != "" {
		ok, err := s.scopes.Exists(ctx, scopeID)
		if err != nil {
			return "", fmt.Errorf("resolve scope %s: %w", scopeID, err)
		}
		if ok {
			return scopeID, nil
		}
		s.log.Warn("referenced chat missing, creating a new one", zap.String("chat_id", scopeID))
	}

	chat, err := s.scopes.Create(ctx, "New chat", "")
	if err != nil {
		return "", fmt.Errorf("create scope: %w", err)
	}
	return chat.ID, nil
}

// embedAll vectorizes all chunks, fanning batches out over a worker pool
// sized to min(MaxWorkers, batches). Results merge by batch index, so the
// output is aligned with the input regardless of completion order.
func (s *Service) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	numBatches := (len(chunks) + s.cfg.EmbedBatchSize - 1) / s.cfg.EmbedBatchSize
	results := make([][][]float32, numBatches)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(s.cfg.MaxWorkers, numBatches))

	for b := 0; b < numBatches; b++ {
		b := b
		start := b * s.cfg.EmbedBatchSize
		end := min(start+s.cfg.EmbedBatchSize, len(chunks))

		g.Go(func() error {
			texts := make([]string, end-start)
			for i, ch := range chunks[start:end] {
				texts[i] = ch.Content
			}
			vecs, err := s.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("batch %d: %w", b, err)
			}
			results[b] = vecs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([][]float32, 0, len(chunks))
	for _, batch := range results {
		merged = append(merged, batch...)
	}
	return merged, nil
}

func stripEmbeddings(chs []domain.Chunk) []domain.Chunk {
	out := make([]domain.Chunk, len(chs))
	for i, ch := range chs {
		ch.Embedding = nil
		out[i] = ch
	}
	return out
}
