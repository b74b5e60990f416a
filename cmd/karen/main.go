package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/m4s1t4/karen/internal/chunker"
	"github.com/m4s1t4/karen/internal/config"
	dbRedis "github.com/m4s1t4/karen/internal/db/redis"
	"github.com/m4s1t4/karen/internal/loader"
	logpkg "github.com/m4s1t4/karen/internal/logger"
	"github.com/m4s1t4/karen/internal/metrics"
	chatsrepo "github.com/m4s1t4/karen/internal/repository/chats"
	chunksrepo "github.com/m4s1t4/karen/internal/repository/chunks"
	chiTransport "github.com/m4s1t4/karen/internal/transport/chi"
	openaiProvider "github.com/m4s1t4/karen/internal/transport/openai"
	answeruc "github.com/m4s1t4/karen/internal/usecase/answer"
	chatuc "github.com/m4s1t4/karen/internal/usecase/chat"
	embeddinguc "github.com/m4s1t4/karen/internal/usecase/embedding"
	healthuc "github.com/m4s1t4/karen/internal/usecase/health"
	ingestuc "github.com/m4s1t4/karen/internal/usecase/ingest"
	"github.com/m4s1t4/karen/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting karen API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterRAGMetrics()

	// Repositories
	chunkRepo := chunksrepo.New(store, chunksrepo.Config{
		BatchSize: cfg.RAG.StoreBatchSize,
		Pause:     time.Duration(cfg.RAG.StorePauseMS) * time.Millisecond,
		Dim:       cfg.OpenAI.Dimensions,
	}, logger)
	chatRepo := chatsrepo.New(store)

	if err := chunkRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure vector index", zap.Error(err))
	}

	// Model provider and embedding client
	provider := openaiProvider.New(&openaiProvider.Config{
		APIKey:          cfg.OpenAI.APIKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		EmbeddingModel:  cfg.OpenAI.EmbeddingModel,
		Dimensions:      cfg.OpenAI.Dimensions,
		CompletionModel: cfg.OpenAI.CompletionModel,
	})
	embedder := embeddinguc.New(provider, embeddinguc.Config{
		BatchSize: cfg.RAG.EmbedBatchSize,
		Dim:       cfg.OpenAI.Dimensions,
		CacheSize: cfg.RAG.EmbedCacheSize,
	}, logger)
	logger.Info("Model provider created",
		zap.String("embedding_model", cfg.OpenAI.EmbeddingModel),
		zap.String("completion_model", cfg.OpenAI.CompletionModel),
		zap.Int("dimensions", cfg.OpenAI.Dimensions),
	)

	// Use case services
	ingestSvc := ingestuc.New(
		loader.New(),
		chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		embedder,
		chunkRepo,
		chatRepo,
		ingestuc.Config{
			MaxWorkers:     cfg.RAG.MaxWorkers,
			EmbedBatchSize: cfg.RAG.EmbedBatchSize,
		},
		logger,
	)
	retriever := answeruc.NewRetriever(embedder, chunkRepo, answeruc.RetrieverConfig{
		TopK:      cfg.RAG.TopK,
		Threshold: cfg.RAG.Threshold,
	}, logger)
	synth := answeruc.NewSynthesizer(provider, cfg.OpenAI.Temperature)
	chatSvc := chatuc.New(
		chatRepo, chunkRepo, retriever, synth, chatuc.NewSummarizer(provider),
		chatuc.Config{HistoryWindow: cfg.RAG.HistoryWindow},
		logger,
	)
	healthSvc := healthuc.New(store, provider)

	// HTTP server
	server := chiTransport.NewServer(chatSvc, ingestSvc, healthSvc, cfg.HTTP.MaxUploadMB, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "INTERNAL_ERROR",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
