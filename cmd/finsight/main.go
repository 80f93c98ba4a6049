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

	"github.com/finsight-ai/finsight/internal/bus"
	"github.com/finsight-ai/finsight/internal/config"
	dbRedis "github.com/finsight-ai/finsight/internal/db/redis"
	"github.com/finsight-ai/finsight/internal/lexical"
	logpkg "github.com/finsight-ai/finsight/internal/logger"
	"github.com/finsight-ai/finsight/internal/metrics"
	chunkrepo "github.com/finsight-ai/finsight/internal/repository/chunk"
	staterepo "github.com/finsight-ai/finsight/internal/repository/state"
	chiTransport "github.com/finsight-ai/finsight/internal/transport/chi"
	"github.com/finsight-ai/finsight/internal/transport/edgar"
	"github.com/finsight-ai/finsight/internal/transport/openai"
	extractuc "github.com/finsight-ai/finsight/internal/usecase/extract"
	healthuc "github.com/finsight-ai/finsight/internal/usecase/health"
	indexuc "github.com/finsight-ai/finsight/internal/usecase/index"
	ingestuc "github.com/finsight-ai/finsight/internal/usecase/ingest"
	pipelineuc "github.com/finsight-ai/finsight/internal/usecase/pipeline"
	retrievaluc "github.com/finsight-ai/finsight/internal/usecase/retrieval"
	synthesisuc "github.com/finsight-ai/finsight/internal/usecase/synthesis"
	"github.com/finsight-ai/finsight/internal/version"
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

	logger.Info("Starting finsight API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.Strings("tickers", cfg.Ingestion.Tickers),
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

	// Register metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()
	metrics.RegisterProviderMetrics()
	metrics.RegisterHTTPMetrics()

	// Model providers — one API surface, two models
	embedder := openai.NewEmbedder(&openai.EmbedderConfig{
		APIKey:     cfg.Models.APIKey,
		BaseURL:    cfg.Models.BaseURL,
		Model:      cfg.Models.Embedding.Model,
		Dimensions: cfg.Models.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Models.Embedding.TimeoutSec) * time.Second,
		Logger:     logger,
	})
	llm := openai.NewLLM(&openai.LLMConfig{
		APIKey:  cfg.Models.APIKey,
		BaseURL: cfg.Models.BaseURL,
		Model:   cfg.Models.LLM.Model,
		Timeout: time.Duration(cfg.Models.LLM.TimeoutSec) * time.Second,
		Logger:  logger,
	})
	logger.Info("Model providers created",
		zap.String("embedding_model", cfg.Models.Embedding.Model),
		zap.Int("dimensions", cfg.Models.Embedding.Dimensions),
		zap.String("llm_model", cfg.Models.LLM.Model),
	)

	// Repositories
	stateRepo := staterepo.New(store, cfg.Storage.KeyPrefix)
	chunkRepo := chunkrepo.New(store, cfg.Storage.KeyPrefix).WithHNSW(chunkrepo.HNSWConfig{
		M:           cfg.Retrieval.HNSWM,
		EFConstruct: cfg.Retrieval.HNSWEFConstr,
	})
	if err := chunkRepo.EnsureIndex(ctx, cfg.Models.Embedding.Dimensions); err != nil {
		logger.Fatal("Failed to ensure semantic index", zap.Error(err))
	}

	lexIndex := lexical.New()

	// Bus and pipeline stages
	b := bus.New(logger)

	edgarClient := edgar.New(&edgar.Config{
		UserAgent:         cfg.Edgar.UserAgent,
		RequestsPerSecond: cfg.Edgar.RequestsPerSecond,
	}, logger)

	ingestSvc := ingestuc.NewService(edgarClient, stateRepo, b)
	extractSvc := extractuc.NewService(llm, stateRepo, b)
	indexSvc := indexuc.NewService(embedder, chunkRepo, lexIndex, stateRepo, b)

	// Warm the lexical index from durable chunk records before serving.
	startCtx := logpkg.ContextWithLogger(ctx, logger)
	if err := indexSvc.RebuildLexical(startCtx); err != nil {
		logger.Warn("Initial lexical index rebuild failed, starting empty", zap.Error(err))
	} else {
		logger.Info("Lexical index warmed", zap.Int("chunks", lexIndex.Size()))
	}

	orch := pipelineuc.New(b, stateRepo, ingestSvc, extractSvc, indexSvc, pipelineuc.Options{
		Tickers:        cfg.Ingestion.Tickers,
		PollInterval:   time.Duration(cfg.Ingestion.PollIntervalSec) * time.Second,
		ExtractWorkers: cfg.Ingestion.ExtractWorkers,
		IndexWorkers:   cfg.Ingestion.IndexWorkers,
	}, logger)
	orch.Start(ctx)

	// Query path
	retrievalSvc := retrievaluc.NewService(embedder, chunkRepo, lexIndex, chunkRepo, retrievaluc.Options{
		TopK: cfg.Retrieval.TopK,
		TopN: cfg.Retrieval.TopN,
	})
	if cfg.Retrieval.TraceFusion {
		retrievalSvc = retrievalSvc.WithTracer(retrievaluc.NewLogTracer())
	}
	synthesisSvc := synthesisuc.NewService(retrievalSvc, llm, cfg.Retrieval.RelevanceFloor)

	healthSvc := healthuc.New(store, embedder)

	server := chiTransport.NewServer(orch, synthesisSvc, stateRepo, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

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

	// Stop polling first, then drain in-flight bus deliveries.
	orch.Stop()
	b.Close()

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
						"code":    "internal_error",
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

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
