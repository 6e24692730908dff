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

	"github.com/quarryhq/quarry/internal/config"
	dbRedis "github.com/quarryhq/quarry/internal/db/redis"
	logpkg "github.com/quarryhq/quarry/internal/logger"
	"github.com/quarryhq/quarry/internal/metrics"
	chunksrepo "github.com/quarryhq/quarry/internal/repository/chunks"
	"github.com/quarryhq/quarry/internal/repository/rerankcache"
	"github.com/quarryhq/quarry/internal/repository/resultcache"
	vectorrepo "github.com/quarryhq/quarry/internal/repository/vector"
	chiTransport "github.com/quarryhq/quarry/internal/transport/chi"
	hugotTransport "github.com/quarryhq/quarry/internal/transport/hugot"
	openaiTransport "github.com/quarryhq/quarry/internal/transport/openai"
	answeruc "github.com/quarryhq/quarry/internal/usecase/answer"
	expanduc "github.com/quarryhq/quarry/internal/usecase/expand"
	healthuc "github.com/quarryhq/quarry/internal/usecase/health"
	ingestuc "github.com/quarryhq/quarry/internal/usecase/ingest"
	lexicaluc "github.com/quarryhq/quarry/internal/usecase/lexical"
	rerankuc "github.com/quarryhq/quarry/internal/usecase/rerank"
	retrieveruc "github.com/quarryhq/quarry/internal/usecase/retriever"
	"github.com/quarryhq/quarry/internal/version"
)

func main() {
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

	logger.Info("Starting quarry API server",
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

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterSearchMetrics()
	metrics.RegisterHTTPMetrics()

	embedder := openaiTransport.NewEmbedder(
		cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimensions,
	)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Repositories
	chunkRepo := chunksrepo.New(store, cfg.Storage.KeyPrefix, cfg.Embedding.Dimensions)
	vectorSearcher := vectorrepo.New(store, embedder, chunkRepo.Keys())

	var cache retrieveruc.ResultCache
	if cfg.Cache.Enabled {
		cache = resultcache.New(
			store, cfg.Storage.KeyPrefix,
			time.Duration(cfg.Cache.BaseTTLSec)*time.Second,
			time.Duration(cfg.Cache.MaxTTLSec)*time.Second,
			metrics.ResultCacheTotal, logger,
		)
	}

	// Lexical index manager over the chunk store
	lexManager := lexicaluc.NewManager(
		lexicaluc.NewRepoSource(chunkRepo), metrics.LexicalRebuildsTotal, logger,
	)

	// Cross-encoder: a load failure disables reranking, it never blocks startup
	var encoder rerankuc.CrossEncoder
	if cfg.Rerank.Enabled {
		ce, err := hugotTransport.New(cfg.Rerank.Model, cfg.Rerank.ModelDir, logger)
		if err != nil {
			logger.Warn("Cross-encoder unavailable, reranking disabled", zap.Error(err))
		} else {
			encoder = ce
			defer func() { _ = ce.Close() }()
		}
	}
	scoreCache := rerankcache.New(
		store, cfg.Storage.KeyPrefix,
		time.Duration(cfg.Rerank.CacheTTLSec)*time.Second,
		metrics.RerankCacheTotal, logger,
	)
	reranker := rerankuc.New(encoder, scoreCache, cfg.Rerank.MaxCandidates, metrics.RerankTotal, logger)

	// Query expansion
	var expander retrieveruc.QueryExpander
	if cfg.Expansion.Enabled {
		var llm expanduc.LLMExpander
		if cfg.Expansion.LLM {
			chat := openaiTransport.NewChat(
				cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Expansion.LLMModel, 256, 0.3,
			)
			llm = expanduc.NewLLMClient(chat, cfg.Expansion.LLMMaxTerms, logger)
		}
		exp, err := expanduc.New(cfg.Expansion.DictPath, cfg.Expansion.MaxExpansions, llm, logger)
		if err != nil {
			logger.Fatal("Failed to load synonym dictionary", zap.Error(err))
		}
		expander = exp
	}

	// Use case services
	searchSvc := retrieveruc.New(vectorSearcher, lexManager, expander, reranker, cache, retrieveruc.Options{
		DefaultTopK:    cfg.Search.DefaultTopK,
		MaxTopK:        cfg.Search.MaxTopK,
		CandidateCount: cfg.Search.CandidateCount,
	}, logger)

	answerChat := openaiTransport.NewChat(
		cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Answer.Model,
		cfg.Answer.MaxTokens, cfg.Answer.Temperature,
	)
	answerSvc := answeruc.New(searchSvc, answerChat, cfg.Search.DefaultTopK, logger)

	ingestSvc := ingestuc.New(chunkRepo, embedder, searchSvc, logger)
	healthSvc := healthuc.New(store, encoder != nil)

	server := chiTransport.NewServer(searchSvc, answerSvc, ingestSvc, healthSvc, logger)

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

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.WithContext(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

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
