package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/designdex/internal/config"
	dbBadger "github.com/kailas-cloud/designdex/internal/db/badger"
	dbPostgres "github.com/kailas-cloud/designdex/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/designdex/internal/db/redis"
	"github.com/kailas-cloud/designdex/internal/domain"
	logpkg "github.com/kailas-cloud/designdex/internal/logger"
	"github.com/kailas-cloud/designdex/internal/metrics"
	catalogrepo "github.com/kailas-cloud/designdex/internal/repository/catalog"
	conceptrepo "github.com/kailas-cloud/designdex/internal/repository/concept"
	"github.com/kailas-cloud/designdex/internal/repository/embcache"
	"github.com/kailas-cloud/designdex/internal/repository/extcache"
	"github.com/kailas-cloud/designdex/internal/repository/hubstats"
	impressionrepo "github.com/kailas-cloud/designdex/internal/repository/impression"
	"github.com/kailas-cloud/designdex/internal/repository/popularity"
	chiTransport "github.com/kailas-cloud/designdex/internal/transport/chi"
	lcTransport "github.com/kailas-cloud/designdex/internal/transport/langchain"
	openaiTransport "github.com/kailas-cloud/designdex/internal/transport/openai"
	"github.com/kailas-cloud/designdex/internal/usecase/analyzer"
	embeddinguc "github.com/kailas-cloud/designdex/internal/usecase/embedding"
	"github.com/kailas-cloud/designdex/internal/usecase/expansion"
	healthuc "github.com/kailas-cloud/designdex/internal/usecase/health"
	impressionuc "github.com/kailas-cloud/designdex/internal/usecase/impression"
	"github.com/kailas-cloud/designdex/internal/usecase/retrieval"
	searchuc "github.com/kailas-cloud/designdex/internal/usecase/search"
	"github.com/kailas-cloud/designdex/internal/usecase/signals"
	"github.com/kailas-cloud/designdex/internal/version"
	"github.com/kailas-cloud/designdex/internal/worker"
)

// conceptRefresh is how long a concept snapshot is served before reloading.
const conceptRefresh = 5 * time.Minute

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting designdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("redis_addrs", cfg.Redis.Addrs),
		zap.String("llm_driver", cfg.LLM.Driver),
		zap.String("expansion_cache", cfg.ExpansionCache.Driver),
	)

	metrics.Register()
	ctx := context.Background()

	// Vector index + key-value store
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Redis.Addrs,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create redis store", zap.Error(err))
	}
	defer store.Close()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Redis not ready", zap.Error(err))
	}
	logger.Info("Connected to redis")

	// Concepts, popularity, impressions
	pg, err := dbPostgres.NewStore(ctx, dbPostgres.Config{DSN: cfg.Postgres.DSN, MaxConns: cfg.Postgres.MaxConns})
	if err != nil {
		logger.Fatal("Failed to create postgres store", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.WaitForReady(ctx, time.Duration(cfg.Postgres.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Postgres not ready", zap.Error(err))
	}
	if cfg.Postgres.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("Postgres migration failed", zap.Error(err))
		}
	}
	logger.Info("Connected to postgres")

	catalog := catalogrepo.New(store, catalogrepo.IndexConfig{
		Dimensions:  cfg.Embedding.Dimensions,
		M:           cfg.Redis.HNSWM,
		EFConstruct: cfg.Redis.HNSWEFConstruct,
	})
	if err := catalog.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure catalog index", zap.Error(err))
	}

	// Durable expansion tier
	stores := map[string]healthuc.Pinger{"redis": store, "postgres": pg}
	var kv extcache.KV = store
	if cfg.ExpansionCache.Driver == "badger" {
		bs, err := dbBadger.Open(cfg.ExpansionCache.BadgerPath, logger)
		if err != nil {
			logger.Fatal("Failed to open badger", zap.Error(err))
		}
		defer func() { _ = bs.Close() }()
		kv = bs
		stores["expansion_cache"] = bs
	}

	pool, err := worker.New(cfg.Workers.PoolSize,
		time.Duration(cfg.ExpansionCache.WriteTimeout)*time.Second, logger)
	if err != nil {
		logger.Fatal("Failed to create worker pool", zap.Error(err))
	}

	embedder := buildEmbedder(cfg, store, logger)
	llm, err := buildGenerator(cfg)
	if err != nil {
		logger.Fatal("Failed to create LLM generator", zap.Error(err))
	}
	logger.Info("Providers created",
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.String("llm_model", cfg.LLM.Model),
	)

	// Use cases
	expansionSvc := expansion.New(
		expansion.NewCache(), extcache.New(kv), llm, embedder, pool,
		time.Duration(cfg.LLM.TimeoutSec)*time.Second,
	)
	retrievalSvc := retrieval.New(catalog, embedder, expansionSvc, analyzer.New(expansionSvc), retrieval.Config{
		WidePool:        cfg.Search.WidePool,
		PerCategoryPool: cfg.Search.PerCategoryPool,
		NarrowPool:      cfg.Search.NarrowPool,
	})
	signalSvc := signals.New(
		hubstats.New(store),
		popularity.New(pg, cfg.Popularity.LookbackDays),
		conceptrepo.New(pg, conceptRefresh, logger),
		cfg.Popularity.TopN,
	)
	impressionSvc := impressionuc.New(impressionrepo.New(pg), pool)
	searchSvc := searchuc.New(retrievalSvc, signalSvc, impressionSvc, embedder, searchuc.Config{
		RequestTimeout:     time.Duration(cfg.Search.RequestTimeoutSec) * time.Second,
		BalancePerCategory: cfg.Search.BalancePerCat,
	})
	healthSvc := healthuc.New(stores, embedder)

	server := chiTransport.NewServer(searchSvc, impressionSvc, expansionSvc, healthSvc, cfg.HTTP.MaxImageBytes, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(cfg.Auth.APIKeys),
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

	shutdown := time.Duration(cfg.HTTP.ShutdownSec) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	// Flush pending cache writes and impressions before the stores close.
	if err := pool.Release(shutdown); err != nil {
		logger.Error("Error releasing worker pool", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// queryEmbedder is the full decorator chain seen by the pipeline.
type queryEmbedder interface {
	domain.Embedder
	domain.BatchEmbedder
	domain.ImageEmbedder
	domain.HealthChecker
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(cfg config.Config, store *dbRedis.Store, logger *zap.Logger) queryEmbedder {
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})

	cached := embcache.New(base, store, cfg.Embedding.Model,
		time.Duration(cfg.Embedding.CacheTTLHours)*time.Hour, metrics.EmbeddingCacheTotal, logger)

	instrumented := embeddinguc.NewInstrumentedEmbedder(
		cached, "openai", cfg.Embedding.Model, cfg.Embedding.MaxBatchSize, logger,
	)

	// Instruction prefix is outermost so the cache key includes it
	if cfg.Embedding.QueryInstruction != "" {
		return domain.NewInstructionEmbedder(instrumented, cfg.Embedding.QueryInstruction)
	}
	return instrumented
}

func buildGenerator(cfg config.Config) (expansion.Generator, error) {
	switch cfg.LLM.Driver {
	case "langchain":
		g, err := lcTransport.New(lcTransport.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("langchain generator: %w", err)
		}
		return g, nil
	default:
		return openaiTransport.NewChatGenerator(&openaiTransport.ChatConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: float32(cfg.LLM.Temperature),
			MaxTokens:   cfg.LLM.MaxTokens,
		}), nil
	}
}
