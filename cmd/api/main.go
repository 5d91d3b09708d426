package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/seanmckee-pacmet/contract-review-2/internal/api/handlers"
	"github.com/seanmckee-pacmet/contract-review-2/internal/cache/redis"
	"github.com/seanmckee-pacmet/contract-review-2/internal/catalog"
	"github.com/seanmckee-pacmet/contract-review-2/internal/chunker"
	"github.com/seanmckee-pacmet/contract-review-2/internal/llm"
	"github.com/seanmckee-pacmet/contract-review-2/internal/metrics"
	"github.com/seanmckee-pacmet/contract-review-2/internal/middleware/ratelimit"
	"github.com/seanmckee-pacmet/contract-review-2/internal/middleware/security"
	"github.com/seanmckee-pacmet/contract-review-2/internal/middleware/validation"
	"github.com/seanmckee-pacmet/contract-review-2/internal/parser"
	"github.com/seanmckee-pacmet/contract-review-2/internal/review"
	"github.com/seanmckee-pacmet/contract-review-2/internal/storage/sqlite"
	"github.com/seanmckee-pacmet/contract-review-2/internal/vector/milvus"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/config"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metrics.Init()

	storage, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	store, err := milvus.NewStore(cfg.Milvus.Endpoint, cfg.Milvus.VectorDim, cfg.Milvus.IndexNlist)
	if err != nil {
		logger.Fatal("Failed to initialize vector store", zap.Error(err))
	}
	defer store.Close()

	var embeddingCache llm.EmbeddingCache
	if cfg.Redis.Enabled {
		cache, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, running without embedding cache", zap.Error(err))
		} else {
			defer cache.Close()
			embeddingCache = cache
		}
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:             cfg.LLM.APIKey,
		Model:              cfg.LLM.Model,
		EmbeddingModel:     cfg.LLM.EmbeddingModel,
		Temperature:        cfg.LLM.Temperature,
		MaxTokens:          cfg.LLM.MaxTokens,
		EmbeddingBatchSize: cfg.LLM.EmbeddingBatchSize,
		EmbeddingRPS:       cfg.LLM.EmbeddingRPS,
		Cache:              embeddingCache,
		CacheTTL:           time.Duration(cfg.Redis.TTLHours) * time.Hour,
	})

	loader := catalog.NewLoader(cfg.Review.CatalogPath)

	pipeline := review.NewPipeline(
		parser.NewFileParser(),
		review.NewClassifier(llmClient, cfg.Review.ClassifySampleLen),
		review.NewPOAnalyzer(llmClient, cfg.Review.POSampleLen),
		llmClient,
		chunker.Config{ChunkSize: cfg.Review.ChunkSize, ChunkOverlap: cfg.Review.ChunkOverlap},
		cfg.Review.DocumentWorkers,
	)
	clauseAnalyzer := review.NewClauseAnalyzer(store, llmClient, llmClient, cfg.Review.TopK, cfg.Review.ClauseWorkers)
	orchestrator := review.NewOrchestrator(loader, pipeline, clauseAnalyzer, store, storage)

	reviewHandler := handlers.NewReviewHandler(orchestrator, storage)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{Logger: logger.GetLogger()})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		AllowedRoot: cfg.Review.DocumentRoot,
		Logger:      logger.GetLogger(),
	}))

	healthz := func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	}
	app.Get("/health", healthz)
	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")
	api.Get("/health", healthz)
	api.Post("/review", reviewHandler.HandleReview)
	api.Delete("/collections/:company", reviewHandler.HandleClearCollection)
	api.Get("/jobs", reviewHandler.HandleListJobs)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info("Server starting", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
}
