package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/api/handlers"
	"github.com/ledgerlens/backend/internal/bootstrap"
	"github.com/ledgerlens/backend/internal/diagnostics"
	"github.com/ledgerlens/backend/internal/llm"
	"github.com/ledgerlens/backend/internal/metrics"
	"github.com/ledgerlens/backend/internal/middleware/ratelimit"
	"github.com/ledgerlens/backend/internal/middleware/security"
	"github.com/ledgerlens/backend/internal/middleware/validation"
	"github.com/ledgerlens/backend/internal/query"
	"github.com/ledgerlens/backend/internal/search/semantic"
	"github.com/ledgerlens/backend/pkg/config"
	appLogger "github.com/ledgerlens/backend/pkg/logger"
	"github.com/ledgerlens/backend/pkg/retry"
	"github.com/ledgerlens/backend/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting ledgerlens API server")

	shutdownTracing, err := tracing.Init(cfg.Tracing.Enabled, cfg.Tracing.Exporter, cfg.Tracing.ServiceName)
	if err != nil {
		appLogger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	metrics.Init()

	ctx := context.Background()
	checks := map[string]handlers.Pinger{}

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg.Store)
	if err != nil {
		appLogger.Fatal("Failed to open ledger store", zap.Error(err))
	}
	defer closeStore()
	checks["store"] = store

	llmClient := llm.NewClient(cfg.LLM)

	var searcher query.Searcher
	switch cfg.Search.Backend {
	case "milvus":
		zillizClient, err := bootstrap.OpenZilliz(ctx, cfg.Zilliz)
		if err != nil {
			appLogger.Fatal("Failed to open vector index", zap.Error(err))
		}
		defer zillizClient.Close()
		timeout := time.Duration(cfg.Search.TimeoutSec) * time.Second
		searcher = semantic.NewSearcher(llmClient, zillizClient, cfg.Search.TopK, timeout, appLogger.Named("semantic"))
	case "elasticsearch":
		esClient, err := bootstrap.OpenElastic(ctx, cfg.Elasticsearch, cfg.Search.TopK)
		if err != nil {
			appLogger.Fatal("Failed to open Elasticsearch", zap.Error(err))
		}
		checks["elasticsearch"] = esClient
		searcher = esClient
	default:
		appLogger.Warn("Semantic search disabled; search-mode answers use structured data only")
	}

	var counter diagnostics.TermCounter
	if cfg.Redis.Enabled {
		redisCounter := diagnostics.NewRedisCounter(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		rc := retry.DefaultConfig()
		rc.Logger = appLogger.Named("bootstrap")
		if err := retry.Connect(ctx, rc, "redis", redisCounter.Ping); err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisCounter.Close()
		checks["redis"] = redisCounter
		counter = redisCounter
	}
	recorder := diagnostics.NewRecorder(counter, appLogger.Named("diagnostics"))

	engine := query.NewEngine(query.Deps{
		Classifier: llmClient,
		Summarizer: llmClient,
		Store:      store,
		Retriever:  query.NewRetriever(searcher, cfg.Search.PrefixDataType, appLogger.Named("retriever")),
		Reporter:   recorder,
		Target:     bootstrap.Target(cfg.Store),
		Logger:     appLogger.Named("query"),
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	allowOrigins := "*"
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.Server.AllowedOrigins, ",")
	}

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + ratelimit.ClientHeader,
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{IsDevelopment: cfg.Server.Debug}))

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.Server.RateLimitPerMinute,
		Logger:            appLogger.Named("ratelimit"),
	})
	defer limiter.Stop()

	validate := validation.QueryBodyMiddleware(validation.Config{
		MaxQueryLength: cfg.Server.MaxQueryLength,
		Logger:         appLogger.Named("validation"),
	})

	handlers.Register(app, handlers.Routes{
		Query:       handlers.NewQueryHandler(engine, cfg.Server.Debug),
		WebSocket:   handlers.NewWebSocketHandler(engine, time.Duration(cfg.Server.WriteTimeout)*time.Second),
		Diagnostics: handlers.NewDiagnosticsHandler(recorder),
		Health:      handlers.NewHealthHandler(checks),
		Limit:       limiter.Middleware(),
		Validate:    validate,
		Metrics:     metrics.MetricsHandler(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.String("store", cfg.Store.Driver),
		zap.String("search", cfg.Search.Backend),
		zap.Bool("debug", cfg.Server.Debug),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLogger.Error("Tracer shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
