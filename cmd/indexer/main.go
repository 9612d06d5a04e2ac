package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/bootstrap"
	"github.com/ledgerlens/backend/internal/ingestion"
	"github.com/ledgerlens/backend/internal/llm"
	"github.com/ledgerlens/backend/pkg/config"
	appLogger "github.com/ledgerlens/backend/pkg/logger"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg.Store)
	if err != nil {
		appLogger.Fatal("Failed to open ledger store", zap.Error(err))
	}
	defer closeStore()

	var (
		sink     ingestion.Sink
		embedder ingestion.Embedder
	)
	switch cfg.Search.Backend {
	case "milvus":
		zillizClient, err := bootstrap.OpenZilliz(ctx, cfg.Zilliz)
		if err != nil {
			appLogger.Fatal("Failed to open vector index", zap.Error(err))
		}
		defer zillizClient.Close()
		sink = zillizClient
		embedder = llm.NewClient(cfg.LLM)
	case "elasticsearch":
		esClient, err := bootstrap.OpenElastic(ctx, cfg.Elasticsearch, cfg.Search.TopK)
		if err != nil {
			appLogger.Fatal("Failed to open Elasticsearch", zap.Error(err))
		}
		sink = esClient
	default:
		appLogger.Info("Semantic search disabled; nothing to index")
		return
	}

	processor := ingestion.NewProcessor(store, embedder, sink, ingestion.Config{
		Target:    bootstrap.Target(cfg.Store),
		PageSize:  cfg.Indexer.PageSize,
		BatchSize: cfg.Indexer.BatchSize,
		Backend:   cfg.Search.Backend,
	}, appLogger.Named("indexer"))

	stats, err := processor.Run(ctx)
	if err != nil {
		appLogger.Error("Indexing failed",
			zap.Int("indexed", stats.Indexed),
			zap.Error(err),
		)
		appLogger.Sync()
		os.Exit(1)
	}

	appLogger.Info("Indexing complete",
		zap.Int("rows", stats.Rows),
		zap.Int("indexed", stats.Indexed),
		zap.Int("skipped", stats.Skipped),
	)
}
