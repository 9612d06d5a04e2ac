// Package bootstrap opens the configured backends for the server and the
// indexer. Every dial waits for its dependency with bounded backoff.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/search/elastic"
	"github.com/ledgerlens/backend/internal/sqlgen"
	"github.com/ledgerlens/backend/internal/storage"
	"github.com/ledgerlens/backend/internal/storage/postgres"
	"github.com/ledgerlens/backend/internal/storage/sqlite"
	"github.com/ledgerlens/backend/internal/vector/zilliz"
	"github.com/ledgerlens/backend/pkg/config"
	"github.com/ledgerlens/backend/pkg/logger"
	"github.com/ledgerlens/backend/pkg/retry"
)

func retryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.Logger = logger.Named("bootstrap")
	return cfg
}

// Target describes the ledger table queries are synthesized against.
func Target(cfg config.StoreConfig) sqlgen.Options {
	return sqlgen.Options{
		Schema:       cfg.Schema,
		Table:        cfg.Table,
		AmountColumn: cfg.AmountColumn,
		Dialect:      sqlgen.DialectFor(cfg.Driver),
	}
}

// OpenStore connects to the ledger database. A local sqlite file gets the
// ledger table created if it is missing.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (*storage.Store, func() error, error) {
	switch cfg.Driver {
	case "sqlite3":
		client, err := sqlite.NewClient(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := client.InitSchema(cfg.Table); err != nil {
			client.Close()
			return nil, nil, err
		}
		return client.Store(), client.Close, nil

	case "postgres":
		client, err := postgres.NewClient(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := retry.Connect(ctx, retryConfig(), "postgres", client.Ping); err != nil {
			client.Close()
			return nil, nil, err
		}
		return client.Store(), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// OpenZilliz dials Milvus and makes sure the ledger collection exists.
func OpenZilliz(ctx context.Context, cfg config.ZillizConfig) (*zilliz.Client, error) {
	var client *zilliz.Client
	err := retry.Connect(ctx, retryConfig(), "milvus", func(ctx context.Context) error {
		c, err := zilliz.NewClient(ctx, cfg.Endpoint, cfg.APIKey, cfg.CollectionName, cfg.VectorDim)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := client.CreateCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// OpenElastic builds the Elasticsearch client and makes sure the index exists.
func OpenElastic(ctx context.Context, cfg config.ElasticsearchConfig, topK int) (*elastic.Client, error) {
	client, err := elastic.NewClient(cfg, topK)
	if err != nil {
		return nil, err
	}
	if err := retry.Connect(ctx, retryConfig(), "elasticsearch", client.Ping); err != nil {
		return nil, err
	}
	if err := client.EnsureIndex(ctx); err != nil {
		return nil, err
	}

	logger.Info("Elasticsearch ready", zap.String("index", cfg.Index))
	return client, nil
}
