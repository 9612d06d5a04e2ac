// Package ingestion copies ledger rows into the semantic index so that
// search-mode questions can match entries by meaning as well as by keyword.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/format"
	"github.com/ledgerlens/backend/internal/metrics"
	"github.com/ledgerlens/backend/internal/query"
	"github.com/ledgerlens/backend/internal/schema"
	"github.com/ledgerlens/backend/internal/sqlgen"
	"github.com/ledgerlens/backend/internal/storage/models"
	"github.com/ledgerlens/backend/pkg/utils"
)

type Embedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Sink is a semantic index that accepts chunks keyed by ID.
type Sink interface {
	Insert(ctx context.Context, chunks []models.LedgerChunk) error
}

type Config struct {
	Target    sqlgen.Options
	PageSize  int
	BatchSize int
	// Backend labels the RowsIndexed metric.
	Backend string
}

type Processor struct {
	store    query.Store
	embedder Embedder
	sink     Sink
	cfg      Config
	log      *zap.Logger
}

type Stats struct {
	Pages   int
	Rows    int
	Indexed int
	Skipped int
}

// NewProcessor wires the indexer. embedder may be nil for sinks that do
// their own text matching.
func NewProcessor(store query.Store, embedder Embedder, sink Sink, cfg Config, log *zap.Logger) *Processor {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		store:    store,
		embedder: embedder,
		sink:     sink,
		cfg:      cfg,
		log:      log,
	}
}

// metadataColumns picks the catalog columns carried as index metadata.
type metadataColumns struct {
	key     string
	vendor  string
	account string
	period  string
	amount  string
}

func pickColumns(catalog schema.Catalog, amountColumn string) metadataColumns {
	lookup := func(term string) string {
		if target, ok := schema.Alias(term); ok {
			if col, ok := catalog.Lookup(target); ok {
				return col
			}
		}
		return ""
	}
	cols := metadataColumns{
		key:     catalog.Columns()[0],
		vendor:  lookup("vendor"),
		account: lookup("account"),
		period:  lookup("period"),
	}
	cols.amount, _ = catalog.Lookup(amountColumn)
	return cols
}

// Run indexes the whole ledger table page by page on one session.
func (p *Processor) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	var stats Stats

	sess, err := p.store.Acquire(ctx)
	if err != nil {
		return stats, fmt.Errorf("acquire session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			p.log.Error("Failed to release data-store session", zap.Error(cerr))
		}
	}()

	columns, err := sess.ListColumns(ctx, p.cfg.Target.Schema, p.cfg.Target.Table)
	if err != nil {
		return stats, fmt.Errorf("list columns: %w", err)
	}
	catalog := schema.NewCatalog(columns)
	if catalog.Len() == 0 {
		return stats, errors.New("ledger table has no columns")
	}
	meta := pickColumns(catalog, p.cfg.Target.AmountColumn)

	p.log.Info("Indexing ledger",
		zap.String("table", p.cfg.Target.Table),
		zap.String("key_column", meta.key),
		zap.Int("page_size", p.cfg.PageSize),
	)

	for offset := 0; ; offset += p.cfg.PageSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		page, err := sess.Execute(ctx, sqlgen.PageQuery(p.cfg.Target, meta.key, p.cfg.PageSize, offset))
		if err != nil {
			return stats, fmt.Errorf("read page at offset %d: %w", offset, err)
		}
		stats.Pages++
		stats.Rows += page.Len()

		chunks := toChunks(page, meta, p.cfg.Target.Table)
		stats.Skipped += page.Len() - len(chunks)

		for i := 0; i < len(chunks); i += p.cfg.BatchSize {
			end := min(i+p.cfg.BatchSize, len(chunks))
			if err := p.index(ctx, chunks[i:end]); err != nil {
				return stats, err
			}
			stats.Indexed += end - i
		}

		if page.Len() < p.cfg.PageSize {
			break
		}
	}

	p.log.Info("Ledger indexed",
		zap.Int("pages", stats.Pages),
		zap.Int("rows", stats.Rows),
		zap.Int("indexed", stats.Indexed),
		zap.Int("skipped", stats.Skipped),
		zap.Duration("elapsed", time.Since(start)),
	)
	return stats, nil
}

func (p *Processor) index(ctx context.Context, batch []models.LedgerChunk) error {
	if p.embedder != nil {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		embeddings, err := p.embedder.GenerateBatchEmbeddings(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(embeddings) != len(batch) {
			return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = embeddings[i]
		}
	}

	if err := p.sink.Insert(ctx, batch); err != nil {
		return fmt.Errorf("failed to write to index: %w", err)
	}
	metrics.RowsIndexed.WithLabelValues(p.cfg.Backend).Add(float64(len(batch)))
	return nil
}

// toChunks renders each row as "COLUMN: value" lines. Rows with no key or no
// text are skipped.
func toChunks(page models.ResultSet, meta metadataColumns, table string) []models.LedgerChunk {
	chunks := make([]models.LedgerChunk, 0, page.Len())
	for _, row := range page.Rows {
		values := make(map[string]string, len(page.Columns))
		fields := make([]models.Field, 0, len(page.Columns))
		for i, col := range page.Columns {
			v := format.Value(row[i])
			values[col] = v
			if v != "" {
				fields = append(fields, models.Field{Key: col, Value: v})
			}
		}

		key := values[meta.key]
		if key == "" || len(fields) == 0 {
			continue
		}
		chunks = append(chunks, models.LedgerChunk{
			ID:      utils.ContentID(table, key),
			Text:    format.Snippet(models.Snippet{Fields: fields}),
			Vendor:  values[meta.vendor],
			Account: values[meta.account],
			Period:  values[meta.period],
			Amount:  values[meta.amount],
		})
	}
	return chunks
}
