package zilliz

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/storage/models"
	"github.com/ledgerlens/backend/pkg/logger"
)

// Metadata fields stored next to each vector, in the order snippets list them.
var metadataFields = []string{"vendor", "account", "period", "amount", "text"}

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(ctx context.Context, endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	cfg := client.Config{Address: endpoint}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	c, err := client.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Zilliz/Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (z *Client) Close() error {
	return z.client.Close()
}

func (z *Client) CreateCollection(ctx context.Context) error {
	has, err := z.client.HasCollection(ctx, z.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", z.collectionName))
		return z.client.LoadCollection(ctx, z.collectionName, false)
	}

	schema := &entity.Schema{
		CollectionName: z.collectionName,
		Description:    "Ledger entry embeddings",
		Fields: []*entity.Field{
			varchar("chunk_id", 64).WithIsPrimaryKey(true),
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(z.vectorDim),
				},
			},
			varchar("text", 4096),
			varchar("vendor", 256),
			varchar("account", 256),
			varchar("period", 32),
			varchar("amount", 32),
		},
	}

	err = z.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	err = z.client.CreateIndex(ctx, z.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = z.client.LoadCollection(ctx, z.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", z.collectionName))

	return nil
}

func varchar(name string, maxLength int) *entity.Field {
	return &entity.Field{
		Name:     name,
		DataType: entity.FieldTypeVarChar,
		TypeParams: map[string]string{
			"max_length": strconv.Itoa(maxLength),
		},
	}
}

func (z *Client) Insert(ctx context.Context, chunks []models.LedgerChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	columns, err := insertColumns(chunks, z.vectorDim)
	if err != nil {
		return err
	}

	if _, err := z.client.Insert(ctx, z.collectionName, "", columns...); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := z.client.Flush(ctx, z.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks inserted into vector DB", zap.Int("count", len(chunks)))

	return nil
}

func insertColumns(chunks []models.LedgerChunk, dim int) ([]entity.Column, error) {
	ids := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	texts := make([]string, len(chunks))
	vendors := make([]string, len(chunks))
	accounts := make([]string, len(chunks))
	periods := make([]string, len(chunks))
	amounts := make([]string, len(chunks))

	for i, chunk := range chunks {
		if len(chunk.Embedding) != dim {
			return nil, fmt.Errorf("chunk %s: embedding has %d dimensions, collection expects %d", chunk.ID, len(chunk.Embedding), dim)
		}
		ids[i] = chunk.ID
		embeddings[i] = chunk.Embedding
		texts[i] = chunk.Text
		vendors[i] = chunk.Vendor
		accounts[i] = chunk.Account
		periods[i] = chunk.Period
		amounts[i] = chunk.Amount
	}

	return []entity.Column{
		entity.NewColumnVarChar("chunk_id", ids),
		entity.NewColumnFloatVector("embedding", dim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("vendor", vendors),
		entity.NewColumnVarChar("account", accounts),
		entity.NewColumnVarChar("period", periods),
		entity.NewColumnVarChar("amount", amounts),
	}, nil
}

// Search returns the topK nearest ledger chunks as snippets.
func (z *Client) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]models.Snippet, error) {
	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	outputFields := append([]string{"chunk_id"}, metadataFields...)
	searchResult, err := z.client.Search(
		ctx,
		z.collectionName,
		[]string{},
		"",
		outputFields,
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results, err := toSnippets(searchResult)
	if err != nil {
		return nil, err
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
	)

	return results, nil
}

func toSnippets(searchResult []client.SearchResult) ([]models.Snippet, error) {
	results := make([]models.Snippet, 0)
	for _, sr := range searchResult {
		if sr.Err != nil {
			return nil, fmt.Errorf("search result error: %w", sr.Err)
		}
		for i := 0; i < sr.ResultCount; i++ {
			snippet := models.Snippet{}
			if i < len(sr.Scores) {
				snippet.Score = float64(sr.Scores[i])
			}
			if col := sr.Fields.GetColumn("chunk_id"); col != nil {
				snippet.ID = columnString(col, i)
			}
			for _, name := range metadataFields {
				col := sr.Fields.GetColumn(name)
				if col == nil {
					continue
				}
				if v := columnString(col, i); v != "" {
					snippet.Fields = append(snippet.Fields, models.Field{Key: name, Value: v})
				}
			}
			results = append(results, snippet)
		}
	}
	return results, nil
}

func columnString(col entity.Column, i int) string {
	v, err := col.Get(i)
	if err != nil || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
