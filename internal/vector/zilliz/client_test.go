package zilliz

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/backend/internal/storage/models"
)

func TestToSnippets(t *testing.T) {
	results := []client.SearchResult{{
		ResultCount: 2,
		Scores:      []float32{0.25, 0.5},
		Fields: []entity.Column{
			entity.NewColumnVarChar("chunk_id", []string{"a", "b"}),
			entity.NewColumnVarChar("vendor", []string{"Acme Electric", "Baker Pumps"}),
			entity.NewColumnVarChar("account", []string{"LOE", ""}),
			entity.NewColumnVarChar("amount", []string{"1200", "800"}),
			entity.NewColumnVarChar("text", []string{"electric pump repair", "pump rebuild"}),
		},
	}}

	snippets, err := toSnippets(results)
	require.NoError(t, err)
	require.Len(t, snippets, 2)

	assert.Equal(t, models.Snippet{
		ID:    "a",
		Score: 0.25,
		Fields: []models.Field{
			{Key: "vendor", Value: "Acme Electric"},
			{Key: "account", Value: "LOE"},
			{Key: "amount", Value: "1200"},
			{Key: "text", Value: "electric pump repair"},
		},
	}, snippets[0])
	assert.Equal(t, "b", snippets[1].ID)
	assert.Len(t, snippets[1].Fields, 3)
}

func TestInsertColumns(t *testing.T) {
	chunks := []models.LedgerChunk{
		{ID: "1", Text: "pump", Embedding: []float32{0.1, 0.2}, Vendor: "Acme", Period: "2024-01-31", Amount: "10"},
		{ID: "2", Text: "rig", Embedding: []float32{0.3, 0.4}, Vendor: "Baker"},
	}

	cols, err := insertColumns(chunks, 2)
	require.NoError(t, err)
	require.Len(t, cols, 7)
	for _, col := range cols {
		assert.Equal(t, 2, col.Len(), col.Name())
	}
	assert.Equal(t, "chunk_id", cols[0].Name())

	_, err = insertColumns(chunks, 3)
	assert.Error(t, err)
}
