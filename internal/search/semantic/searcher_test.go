package semantic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/backend/internal/storage/models"
	"github.com/ledgerlens/backend/pkg/circuitbreaker"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) GenerateEmbedding(context.Context, string) ([]float32, error) {
	f.calls++
	return []float32{1, 0}, f.err
}

type fakeIndex struct {
	topK int
}

func (f *fakeIndex) Search(_ context.Context, embedding []float32, topK int) ([]models.Snippet, error) {
	f.topK = topK
	return []models.Snippet{{ID: "1", Fields: []models.Field{{Key: "vendor", Value: "Acme"}}}}, nil
}

func TestSearcher_EmbedsThenSearches(t *testing.T) {
	index := &fakeIndex{}
	s := NewSearcher(&fakeEmbedder{}, index, 0, 0, nil)

	out, err := s.Search(context.Background(), "pump repairs")
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, 5, index.topK)
}

func TestSearcher_FailsFastOnceOpen(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("rate limited")}
	s := NewSearcher(embedder, &fakeIndex{}, 3, 0, nil)

	for i := 0; i < 3; i++ {
		_, err := s.Search(context.Background(), "q")
		require.Error(t, err)
	}
	_, err := s.Search(context.Background(), "q")
	assert.True(t, errors.Is(err, circuitbreaker.ErrOpen))
	assert.Equal(t, 3, embedder.calls)
}
