// Package semantic embeds free text and looks it up in a vector index.
package semantic

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/storage/models"
	"github.com/ledgerlens/backend/pkg/circuitbreaker"
)

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type VectorIndex interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]models.Snippet, error)
}

// Searcher is the vector-backed semantic search collaborator. An open
// breaker makes it fail fast so callers degrade without waiting.
type Searcher struct {
	embedder Embedder
	index    VectorIndex
	topK     int
	timeout  time.Duration
	cb       *circuitbreaker.Breaker
	log      *zap.Logger
}

func NewSearcher(embedder Embedder, index VectorIndex, topK int, timeout time.Duration, log *zap.Logger) *Searcher {
	if log == nil {
		log = zap.NewNop()
	}
	if topK <= 0 {
		topK = 5
	}
	return &Searcher{
		embedder: embedder,
		index:    index,
		topK:     topK,
		timeout:  timeout,
		cb: circuitbreaker.New("semantic-search", circuitbreaker.Config{
			FailureThreshold: 3,
			Cooldown:         15 * time.Second,
			Logger:           log,
		}),
		log: log,
	}
}

func (s *Searcher) Search(ctx context.Context, text string) ([]models.Snippet, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	return circuitbreaker.Do(ctx, s.cb, func(ctx context.Context) ([]models.Snippet, error) {
		embedding, err := s.embedder.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		snippets, err := s.index.Search(ctx, embedding, s.topK)
		if err != nil {
			return nil, err
		}
		s.log.Debug("Semantic search completed", zap.Int("snippets", len(snippets)))
		return snippets, nil
	})
}
