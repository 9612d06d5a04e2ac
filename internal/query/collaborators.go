package query

import (
	"context"

	"github.com/ledgerlens/backend/internal/storage/models"
)

// Classifier turns free text into intent JSON. Its output is untrusted.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

// Summarizer writes a short prose answer from the fused data block. note is
// the provenance note and may be empty.
type Summarizer interface {
	Summarize(ctx context.Context, query, data, note string) (string, error)
}

// Store hands out one Session per request.
type Store interface {
	Acquire(ctx context.Context) (Session, error)
}

// Session is a single data-store connection. The engine is the only producer
// of the SQL passed to Execute, and always calls Close.
type Session interface {
	ListColumns(ctx context.Context, schemaName, table string) ([]string, error)
	Execute(ctx context.Context, sqlText string) (models.ResultSet, error)
	Close() error
}

// Searcher looks up ranked semantic matches for free text.
type Searcher interface {
	Search(ctx context.Context, text string) ([]models.Snippet, error)
}
