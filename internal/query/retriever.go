package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerlens/backend/internal/format"
	"github.com/ledgerlens/backend/internal/intent"
	"github.com/ledgerlens/backend/internal/metrics"
	"github.com/ledgerlens/backend/internal/sqlgen"
	"github.com/ledgerlens/backend/internal/storage/models"
	"github.com/ledgerlens/backend/pkg/apperrors"
)

// SemanticOnlyNote is set exactly when structured retrieval produced no rows
// and a semantic search succeeded, so the answer rests on it alone.
const SemanticOnlyNote = "results are based on semantic search only; structured data was unavailable"

// FusionResult is what retrieval hands to summarization and to the caller.
type FusionResult struct {
	SummaryInput   string
	RawOutput      string
	ProvenanceNote string

	AggregateRows int
	RawRows       int
	Snippets      int
	// Diagnostics lists degraded sources; never shown to end users.
	Diagnostics []string
}

// Retriever runs the structured and semantic lookups for one request and
// fuses their output.
type Retriever struct {
	searcher       Searcher
	prefixDataType bool
	log            *zap.Logger
}

// NewRetriever accepts a nil searcher, in which case search mode relies on
// the data store alone.
func NewRetriever(searcher Searcher, prefixDataType bool, log *zap.Logger) *Retriever {
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{searcher: searcher, prefixDataType: prefixDataType, log: log}
}

func (r *Retriever) Retrieve(ctx context.Context, text string, in intent.Intent, pair sqlgen.QueryPair, sess Session) (FusionResult, error) {
	if in.IsSummary() {
		return r.summary(ctx, pair, sess)
	}
	return r.search(ctx, text, in, pair, sess)
}

// summary is the fast path: aggregate only, and the store is the sole
// source of truth so its failure fails the request.
func (r *Retriever) summary(ctx context.Context, pair sqlgen.QueryPair, sess Session) (FusionResult, error) {
	agg, err := r.execute(ctx, sess, "aggregate", pair.Aggregate)
	if err != nil {
		metrics.RetrievalFailures.WithLabelValues("store").Inc()
		return FusionResult{}, apperrors.NewRetrievalFailure("data store", err)
	}

	table := format.Table(agg)
	return FusionResult{
		SummaryInput:  table,
		RawOutput:     table,
		AggregateRows: agg.Len(),
	}, nil
}

func (r *Retriever) search(ctx context.Context, text string, in intent.Intent, pair sqlgen.QueryPair, sess Session) (FusionResult, error) {
	var (
		agg, raw    models.ResultSet
		snippets    []models.Snippet
		aggErr      error
		rawErr      error
		semanticErr error
		g           errgroup.Group
	)

	// Both statements share the session, so they run one after the other
	// while the semantic lookup proceeds alongside.
	g.Go(func() error {
		agg, aggErr = r.execute(ctx, sess, "aggregate", pair.Aggregate)
		if aggErr != nil {
			return nil
		}
		raw, rawErr = r.execute(ctx, sess, "raw", pair.Raw)
		return nil
	})
	if r.searcher != nil {
		g.Go(func() error {
			snippets, semanticErr = r.searcher.Search(ctx, r.semanticText(text, in))
			return nil
		})
	}
	_ = g.Wait()

	semanticOK := r.searcher != nil && semanticErr == nil

	var res FusionResult
	if aggErr != nil {
		metrics.RetrievalFailures.WithLabelValues("store").Inc()
		if !semanticOK {
			if semanticErr != nil {
				metrics.RetrievalFailures.WithLabelValues("semantic").Inc()
			}
			return FusionResult{}, apperrors.NewRetrievalFailure("data store and semantic search", errors.Join(aggErr, semanticErr))
		}
		r.log.Warn("Data store failed, continuing with semantic matches", zap.Error(aggErr))
		res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("data store unavailable: %v", aggErr))
		agg = models.ResultSet{}
	}
	if rawErr != nil {
		// Totals are still authoritative; only the row listing is lost.
		metrics.RetrievalFailures.WithLabelValues("store").Inc()
		r.log.Warn("Raw ledger rows failed, continuing with totals", zap.Error(rawErr))
		res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("ledger rows unavailable: %v", rawErr))
		raw = models.ResultSet{}
	}
	if semanticErr != nil {
		metrics.RetrievalFailures.WithLabelValues("semantic").Inc()
		r.log.Warn("Semantic search failed, continuing with structured rows", zap.Error(semanticErr))
		res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("semantic search unavailable: %v", semanticErr))
		snippets = nil
	}
	if r.searcher == nil {
		res.Diagnostics = append(res.Diagnostics, "semantic search not configured")
	}
	metrics.SemanticSnippets.Observe(float64(len(snippets)))

	res.AggregateRows = agg.Len()
	res.RawRows = raw.Len()
	res.Snippets = len(snippets)

	snippetText := format.Snippets(snippets)
	switch {
	case !agg.Empty():
		res.SummaryInput = format.Sections(
			format.Section{Title: "Ledger totals", Body: format.Table(agg)},
			format.Section{Title: "Related ledger entries", Body: snippetText},
		)
	case semanticOK:
		res.ProvenanceNote = SemanticOnlyNote
		metrics.SemanticOnlyFallbacks.Inc()
		res.SummaryInput = orNoResults(snippetText)
	default:
		// No semantic search ran, so nothing rests on it.
		res.SummaryInput = format.NoResults
	}

	rawSection := format.Section{Title: "Ledger rows"}
	if !raw.Empty() {
		rawSection.Body = format.Table(raw)
	}
	res.RawOutput = orNoResults(format.Sections(
		format.Section{Title: "Semantic matches", Body: snippetText},
		rawSection,
	))
	return res, nil
}

func (r *Retriever) semanticText(text string, in intent.Intent) string {
	if r.prefixDataType && in.DataType != "" {
		return string(in.DataType) + ": " + text
	}
	return text
}

// execute runs one statement and drops rows that are entirely NULL, which
// is what an ungrouped SUM over no matching rows yields.
func (r *Retriever) execute(ctx context.Context, sess Session, kind, sqlText string) (models.ResultSet, error) {
	rs, err := sess.Execute(ctx, sqlText)
	if err != nil {
		return models.ResultSet{}, fmt.Errorf("%s query: %w", kind, err)
	}
	rs = dropNullRows(rs)
	metrics.RowsReturned.WithLabelValues(kind).Observe(float64(rs.Len()))
	r.log.Debug("Statement executed", zap.String("query", kind), zap.Int("rows", rs.Len()))
	return rs, nil
}

func dropNullRows(rs models.ResultSet) models.ResultSet {
	out := models.ResultSet{Columns: rs.Columns, Rows: make([][]any, 0, len(rs.Rows))}
	for _, row := range rs.Rows {
		for _, v := range row {
			if v != nil {
				out.Rows = append(out.Rows, row)
				break
			}
		}
	}
	return out
}

func orNoResults(s string) string {
	if strings.TrimSpace(s) == "" {
		return format.NoResults
	}
	return s
}
