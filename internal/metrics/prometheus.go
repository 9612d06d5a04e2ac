package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerlens_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerlens_query_total",
			Help: "Total number of queries processed, by outcome code",
		},
		[]string{"status"},
	)

	RowsReturned = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerlens_rows_returned",
			Help:    "Rows returned per data-store statement",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
		[]string{"query"},
	)

	SemanticSnippets = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledgerlens_semantic_snippets",
			Help:    "Semantic matches returned per search",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	SemanticOnlyFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerlens_semantic_only_total",
			Help: "Search-mode answers built without structured rows",
		},
	)

	RetrievalFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerlens_retrieval_failures_total",
			Help: "Failed retrieval calls by source",
		},
		[]string{"source"},
	)

	UnresolvedTerms = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerlens_unresolved_terms_total",
			Help: "Intent terms that matched no column, by where they appeared",
		},
		[]string{"kind"},
	)

	ConnectionTeardownFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerlens_connection_teardown_failures_total",
			Help: "Data-store sessions that failed to release",
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerlens_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	RowsIndexed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerlens_rows_indexed_total",
			Help: "Ledger rows written to the semantic index",
		},
		[]string{"backend"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QueryDuration,
			QueryTotal,
			RowsReturned,
			SemanticSnippets,
			SemanticOnlyFallbacks,
			RetrievalFailures,
			UnresolvedTerms,
			ConnectionTeardownFailures,
			LLMTokensUsed,
			RowsIndexed,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
