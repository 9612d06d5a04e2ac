package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/intent"
	"github.com/ledgerlens/backend/internal/metrics"
	"github.com/ledgerlens/backend/internal/schema"
	"github.com/ledgerlens/backend/internal/sqlgen"
	"github.com/ledgerlens/backend/pkg/apperrors"
)

const tracerName = "github.com/ledgerlens/backend/internal/query"

type Engine struct {
	classifier Classifier
	summarizer Summarizer
	store      Store
	retriever  *Retriever
	reporter   schema.Reporter
	target     sqlgen.Options
	log        *zap.Logger
	tracer     trace.Tracer
}

// Deps are the collaborators one Engine is built from. Reporter and Logger
// may be nil.
type Deps struct {
	Classifier Classifier
	Summarizer Summarizer
	Store      Store
	Retriever  *Retriever
	Reporter   schema.Reporter
	Target     sqlgen.Options
	Logger     *zap.Logger
}

type Request struct {
	Query    string
	ClientID string
}

type Response struct {
	RequestID      string
	Summary        string
	RawData        string
	ProvenanceNote string
	LatencyMS      int
	Debug          Debug
}

// Debug is everything the engine knew when it answered. It is only exposed
// to callers when the server runs in debug mode.
type Debug struct {
	ClassifierOutput string              `json:"classifierOutput"`
	Intent           intent.Intent       `json:"intent"`
	Queries          sqlgen.QueryPair    `json:"queries"`
	Resolutions      []schema.Resolution `json:"resolutions"`
	ProvenanceNote   string              `json:"provenanceNote,omitempty"`
	AggregateRows    int                 `json:"aggregateRows"`
	RawRows          int                 `json:"rawRows"`
	Snippets         int                 `json:"snippets"`
	Diagnostics      []string            `json:"diagnostics,omitempty"`
}

func NewEngine(deps Deps) *Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	retriever := deps.Retriever
	if retriever == nil {
		retriever = NewRetriever(nil, false, log)
	}
	return &Engine{
		classifier: deps.Classifier,
		summarizer: deps.Summarizer,
		store:      deps.Store,
		retriever:  retriever,
		reporter:   deps.Reporter,
		target:     deps.Target,
		log:        log,
		tracer:     otel.Tracer(tracerName),
	}
}

// Process answers one question. Every failure comes back as an
// *apperrors.Error.
func (e *Engine) Process(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	text := strings.TrimSpace(req.Query)
	if text == "" {
		return nil, apperrors.NewInvalidRequest("Query is required")
	}

	requestID := uuid.New().String()
	log := e.log.With(zap.String("request_id", requestID))

	ctx, span := e.tracer.Start(ctx, "query.Process", trace.WithAttributes(
		attribute.String("request_id", requestID),
	))
	mode := "unknown"
	defer func() {
		status := "ok"
		if err != nil {
			status = string(apperrors.CodeOf(err))
			if status == "" {
				status = "error"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.QueryTotal.WithLabelValues(status).Inc()
		metrics.QueryDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
		span.End()
	}()

	log.Info("Processing query", zap.String("query", text), zap.String("client_id", req.ClientID))

	raw, err := e.classify(ctx, text)
	if err != nil {
		return nil, err
	}
	in, err := intent.Parse(raw)
	if err != nil {
		log.Warn("Classifier output rejected", zap.String("classifier_output", raw), zap.Error(err))
		return nil, err
	}
	mode = string(in.Mode)
	span.SetAttributes(
		attribute.String("mode", mode),
		attribute.String("data_type", string(in.DataType)),
	)

	dbg := Debug{ClassifierOutput: raw, Intent: in}
	fusion, err := e.retrieve(ctx, log, text, in, &dbg)
	if err != nil {
		return nil, err
	}

	summary, err := e.summarize(ctx, text, fusion)
	if err != nil {
		return nil, err
	}

	latency := int(time.Since(start).Milliseconds())
	log.Info("Query processed successfully",
		zap.String("mode", mode),
		zap.Int("aggregate_rows", fusion.AggregateRows),
		zap.Int("raw_rows", fusion.RawRows),
		zap.Int("snippets", fusion.Snippets),
		zap.Bool("semantic_only", fusion.ProvenanceNote != ""),
		zap.Int("latency_ms", latency),
	)

	return &Response{
		RequestID:      requestID,
		Summary:        summary,
		RawData:        fusion.RawOutput,
		ProvenanceNote: fusion.ProvenanceNote,
		LatencyMS:      latency,
		Debug:          dbg,
	}, nil
}

func (e *Engine) classify(ctx context.Context, text string) (string, error) {
	ctx, span := e.tracer.Start(ctx, "query.classify")
	defer span.End()

	raw, err := e.classifier.Classify(ctx, text)
	if err != nil {
		return "", apperrors.NewUpstreamFailure("classifier", err)
	}
	return raw, nil
}

// retrieve holds one data-store session for catalog lookup, synthesis and
// retrieval, and releases it on every path before summarization starts.
func (e *Engine) retrieve(ctx context.Context, log *zap.Logger, text string, in intent.Intent, dbg *Debug) (FusionResult, error) {
	ctx, span := e.tracer.Start(ctx, "query.retrieve")
	defer span.End()

	sess, err := e.store.Acquire(ctx)
	if err != nil {
		return FusionResult{}, apperrors.NewSchemaUnavailable(fmt.Errorf("acquire session: %w", err))
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			metrics.ConnectionTeardownFailures.Inc()
			log.Error("Failed to release data-store session", zap.Error(apperrors.NewConnectionTeardownFailure(cerr)))
		}
	}()

	columns, err := sess.ListColumns(ctx, e.target.Schema, e.target.Table)
	if err != nil {
		return FusionResult{}, apperrors.NewSchemaUnavailable(err)
	}
	catalog := schema.NewCatalog(columns)
	if catalog.Len() == 0 {
		return FusionResult{}, apperrors.NewSchemaUnavailable(fmt.Errorf("table %q has no columns", e.target.Table))
	}

	resolver := schema.NewResolver(catalog, e.reporter)
	pair, err := sqlgen.Synthesize(in, resolver, e.target)
	dbg.Resolutions = resolver.Records()
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) && appErr.Code == apperrors.CodeMalformedIntent && appErr.Details == "" {
			appErr.Details = dbg.ClassifierOutput
		}
		return FusionResult{}, err
	}
	dbg.Queries = pair
	for _, note := range pair.Notes {
		log.Warn("Intent partially applied", zap.String("note", note))
	}
	log.Debug("Queries synthesized",
		zap.String("aggregate", pair.Aggregate),
		zap.String("raw", pair.Raw),
		zap.Strings("group_by", pair.GroupBy),
	)

	fusion, err := e.retriever.Retrieve(ctx, text, in, pair, sess)
	if err != nil {
		return FusionResult{}, err
	}
	dbg.ProvenanceNote = fusion.ProvenanceNote
	dbg.AggregateRows = fusion.AggregateRows
	dbg.RawRows = fusion.RawRows
	dbg.Snippets = fusion.Snippets
	dbg.Diagnostics = append(append(dbg.Diagnostics, pair.Notes...), fusion.Diagnostics...)
	return fusion, nil
}

func (e *Engine) summarize(ctx context.Context, text string, fusion FusionResult) (string, error) {
	ctx, span := e.tracer.Start(ctx, "query.summarize")
	defer span.End()

	summary, err := e.summarizer.Summarize(ctx, text, fusion.SummaryInput, fusion.ProvenanceNote)
	if err != nil {
		return "", apperrors.NewUpstreamFailure("summarizer", err)
	}
	return summary, nil
}
