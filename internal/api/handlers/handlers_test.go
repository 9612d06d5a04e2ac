package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/backend/internal/diagnostics"
	"github.com/ledgerlens/backend/internal/middleware/ratelimit"
	"github.com/ledgerlens/backend/internal/middleware/validation"
	"github.com/ledgerlens/backend/internal/query"
	"github.com/ledgerlens/backend/internal/schema"
	"github.com/ledgerlens/backend/pkg/apperrors"
)

type fakeProcessor struct {
	resp *query.Response
	err  error
	got  query.Request
}

func (f *fakeProcessor) Process(_ context.Context, req query.Request) (*query.Response, error) {
	f.got = req
	return f.resp, f.err
}

func okResponse() *query.Response {
	return &query.Response{
		RequestID: "req-1",
		Summary:   "LOE expenses were highest in February.",
		RawData:   "| PER_END_DATE | TOTAL |\n| --- | --- |\n| 1/31/2024 | 1500 |",
		LatencyMS: 12,
		Debug:     query.Debug{ClassifierOutput: `{"data_type":"expense"}`, AggregateRows: 1},
	}
}

func newQueryApp(p QueryProcessor, debug bool) *fiber.App {
	app := fiber.New()
	h := NewQueryHandler(p, debug)
	app.Post("/query", validation.QueryBodyMiddleware(validation.Config{}), h.HandleQuery)
	app.Post("/bare", h.HandleQuery)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload), string(raw))
	return resp.StatusCode, payload
}

func TestHandleQuery_Success(t *testing.T) {
	p := &fakeProcessor{resp: okResponse()}
	status, payload := doJSON(t, newQueryApp(p, false), "POST", "/query", `{"query": " LOE by month "}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "LOE by month", p.got.Query)
	assert.Equal(t, "LOE expenses were highest in February.", payload["summary"])
	assert.Equal(t, okResponse().RawData, payload["rawData"])
	assert.NotContains(t, payload, "debug")
	assert.NotContains(t, payload, "provenanceNote")
}

func TestHandleQuery_DebugAndProvenance(t *testing.T) {
	resp := okResponse()
	resp.ProvenanceNote = query.SemanticOnlyNote
	p := &fakeProcessor{resp: resp}

	status, payload := doJSON(t, newQueryApp(p, true), "POST", "/query", `{"query": "pump repairs"}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, query.SemanticOnlyNote, payload["provenanceNote"])
	dbg, ok := payload["debug"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, `{"data_type":"expense"}`, dbg["classifierOutput"])
}

func TestHandleQuery_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{"invalid request", apperrors.NewInvalidRequest("Query is required"), 400, "message", "Query is required"},
		{"malformed intent", apperrors.NewMalformedIntent("not json", errors.New("bad")), 500, "classifierOutput", "not json"},
		{"schema unavailable", apperrors.NewSchemaUnavailable(errors.New("down")), 500, "code", "SCHEMA_UNAVAILABLE"},
		{"foreign error", errors.New("boom"), 500, "error", "Failed to process query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newQueryApp(&fakeProcessor{err: tt.err}, false)
			status, payload := doJSON(t, app, "POST", "/query", `{"query": "x"}`)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantValue, payload[tt.wantKey])
		})
	}
}

func TestHandleQuery_MissingQueryNeverReachesEngine(t *testing.T) {
	p := &fakeProcessor{resp: okResponse()}
	status, payload := doJSON(t, newQueryApp(p, false), "POST", "/query", `{}`)

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Query is required", payload["message"])
	assert.Empty(t, p.got.Query)
}

func TestHandleQuery_WithoutValidationMiddleware(t *testing.T) {
	p := &fakeProcessor{resp: okResponse()}
	status, _ := doJSON(t, newQueryApp(p, false), "POST", "/bare", `{"query": "LOE by month"}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "LOE by month", p.got.Query)
}

func TestErrorFrame(t *testing.T) {
	frame := errorFrame(apperrors.NewUpstreamFailure("classifier", errors.New("timeout")))
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "UPSTREAM_FAILURE", frame.Code)
	assert.Equal(t, "classifier call failed", frame.Error)

	frame = errorFrame(errors.New("boom"))
	assert.Equal(t, "Failed to process query", frame.Error)
}

func TestListUnresolved(t *testing.T) {
	rec := diagnostics.NewRecorder(nil, nil)
	rec.Unresolved(schema.Resolution{Term: "region", Kind: schema.KindGroupBy})
	rec.Unresolved(schema.Resolution{Term: "region", Kind: schema.KindGroupBy})

	app := fiber.New()
	app.Get("/unresolved", NewDiagnosticsHandler(rec).ListUnresolved)

	status, payload := doJSON(t, app, "GET", "/unresolved?limit=5", "")
	assert.Equal(t, fiber.StatusOK, status)
	terms := payload["terms"].([]any)
	require.Len(t, terms, 1)
	assert.Equal(t, map[string]any{"term": "region", "kind": "group_by", "count": 2.0}, terms[0])

	status, _ = doJSON(t, app, "GET", "/unresolved?limit=0", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReady(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	app := fiber.New()
	app.Get("/ready", NewHealthHandler(map[string]Pinger{"store": ok}).Ready)
	app.Get("/degraded", NewHealthHandler(map[string]Pinger{"store": ok, "redis": down}).Ready)
	app.Get("/health", NewHealthHandler(nil).Health)

	status, payload := doJSON(t, app, "GET", "/ready", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ready", payload["status"])

	status, payload = doJSON(t, app, "GET", "/degraded", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "connection refused", payload["dependencies"].(map[string]any)["redis"])

	status, payload = doJSON(t, app, "GET", "/health", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "healthy", payload["status"])
}

func TestRegister_LimitsEveryEngineRoute(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{RequestsPerMinute: 1})
	defer limiter.Stop()

	app := fiber.New()
	Register(app, Routes{
		Query:     NewQueryHandler(&fakeProcessor{resp: okResponse()}, false),
		WebSocket: NewWebSocketHandler(&fakeProcessor{resp: okResponse()}, 0),
		Health:    NewHealthHandler(nil),
		Limit:     limiter.Middleware(),
		Validate:  validation.QueryBodyMiddleware(validation.Config{}),
	})

	get := func(path, client string) int {
		req := httptest.NewRequest("GET", path, nil)
		req.Header.Set(ratelimit.ClientHeader, client)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusUpgradeRequired, get("/ws", "socket-client"))
	assert.Equal(t, fiber.StatusTooManyRequests, get("/ws", "socket-client"))
	assert.Equal(t, fiber.StatusUpgradeRequired, get("/ws", "other-client"))

	// The socket and HTTP routes share one budget per client.
	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query":"total LOE"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ratelimit.ClientHeader, "socket-client")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	assert.Equal(t, fiber.StatusOK, get("/api/v1/health", "socket-client"))
}
