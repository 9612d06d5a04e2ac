package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/middleware/ratelimit"
	"github.com/ledgerlens/backend/internal/middleware/validation"
	"github.com/ledgerlens/backend/internal/query"
	"github.com/ledgerlens/backend/pkg/apperrors"
	"github.com/ledgerlens/backend/pkg/logger"
)

// QueryProcessor is the part of query.Engine the transport layer needs.
type QueryProcessor interface {
	Process(ctx context.Context, req query.Request) (*query.Response, error)
}

type QueryResponse struct {
	RequestID      string       `json:"requestId"`
	Summary        string       `json:"summary"`
	RawData        string       `json:"rawData"`
	ProvenanceNote string       `json:"provenanceNote,omitempty"`
	LatencyMS      int          `json:"latencyMs"`
	Debug          *query.Debug `json:"debug,omitempty"`
}

type QueryHandler struct {
	engine QueryProcessor
	debug  bool
}

// NewQueryHandler builds the POST /query handler. With debug set every
// response carries the engine's Debug block.
func NewQueryHandler(engine QueryProcessor, debug bool) *QueryHandler {
	return &QueryHandler{
		engine: engine,
		debug:  debug,
	}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	body, ok := validation.BodyFrom(c)
	if !ok {
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Query is required"})
		}
	}

	resp, err := h.engine.Process(c.UserContext(), query.Request{
		Query:    body.Query,
		ClientID: ratelimit.ClientKey(c),
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(h.render(resp))
}

func (h *QueryHandler) render(resp *query.Response) QueryResponse {
	out := QueryResponse{
		RequestID:      resp.RequestID,
		Summary:        resp.Summary,
		RawData:        resp.RawData,
		ProvenanceNote: resp.ProvenanceNote,
		LatencyMS:      resp.LatencyMS,
	}
	if h.debug {
		dbg := resp.Debug
		out.Debug = &dbg
	}
	return out
}

// writeError maps pipeline errors onto the HTTP contract: 400 {message} for
// invalid requests, 500 {error} for everything else.
func writeError(c *fiber.Ctx, err error) error {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		logger.Error("Unhandled query failure", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	if appErr.Code == apperrors.CodeInvalidRequest {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": appErr.Message})
	}

	logger.Error("Query failed",
		zap.String("code", string(appErr.Code)),
		zap.Error(err),
	)
	payload := fiber.Map{
		"error": appErr.Message,
		"code":  appErr.Code,
	}
	if appErr.Code == apperrors.CodeMalformedIntent {
		payload["classifierOutput"] = appErr.Details
	}
	return c.Status(apperrors.StatusOf(err)).JSON(payload)
}
