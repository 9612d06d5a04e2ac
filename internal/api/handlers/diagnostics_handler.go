package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/diagnostics"
	"github.com/ledgerlens/backend/pkg/logger"
)

const maxUnresolvedLimit = 200

type UnresolvedLister interface {
	Top(ctx context.Context, limit int) ([]diagnostics.TermCount, error)
}

type DiagnosticsHandler struct {
	terms UnresolvedLister
}

func NewDiagnosticsHandler(terms UnresolvedLister) *DiagnosticsHandler {
	return &DiagnosticsHandler{terms: terms}
}

// ListUnresolved serves GET /api/v1/diagnostics/unresolved?limit=N.
func (h *DiagnosticsHandler) ListUnresolved(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > maxUnresolvedLimit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "limit must be between 1 and 200",
		})
	}

	terms, err := h.terms.Top(c.UserContext(), limit)
	if err != nil {
		logger.Error("Failed to list unresolved terms", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list unresolved terms",
		})
	}
	if terms == nil {
		terms = []diagnostics.TermCount{}
	}

	return c.JSON(fiber.Map{"terms": terms})
}

// Pinger is a dependency readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// Ready pings every dependency; any failure makes the instance not ready.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status := fiber.StatusOK
	results := make(fiber.Map, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			results[name] = err.Error()
			status = fiber.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != fiber.StatusOK {
		state = "not ready"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":       state,
		"dependencies": results,
	})
}
