package validation

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// LocalsKey is where the validated body is stored for the handler.
const LocalsKey = "query_request"

// Markup has no business in a question about the ledger. SQL keywords are
// not screened: questions legitimately say "select" or "update", and the
// query text never reaches the database.
var scriptPattern = regexp.MustCompile(`(?i)(<\s*script|<\s*iframe|javascript:|on(error|load|click)\s*=)`)

// QueryBody is the accepted shape of POST /query.
type QueryBody struct {
	Query string `json:"query"`
}

type Config struct {
	MaxQueryLength int
	Logger         *zap.Logger
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": message})
}

// QueryBodyMiddleware validates a query request body and stores the
// sanitized QueryBody under LocalsKey.
func QueryBodyMiddleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 2000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if ct := c.Get(fiber.HeaderContentType); ct != "" && !strings.HasPrefix(ct, fiber.MIMEApplicationJSON) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"message": "Content-Type must be application/json",
			})
		}

		var body QueryBody
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return badRequest(c, "Query is required")
		}

		query := sanitize(body.Query)
		if query == "" {
			return badRequest(c, "Query is required")
		}
		if utf8.RuneCountInString(query) > cfg.MaxQueryLength {
			return badRequest(c, "Query exceeds maximum length")
		}
		if scriptPattern.MatchString(query) {
			cfg.Logger.Warn("Rejected query with script content",
				zap.String("ip", c.IP()),
				zap.String("query", query),
			)
			return badRequest(c, "Query contains disallowed content")
		}

		c.Locals(LocalsKey, QueryBody{Query: query})
		return c.Next()
	}
}

// BodyFrom returns the validated body, or false when the middleware did not
// run on this route.
func BodyFrom(c *fiber.Ctx) (QueryBody, bool) {
	body, ok := c.Locals(LocalsKey).(QueryBody)
	return body, ok
}

func sanitize(input string) string {
	return strings.TrimSpace(strings.ReplaceAll(input, "\x00", ""))
}
