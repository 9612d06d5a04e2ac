package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/schema"
)

const classifySystemPrompt = `You classify questions about an oil and gas company's general ledger.

Reply with a single JSON object and nothing else:
{
  "data_type": "expenses" | "revenue" | "balances" | other short noun,
  "group_by": [field, ...],
  "filters": {field: value | [values] | {"operator": "=|!=|>|>=|<|<=", "value": value}, "exclude": {field: value | [values]}},
  "keyword": [search term, ...],
  "mode": "summary" | "search"
}

Rules:
- Use "summary" when the user wants totals or a roll-up, "search" when they want to find specific entries.
- Put free-text things the user is looking for (equipment, work performed, descriptions) in "keyword", not in "filters".
- Only use field names from this vocabulary or exact column names: %s.
- Leave out anything the question does not ask for.`

const summarizeSystemPrompt = `You are a financial analyst answering questions about a general ledger.
Answer in 2-3 sentences using only the data provided. Quote figures exactly as given.
If the data says no results were found, say so plainly.`

// Classify asks the model for intent JSON. The reply is returned verbatim;
// validating it is the caller's job.
func (c *Client) Classify(ctx context.Context, text string) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: fmt.Sprintf(classifySystemPrompt, strings.Join(schema.Vocabulary(), ", ")),
		UserPrompt:   text,
		Temperature:  0.1,
		MaxTokens:    400,
	})
	if err != nil {
		return "", fmt.Errorf("failed to classify query: %w", err)
	}

	c.log.Debug("Query classified", zap.String("intent", resp.Content))

	return resp.Content, nil
}

// Summarize turns the fused data block into a short prose answer. A
// non-empty note is passed through so the model can hedge.
func (c *Client) Summarize(ctx context.Context, query, data, note string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nData:\n%s\n", query, data)
	if note != "" {
		fmt.Fprintf(&b, "\nNote: %s. Make clear the answer is lower confidence.\n", note)
	}

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: summarizeSystemPrompt,
		UserPrompt:   b.String(),
		Temperature:  0.2,
		MaxTokens:    300,
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize results: %w", err)
	}

	c.log.Info("Summary generated", zap.Int("summary_length", len(resp.Content)))

	return strings.TrimSpace(resp.Content), nil
}
