// Package elastic is the Elasticsearch alternative to the vector index: it
// answers semantic lookups with a multi_match query over indexed ledger text.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/storage/models"
	"github.com/ledgerlens/backend/pkg/circuitbreaker"
	"github.com/ledgerlens/backend/pkg/config"
	"github.com/ledgerlens/backend/pkg/logger"
)

// Field order for snippets; any other source fields follow alphabetically.
var snippetFields = []string{"vendor", "account", "period", "amount", "text"}

const indexMapping = `{
  "mappings": {
    "properties": {
      "text":    {"type": "text"},
      "vendor":  {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "account": {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "period":  {"type": "keyword"},
      "amount":  {"type": "keyword"}
    }
  }
}`

type Client struct {
	es    *elasticsearch.Client
	index string
	topK  int
	cb    *circuitbreaker.Breaker
	log   *zap.Logger
}

func NewClient(cfg config.ElasticsearchConfig, topK int) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		// A failed lookup degrades the answer; it is never retried.
		DisableRetry: true,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	if topK <= 0 {
		topK = 5
	}

	log := logger.Named("elastic")
	log.Info("Elasticsearch client initialized",
		zap.Strings("addresses", cfg.Addresses),
		zap.String("index", cfg.Index),
	)

	return &Client{
		es:    es,
		index: cfg.Index,
		topK:  topK,
		cb: circuitbreaker.New("elasticsearch", circuitbreaker.Config{
			FailureThreshold: 3,
			Cooldown:         15 * time.Second,
			Logger:           log,
		}),
		log: log,
	}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}
	return nil
}

// EnsureIndex creates the ledger index with its mapping if it is missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index error: %s", res.String())
	}

	c.log.Info("Index created", zap.String("index", c.index))
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string         `json:"_id"`
			Score  float64        `json:"_score"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a multi_match query for text and returns the topK hits.
func (c *Client) Search(ctx context.Context, text string) ([]models.Snippet, error) {
	body, err := json.Marshal(map[string]any{
		"size": c.topK,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  text,
				"fields": []string{"text^2", "vendor", "account"},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search: %w", err)
	}

	return circuitbreaker.Do(ctx, c.cb, func(ctx context.Context) ([]models.Snippet, error) {
		res, err := c.es.Search(
			c.es.Search.WithContext(ctx),
			c.es.Search.WithIndex(c.index),
			c.es.Search.WithBody(bytes.NewReader(body)),
		)
		if err != nil {
			return nil, fmt.Errorf("elasticsearch search failed: %w", err)
		}
		defer res.Body.Close()

		if res.IsError() {
			return nil, fmt.Errorf("elasticsearch search error: %s", res.String())
		}

		var parsed searchResponse
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("failed to decode search response: %w", err)
		}

		snippets := make([]models.Snippet, 0, len(parsed.Hits.Hits))
		for _, hit := range parsed.Hits.Hits {
			snippets = append(snippets, models.Snippet{
				ID:     hit.ID,
				Score:  hit.Score,
				Fields: sourceFields(hit.Source),
			})
		}

		c.log.Debug("Elasticsearch search completed", zap.Int("hits", len(snippets)))
		return snippets, nil
	})
}

func sourceFields(source map[string]any) []models.Field {
	fields := make([]models.Field, 0, len(source))
	seen := make(map[string]bool, len(snippetFields))
	for _, key := range snippetFields {
		seen[key] = true
		if v, ok := source[key]; ok && v != nil && fmt.Sprint(v) != "" {
			fields = append(fields, models.Field{Key: key, Value: fmt.Sprint(v)})
		}
	}

	var rest []string
	for key := range source {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		if v := source[key]; v != nil {
			fields = append(fields, models.Field{Key: key, Value: fmt.Sprint(v)})
		}
	}
	return fields
}

type ledgerDoc struct {
	Text    string `json:"text"`
	Vendor  string `json:"vendor,omitempty"`
	Account string `json:"account,omitempty"`
	Period  string `json:"period,omitempty"`
	Amount  string `json:"amount,omitempty"`
}

// Insert bulk-indexes chunks by ID, so re-running the indexer overwrites.
func (c *Client) Insert(ctx context.Context, chunks []models.LedgerChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, chunk := range chunks {
		meta := map[string]any{"index": map[string]string{"_index": c.index, "_id": chunk.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("failed to encode bulk action: %w", err)
		}
		doc := ledgerDoc{
			Text:    chunk.Text,
			Vendor:  chunk.Vendor,
			Account: chunk.Account,
			Period:  chunk.Period,
			Amount:  chunk.Amount,
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
	}

	res, err := c.es.Bulk(&buf, c.es.Bulk.WithContext(ctx), c.es.Bulk.WithIndex(c.index))
	if err != nil {
		return fmt.Errorf("elasticsearch bulk failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch bulk error: %s", res.String())
	}

	var parsed struct {
		Errors bool `json:"errors"`
	}
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read bulk response: %w", err)
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if parsed.Errors {
		return fmt.Errorf("elasticsearch bulk reported item errors")
	}

	c.log.Info("Chunks indexed", zap.Int("count", len(chunks)))
	return nil
}
