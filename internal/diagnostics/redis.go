package diagnostics

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/schema"
	"github.com/ledgerlens/backend/pkg/logger"
)

const unresolvedKey = "ledgerlens:unresolved_terms"

// RedisCounter keeps unresolved-term counts in a sorted set shared by every
// server instance.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(host string, port int, password string, db int) *RedisCounter {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &RedisCounter{client: client}
}

func (c *RedisCounter) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}

func (c *RedisCounter) Increment(ctx context.Context, term string, kind schema.Kind) error {
	if err := c.client.ZIncrBy(ctx, unresolvedKey, 1, member(term, kind)).Err(); err != nil {
		return fmt.Errorf("failed to increment unresolved term: %w", err)
	}
	return nil
}

func (c *RedisCounter) Top(ctx context.Context, limit int) ([]TermCount, error) {
	entries, err := c.client.ZRevRangeWithScores(ctx, unresolvedKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read unresolved terms: %w", err)
	}

	out := make([]TermCount, 0, len(entries))
	for _, e := range entries {
		m, ok := e.Member.(string)
		if !ok {
			continue
		}
		term, kind := parseMember(m)
		out = append(out, TermCount{Term: term, Kind: kind, Count: int64(e.Score)})
	}
	return out, nil
}
