package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestConnect_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	cfg := Config{Attempts: 4, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Logger: zaptest.NewLogger(t)}

	err := Connect(context.Background(), cfg, "milvus", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestConnect_GivesUp(t *testing.T) {
	calls := 0
	cause := errors.New("connection refused")
	cfg := Config{Attempts: 2, InitialDelay: time.Millisecond}

	err := Connect(context.Background(), cfg, "redis", func(context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "redis unreachable after 2 attempts")
	assert.Equal(t, 2, calls)
}

func TestConnect_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{Attempts: 10, InitialDelay: time.Hour}

	calls := 0
	err := Connect(ctx, cfg, "elasticsearch", func(context.Context) error {
		calls++
		cancel()
		return errors.New("not yet")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
