// Package retry waits for dependencies at process startup. Request-path calls
// never go through it: a failed outbound call during a request propagates.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Logger       *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		Attempts:     5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Logger:       zap.NewNop(),
	}
}

// Connect calls dial until it succeeds, the attempts run out, or ctx ends.
// The delay doubles after each failure up to MaxDelay.
func Connect(ctx context.Context, cfg Config, dependency string, dial func(ctx context.Context) error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	delay := cfg.InitialDelay
	var err error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err = dial(ctx); err == nil {
			if attempt > 1 {
				cfg.Logger.Info("Dependency reachable",
					zap.String("dependency", dependency),
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}
		if attempt == cfg.Attempts {
			break
		}

		cfg.Logger.Warn("Dependency not reachable yet",
			zap.String("dependency", dependency),
			zap.Int("attempt", attempt),
			zap.Duration("next_delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", dependency, ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("%s unreachable after %d attempts: %w", dependency, cfg.Attempts, err)
}
