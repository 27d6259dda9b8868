// Package backoff implements the exponential-backoff retry loop the
// ingest consumer uses both for the idempotency-gate claim and for the
// processor attempts of a single record.
package backoff

import (
	"context"
	"time"
)

type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2.0
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	return c
}

// Retry calls fn until it succeeds, shouldRetry(err) returns false, or
// the attempt budget is exhausted. It returns the last error seen. The
// delay between attempts starts at InitialDelay and grows by Multiplier
// each time, capped at MaxDelay.
//
// shouldRetry may be nil, in which case every error is retried up to
// MaxAttempts.
func Retry(ctx context.Context, cfg Config, shouldRetry func(error) bool, fn func() error) error {
	cfg = cfg.withDefaults()
	delay := cfg.InitialDelay

	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			return err
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return err
}
