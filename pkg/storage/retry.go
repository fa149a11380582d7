package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/apperror"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/timerange"
)

// Retrying wraps a Gateway and retries its read paths with exponential
// backoff. Writes, deletes and policy updates pass straight through.
type Retrying struct {
	Gateway

	attempts  int
	baseDelay time.Duration
	logger    *logging.Logger

	// sleep waits d or until ctx is done
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps gw. attempts is the total number of tries, so 3 means
// one call plus two retries.
func NewRetrying(gw Gateway, attempts int, baseDelay time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{
		Gateway:   gw,
		attempts:  attempts,
		baseDelay: baseDelay,
		logger:    logging.With("component", "gateway"),
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryable reports whether err may clear up on its own
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrClosed):
		return false
	}
	var ae *apperror.Error
	return !errors.As(err, &ae)
}

// do runs fn until it succeeds, fails permanently or attempts run out.
// Attempt n (from 0) waits baseDelay * 2^n before the next try.
func (r *Retrying) do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				r.logger.Info("Gateway call recovered", "op", op, "attempts", attempt+1)
			}
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == r.attempts-1 {
			break
		}

		delay := r.baseDelay * time.Duration(1<<uint(attempt))
		r.logger.Warn("Gateway call failed, retrying",
			"op", op, "attempt", attempt+1, "max_attempts", r.attempts, "delay", delay, "error", lastErr)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	r.logger.Error("Gateway call failed after retries", "op", op, "attempts", r.attempts, "error", lastErr)
	return apperror.Wrap(apperror.KindGatewayUnavailable,
		"storage is temporarily unavailable, try again later",
		fmt.Errorf("%s failed after %d attempts: %w", op, r.attempts, lastErr))
}

// FetchReadings retries the wrapped fetch
func (r *Retrying) FetchReadings(ctx context.Context, class reading.DataClass, sensorID string, window timerange.TimeWindow) ([]reading.Reading, error) {
	var out []reading.Reading
	err := r.do(ctx, "fetch_readings", func() error {
		var err error
		out, err = r.Gateway.FetchReadings(ctx, class, sensorID, window)
		return err
	})
	return out, err
}

// FetchRetentionPolicy retries the wrapped fetch
func (r *Retrying) FetchRetentionPolicy(ctx context.Context, class reading.DataClass) (reading.RetentionPolicy, error) {
	var out reading.RetentionPolicy
	err := r.do(ctx, "fetch_retention_policy", func() error {
		var err error
		out, err = r.Gateway.FetchRetentionPolicy(ctx, class)
		return err
	})
	return out, err
}

// Stats retries the wrapped stats call
func (r *Retrying) Stats(ctx context.Context) (*Stats, error) {
	var out *Stats
	err := r.do(ctx, "stats", func() error {
		var err error
		out, err = r.Gateway.Stats(ctx)
		return err
	})
	return out, err
}

// Unwrap returns the wrapped gateway
func (r *Retrying) Unwrap() Gateway {
	return r.Gateway
}
