// Package retry executes fallible operations under a bounded
// exponential-backoff policy. Classification of errors as transient or
// permanent is passed in by the caller, so the decision stays explicit and
// testable instead of being buried in transport code.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Policy bounds the retry behaviour of one operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BackoffBase is the multiplier applied to the wait between attempts.
	BackoffBase float64
	// InitialWait is the wait before the second attempt, pre-jitter.
	InitialWait time.Duration
	// MaxWait caps the wait between any two attempts.
	MaxWait time.Duration
}

// DefaultPolicy mirrors the configuration defaults: 3 attempts, base 2.0,
// waits capped at a minute.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BackoffBase: 2.0,
		InitialWait: time.Second,
		MaxWait:     60 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BackoffBase <= 1 {
		p.BackoffBase = 2.0
	}
	if p.InitialWait <= 0 {
		p.InitialWait = time.Second
	}
	if p.MaxWait <= 0 {
		p.MaxWait = 60 * time.Second
	}
	return p
}

// Do runs op until it succeeds, fails permanently, or the policy is
// exhausted. transient decides whether an error is worth another attempt;
// permanent errors are returned as-is on first occurrence. Exhaustion wraps
// the last underlying cause.
func Do(ctx context.Context, log *zap.Logger, p Policy, transient func(error) bool, op func(context.Context) error) error {
	p = p.normalized()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialWait
	b.Multiplier = p.BackoffBase
	b.MaxInterval = p.MaxWait
	b.MaxElapsedTime = 0

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		log.Warn("transient error, will retry",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	err := backoff.RetryNotify(wrapped, backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx), notify)
	if err == nil {
		return nil
	}
	if attempt >= p.MaxAttempts && transient(err) {
		return fmt.Errorf("retries exhausted after %d attempts: %w", attempt, err)
	}
	return err
}
