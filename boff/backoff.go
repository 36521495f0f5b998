// This file contains helper functions for retrying operations with exponential backoff.
// The idea is to avoid repetition with common retry boilerplate code.
package boff

import (
	"context"
	"time"
	"uniswap-v2-crawler/config"
	"uniswap-v2-crawler/logger"

	"github.com/cenkalti/backoff/v5"
)

// Policy describes how a failing operation is retried. A zero MaxElapsedTime
// together with a zero MaxAttempts retries until the context is cancelled.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
	MaxAttempts     uint

	// Notify, when set, is called before every wait in addition to logging.
	Notify func(err error, d time.Duration)
}

func PolicyFromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		InitialInterval: time.Duration(cfg.InitialIntervalMillis) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.MaxIntervalMillis) * time.Millisecond,
		Multiplier:      cfg.Multiplier,
		MaxElapsedTime:  time.Duration(cfg.MaxElapsedSec) * time.Second,
		MaxAttempts:     cfg.MaxAttempts,
	}
}

func (p Policy) Unbounded() bool {
	return p.MaxElapsedTime == 0 && p.MaxAttempts == 0
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	bOff := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bOff.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bOff.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		bOff.Multiplier = p.Multiplier
	}
	return bOff
}

func RetryWithMaxElapsed[T any](ctx context.Context, operation func() (T, error), name string) (T, error) {
	return RetryWithPolicy(ctx, Policy{MaxElapsedTime: config.BackoffMaxElapsedTime}, operation, name)
}

// Permanent marks err as not worth retrying; RetryWithPolicy returns it at once.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func RetryWithPolicy[T any](ctx context.Context, policy Policy, operation func() (T, error), name string) (T, error) {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxElapsedTime(policy.MaxElapsedTime),
		backoff.WithNotify(
			func(err error, d time.Duration) {
				logger.Warn("%s error: %s - retrying after %v", name, err, d)
				if policy.Notify != nil {
					policy.Notify(err, d)
				}
			},
		),
	}
	if policy.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(policy.MaxAttempts))
	}

	return backoff.Retry(ctx, operation, opts...)
}
