// Package retry provides the resilience layer wrapped around every storage
// call: connection-readiness gating, a per-attempt timeout, and exponential
// backoff on transient network failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Defaults for storage operations.
const (
	DefaultMaxAttempts    = 5
	DefaultBaseDelay      = 1 * time.Second
	DefaultMaxDelay       = 15 * time.Second
	DefaultAttemptTimeout = 10 * time.Second
	DefaultWaitTimeout    = 10 * time.Second
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts    int           // Maximum number of attempts
	BaseDelay      time.Duration // Initial backoff delay, also the jitter range
	MaxDelay       time.Duration // Backoff ceiling
	AttemptTimeout time.Duration // Each attempt races this timeout
	WaitTimeout    time.Duration // How long to wait for connection readiness
}

// DefaultConfig returns the defaults used for storage operations.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
		AttemptTimeout: DefaultAttemptTimeout,
		WaitTimeout:    DefaultWaitTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	return c
}

// ErrNoData marks an operation that completed without returning a payload.
// Treated as transient: the backend may simply not be ready yet.
var ErrNoData = errors.New("no data returned from operation")

// transientSignatures are the error-message fragments that identify a
// transient network failure. Anything else is surfaced immediately.
var transientSignatures = []string{
	"failed to fetch",
	"network error",
	"network timeout",
	"request timeout",
	"connection refused",
}

// TransientError explicitly marks an error as transient regardless of its
// message.
type TransientError struct {
	Err error
}

func (e TransientError) Error() string { return e.Err.Error() }
func (e TransientError) Unwrap() error { return e.Err }

// Transient wraps an error to mark it as transient.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return TransientError{Err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoData) {
		return true
	}
	var te TransientError
	if errors.As(err, &te) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// Do executes fn with retries.
func Do(ctx context.Context, cfg Config, gate *Gate, fn func(ctx context.Context) error) error {
	_, err := DoWithResult(ctx, cfg, gate, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoWithResult executes fn with retries and returns its result.
//
// If the gate has not yet latched connected, the call first waits for a
// readiness probe to succeed (bounded by cfg.WaitTimeout). Each attempt races
// cfg.AttemptTimeout; a timed-out attempt counts as transient. A transient
// failure backs off min(BaseDelay*2^(attempt-1)+jitter, MaxDelay) and retries;
// a non-transient error propagates immediately. On the final attempt a
// transient error propagates as-is, except ErrNoData which is reported as
// retry exhaustion.
func DoWithResult[T any](ctx context.Context, cfg Config, gate *Gate, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	cfg = cfg.withDefaults()

	if gate != nil && !gate.Connected() {
		gate.WaitForConnection(ctx, cfg.WaitTimeout)
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := runAttempt(ctx, cfg.AttemptTimeout, fn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			if errors.Is(err, ErrNoData) {
				break
			}
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		wait := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
		wait += rand.Float64() * float64(cfg.BaseDelay)
		if wait > float64(cfg.MaxDelay) {
			wait = float64(cfg.MaxDelay)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(time.Duration(wait)):
		}
	}

	return zero, fmt.Errorf("operation failed after %d retries: %w", cfg.MaxAttempts, lastErr)
}

// runAttempt races fn against the attempt timeout. The operation itself is
// not aborted when the race is lost; its eventual result is discarded.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result T
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := fn(actx)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-actx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("request timeout after %s", timeout)
	}
}
