package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fastConfig keeps the backoff math intact but makes tests quick.
func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:    attempts,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		AttemptTimeout: 250 * time.Millisecond,
		WaitTimeout:    10 * time.Millisecond,
	}
}

func TestDoWithResult_TransientInvokedExactlyMaxAttempts(t *testing.T) {
	var calls int32
	_, err := DoWithResult(context.Background(), fastConfig(5), nil, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("TypeError: Failed to fetch")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 5 {
		t.Errorf("operation invoked %d times, want 5", got)
	}
	if !strings.Contains(err.Error(), "Failed to fetch") {
		t.Errorf("final error should carry the last cause, got %v", err)
	}
}

func TestDoWithResult_NonTransientInvokedOnce(t *testing.T) {
	var calls int32
	_, err := DoWithResult(context.Background(), fastConfig(5), nil, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("permission denied")
	})
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("operation invoked %d times, want 1", got)
	}
}

func TestDoWithResult_SucceedsAfterTransientFailures(t *testing.T) {
	var calls int32
	result, err := DoWithResult(context.Background(), fastConfig(5), nil, func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return "", errors.New("connection refused")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q, want ok", result)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("operation invoked %d times, want 3", got)
	}
}

func TestDoWithResult_NoDataReportsExhaustion(t *testing.T) {
	var calls int32
	_, err := DoWithResult(context.Background(), fastConfig(3), nil, func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, ErrNoData
	})
	if err == nil || !strings.Contains(err.Error(), "failed after 3 retries") {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("operation invoked %d times, want 3", got)
	}
}

func TestDoWithResult_AttemptTimeoutIsTransient(t *testing.T) {
	cfg := fastConfig(2)
	cfg.AttemptTimeout = 5 * time.Millisecond

	var calls int32
	_, err := DoWithResult(context.Background(), cfg, nil, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return "late", nil
	})
	if err == nil || !strings.Contains(err.Error(), "request timeout") {
		t.Fatalf("expected request timeout, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("operation invoked %d times, want 2", got)
	}
}

func TestDoWithResult_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DoWithResult(ctx, fastConfig(5), nil, func(ctx context.Context) (string, error) {
		return "", errors.New("network error")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("TypeError: Failed to fetch"), true},
		{errors.New("network error during read"), true},
		{errors.New("Network timeout"), true},
		{errors.New("request timeout after 10s"), true},
		{errors.New("dial tcp: connection refused"), true},
		{ErrNoData, true},
		{fmt.Errorf("download: %w", ErrNoData), true},
		{Transient(errors.New("weird transport glitch")), true},
		{errors.New("permission denied"), false},
		{errors.New("bucket not found"), false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestGate_LatchesOnProbeSuccess(t *testing.T) {
	var probes int32
	fail := int32(2)
	gate := NewGate(func(ctx context.Context) error {
		if atomic.AddInt32(&probes, 1) <= fail {
			return errors.New("connection refused")
		}
		return nil
	})
	gate.Interval = time.Millisecond

	if gate.Connected() {
		t.Fatal("gate should start disconnected")
	}
	if !gate.WaitForConnection(context.Background(), time.Second) {
		t.Fatal("expected connection within timeout")
	}
	if !gate.Connected() {
		t.Fatal("gate should be latched after success")
	}

	// Latched: no further probes.
	before := atomic.LoadInt32(&probes)
	if !gate.WaitForConnection(context.Background(), time.Second) {
		t.Fatal("latched gate should return true immediately")
	}
	if atomic.LoadInt32(&probes) != before {
		t.Error("latched gate should not probe again")
	}
}

func TestGate_TimeoutReturnsFalse(t *testing.T) {
	gate := NewGate(func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	gate.Interval = time.Millisecond

	if gate.WaitForConnection(context.Background(), 5*time.Millisecond) {
		t.Fatal("expected timeout")
	}
	if gate.Connected() {
		t.Fatal("gate must stay disconnected after timeout")
	}
}

func TestGate_Reset(t *testing.T) {
	gate := NewGate(func(ctx context.Context) error { return nil })
	gate.Interval = time.Millisecond

	gate.WaitForConnection(context.Background(), time.Second)
	if !gate.Connected() {
		t.Fatal("expected connected")
	}
	gate.Reset()
	if gate.Connected() {
		t.Fatal("expected disconnected after reset")
	}
}

func TestDoWithResult_WaitsForGateFirst(t *testing.T) {
	var order []string
	gate := NewGate(func(ctx context.Context) error {
		order = append(order, "probe")
		return nil
	})
	gate.Interval = time.Millisecond

	cfg := fastConfig(2)
	_, err := DoWithResult(context.Background(), cfg, gate, func(ctx context.Context) (string, error) {
		order = append(order, "op")
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) < 2 || order[0] != "probe" || order[len(order)-1] != "op" {
		t.Errorf("expected probe before op, got %v", order)
	}
}
