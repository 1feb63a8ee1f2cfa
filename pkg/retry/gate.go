package retry

import (
	"context"
	"sync"
	"time"
)

// DefaultProbeInterval is how often WaitForConnection issues its probe.
const DefaultProbeInterval = 1 * time.Second

// Probe is a lightweight readiness check against the backend.
type Probe func(ctx context.Context) error

// Gate owns the connection-readiness state for a backend. The state is a
// one-way latch: once a probe succeeds it stays connected. A later network
// failure does not clear it; Reset exists for callers that need to force
// re-probing.
type Gate struct {
	Interval time.Duration // probe interval, DefaultProbeInterval if zero

	mu        sync.Mutex
	connected bool
	probe     Probe
}

// NewGate creates a gate around the given readiness probe.
func NewGate(probe Probe) *Gate {
	return &Gate{Interval: DefaultProbeInterval, probe: probe}
}

// Connected reports whether a probe has ever succeeded.
func (g *Gate) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// Reset clears the latch so the next wrapped call probes again.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
}

func (g *Gate) markConnected() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = true
}

// WaitForConnection probes the backend until a probe succeeds or the timeout
// elapses. Returns true once connected, false on timeout. Never returns an
// error: a false result simply means the backend was not reachable in time.
func (g *Gate) WaitForConnection(ctx context.Context, timeout time.Duration) bool {
	if g.Connected() {
		return true
	}
	if g.probe == nil {
		return false
	}

	interval := g.Interval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	deadline := time.Now().Add(timeout)

	for {
		if err := g.probe(ctx); err == nil {
			g.markConnected()
			return true
		}
		if time.Now().Add(interval).After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
}
