// Package hibernation implements the platform-unreachable standby state:
// when the ticket platform itself cannot be reached, normal polling
// suspends and a long-interval probe takes over until it recovers.
package hibernation

import (
	"context"
	"log/slog"
	"time"
)

// DefaultProbeInterval is how often the platform is re-checked while
// hibernating, deliberately much longer than the normal poll interval.
const DefaultProbeInterval = 5 * time.Minute

// Prober checks whether the platform is reachable again. Implementations
// typically wrap a cheap, read-only adapter call (e.g. listing labels on
// one known board).
type Prober func(ctx context.Context) error

// Control tracks whether the daemon is hibernating and runs the probe
// loop while it is.
type Control struct {
	ProbeInterval time.Duration
	Logger        *slog.Logger

	hibernating bool
}

// New builds a Control with the given probe interval, defaulting to
// DefaultProbeInterval when interval is non-positive.
func New(interval time.Duration, logger *slog.Logger) *Control {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Control{ProbeInterval: interval, Logger: logger}
}

// Enter puts the control into hibernation. In-flight runs are untouched —
// this only affects whether the Poller starts new cycles.
func (c *Control) Enter() {
	if !c.hibernating {
		c.Logger.Warn("entering hibernation: platform unreachable")
	}
	c.hibernating = true
}

// Hibernating reports whether the daemon should skip dispatching new work
// this cycle.
func (c *Control) Hibernating() bool {
	return c.hibernating
}

// Probe runs prober; on success it exits hibernation and reports true so
// the caller resets its backoff state. On failure it stays hibernating.
func (c *Control) Probe(ctx context.Context, prober Prober) bool {
	if err := prober(ctx); err != nil {
		c.Logger.Debug("hibernation probe failed", "error", err)
		return false
	}
	c.Logger.Info("hibernation probe succeeded, resuming normal polling")
	c.hibernating = false
	return true
}
