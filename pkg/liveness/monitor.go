// Package liveness derives a per-device connection status from registry
// state on a fixed interval, and evicts stale bookkeeping so an unbounded
// session cannot grow memory without bound.
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gaitmon/internal/groutine"
	"github.com/srg/gaitmon/pkg/registry"
)

// Status is the derived liveness of one device.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusConnecting   Status = "connecting"
	StatusDisconnected Status = "disconnected"
	StatusTimeout      Status = "timeout"
	StatusUnknown      Status = "unknown"
)

const (
	// DefaultInterval is how often statuses are re-derived, independent of
	// sample arrival.
	DefaultInterval = 60 * time.Second

	// DefaultStaleAfter is how long a disconnected device's timing entries
	// survive without a fresh signal.
	DefaultStaleAfter = 5 * time.Minute

	// DefaultWarnEntries is the combined timing-map size above which a
	// leak warning is logged. An early-warning signal, not a hard limit.
	DefaultWarnEntries = 50
)

// Options configures a Monitor. Zero values take the defaults above;
// HeartbeatTimeout zero means no timeout is enforced.
type Options struct {
	Interval         time.Duration
	HeartbeatTimeout time.Duration
	StaleAfter       time.Duration
	WarnEntries      int
}

func (o *Options) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.WarnEntries <= 0 {
		o.WarnEntries = DefaultWarnEntries
	}
}

// Monitor periodically reconciles transport-level connection membership
// with signal recency into one authoritative status per device.
type Monitor struct {
	registry *registry.Registry
	logger   *logrus.Logger
	opts     Options
	clock    func() time.Time

	mu       sync.Mutex
	statuses map[string]Status
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a Monitor over reg. Start must be called to begin ticking;
// Tick can also be driven manually for deterministic evaluation.
func New(reg *registry.Registry, logger *logrus.Logger, opts Options) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	opts.applyDefaults()
	return &Monitor{
		registry: reg,
		logger:   logger,
		opts:     opts,
		clock:    time.Now,
		statuses: make(map[string]Status),
	}
}

// SetClock injects the time source, for tests. Must be called before Start.
func (m *Monitor) SetClock(clock func() time.Time) {
	m.clock = clock
}

// Start launches the periodic evaluation loop. Stop cancels it.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	groutine.Go(loopCtx, "liveness-monitor", func(ctx context.Context) {
		defer close(done)

		ticker := time.NewTicker(m.opts.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Tick()
			}
		}
	})
}

// Stop cancels the periodic loop and waits for the in-flight tick, if any,
// to finish. No status mutation happens after Stop returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Tick runs one synchronous evaluation pass: sweep stale timing entries,
// recompute every tracked device's status, and emit diagnostics. The
// registry snapshot is taken under one lock, so devices added, connected,
// and removed between ticks are observed consistently.
func (m *Monitor) Tick() {
	now := m.clock()
	snap := m.registry.BeginTick(m.opts.StaleAfter, now)

	statuses := make(map[string]Status)
	for _, id := range snap.Available {
		statuses[id] = m.derive(id, snap, now)
	}
	for id := range snap.Connected {
		statuses[id] = m.derive(id, snap, now)
	}
	for id := range snap.LastData {
		if _, ok := statuses[id]; !ok {
			statuses[id] = m.derive(id, snap, now)
		}
	}
	for id := range snap.LastHeartbeat {
		if _, ok := statuses[id]; !ok {
			statuses[id] = m.derive(id, snap, now)
		}
	}

	m.mu.Lock()
	m.statuses = statuses
	m.mu.Unlock()

	if snap.Swept > 0 {
		m.logger.WithField("removed", snap.Swept).Info("Removed stale device timing entries")
	}
	if snap.HeartbeatEntries+snap.DataEntries > m.opts.WarnEntries {
		m.logger.WithFields(logrus.Fields{
			"heartbeat_entries":   snap.HeartbeatEntries,
			"data_entries":        snap.DataEntries,
			"sample_rate_entries": snap.SampleRateEntries,
		}).Warn("Device timing maps exceed expected size")
	}
}

// derive applies the status transition rules in priority order.
func (m *Monitor) derive(id string, snap registry.TickSnapshot, now time.Time) Status {
	if _, connected := snap.Connected[id]; !connected {
		return StatusDisconnected
	}

	// Transport-level connection is authoritative when no timeout is
	// configured.
	if m.opts.HeartbeatTimeout <= 0 {
		return StatusConnected
	}

	lastHeartbeat, hasHeartbeat := snap.LastHeartbeat[id]
	lastData, hasData := snap.LastData[id]

	if hasHeartbeat && now.Sub(lastHeartbeat) <= m.opts.HeartbeatTimeout {
		return StatusConnected
	}
	if hasData && now.Sub(lastData) <= m.opts.HeartbeatTimeout {
		return StatusConnected
	}

	// A freshly connected device that has not produced any signal yet is
	// still connected; absence of evidence is not contrary evidence.
	if !hasHeartbeat && !hasData {
		return StatusConnected
	}

	return StatusTimeout
}

// Status returns the derived status for id as of the last tick, or
// StatusUnknown for a device that has never been observed.
func (m *Monitor) Status(id string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status, ok := m.statuses[id]; ok {
		return status
	}
	return StatusUnknown
}

// Statuses returns a copy of every derived status from the last tick.
func (m *Monitor) Statuses() map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Status, len(m.statuses))
	for id, status := range m.statuses {
		out[id] = status
	}
	return out
}

// MarkConnecting labels id as connect-in-flight until the next tick
// re-derives its status from registry state.
func (m *Monitor) MarkConnecting(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = StatusConnecting
}
