// Package registry is the single source of truth for device membership and
// per-device timing facts. All mutation goes through one mutex so the
// liveness monitor observes a consistent snapshot per tick.
package registry

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gaitmon/internal/ringchan"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// EventType marks what happened to a device.
type EventType int

const (
	EventAdded EventType = iota
	EventRemoved
)

// Event is emitted on membership changes for observability consumers.
type Event struct {
	Type     EventType
	DeviceID string
}

// Registry tracks which devices are available, expected, and connected,
// plus when each was last heard from.
type Registry struct {
	mu sync.Mutex

	available map[string]struct{}
	expected  map[string]struct{}

	// connected preserves the order reported by the transport layer.
	connected *orderedmap.OrderedMap[string, struct{}]

	lastHeartbeat map[string]time.Time
	lastSequence  map[string]uint32
	lastData      map[string]time.Time
	sampleRate    map[string]float64

	events *ringchan.RingChannel[Event]
	logger *logrus.Logger
}

// New creates an empty Registry.
func New(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		available:     make(map[string]struct{}),
		expected:      make(map[string]struct{}),
		connected:     orderedmap.New[string, struct{}](),
		lastHeartbeat: make(map[string]time.Time),
		lastSequence:  make(map[string]uint32),
		lastData:      make(map[string]time.Time),
		sampleRate:    make(map[string]float64),
		events:        ringchan.New[Event](64),
		logger:        logger,
	}
}

// Events returns the membership event stream. Slow consumers lose the
// oldest events rather than blocking registry mutation.
func (r *Registry) Events() <-chan Event {
	return r.events.C()
}

// AddDevice inserts id into the availability set. Adding an id that is
// already present is a no-op.
func (r *Registry) AddDevice(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.available[id]; ok {
		return
	}
	r.available[id] = struct{}{}
	r.logger.WithField("device_id", id).Debug("Device added to availability set")
	r.events.Send(Event{Type: EventAdded, DeviceID: id})
}

// RemoveDevice forgets id entirely: availability, expected flag, timing
// maps, and sample rate. A removal event is emitted for observability.
func (r *Registry) RemoveDevice(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.available, id)
	delete(r.expected, id)
	delete(r.lastHeartbeat, id)
	delete(r.lastSequence, id)
	delete(r.lastData, id)
	delete(r.sampleRate, id)

	r.logger.WithField("device_id", id).Info("Device removed and tracking state torn down")
	r.events.Send(Event{Type: EventRemoved, DeviceID: id})
}

// MarkExpected flags id as "should be connected". Advisory only: it
// changes status labeling, never behavior.
func (r *Registry) MarkExpected(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expected[id] = struct{}{}
}

// UnmarkExpected clears the expected flag for id.
func (r *Registry) UnmarkExpected(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.expected, id)
}

// IsExpected reports whether id is flagged as expected.
func (r *Registry) IsExpected(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.expected[id]
	return ok
}

// IsAvailable reports whether id is in the availability set.
func (r *Registry) IsAvailable(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.available[id]
	return ok
}

// AvailableDevices returns the availability set as a slice.
func (r *Registry) AvailableDevices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.available))
	for id := range r.available {
		ids = append(ids, id)
	}
	return ids
}

// SetConnectedDevices replaces the connected set wholesale, preserving the
// order reported by the transport.
func (r *Registry) SetConnectedDevices(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connected = orderedmap.New[string, struct{}]()
	for _, id := range ids {
		r.connected.Set(id, struct{}{})
	}
}

// AddConnectedDevice appends id to the connected set if absent.
func (r *Registry) AddConnectedDevice(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected.Set(id, struct{}{})
}

// RemoveConnectedDevice drops id from the connected set.
func (r *Registry) RemoveConnectedDevice(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected.Delete(id)
}

// IsConnected reports whether id is currently transport-connected.
func (r *Registry) IsConnected(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.connected.Get(id)
	return ok
}

// ConnectedDevices returns the connected set in transport order.
func (r *Registry) ConnectedDevices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectedLocked()
}

func (r *Registry) connectedLocked() []string {
	ids := make([]string, 0, r.connected.Len())
	for pair := r.connected.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	return ids
}

// RecordHeartbeat updates the heartbeat recency for id. The sequence
// number is kept for diagnostics only; gaps are not detected.
func (r *Registry) RecordHeartbeat(id string, sequence uint32, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastHeartbeat[id] = ts
	r.lastSequence[id] = sequence
}

// RecordData updates the data recency for id, and the sample rate when the
// sample declared one.
func (r *Registry) RecordData(id string, ts time.Time, sampleRate *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastData[id] = ts
	if sampleRate != nil {
		r.sampleRate[id] = *sampleRate
	}
}

// CurrentSampleRate returns the last reported rate for id. The second
// result distinguishes "never reported" from a genuine zero rate.
func (r *Registry) CurrentSampleRate(id string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rate, ok := r.sampleRate[id]
	return rate, ok
}

// LastHeartbeat returns when id last sent a heartbeat.
func (r *Registry) LastHeartbeat(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.lastHeartbeat[id]
	return ts, ok
}

// LastData returns when id last delivered a data sample.
func (r *Registry) LastData(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.lastData[id]
	return ts, ok
}

// LastSequence returns the most recent heartbeat sequence number for id.
func (r *Registry) LastSequence(id string) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq, ok := r.lastSequence[id]
	return seq, ok
}

// TickSnapshot is one consistent view of the registry taken at the start
// of a liveness evaluation pass, after the staleness sweep ran.
type TickSnapshot struct {
	Available     []string
	Connected     map[string]struct{}
	LastHeartbeat map[string]time.Time
	LastData      map[string]time.Time

	// Swept counts timing entries removed by the staleness sweep.
	Swept int

	// Map sizes after the sweep, for leak early-warning diagnostics.
	HeartbeatEntries  int
	DataEntries       int
	SampleRateEntries int
}

// BeginTick sweeps stale timing entries and returns a consistent snapshot,
// all under one lock acquisition so a single evaluation pass never sees a
// half-applied update.
//
// The sweep removes heartbeat/data entries whose last signal is older than
// staleAfter for devices not currently connected. Connected devices are
// never swept, and availability membership is untouched.
func (r *Registry) BeginTick(staleAfter time.Duration, now time.Time) TickSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-staleAfter)
	swept := 0

	for id, ts := range r.lastData {
		if _, connected := r.connected.Get(id); connected {
			continue
		}
		if ts.Before(cutoff) {
			delete(r.lastData, id)
			swept++
		}
	}
	for id, ts := range r.lastHeartbeat {
		if _, connected := r.connected.Get(id); connected {
			continue
		}
		if ts.Before(cutoff) {
			delete(r.lastHeartbeat, id)
			delete(r.lastSequence, id)
			swept++
		}
	}

	snap := TickSnapshot{
		Available:         make([]string, 0, len(r.available)),
		Connected:         make(map[string]struct{}, r.connected.Len()),
		LastHeartbeat:     make(map[string]time.Time, len(r.lastHeartbeat)),
		LastData:          make(map[string]time.Time, len(r.lastData)),
		Swept:             swept,
		HeartbeatEntries:  len(r.lastHeartbeat),
		DataEntries:       len(r.lastData),
		SampleRateEntries: len(r.sampleRate),
	}
	for id := range r.available {
		snap.Available = append(snap.Available, id)
	}
	for pair := r.connected.Oldest(); pair != nil; pair = pair.Next() {
		snap.Connected[pair.Key] = struct{}{}
	}
	for id, ts := range r.lastHeartbeat {
		snap.LastHeartbeat[id] = ts
	}
	for id, ts := range r.lastData {
		snap.LastData[id] = ts
	}
	return snap
}

// Close shuts down the event stream.
func (r *Registry) Close() {
	r.events.Close()
}
