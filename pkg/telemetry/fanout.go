package telemetry

import (
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Subscriber consumes published samples. A returned error is reported and
// does not affect delivery to other subscribers.
type Subscriber func(Sample) error

// Fanout broadcasts samples to every registered subscriber in subscription
// order. One faulty consumer never blocks or corrupts delivery to others.
type Fanout struct {
	mu     sync.Mutex
	subs   *orderedmap.OrderedMap[uint64, Subscriber]
	nextID uint64
	logger *logrus.Logger
}

// NewFanout creates an empty Fanout.
func NewFanout(logger *logrus.Logger) *Fanout {
	if logger == nil {
		logger = logrus.New()
	}
	return &Fanout{
		subs:   orderedmap.New[uint64, Subscriber](),
		logger: logger,
	}
}

// Subscribe registers fn and returns its unsubscribe function. Calling the
// returned function more than once is a no-op.
func (f *Fanout) Subscribe(fn Subscriber) (unsubscribe func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.subs.Set(id, fn)

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.subs.Delete(id)
	}
}

// Len returns the number of registered subscribers.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs.Len()
}

// Publish delivers sample to every subscriber registered at the moment of
// the call. The list is snapshotted first, so a subscriber unsubscribing
// itself or a sibling mid-delivery cannot corrupt the iteration.
func (f *Fanout) Publish(sample Sample) {
	f.mu.Lock()
	snapshot := make([]Subscriber, 0, f.subs.Len())
	for pair := f.subs.Oldest(); pair != nil; pair = pair.Next() {
		snapshot = append(snapshot, pair.Value)
	}
	f.mu.Unlock()

	for _, fn := range snapshot {
		f.deliver(fn, sample)
	}
}

// deliver invokes one subscriber, containing both returned errors and
// panics so the remaining subscribers still receive the sample.
func (f *Fanout) deliver(fn Subscriber, sample Sample) {
	defer func() {
		if rec := recover(); rec != nil {
			f.logger.WithFields(logrus.Fields{
				"device_id": sample.DeviceID,
				"panic":     rec,
			}).Error("Telemetry subscriber panicked")
		}
	}()

	if err := fn(sample); err != nil {
		f.logger.WithError(err).WithField("device_id", sample.DeviceID).
			Warn("Telemetry subscriber failed")
	}
}
