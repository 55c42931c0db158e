// Package ringchan provides a bounded channel with overwrite-oldest
// semantics, used for event streams where a slow consumer must never
// block a producer (registry events, monitor diagnostics).
package ringchan

import (
	"sync"
	"sync/atomic"
)

// RingChannel wraps a buffered channel and guarantees that senders never
// block: when the buffer is full the oldest element is discarded to make
// room for the new one. Readers consume it like a normal Go channel.
// Sends and Close may race freely; sends that lose the race are ignored.
type RingChannel[T any] struct {
	mu      sync.RWMutex // serializes senders against Close
	ch      chan T
	dropped atomic.Uint64
	closed  bool
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. Consumers can range over
// it until Close is called.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item, discarding the oldest buffered element if the
// channel is full. It reports whether an element was dropped.
func (rc *RingChannel[T]) Send(v T) bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.closed {
		return false
	}

	select {
	case rc.ch <- v:
		return false
	default:
	}

	// Full: drop the oldest and retry until the new element fits. A
	// reader draining between the two selects only makes room sooner;
	// never block here, the read lock would stall Close.
	dropped := false
	for {
		select {
		case <-rc.ch:
			rc.dropped.Add(1)
			dropped = true
		default:
		}
		select {
		case rc.ch <- v:
			return dropped
		default:
		}
	}
}

// TrySend attempts a non-blocking insert without displacing anything.
// It returns false if the buffer is full.
func (rc *RingChannel[T]) TrySend(v T) bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.closed {
		return false
	}
	select {
	case rc.ch <- v:
		return true
	default:
		return false
	}
}

// TryReceive attempts a non-blocking receive.
func (rc *RingChannel[T]) TryReceive() (T, bool) {
	select {
	case v, ok := <-rc.ch:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Dropped returns the number of elements discarded to make room for
// newer ones.
func (rc *RingChannel[T]) Dropped() uint64 {
	return rc.dropped.Load()
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Close closes the channel. Sends after Close are silently ignored;
// sends in flight complete before the channel is closed.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}
