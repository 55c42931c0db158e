// Package samplerate estimates the effective per-device sample rate from
// arrival times, for devices whose firmware does not report a rate itself.
package samplerate

import (
	"sync"
	"time"
)

const (
	// window is the rolling span of arrivals considered for one estimate.
	window = 5 * time.Second

	// recalcInterval throttles how often the rate is recomputed; between
	// recalculations the previous estimate is reused.
	recalcInterval = 500 * time.Millisecond

	// minSpan guards the division against near-zero time spans.
	minSpan = 100 * time.Millisecond
)

type deviceWindow struct {
	arrivals []time.Time
	lastRate float64
	lastCalc time.Time
}

// Calculator tracks arrival times per device over a rolling window.
type Calculator struct {
	mu      sync.Mutex
	devices map[string]*deviceWindow
	clock   func() time.Time
}

// New creates a Calculator using the wall clock.
func New() *Calculator {
	return NewWithClock(time.Now)
}

// NewWithClock creates a Calculator with an injected time source.
func NewWithClock(clock func() time.Time) *Calculator {
	return &Calculator{
		devices: make(map[string]*deviceWindow),
		clock:   clock,
	}
}

// RecordSample registers one arrival for id and returns the current rate
// estimate in samples per second. The second result is false until enough
// arrivals have accumulated to produce an estimate.
func (c *Calculator) RecordSample(id string) (float64, bool) {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	dw, ok := c.devices[id]
	if !ok {
		dw = &deviceWindow{lastCalc: now.Add(-recalcInterval)}
		c.devices[id] = dw
	}

	dw.arrivals = append(dw.arrivals, now)

	cutoff := now.Add(-window)
	trim := 0
	for trim < len(dw.arrivals) && dw.arrivals[trim].Before(cutoff) {
		trim++
	}
	if trim > 0 {
		dw.arrivals = append(dw.arrivals[:0], dw.arrivals[trim:]...)
	}

	if now.Sub(dw.lastCalc) >= recalcInterval && len(dw.arrivals) >= 2 {
		span := now.Sub(dw.arrivals[0])
		if span > minSpan {
			dw.lastCalc = now
			dw.lastRate = float64(len(dw.arrivals)) / span.Seconds()
		}
	}

	if dw.lastRate > 0 {
		return dw.lastRate, true
	}
	return 0, false
}

// CurrentRate returns the last computed rate for id without recording an
// arrival. The second result is false when no estimate exists yet.
func (c *Calculator) CurrentRate(id string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dw, ok := c.devices[id]
	if !ok || dw.lastRate <= 0 {
		return 0, false
	}
	return dw.lastRate, true
}

// Reset drops all state for id, typically when the device is removed.
func (c *Calculator) Reset(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.devices, id)
}

// DeviceCount returns how many devices have recorded arrivals.
func (c *Calculator) DeviceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.devices)
}

// AllRates returns the current estimate for every device that has one.
func (c *Calculator) AllRates() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	rates := make(map[string]float64, len(c.devices))
	for id, dw := range c.devices {
		if dw.lastRate > 0 {
			rates[id] = dw.lastRate
		}
	}
	return rates
}
