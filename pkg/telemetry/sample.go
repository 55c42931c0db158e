// Package telemetry defines the inbound wire records (gait samples and
// heartbeats) and fans samples out to independent consumers.
package telemetry

import (
	"errors"
	"fmt"
	"math"
)

// Validation bounds for gait sensor readings. Force channels come from
// resistive sensors, acceleration channels from the IMU.
const (
	MaxForce        = 1000.0
	MaxAcceleration = 50.0
)

// Sample is one multi-channel gait reading from a device.
type Sample struct {
	DeviceID   string   `json:"device_id"`
	R1         float32  `json:"r1"`
	R2         float32  `json:"r2"`
	R3         float32  `json:"r3"`
	X          float32  `json:"x"`
	Y          float32  `json:"y"`
	Z          float32  `json:"z"`
	Timestamp  int64    `json:"timestamp"`
	SampleRate *float64 `json:"sample_rate,omitempty"`
}

// Heartbeat is the low-frequency liveness signal, distinct from samples.
type Heartbeat struct {
	DeviceID          string `json:"device_id"`
	DeviceTimestamp   int64  `json:"device_timestamp"`
	Sequence          uint32 `json:"sequence"`
	ReceivedTimestamp int64  `json:"received_timestamp"`
}

var (
	ErrEmptyDeviceID   = errors.New("device id cannot be empty")
	ErrZeroTimestamp   = errors.New("timestamp must be positive")
	ErrValueOutOfRange = errors.New("value outside expected range")
	ErrValueNotFinite  = errors.New("value is not finite")
)

// Validate checks a sample against the sensor bounds before it enters the
// registry or reaches subscribers.
func (s Sample) Validate() error {
	if s.DeviceID == "" {
		return ErrEmptyDeviceID
	}
	if s.Timestamp <= 0 {
		return ErrZeroTimestamp
	}

	for _, v := range []float32{s.R1, s.R2, s.R3, s.X, s.Y, s.Z} {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return ErrValueNotFinite
		}
	}

	for _, force := range []float32{s.R1, s.R2, s.R3} {
		if math.Abs(float64(force)) > MaxForce {
			return fmt.Errorf("force %w: %.1f", ErrValueOutOfRange, force)
		}
	}
	for _, accel := range []float32{s.X, s.Y, s.Z} {
		if math.Abs(float64(accel)) > MaxAcceleration {
			return fmt.Errorf("acceleration %w: %.1f", ErrValueOutOfRange, accel)
		}
	}
	return nil
}

// WithSampleRate returns a copy of the sample carrying the given rate.
func (s Sample) WithSampleRate(rate float64) Sample {
	s.SampleRate = &rate
	return s
}
