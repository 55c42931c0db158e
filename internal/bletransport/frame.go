package bletransport

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/gaitmon/pkg/telemetry"
)

// Gait service exposed by the sensor firmware.
const (
	GaitServiceUUID        = "48877734-d012-40c4-81de-3ab006f71189"
	GaitCharacteristicUUID = "8c4711b4-571b-41ba-a240-73e6884a85eb"

	// FrameSize is the fixed notification payload: six little-endian
	// float32 values (r1 r2 r3 x y z).
	FrameSize = 24
)

// Frame is one decoded sensor packet.
type Frame struct {
	R1, R2, R3 float32 // force channels
	X, Y, Z    float32 // acceleration channels, g
}

// DecodeFrame parses a complete 24-byte notification payload.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) != FrameSize {
		return Frame{}, fmt.Errorf("invalid frame length: want %d bytes, got %d", FrameSize, len(data))
	}
	at := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
	}
	return Frame{
		R1: at(0), R2: at(4), R3: at(8),
		X: at(12), Y: at(16), Z: at(20),
	}, nil
}

// Sample converts the frame into a telemetry sample stamped with the
// receive time in epoch milliseconds.
func (f Frame) Sample(deviceID string, receivedAt time.Time) telemetry.Sample {
	return telemetry.Sample{
		DeviceID:  deviceID,
		R1:        f.R1,
		R2:        f.R2,
		R3:        f.R3,
		X:         f.X,
		Y:         f.Y,
		Z:         f.Z,
		Timestamp: receivedAt.UnixMilli(),
	}
}

// FrameDecoder reassembles notification chunks into complete frames. Some
// stacks deliver payloads split across MTU boundaries, so bytes are
// buffered until a full frame is available.
type FrameDecoder struct {
	buf    *ringbuffer.RingBuffer
	logger *logrus.Logger
}

// NewFrameDecoder creates a decoder buffering up to capacity bytes.
func NewFrameDecoder(capacity int, logger *logrus.Logger) *FrameDecoder {
	if capacity < FrameSize {
		capacity = 64 * FrameSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &FrameDecoder{
		buf:    ringbuffer.New(capacity),
		logger: logger,
	}
}

// Push appends a notification chunk and returns every complete frame now
// available. When the buffer cannot hold the chunk the stale backlog is
// discarded, keeping the newest bytes.
func (d *FrameDecoder) Push(chunk []byte) []Frame {
	if d.buf.Free() < len(chunk) {
		d.logger.WithFields(logrus.Fields{
			"buffered": d.buf.Length(),
			"incoming": len(chunk),
		}).Warn("Frame buffer overflow, dropping buffered bytes")
		d.buf.Reset()
	}
	if _, err := d.buf.Write(chunk); err != nil {
		d.logger.WithError(err).Warn("Failed to buffer notification chunk")
		return nil
	}

	var frames []Frame
	raw := make([]byte, FrameSize)
	for d.buf.Length() >= FrameSize {
		if _, err := d.buf.Read(raw); err != nil {
			d.logger.WithError(err).Warn("Failed to read buffered frame")
			return frames
		}
		frame, err := DecodeFrame(raw)
		if err != nil {
			// Read always yields FrameSize bytes here, so this is
			// unreachable short of a decoder bug.
			d.logger.WithError(err).Warn("Dropping undecodable frame")
			continue
		}
		frames = append(frames, frame)
	}
	return frames
}

// Buffered reports how many bytes await a completing chunk.
func (d *FrameDecoder) Buffered() int {
	return d.buf.Length()
}
