package telemetry

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gaitmon/internal/samplerate"
	"github.com/srg/gaitmon/pkg/registry"
)

// Ingestor is the single entry point for inbound telemetry records. It
// validates samples, maintains registry recency facts, fills in a computed
// sample rate when the device did not declare one, and hands samples to
// the fan-out. Registry updates and fan-out delivery are independent: a
// failing subscriber never blocks bookkeeping.
type Ingestor struct {
	registry *registry.Registry
	rates    *samplerate.Calculator
	fanout   *Fanout
	logger   *logrus.Logger
}

// NewIngestor wires the ingestion path together.
func NewIngestor(reg *registry.Registry, fanout *Fanout, logger *logrus.Logger) *Ingestor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Ingestor{
		registry: reg,
		rates:    samplerate.New(),
		fanout:   fanout,
		logger:   logger,
	}
}

// HandleSample processes one inbound gait sample. Invalid samples are
// logged and dropped; they must not poison registry state or subscribers.
func (in *Ingestor) HandleSample(sample Sample) {
	if err := sample.Validate(); err != nil {
		in.logger.WithError(err).WithField("device_id", sample.DeviceID).
			Warn("Dropping invalid gait sample")
		return
	}

	if sample.SampleRate == nil {
		if rate, ok := in.rates.RecordSample(sample.DeviceID); ok {
			sample = sample.WithSampleRate(rate)
		}
	} else {
		// The device reports its own rate; still feed the calculator so
		// an estimate exists if the firmware stops declaring it.
		in.rates.RecordSample(sample.DeviceID)
	}

	in.registry.RecordData(sample.DeviceID, time.UnixMilli(sample.Timestamp), sample.SampleRate)
	in.fanout.Publish(sample)
}

// HandleHeartbeat processes one inbound heartbeat record. Heartbeats are
// an external-feed entry point: the sensor firmware exposes no heartbeat
// characteristic, so they arrive from host-side producers (session
// recorders, fleet agents) rather than from the wireless transport.
func (in *Ingestor) HandleHeartbeat(hb Heartbeat) {
	if hb.DeviceID == "" {
		in.logger.Warn("Dropping heartbeat without device id")
		return
	}
	in.registry.RecordHeartbeat(hb.DeviceID, hb.Sequence, time.UnixMilli(hb.ReceivedTimestamp))
}

// ForgetDevice clears rate estimation state for a removed device.
func (in *Ingestor) ForgetDevice(id string) {
	in.rates.Reset(id)
}

// EstimatedRate returns the computed arrival rate for id, independent of
// any rate the device reports about itself.
func (in *Ingestor) EstimatedRate(id string) (float64, bool) {
	return in.rates.CurrentRate(id)
}
