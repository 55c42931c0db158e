// Package connection orchestrates scan, connect, disconnect, and
// collection operations against the transport layer, keeping the device
// registry in sync and translating transport failures into actionable
// messages. It is the only component that calls out to the transport.
package connection

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/gaitmon/pkg/liveness"
	"github.com/srg/gaitmon/pkg/registry"
)

// Transport is the outward-facing surface of the wireless layer. Protocol
// negotiation (pairing, discovery, characteristic encoding) lives behind
// it; this package only consumes its outcomes.
type Transport interface {
	// Scan discovers nearby devices.
	Scan(ctx context.Context) ([]ScannedDevice, error)

	// Connect and Disconnect manage one device's link.
	Connect(ctx context.Context, id string) error
	Disconnect(ctx context.Context, id string) error

	// StartNotifications and StopNotifications toggle sample collection.
	StartNotifications(ctx context.Context, id string) error
	StopNotifications(ctx context.Context, id string) error

	// CheckConnectionStatus is the primary connected-membership query;
	// ConnectedDevices is its fallback.
	CheckConnectionStatus(ctx context.Context) ([]string, error)
	ConnectedDevices(ctx context.Context) ([]string, error)

	// ActiveNotifications lists devices with live collection subscriptions.
	ActiveNotifications(ctx context.Context) ([]string, error)
}

// Options configures a Facade.
type Options struct {
	// AutoPopulate adds every scan result to the availability set when it
	// is empty. A bootstrap convenience for first launch, not ongoing
	// behavior: non-empty sets are never touched.
	AutoPopulate bool
}

// Facade coordinates transport operations with registry bookkeeping.
type Facade struct {
	transport Transport
	registry  *registry.Registry
	monitor   *liveness.Monitor
	logger    *logrus.Logger
	opts      Options

	mu      sync.Mutex
	scanned []ScannedDevice
}

// New creates a Facade. The monitor is optional; when present, connect
// attempts are labeled as in-flight until the next liveness tick.
func New(transport Transport, reg *registry.Registry, monitor *liveness.Monitor, logger *logrus.Logger, opts Options) *Facade {
	if logger == nil {
		logger = logrus.New()
	}
	return &Facade{
		transport: transport,
		registry:  reg,
		monitor:   monitor,
		logger:    logger,
		opts:      opts,
	}
}

// Scan discovers devices and replaces the scanned-device list, sorted for
// display. The availability set is only auto-populated when it was empty.
func (f *Facade) Scan(ctx context.Context) ([]ScannedDevice, error) {
	devices, err := f.transport.Scan(ctx)
	if err != nil {
		f.logger.WithError(err).Error("Device scan failed")
		return nil, enrichError("scan", "", err)
	}

	sortScanned(devices)

	f.mu.Lock()
	f.scanned = devices
	f.mu.Unlock()

	f.logger.WithField("device_count", len(devices)).Info("Scan completed")

	if f.opts.AutoPopulate && len(f.registry.AvailableDevices()) == 0 {
		for _, dev := range devices {
			f.registry.AddDevice(dev.ID)
		}
	}

	return devices, nil
}

// ScannedDevices returns the most recent scan results.
func (f *Facade) ScannedDevices() []ScannedDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ScannedDevice, len(f.scanned))
	copy(out, f.scanned)
	return out
}

// Connect establishes a link to id. Transport rejections are enriched with
// guidance, logged, and returned to the caller.
func (f *Facade) Connect(ctx context.Context, id string) error {
	if f.monitor != nil {
		f.monitor.MarkConnecting(id)
	}

	if err := f.transport.Connect(ctx, id); err != nil {
		enriched := enrichError("connect", f.displayName(id), err)
		f.logger.WithError(err).WithField("device_id", id).Error("Connect failed")
		return enriched
	}

	f.registry.AddDevice(id)
	f.registry.AddConnectedDevice(id)
	f.logger.WithField("device_id", id).Info("Device connected")
	return nil
}

// Disconnect tears down the link to id.
func (f *Facade) Disconnect(ctx context.Context, id string) error {
	if err := f.transport.Disconnect(ctx, id); err != nil {
		enriched := enrichError("disconnect", f.displayName(id), err)
		f.logger.WithError(err).WithField("device_id", id).Error("Disconnect failed")
		return enriched
	}

	f.registry.RemoveConnectedDevice(id)
	f.logger.WithField("device_id", id).Info("Device disconnected")
	return nil
}

// StartCollection begins sample notifications for id. Failures carry user
// intent and are propagated, never swallowed.
func (f *Facade) StartCollection(ctx context.Context, id string) error {
	if err := f.transport.StartNotifications(ctx, id); err != nil {
		f.logger.WithError(err).WithField("device_id", id).Error("Start collection failed")
		return enrichError("start collection for", f.displayName(id), err)
	}
	f.logger.WithField("device_id", id).Info("Collection started")
	return nil
}

// StopCollection ends sample notifications for id.
func (f *Facade) StopCollection(ctx context.Context, id string) error {
	if err := f.transport.StopNotifications(ctx, id); err != nil {
		f.logger.WithError(err).WithField("device_id", id).Error("Stop collection failed")
		return enrichError("stop collection for", f.displayName(id), err)
	}
	f.logger.WithField("device_id", id).Info("Collection stopped")
	return nil
}

// RefreshConnectedDevices re-reads connected membership from the
// transport, falling back to the secondary query. When both queries fail
// the connected set is left unchanged; refreshing is best-effort and never
// returns an error.
func (f *Facade) RefreshConnectedDevices(ctx context.Context) {
	ids, err := f.transport.CheckConnectionStatus(ctx)
	if err == nil {
		f.registry.SetConnectedDevices(ids)
		return
	}
	f.logger.WithError(err).Warn("Primary connection status query failed, trying fallback")

	ids, fallbackErr := f.transport.ConnectedDevices(ctx)
	if fallbackErr != nil {
		f.logger.WithError(fallbackErr).Warn("Fallback connected devices query failed, keeping current set")
		return
	}
	f.registry.SetConnectedDevices(ids)
}

// ActiveCollectingDevices lists devices with live notification
// subscriptions. Read-only and best-effort: failures are logged and an
// empty list is returned.
func (f *Facade) ActiveCollectingDevices(ctx context.Context) []string {
	ids, err := f.transport.ActiveNotifications(ctx)
	if err != nil {
		f.logger.WithError(err).Warn("Active notifications query failed")
		return []string{}
	}
	return ids
}

// displayName resolves id to its scanned display name, or "device" when
// the id was never scanned or advertised no name.
func (f *Facade) displayName(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, dev := range f.scanned {
		if dev.ID == id && dev.Name != "" {
			return dev.Name
		}
	}
	return "device"
}
