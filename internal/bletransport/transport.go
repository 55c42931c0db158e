// Package bletransport implements the wireless transport over go-ble:
// device discovery, link management with retry, and gait notification
// streaming with frame reassembly.
package bletransport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"
	"github.com/srg/gaitmon/internal/groutine"
	"github.com/srg/gaitmon/pkg/connection"
	"github.com/srg/gaitmon/pkg/telemetry"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
var DeviceFactory = func() (ble.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		if strings.Contains(err.Error(), "central manager has invalid state") {
			if strings.Contains(err.Error(), "have=4") { // StatePoweredOff
				return nil, fmt.Errorf("Bluetooth is turned off - please enable Bluetooth and retry")
			}
			return nil, fmt.Errorf("Bluetooth is not ready - %w", err)
		}
		return nil, err
	}
	return dev, nil
}

// Options configures a Transport.
type Options struct {
	ScanDuration    time.Duration
	ConnectTimeout  time.Duration
	ConnectAttempts int
	RetryDelay      time.Duration

	// OnSample receives every decoded gait frame from every subscribed
	// device. Must be safe for concurrent calls.
	OnSample func(telemetry.Sample)
}

func (o *Options) applyDefaults() {
	if o.ScanDuration <= 0 {
		o.ScanDuration = 10 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.ConnectAttempts < 1 {
		o.ConnectAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
}

// Transport drives the BLE stack. It satisfies connection.Transport.
type Transport struct {
	logger *logrus.Logger
	opts   Options

	mu      sync.Mutex
	dev     ble.Device
	clients map[string]*deviceClient
}

// deviceClient tracks one connected peripheral and its optional gait
// subscription.
type deviceClient struct {
	client     ble.Client
	gaitChar   *ble.Characteristic
	decoder    *FrameDecoder
	collecting bool
	cancel     context.CancelFunc
}

// New creates a Transport.
func New(logger *logrus.Logger, opts Options) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	opts.applyDefaults()
	return &Transport{
		logger:  logger,
		opts:    opts,
		clients: make(map[string]*deviceClient),
	}
}

// device lazily initializes the BLE stack; the first caller pays the
// radio bring-up cost.
func (t *Transport) device() (ble.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev != nil {
		return t.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)
	t.dev = dev
	return dev, nil
}

// Scan discovers nearby devices for the configured duration.
func (t *Transport) Scan(ctx context.Context) ([]connection.ScannedDevice, error) {
	dev, err := t.device()
	if err != nil {
		return nil, err
	}

	t.logger.WithField("duration", t.opts.ScanDuration).Info("Starting BLE scan...")

	found := hashmap.New[string, connection.ScannedDevice]()
	scanCtx, cancel := context.WithTimeout(ctx, t.opts.ScanDuration)
	defer cancel()

	err = dev.Scan(scanCtx, false, func(adv ble.Advertisement) {
		found.Set(adv.Addr().String(), scannedFromAdvertisement(adv))
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	devices := make([]connection.ScannedDevice, 0, found.Len())
	found.Range(func(_ string, d connection.ScannedDevice) bool {
		devices = append(devices, d)
		return true
	})

	t.logger.WithField("device_count", len(devices)).Info("BLE scan completed")
	return devices, nil
}

func scannedFromAdvertisement(adv ble.Advertisement) connection.ScannedDevice {
	services := make([]string, 0, len(adv.Services()))
	for _, svc := range adv.Services() {
		services = append(services, svc.String())
	}
	serviceData := make([]string, 0, len(adv.ServiceData()))
	for _, sd := range adv.ServiceData() {
		serviceData = append(serviceData, fmt.Sprintf("%s:%x", sd.UUID.String(), sd.Data))
	}
	var manufacturerData []string
	if md := adv.ManufacturerData(); len(md) > 0 {
		manufacturerData = []string{fmt.Sprintf("%x", md)}
	}

	return connection.ScannedDevice{
		ID:               adv.Addr().String(),
		Name:             adv.LocalName(),
		RSSI:             adv.RSSI(),
		Connectable:      adv.Connectable(),
		Services:         services,
		ManufacturerData: manufacturerData,
		ServiceData:      serviceData,
	}
}

// Connect dials id with retry. Exhausting all attempts yields an error the
// facade recognizes as retryable.
func (t *Transport) Connect(ctx context.Context, id string) error {
	t.mu.Lock()
	if _, ok := t.clients[id]; ok {
		t.mu.Unlock()
		t.logger.WithField("device_id", id).Info("Already connected")
		return nil
	}
	t.mu.Unlock()

	if _, err := t.device(); err != nil {
		return err
	}

	t.logger.WithField("device_id", id).Info("Connecting to BLE device...")

	var lastErr error
	for attempt := 1; attempt <= t.opts.ConnectAttempts; attempt++ {
		t.logger.WithFields(logrus.Fields{
			"device_id": id,
			"attempt":   attempt,
			"max":       t.opts.ConnectAttempts,
		}).Debug("Connection attempt")

		connCtx, cancel := context.WithTimeout(ctx, t.opts.ConnectTimeout)
		client, err := ble.Dial(connCtx, ble.NewAddr(id))
		cancel()
		if err == nil {
			t.adoptClient(id, client)
			t.logger.WithField("device_id", id).Info("BLE device connected")
			return nil
		}

		lastErr = err
		t.logger.WithError(err).WithFields(logrus.Fields{
			"device_id": id,
			"attempt":   attempt,
		}).Warn("Connection attempt failed")

		if attempt < t.opts.ConnectAttempts {
			select {
			case <-time.After(t.opts.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("connect to %q failed after retries (%d attempts): %w", id, t.opts.ConnectAttempts, lastErr)
}

// adoptClient registers the client and watches its disconnect channel so
// the membership map reflects links dropped by the peripheral.
func (t *Transport) adoptClient(id string, client ble.Client) {
	t.mu.Lock()
	t.clients[id] = &deviceClient{client: client}
	t.mu.Unlock()

	groutine.Go(context.Background(), "ble-disconnect-watch", func(context.Context) {
		<-client.Disconnected()
		t.mu.Lock()
		dc, ok := t.clients[id]
		if ok && dc.client == client {
			if dc.cancel != nil {
				dc.cancel()
			}
			delete(t.clients, id)
		}
		t.mu.Unlock()
		if ok {
			t.logger.WithField("device_id", id).Info("BLE device disconnected by peer")
		}
	})
}

// Disconnect tears down the link to id. Disconnecting an unknown device is
// a no-op.
func (t *Transport) Disconnect(_ context.Context, id string) error {
	t.mu.Lock()
	dc, ok := t.clients[id]
	if ok {
		if dc.cancel != nil {
			dc.cancel()
		}
		delete(t.clients, id)
	}
	t.mu.Unlock()

	if !ok {
		t.logger.WithField("device_id", id).Info("Already disconnected")
		return nil
	}
	if err := dc.client.CancelConnection(); err != nil {
		return fmt.Errorf("failed to disconnect from device %q: %w", id, err)
	}
	t.logger.WithField("device_id", id).Info("BLE device disconnected")
	return nil
}

// StartNotifications subscribes to the gait characteristic of id and
// streams decoded frames to the OnSample callback.
func (t *Transport) StartNotifications(ctx context.Context, id string) error {
	t.mu.Lock()
	dc, ok := t.clients[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("device not connected: %q", id)
	}
	if dc.collecting {
		t.mu.Unlock()
		t.logger.WithField("device_id", id).Info("Notifications already active")
		return nil
	}
	t.mu.Unlock()

	char, err := t.findGaitCharacteristic(dc.client, id)
	if err != nil {
		return err
	}

	subCtx, cancel := context.WithCancel(ctx)
	decoder := NewFrameDecoder(0, t.logger)

	err = dc.client.Subscribe(char, false, func(data []byte) {
		select {
		case <-subCtx.Done():
			return
		default:
		}
		receivedAt := time.Now()
		for _, frame := range decoder.Push(data) {
			if t.opts.OnSample != nil {
				t.opts.OnSample(frame.Sample(id, receivedAt))
			}
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to gait notifications: %w", err)
	}

	t.mu.Lock()
	dc.gaitChar = char
	dc.decoder = decoder
	dc.collecting = true
	dc.cancel = cancel
	t.mu.Unlock()

	t.logger.WithField("device_id", id).Info("Gait notifications started")
	return nil
}

// StopNotifications unsubscribes id from the gait characteristic. Stopping
// a device that is not collecting, or already gone, is a no-op.
func (t *Transport) StopNotifications(_ context.Context, id string) error {
	t.mu.Lock()
	dc, ok := t.clients[id]
	if !ok || !dc.collecting {
		t.mu.Unlock()
		t.logger.WithField("device_id", id).Info("Notifications already stopped")
		return nil
	}
	char := dc.gaitChar
	cancel := dc.cancel
	client := dc.client
	dc.collecting = false
	dc.gaitChar = nil
	dc.decoder = nil
	dc.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := client.Unsubscribe(char, false); err != nil {
		return fmt.Errorf("failed to unsubscribe from gait notifications: %w", err)
	}
	t.logger.WithField("device_id", id).Info("Gait notifications stopped")
	return nil
}

// findGaitCharacteristic discovers the sensor profile and locates the gait
// characteristic, naming what IS advertised when it is missing.
func (t *Transport) findGaitCharacteristic(client ble.Client, id string) (*ble.Characteristic, error) {
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	serviceUUID := ble.MustParse(GaitServiceUUID)
	charUUID := ble.MustParse(GaitCharacteristicUUID)

	var gaitService *ble.Service
	for _, svc := range profile.Services {
		if svc.UUID.Equal(serviceUUID) {
			gaitService = svc
			break
		}
	}
	if gaitService == nil {
		available := make([]string, 0, len(profile.Services))
		for _, svc := range profile.Services {
			available = append(available, svc.UUID.String())
		}
		return nil, fmt.Errorf("gait service %s not found on device %q, available services: [%s]",
			GaitServiceUUID, id, strings.Join(available, ", "))
	}

	for _, char := range gaitService.Characteristics {
		if char.UUID.Equal(charUUID) {
			return char, nil
		}
	}
	available := make([]string, 0, len(gaitService.Characteristics))
	for _, char := range gaitService.Characteristics {
		available = append(available, char.UUID.String())
	}
	return nil, fmt.Errorf("gait characteristic %s not found on device %q, available characteristics: [%s]",
		GaitCharacteristicUUID, id, strings.Join(available, ", "))
}

// CheckConnectionStatus is the primary connected-membership query: each
// tracked client is asked whether its link is still up.
func (t *Transport) CheckConnectionStatus(_ context.Context) ([]string, error) {
	t.mu.Lock()
	tracked := make(map[string]*deviceClient, len(t.clients))
	for id, dc := range t.clients {
		tracked[id] = dc
	}
	t.mu.Unlock()

	ids := make([]string, 0, len(tracked))
	for id, dc := range tracked {
		select {
		case <-dc.client.Disconnected():
			// Link dropped; the watch goroutine will prune the entry.
		default:
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ConnectedDevices is the fallback membership query: tracked client map
// keys without liveness probing.
func (t *Transport) ConnectedDevices(_ context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.clients))
	for id := range t.clients {
		ids = append(ids, id)
	}
	return ids, nil
}

// ActiveNotifications lists devices with a live gait subscription.
func (t *Transport) ActiveNotifications(_ context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.clients))
	for id, dc := range t.clients {
		if dc.collecting {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
