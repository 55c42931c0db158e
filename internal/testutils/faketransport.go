package testutils

import (
	"context"
	"sync"

	"github.com/srg/gaitmon/pkg/connection"
)

// FakeTransport is a scriptable connection.Transport. Each operation can
// be overridden per test; unset operations succeed with zero values.
type FakeTransport struct {
	mu sync.Mutex

	ScanFunc                  func(ctx context.Context) ([]connection.ScannedDevice, error)
	ConnectFunc               func(ctx context.Context, id string) error
	DisconnectFunc            func(ctx context.Context, id string) error
	StartNotificationsFunc    func(ctx context.Context, id string) error
	StopNotificationsFunc     func(ctx context.Context, id string) error
	CheckConnectionStatusFunc func(ctx context.Context) ([]string, error)
	ConnectedDevicesFunc      func(ctx context.Context) ([]string, error)
	ActiveNotificationsFunc   func(ctx context.Context) ([]string, error)

	calls []string
}

// Calls returns the operation names invoked so far, in order.
func (f *FakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeTransport) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *FakeTransport) Scan(ctx context.Context) ([]connection.ScannedDevice, error) {
	f.record("scan")
	if f.ScanFunc != nil {
		return f.ScanFunc(ctx)
	}
	return nil, nil
}

func (f *FakeTransport) Connect(ctx context.Context, id string) error {
	f.record("connect:" + id)
	if f.ConnectFunc != nil {
		return f.ConnectFunc(ctx, id)
	}
	return nil
}

func (f *FakeTransport) Disconnect(ctx context.Context, id string) error {
	f.record("disconnect:" + id)
	if f.DisconnectFunc != nil {
		return f.DisconnectFunc(ctx, id)
	}
	return nil
}

func (f *FakeTransport) StartNotifications(ctx context.Context, id string) error {
	f.record("start:" + id)
	if f.StartNotificationsFunc != nil {
		return f.StartNotificationsFunc(ctx, id)
	}
	return nil
}

func (f *FakeTransport) StopNotifications(ctx context.Context, id string) error {
	f.record("stop:" + id)
	if f.StopNotificationsFunc != nil {
		return f.StopNotificationsFunc(ctx, id)
	}
	return nil
}

func (f *FakeTransport) CheckConnectionStatus(ctx context.Context) ([]string, error) {
	f.record("check-status")
	if f.CheckConnectionStatusFunc != nil {
		return f.CheckConnectionStatusFunc(ctx)
	}
	return nil, nil
}

func (f *FakeTransport) ConnectedDevices(ctx context.Context) ([]string, error) {
	f.record("connected-devices")
	if f.ConnectedDevicesFunc != nil {
		return f.ConnectedDevicesFunc(ctx)
	}
	return nil, nil
}

func (f *FakeTransport) ActiveNotifications(ctx context.Context) ([]string, error) {
	f.record("active-notifications")
	if f.ActiveNotificationsFunc != nil {
		return f.ActiveNotificationsFunc(ctx)
	}
	return nil, nil
}
