package liveness_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gaitmon/internal/testutils"
	"github.com/srg/gaitmon/pkg/liveness"
	"github.com/srg/gaitmon/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	helper  *testutils.TestHelper
	reg     *registry.Registry
	monitor *liveness.Monitor
	now     time.Time
}

func newFixture(t *testing.T, opts liveness.Options) *fixture {
	helper := testutils.NewTestHelper(t)
	reg := registry.New(helper.Logger)
	monitor := liveness.New(reg, helper.Logger, opts)

	f := &fixture{
		helper:  helper,
		reg:     reg,
		monitor: monitor,
		now:     time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	monitor.SetClock(func() time.Time { return f.now })
	return f
}

func TestMonitor_ConnectedWithoutAnySignalStaysConnected(t *testing.T) {
	f := newFixture(t, liveness.Options{HeartbeatTimeout: 10 * time.Second})

	f.reg.SetConnectedDevices([]string{"A"})
	f.monitor.Tick()

	assert.Equal(t, liveness.StatusConnected, f.monitor.Status("A"),
		"transport-level presence wins absent contrary signal")
}

func TestMonitor_NotInConnectedSetIsDisconnected(t *testing.T) {
	f := newFixture(t, liveness.Options{})

	f.reg.AddDevice("A")
	f.reg.SetConnectedDevices([]string{"A"})
	f.monitor.Tick()
	require.Equal(t, liveness.StatusConnected, f.monitor.Status("A"))

	f.reg.SetConnectedDevices(nil)
	f.monitor.Tick()

	assert.Equal(t, liveness.StatusDisconnected, f.monitor.Status("A"))
}

func TestMonitor_NoTimeoutConfiguredAlwaysConnected(t *testing.T) {
	f := newFixture(t, liveness.Options{})

	f.reg.SetConnectedDevices([]string{"A"})
	f.reg.RecordHeartbeat("A", 1, f.now.Add(-time.Hour))
	f.monitor.Tick()

	assert.Equal(t, liveness.StatusConnected, f.monitor.Status("A"),
		"without a configured timeout an ancient heartbeat never downgrades status")
}

func TestMonitor_StaleHeartbeatBeyondTimeout(t *testing.T) {
	f := newFixture(t, liveness.Options{HeartbeatTimeout: 10 * time.Second})

	f.reg.SetConnectedDevices([]string{"A"})
	f.reg.RecordHeartbeat("A", 3, f.now.Add(-30*time.Second))
	f.monitor.Tick()

	assert.Equal(t, liveness.StatusTimeout, f.monitor.Status("A"))
}

func TestMonitor_FreshDataCompensatesStaleHeartbeat(t *testing.T) {
	f := newFixture(t, liveness.Options{HeartbeatTimeout: 10 * time.Second})

	f.reg.SetConnectedDevices([]string{"A"})
	f.reg.RecordHeartbeat("A", 3, f.now.Add(-30*time.Second))
	f.reg.RecordData("A", f.now.Add(-2*time.Second), nil)
	f.monitor.Tick()

	assert.Equal(t, liveness.StatusConnected, f.monitor.Status("A"))
}

func TestMonitor_FreshHeartbeatKeepsConnected(t *testing.T) {
	f := newFixture(t, liveness.Options{HeartbeatTimeout: 10 * time.Second})

	f.reg.SetConnectedDevices([]string{"A"})
	f.reg.RecordHeartbeat("A", 3, f.now.Add(-2*time.Second))
	f.monitor.Tick()

	assert.Equal(t, liveness.StatusConnected, f.monitor.Status("A"))
}

func TestMonitor_UnobservedDeviceIsUnknown(t *testing.T) {
	f := newFixture(t, liveness.Options{})

	assert.Equal(t, liveness.StatusUnknown, f.monitor.Status("never-seen"))
}

func TestMonitor_MarkConnectingOverriddenByNextTick(t *testing.T) {
	f := newFixture(t, liveness.Options{})

	f.monitor.MarkConnecting("A")
	assert.Equal(t, liveness.StatusConnecting, f.monitor.Status("A"))

	f.reg.SetConnectedDevices([]string{"A"})
	f.monitor.Tick()
	assert.Equal(t, liveness.StatusConnected, f.monitor.Status("A"))
}

func TestMonitor_SweepRemovesStaleDisconnectedTiming(t *testing.T) {
	f := newFixture(t, liveness.Options{})

	f.reg.AddDevice("idle")
	f.reg.RecordData("idle", f.now.Add(-6*time.Minute), nil)
	f.reg.AddDevice("active")
	f.reg.SetConnectedDevices([]string{"active"})
	f.reg.RecordData("active", f.now.Add(-6*time.Minute), nil)

	f.monitor.Tick()

	_, ok := f.reg.LastData("idle")
	assert.False(t, ok, "stale disconnected entry must be swept")
	_, ok = f.reg.LastData("active")
	assert.True(t, ok, "connected device with equally old data must not be swept")
	assert.True(t, f.reg.IsAvailable("idle"), "sweep must not remove availability membership")
	assert.True(t, f.helper.HasLogContaining(logrus.InfoLevel, "stale device timing entries"))
}

func TestMonitor_WarnsWhenTimingMapsGrow(t *testing.T) {
	f := newFixture(t, liveness.Options{WarnEntries: 5})

	for i := 0; i < 6; i++ {
		id := string(rune('a' + i))
		f.reg.RecordData(id, f.now, nil)
	}
	f.reg.SetConnectedDevices([]string{"a", "b", "c", "d", "e", "f"})

	f.monitor.Tick()

	assert.True(t, f.helper.HasLogContaining(logrus.WarnLevel, "timing maps exceed expected size"))
}

func TestMonitor_RemovedDeviceDisappearsFromStatuses(t *testing.T) {
	f := newFixture(t, liveness.Options{})

	f.reg.AddDevice("A")
	f.reg.SetConnectedDevices([]string{"A"})
	f.monitor.Tick()
	require.Contains(t, f.monitor.Statuses(), "A")

	f.reg.RemoveDevice("A")
	f.reg.SetConnectedDevices(nil)
	f.monitor.Tick()

	assert.NotContains(t, f.monitor.Statuses(), "A")
	assert.Equal(t, liveness.StatusUnknown, f.monitor.Status("A"))
}

func TestMonitor_ToleratesChurnBetweenTicks(t *testing.T) {
	f := newFixture(t, liveness.Options{HeartbeatTimeout: 10 * time.Second})

	f.reg.AddDevice("A")
	f.reg.SetConnectedDevices([]string{"A"})
	f.reg.RecordData("A", f.now, nil)
	f.reg.RemoveDevice("A")
	f.reg.SetConnectedDevices(nil)

	require.NotPanics(t, func() { f.monitor.Tick() })
	assert.NotContains(t, f.monitor.Statuses(), "A")
}

func TestMonitor_StartStopLifecycle(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	reg := registry.New(helper.Logger)
	monitor := liveness.New(reg, helper.Logger, liveness.Options{Interval: 10 * time.Millisecond})

	reg.SetConnectedDevices([]string{"A"})

	monitor.Start(context.Background())
	assert.Eventually(t, func() bool {
		return monitor.Status("A") == liveness.StatusConnected
	}, time.Second, 5*time.Millisecond)

	monitor.Stop()

	// After Stop no further ticks may mutate state.
	reg.SetConnectedDevices(nil)
	status := monitor.Status("A")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, status, monitor.Status("A"))
}
