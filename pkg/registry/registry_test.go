package registry_test

import (
	"testing"
	"time"

	"github.com/srg/gaitmon/internal/testutils"
	"github.com/srg/gaitmon/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddDeviceIdempotent(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	reg := registry.New(helper.Logger)

	reg.AddDevice("dev-1")
	reg.AddDevice("dev-1")

	assert.Equal(t, []string{"dev-1"}, reg.AvailableDevices(), "duplicate add must yield exactly one entry")
}

func TestRegistry_ExpectedMarkUnmarkInverse(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	reg := registry.New(helper.Logger)

	assert.False(t, reg.IsExpected("dev-1"))

	reg.MarkExpected("dev-1")
	assert.True(t, reg.IsExpected("dev-1"))

	reg.UnmarkExpected("dev-1")
	assert.False(t, reg.IsExpected("dev-1"), "unmark must restore the prior state")
}

func TestRegistry_RemoveDeviceTearsDownEverything(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	reg := registry.New(helper.Logger)
	now := time.Now()

	reg.AddDevice("dev-1")
	reg.MarkExpected("dev-1")
	reg.RecordHeartbeat("dev-1", 7, now)
	rate := 100.0
	reg.RecordData("dev-1", now, &rate)

	reg.RemoveDevice("dev-1")

	assert.False(t, reg.IsAvailable("dev-1"))
	assert.False(t, reg.IsExpected("dev-1"))
	_, ok := reg.LastHeartbeat("dev-1")
	assert.False(t, ok)
	_, ok = reg.LastData("dev-1")
	assert.False(t, ok)
	_, ok = reg.LastSequence("dev-1")
	assert.False(t, ok)
	_, ok = reg.CurrentSampleRate("dev-1")
	assert.False(t, ok)
}

func TestRegistry_RemoveDeviceEmitsEvent(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	reg := registry.New(helper.Logger)

	reg.AddDevice("dev-1")
	reg.RemoveDevice("dev-1")

	var events []registry.Event
	for {
		select {
		case ev := <-reg.Events():
			events = append(events, ev)
		default:
			require.Len(t, events, 2)
			assert.Equal(t, registry.EventAdded, events[0].Type)
			assert.Equal(t, registry.EventRemoved, events[1].Type)
			assert.Equal(t, "dev-1", events[1].DeviceID)
			return
		}
	}
}

func TestRegistry_SetConnectedDevicesReplacesWholesale(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	reg := registry.New(helper.Logger)

	reg.SetConnectedDevices([]string{"a", "b"})
	assert.True(t, reg.IsConnected("a"))

	reg.SetConnectedDevices([]string{"c", "b"})

	assert.False(t, reg.IsConnected("a"), "replaced set must not retain old members")
	assert.Equal(t, []string{"c", "b"}, reg.ConnectedDevices(), "transport order must be preserved")
}

func TestRegistry_ConnectedAddRemove(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	reg := registry.New(helper.Logger)

	reg.AddConnectedDevice("a")
	reg.AddConnectedDevice("b")
	reg.AddConnectedDevice("a")
	assert.Equal(t, []string{"a", "b"}, reg.ConnectedDevices())

	reg.RemoveConnectedDevice("a")
	assert.Equal(t, []string{"b"}, reg.ConnectedDevices())
}

func TestRegistry_SampleRateUnsetDistinctFromZero(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	reg := registry.New(helper.Logger)
	now := time.Now()

	reg.RecordData("dev-1", now, nil)
	_, ok := reg.CurrentSampleRate("dev-1")
	assert.False(t, ok, "rate must stay unset when the sample declared none")

	zero := 0.0
	reg.RecordData("dev-1", now, &zero)
	rate, ok := reg.CurrentSampleRate("dev-1")
	require.True(t, ok, "an explicit zero rate is a known value")
	assert.Zero(t, rate)
}

func TestRegistry_BeginTickSweepsStaleDisconnectedOnly(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	reg := registry.New(helper.Logger)
	now := time.Now()
	stale := now.Add(-10 * time.Minute)

	reg.AddDevice("stale-idle")
	reg.AddDevice("stale-connected")
	reg.RecordData("stale-idle", stale, nil)
	reg.RecordData("stale-connected", stale, nil)
	reg.SetConnectedDevices([]string{"stale-connected"})

	snap := reg.BeginTick(5*time.Minute, now)

	assert.Equal(t, 1, snap.Swept)
	_, ok := reg.LastData("stale-idle")
	assert.False(t, ok, "disconnected stale entry must be removed")
	_, ok = reg.LastData("stale-connected")
	assert.True(t, ok, "connected device must never be swept")

	assert.True(t, reg.IsAvailable("stale-idle"), "sweep must not touch availability membership")
}

func TestRegistry_BeginTickSweepsHeartbeatAndSequence(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	reg := registry.New(helper.Logger)
	now := time.Now()

	reg.RecordHeartbeat("dev-1", 42, now.Add(-10*time.Minute))

	snap := reg.BeginTick(5*time.Minute, now)

	assert.Equal(t, 1, snap.Swept)
	_, ok := reg.LastHeartbeat("dev-1")
	assert.False(t, ok)
	_, ok = reg.LastSequence("dev-1")
	assert.False(t, ok, "sequence bookkeeping must be pruned with the heartbeat entry")
}

func TestRegistry_BeginTickSnapshotIsConsistentCopy(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	reg := registry.New(helper.Logger)
	now := time.Now()

	reg.AddDevice("dev-1")
	reg.SetConnectedDevices([]string{"dev-1"})
	reg.RecordData("dev-1", now, nil)

	snap := reg.BeginTick(5*time.Minute, now)

	// Mutations after the snapshot must not leak into it.
	reg.RemoveDevice("dev-1")
	reg.SetConnectedDevices(nil)

	assert.Contains(t, snap.Available, "dev-1")
	_, ok := snap.Connected["dev-1"]
	assert.True(t, ok)
	assert.Contains(t, snap.LastData, "dev-1")
	assert.Equal(t, 1, snap.DataEntries)
}
