package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannel_SendReceive(t *testing.T) {
	rc := New[int](3)

	assert.False(t, rc.Send(1))
	assert.False(t, rc.Send(2))
	assert.Equal(t, 2, rc.Len())

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestRingChannel_OverwritesOldestWhenFull(t *testing.T) {
	rc := New[int](3)

	for i := 1; i <= 5; i++ {
		rc.Send(i)
	}

	assert.Equal(t, uint64(2), rc.Dropped())

	var got []int
	for {
		v, ok := rc.TryReceive()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5}, got, "only the newest values survive")
}

func TestRingChannel_TrySendFullBuffer(t *testing.T) {
	rc := New[string](1)

	assert.True(t, rc.TrySend("a"))
	assert.False(t, rc.TrySend("b"), "TrySend must not displace buffered elements")

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestRingChannel_CloseStopsSends(t *testing.T) {
	rc := New[int](2)
	rc.Send(1)
	rc.Close()

	assert.False(t, rc.Send(2))
	assert.False(t, rc.TrySend(3))

	v, ok := <-rc.C()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = <-rc.C()
	assert.False(t, ok, "channel must be closed after draining")
}

func TestRingChannel_ZeroCapacityPanics(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}

func TestRingChannel_ConcurrentSendAndClose(t *testing.T) {
	// Close must never race a sender into a closed channel, regardless of
	// when it lands relative to in-flight sends.
	for i := 0; i < 50; i++ {
		rc := New[int](2)

		var wg sync.WaitGroup
		for s := 0; s < 4; s++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 100; n++ {
					rc.Send(n)
				}
			}()
		}

		rc.Close()
		wg.Wait()

		assert.False(t, rc.Send(1), "sends after close are ignored")
	}
}
