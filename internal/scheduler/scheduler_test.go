package scheduler

import (
	"net/netip"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/dhtcrawler/internal/nodeid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(i int) Item {
	var id nodeid.ID
	id[0] = byte(i >> 8)
	id[1] = byte(i)
	return Item{ID: id, HasID: true, Addr: netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, 0, byte(i >> 8), byte(i)}), 6881)}
}

func TestPushIsIdempotent(t *testing.T) {
	s := New(0, nil)
	assert.True(t, s.Push("find_node", "a"))
	assert.False(t, s.Push("find_node", "a"))
	assert.True(t, s.Push("get_peers", "a"))
	assert.Equal(t, []string{"find_node", "get_peers"}, s.QueryTypes())

	ts, err := s.Get("find_node", "a")
	require.NoError(t, err)
	assert.True(t, ts.Started)
	assert.Equal(t, DefaultTaskMaxLength, ts.MaxLength)
}

func TestEnqueueDeduplicates(t *testing.T) {
	s := New(8, nil)
	s.Push("ping", "ping")
	assert.True(t, s.Enqueue("ping", "ping", item(1)))
	assert.False(t, s.Enqueue("ping", "ping", item(1)))
	bootstrap := Item{Addr: item(1).Addr}
	assert.True(t, s.Enqueue("ping", "ping", bootstrap))

	ts, err := s.Get("ping", "ping")
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Pending)
	assert.Equal(t, []Item{item(1), bootstrap}, ts.Items)
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	s := New(4, nil)
	s.Push("find_node", "k")
	for i := 0; i < 10; i++ {
		s.Enqueue("find_node", "k", item(i))
	}
	ts, err := s.Get("find_node", "k")
	require.NoError(t, err)
	assert.Equal(t, 4, ts.Pending)
}

func TestEnqueueUnknownTask(t *testing.T) {
	s := New(0, nil)
	assert.False(t, s.Enqueue("find_node", "missing", item(1)))
	_, ok := s.Dequeue("find_node", "missing")
	assert.False(t, ok)
}

func TestDequeueCountsDispatches(t *testing.T) {
	s := New(0, nil)
	s.Push("get_peers", "h")
	s.Enqueue("get_peers", "h", item(1))
	s.Enqueue("get_peers", "h", item(2))

	seen := make(map[Item]bool)
	for i := 0; i < 2; i++ {
		it, ok := s.Dequeue("get_peers", "h")
		require.True(t, ok)
		seen[it] = true
	}
	assert.Len(t, seen, 2)
	_, ok := s.Dequeue("get_peers", "h")
	assert.False(t, ok)

	// A dispatched item may be queued again.
	assert.True(t, s.Enqueue("get_peers", "h", item(1)))

	ts, err := s.Get("get_peers", "h")
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Dispatched)
}

func TestStartStop(t *testing.T) {
	mock := clock.NewMock()
	s := New(0, mock)
	s.Push("find_node", "k")

	mock.Add(time.Minute)
	require.NoError(t, s.Stop("find_node", "k"))
	ts, _ := s.Get("find_node", "k")
	assert.False(t, ts.Started)
	assert.Equal(t, time.Minute, ts.RunTime)

	started, err := s.Started("find_node", "k")
	require.NoError(t, err)
	assert.False(t, started)

	require.NoError(t, s.Start("find_node", "k"))
	ts, _ = s.Get("find_node", "k")
	assert.True(t, ts.Started)
	assert.Equal(t, time.Duration(0), ts.RunTime)

	assert.ErrorIs(t, s.Start("find_node", "x"), ErrTaskNotFound)
	assert.ErrorIs(t, s.Stop("ping", "k"), ErrTaskNotFound)
	assert.ErrorIs(t, s.Remove("find_node", "x"), ErrTaskNotFound)
	_, err = s.Get("find_node", "x")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRemoveIsLazy(t *testing.T) {
	s := New(0, nil)
	s.Push("find_node", "a")
	s.Push("find_node", "b")
	s.Push("find_node", "c")

	require.NoError(t, s.Remove("find_node", "b"))
	ts, err := s.Get("find_node", "b")
	require.NoError(t, err)
	assert.True(t, ts.Removed)
	assert.False(t, ts.Started)

	assert.ErrorIs(t, s.Start("find_node", "b"), ErrTaskNotFound)
	started, err := s.Started("find_node", "b")
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, []string{"a", "b", "c"}, s.Keys("find_node"))

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, []string{"a", "c"}, s.Keys("find_node"))
	_, err = s.Get("find_node", "b")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.Equal(t, 0, s.Sweep())

	assert.True(t, s.Push("find_node", "b"))
}

func TestStatus(t *testing.T) {
	s := New(0, nil)
	s.Push("ping", "ping")
	s.Push("find_node", "a")
	s.Enqueue("ping", "ping", item(3))

	st := s.Status()
	require.Len(t, st, 2)
	require.Len(t, st["ping"], 1)
	assert.Equal(t, 1, st["ping"][0].Pending)
	assert.Nil(t, st["ping"][0].Items)
	assert.Len(t, s.Tasks("find_node"), 1)
	assert.Empty(t, s.Tasks("get_peers"))
}
