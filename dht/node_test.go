package dht

import (
	"context"
	"net"
	"net/netip"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/dhtcrawler/internal/correlator"
	"github.com/cenkalti/dhtcrawler/internal/krpc"
	"github.com/cenkalti/dhtcrawler/internal/nodeid"
	"github.com/cenkalti/dhtcrawler/internal/scheduler"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timeout = 5 * time.Second

func testConfig() Config {
	cfg := DefaultConfig
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.BootstrapNodes = nil
	cfg.Database = ""
	cfg.CheckInterval = time.Hour
	cfg.StatusInterval = time.Hour
	return cfg
}

func newTestNode(t *testing.T, cfg Config) *Node {
	n, err := New(cfg)
	require.NoError(t, err)
	return n
}

func newPeer(t *testing.T) *net.UDPConn {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func peerAddr(conn *net.UDPConn) netip.AddrPort {
	return conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func read(t *testing.T, conn *net.UDPConn) (*krpc.Message, netip.AddrPort) {
	buf := make([]byte, maxPacketSize)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	nr, addr, err := conn.ReadFromUDPAddrPort(buf)
	require.NoError(t, err)
	m, kerr := krpc.Decode(buf[:nr])
	require.Nil(t, kerr)
	return m, addr
}

func exchange(t *testing.T, conn *net.UDPConn, to netip.AddrPort, b []byte) *krpc.Message {
	_, err := conn.WriteToUDPAddrPort(b, to)
	require.NoError(t, err)
	m, _ := read(t, conn)
	return m
}

func testID(b ...byte) nodeid.ID {
	var id nodeid.ID
	copy(id[:], b)
	return id
}

type recorder struct {
	m         sync.Mutex
	getPeers  []nodeid.ID
	announces []netip.AddrPort
	values    []netip.AddrPort
	targets   []nodeid.ID
}

func (r *recorder) GetPeersQuery(infoHash nodeid.ID, from netip.AddrPort) {
	r.m.Lock()
	defer r.m.Unlock()
	r.getPeers = append(r.getPeers, infoHash)
}

func (r *recorder) AnnouncePeerQuery(infoHash nodeid.ID, peer netip.AddrPort) {
	r.m.Lock()
	defer r.m.Unlock()
	r.announces = append(r.announces, peer)
}

func (r *recorder) PeerValues(infoHash nodeid.ID, peers []netip.AddrPort) {
	r.m.Lock()
	defer r.m.Unlock()
	r.values = append(r.values, peers...)
}

func (r *recorder) TargetFound(target nodeid.ID, addr netip.AddrPort) {
	r.m.Lock()
	defer r.m.Unlock()
	r.targets = append(r.targets, target)
}

func (r *recorder) numTargets() int {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.targets)
}

func (r *recorder) numValues() int {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.values)
}

func TestMalformedPacketsAreAnswered(t *testing.T) {
	defer leaktest.Check(t)()
	n := newTestNode(t, testConfig())
	defer n.Close()
	require.NoError(t, n.Start())
	conn := newPeer(t)

	cases := []struct {
		packet string
		code   int
		tid    string
	}{
		{"garbage", krpc.ProtocolError, krpc.SentinelTransactionID},
		{"l1:ae", krpc.ProtocolError, krpc.SentinelTransactionID},
		{"d1:y1:qe", krpc.ProtocolError, krpc.SentinelTransactionID},
		{"d1:t2:aa1:y1:qe", krpc.MethodUnknown, "aa"},
		{"d1:q4:ping1:t2:bb1:y1:qe", krpc.ProtocolError, "bb"},
		{"d1:ad2:id3:abce1:q4:ping1:t2:cc1:y1:qe", krpc.ProtocolError, "cc"},
		{"d1:ad2:id20:abcdefghij0123456789e1:q3:foo1:t2:dd1:y1:qe", krpc.ServerError, "dd"},
		{"d1:ad2:id20:abcdefghij0123456789e1:q9:find_node1:t2:ee1:y1:qe", krpc.ProtocolError, "ee"},
	}
	for _, c := range cases {
		m := exchange(t, conn, n.Addr(), []byte(c.packet))
		require.Equal(t, krpc.TypeError, m.Y, c.packet)
		e, err := krpc.ParseError(m)
		require.NoError(t, err)
		assert.Equal(t, c.code, e.Code, c.packet)
		assert.Equal(t, c.tid, m.T, c.packet)
	}
}

func TestPingQuery(t *testing.T) {
	defer leaktest.Check(t)()
	n := newTestNode(t, testConfig())
	defer n.Close()
	require.NoError(t, n.Start())
	conn := newPeer(t)

	m := exchange(t, conn, n.Addr(), []byte("d1:ad2:id20:abcdefghij0123456789e1:q4:ping1:t2:aa1:y1:qe"))
	require.Equal(t, krpc.TypeResponse, m.Y)
	assert.Equal(t, "aa", m.T)
	r, err := krpc.ParseReply(m)
	require.NoError(t, err)
	assert.Equal(t, n.ID(), r.ID)
	assert.Equal(t, int64(1), n.Count("recv.q.ping"))
}

func TestNeighborIDs(t *testing.T) {
	defer leaktest.Check(t)()
	cfg := testConfig()
	cfg.NeighborIDs = true
	cfg.NodeIDSeed = "crawler"
	n := newTestNode(t, cfg)
	defer n.Close()
	require.NoError(t, n.Start())
	assert.Equal(t, nodeid.FromSeed("crawler"), n.ID())
	conn := newPeer(t)

	remote, err := nodeid.FromString("abcdefghij0123456789")
	require.NoError(t, err)
	m := exchange(t, conn, n.Addr(), []byte("d1:ad2:id20:abcdefghij0123456789e1:q4:ping1:t2:aa1:y1:qe"))
	r, err := krpc.ParseReply(m)
	require.NoError(t, err)
	assert.Equal(t, nodeid.Neighbor(remote, n.ID()), r.ID)
	assert.Equal(t, "abcdefghij", string(r.ID[:10]))
}

func TestFindNodeQuery(t *testing.T) {
	defer leaktest.Check(t)()
	n := newTestNode(t, testConfig())
	defer n.Close()
	for i := 1; i <= 3; i++ {
		id := testID(byte(i))
		require.NoError(t, n.table.Push(id[:], netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, 0, 0, byte(i)}), 6881)))
	}
	require.NoError(t, n.Start())
	conn := newPeer(t)

	q := krpc.Query{TransactionID: "fn", Method: krpc.MethodFindNode, Args: krpc.Args{ID: testID(9), Target: testID(1)}}
	b, err := q.Encode()
	require.NoError(t, err)
	m := exchange(t, conn, n.Addr(), b)
	r, err := krpc.ParseReply(m)
	require.NoError(t, err)
	assert.Len(t, r.Nodes, 3)
	assert.Empty(t, r.Token)

	// Querying nodes are not added to the table.
	assert.Equal(t, 3, n.table.Size())
}

func TestGetPeersAndAnnounceQueries(t *testing.T) {
	defer leaktest.Check(t)()
	h := &recorder{}
	cfg := testConfig()
	cfg.Harvester = h
	n := newTestNode(t, cfg)
	defer n.Close()
	require.NoError(t, n.Start())
	conn := newPeer(t)
	ih := testID(0xde, 0xad)

	q := krpc.Query{TransactionID: "gp", Method: krpc.MethodGetPeers, Args: krpc.Args{ID: testID(9), InfoHash: ih}}
	b, err := q.Encode()
	require.NoError(t, err)
	m := exchange(t, conn, n.Addr(), b)
	r, err := krpc.ParseReply(m)
	require.NoError(t, err)
	assert.Equal(t, announceToken, r.Token)
	assert.NotNil(t, r.Nodes)
	assert.Empty(t, r.Nodes)

	q = krpc.Query{TransactionID: "ap", Method: krpc.MethodAnnouncePeer, Args: krpc.Args{ID: testID(9), InfoHash: ih, Port: 1, ImpliedPort: true, Token: announceToken}}
	b, err = q.Encode()
	require.NoError(t, err)
	m = exchange(t, conn, n.Addr(), b)
	r, err = krpc.ParseReply(m)
	require.NoError(t, err)
	assert.Equal(t, n.ID(), r.ID)

	h.m.Lock()
	defer h.m.Unlock()
	assert.Equal(t, []nodeid.ID{ih}, h.getPeers)
	assert.Equal(t, []netip.AddrPort{peerAddr(conn)}, h.announces)
	assert.Equal(t, int64(1), n.Count("collect.get_peers"))
	assert.Equal(t, int64(1), n.Count("collect.announce_peer"))
}

func TestGetPeersQueryIsStored(t *testing.T) {
	defer leaktest.Check(t)()
	cfg := testConfig()
	cfg.Database = filepath.Join(t.TempDir(), "harvest.db")
	n := newTestNode(t, cfg)
	defer n.Close()
	require.NoError(t, n.Start())
	conn := newPeer(t)
	ih := testID(0xbe, 0xef)

	q := krpc.Query{TransactionID: "gp", Method: krpc.MethodGetPeers, Args: krpc.Args{ID: testID(9), InfoHash: ih}}
	b, err := q.Encode()
	require.NoError(t, err)
	exchange(t, conn, n.Addr(), b)

	n.store.Flush()
	r, err := n.store.Get(ih)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 1, r.GetPeers)
	dropped, ok := n.metrics.Snapshot()["harvest.dropped"]
	require.True(t, ok)
	assert.Equal(t, int64(0), dropped)
}

func TestSpoofedReplyIsRejected(t *testing.T) {
	defer leaktest.Check(t)()
	n := newTestNode(t, testConfig())
	defer n.Close()
	require.NoError(t, n.Start())
	remote := newPeer(t)
	spoofer := newPeer(t)
	remoteID := testID(0xaa)

	tid := n.correlator.Reserve(correlator.Context{
		QueryType:  krpc.MethodPing,
		TaskKey:    PingTaskKey,
		ExpectedID: &remoteID,
		Addr:       peerAddr(remote),
	})
	reply := func(id nodeid.ID) []byte {
		b, err := (&krpc.Reply{TransactionID: tid, ID: id}).Encode()
		require.NoError(t, err)
		return b
	}

	_, err := spoofer.WriteToUDPAddrPort(reply(remoteID), n.Addr())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return n.Count(counterInvalidReply) == 1 }, timeout, 10*time.Millisecond)
	assert.Equal(t, 0, n.table.Size())

	_, err = remote.WriteToUDPAddrPort(reply(testID(0xbb)), n.Addr())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return n.Count(counterInvalidReply) == 2 }, timeout, 10*time.Millisecond)
	assert.Equal(t, 0, n.table.Size())

	_, err = remote.WriteToUDPAddrPort(reply(remoteID), n.Addr())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return n.table.Contains(remoteID) }, timeout, 10*time.Millisecond)
	assert.Equal(t, int64(1), n.Count("recv.r.ping"))

	// The transaction is consumed.
	_, err = remote.WriteToUDPAddrPort(reply(remoteID), n.Addr())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return n.Count(counterInvalidReply) == 3 }, timeout, 10*time.Millisecond)
}

func TestBootstrapAndHealthCheck(t *testing.T) {
	defer leaktest.Check(t)()
	b := newTestNode(t, testConfig())
	defer b.Close()
	require.NoError(t, b.Start())

	mock := clock.NewMock()
	cfg := testConfig()
	cfg.Clock = mock
	cfg.BootstrapNodes = []string{b.Addr().String()}
	a := newTestNode(t, cfg)
	defer a.Close()
	require.NoError(t, a.Start())

	require.Eventually(t, func() bool { return a.table.Contains(b.ID()) }, timeout, 10*time.Millisecond)
	assert.Greater(t, b.Count("recv.q.find_node"), int64(0))
	assert.Greater(t, a.Count("recv.r.find_node"), int64(0))

	// Replies to the lookup would keep the node fresh.
	require.NoError(t, a.scheduler.Stop(krpc.MethodFindNode, a.ID().Bytes()))
	require.Eventually(t, func() bool {
		mock.Add(cfg.NodeUpdateTime + time.Second)
		a.checkTable()
		return a.Count("recv.r.ping") > 0
	}, timeout, 10*time.Millisecond)
	assert.Greater(t, b.Count("recv.q.ping"), int64(0))
}

func TestSelfLookupStopsWhenTableIsFull(t *testing.T) {
	defer leaktest.Check(t)()
	remote := newPeer(t)
	cfg := testConfig()
	cfg.FullTableSize = 3
	cfg.MinBootstrapTableSize = 1
	n := newTestNode(t, cfg)
	defer n.Close()
	self := n.ID().Bytes()

	push := func(b byte) {
		id := n.ID()
		id[19] ^= b
		require.NoError(t, n.table.Push(id[:], peerAddr(remote)))
	}
	push(1)
	push(2)

	n.sendCycle() // seeds from the table
	ts, err := n.scheduler.Get(krpc.MethodFindNode, self)
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Pending)

	n.sendCycle()
	assert.Equal(t, int64(1), n.Count("send.find_node"))

	push(4)
	push(8)
	n.sendCycle()
	started, err := n.scheduler.Started(krpc.MethodFindNode, self)
	require.NoError(t, err)
	assert.False(t, started)

	n.sendCycle()
	n.sendCycle()
	assert.Equal(t, int64(1), n.Count("send.find_node"))
}

func TestLookupLimits(t *testing.T) {
	defer leaktest.Check(t)()
	remote := newPeer(t)
	mock := clock.NewMock()
	cfg := testConfig()
	cfg.Clock = mock
	cfg.MinBootstrapTableSize = 1
	cfg.MaxTaskDispatches = 2
	n := newTestNode(t, cfg)
	defer n.Close()
	for i := 1; i <= 5; i++ {
		id := testID(byte(i))
		require.NoError(t, n.table.Push(id[:], peerAddr(remote)))
	}
	// The self lookup would compete for the same nodes.
	require.NoError(t, n.scheduler.Stop(krpc.MethodFindNode, n.ID().Bytes()))

	ih := testID(0x42).Bytes()
	require.Equal(t, Applied, n.applyControl(Command{Action: ActionPush, QueryType: krpc.MethodGetPeers, Key: ih}))
	for i := 0; i < 10; i++ {
		n.sendCycle()
	}
	assert.Equal(t, int64(3), n.Count("send.get_peers"))
	started, err := n.scheduler.Started(krpc.MethodGetPeers, ih)
	require.NoError(t, err)
	assert.False(t, started)

	target := testID(0x43).Bytes()
	require.Equal(t, Applied, n.applyControl(Command{Action: ActionPush, QueryType: krpc.MethodFindNode, Key: target}))
	n.sendCycle()
	mock.Add(cfg.MaxTaskRunTime + time.Second)
	n.sendCycle()
	started, err = n.scheduler.Started(krpc.MethodFindNode, target)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, int64(0), n.Count("send.find_node"))
}

func TestLookupQueriesNearestNodes(t *testing.T) {
	defer leaktest.Check(t)()
	remote := newPeer(t)
	remoteID := testID(0x77)
	h := &recorder{}
	cfg := testConfig()
	cfg.Harvester = h
	cfg.MinBootstrapTableSize = 1
	n := newTestNode(t, cfg)
	defer n.Close()
	require.NoError(t, n.table.Push(remoteID[:], peerAddr(remote)))
	require.NoError(t, n.Start())

	ih := testID(0x42)
	r, err := n.Control(context.Background(), Command{Action: ActionPush, QueryType: krpc.MethodGetPeers, Key: ih.Bytes()})
	require.NoError(t, err)
	require.Equal(t, Applied, r)

	var m *krpc.Message
	var from netip.AddrPort
	for {
		m, from = read(t, remote)
		if m.Q == krpc.MethodGetPeers {
			break
		}
	}
	args, err := krpc.ParseArgs(m.Q, m.A)
	require.NoError(t, err)
	assert.Equal(t, ih, args.InfoHash)
	assert.Equal(t, n.ID(), args.ID)

	peer := netip.MustParseAddrPort("1.2.3.4:5678")
	b, err := (&krpc.Reply{
		TransactionID: m.T,
		ID:            remoteID,
		Nodes:         []krpc.Node{{ID: testID(0x78), Addr: netip.MustParseAddrPort("10.0.0.1:6881")}},
		Values:        []netip.AddrPort{peer},
		Token:         "token",
	}).Encode()
	require.NoError(t, err)
	_, err = remote.WriteToUDPAddrPort(b, from)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.numValues() > 0 }, timeout, 10*time.Millisecond)
	h.m.Lock()
	assert.Equal(t, peer, h.values[0])
	h.m.Unlock()
	assert.Equal(t, int64(1), n.Count("collect.values"))
}

func TestReplyForRemovedOrStoppedTask(t *testing.T) {
	defer leaktest.Check(t)()
	h := &recorder{}
	cfg := testConfig()
	cfg.Harvester = h
	n := newTestNode(t, cfg)
	defer n.Close()
	remoteID := testID(0x10)
	addr := netip.MustParseAddrPort("10.0.0.1:6881")
	ih := testID(0x42).Bytes()

	reply := func() []byte {
		tid := n.correlator.Reserve(correlator.Context{QueryType: krpc.MethodGetPeers, TaskKey: ih, ExpectedID: &remoteID, Addr: addr})
		b, err := (&krpc.Reply{TransactionID: tid, ID: remoteID, Values: []netip.AddrPort{addr}}).Encode()
		require.NoError(t, err)
		return b
	}

	// Task does not exist. The node is still recorded because the reply is authentic.
	n.handlePacket(reply(), addr)
	assert.True(t, n.table.Contains(remoteID))
	assert.Equal(t, int64(1), n.Count("recv.r.get_peers"))

	n.scheduler.Push(krpc.MethodGetPeers, ih)
	require.NoError(t, n.scheduler.Stop(krpc.MethodGetPeers, ih))
	n.handlePacket(reply(), addr)

	require.NoError(t, n.scheduler.Remove(krpc.MethodGetPeers, ih))
	n.handlePacket(reply(), addr)
	assert.Equal(t, 0, h.numValues())

	n.scheduler.Sweep()
	n.scheduler.Push(krpc.MethodGetPeers, ih)
	n.handlePacket(reply(), addr)
	assert.Equal(t, 1, h.numValues())
}

func TestFindNodeReplyEnqueuesAndFindsTarget(t *testing.T) {
	defer leaktest.Check(t)()
	h := &recorder{}
	cfg := testConfig()
	cfg.Harvester = h
	n := newTestNode(t, cfg)
	defer n.Close()
	remoteID := testID(0x10)
	addr := netip.MustParseAddrPort("10.0.0.1:6881")
	target := testID(0x43)
	require.True(t, n.scheduler.Push(krpc.MethodFindNode, target.Bytes()))

	tid := n.correlator.Reserve(correlator.Context{QueryType: krpc.MethodFindNode, TaskKey: target.Bytes(), ExpectedID: &remoteID, Addr: addr})
	b, err := (&krpc.Reply{
		TransactionID: tid,
		ID:            remoteID,
		Nodes: []krpc.Node{
			{ID: target, Addr: netip.MustParseAddrPort("10.0.0.2:6881")},
			{ID: n.ID(), Addr: netip.MustParseAddrPort("10.0.0.3:6881")},
			{ID: testID(0x44), Addr: netip.MustParseAddrPort("10.0.0.4:6881")},
		},
	}).Encode()
	require.NoError(t, err)
	n.handlePacket(b, addr)

	assert.Equal(t, 1, h.numTargets())
	h.m.Lock()
	assert.Equal(t, []nodeid.ID{target}, h.targets)
	h.m.Unlock()
	assert.Equal(t, int64(1), n.Count("collect.target"))

	ts, err := n.scheduler.Get(krpc.MethodFindNode, target.Bytes())
	require.NoError(t, err)
	require.Equal(t, 2, ts.Pending)
	for _, it := range ts.Items {
		assert.NotEqual(t, n.ID(), it.ID)
	}
}

func TestHealthCheckChargesOnlyQueuedNodes(t *testing.T) {
	defer leaktest.Check(t)()
	mock := clock.NewMock()
	cfg := testConfig()
	cfg.Clock = mock
	n := newTestNode(t, cfg)
	defer n.Close()
	queuedID, freshID := testID(0x01), testID(0x02)
	queuedAddr := netip.MustParseAddrPort("10.0.0.1:6881")
	require.NoError(t, n.table.Push(queuedID[:], queuedAddr))
	require.NoError(t, n.table.Push(freshID[:], netip.MustParseAddrPort("10.0.0.2:6881")))
	require.True(t, n.scheduler.Enqueue(krpc.MethodPing, PingTaskKey, scheduler.Item{ID: queuedID, HasID: true, Addr: queuedAddr}))

	mock.Add(cfg.NodeUpdateTime + time.Second)
	n.checkTable()

	r, ok := n.table.Get(queuedID)
	require.True(t, ok)
	assert.Equal(t, cfg.NodeDefaultWeight, r.Weight)
	assert.Equal(t, 0, r.MissStreak)

	r, ok = n.table.Get(freshID)
	require.True(t, ok)
	assert.Equal(t, cfg.NodeDefaultWeight-1, r.Weight)
	assert.Equal(t, 1, r.MissStreak)

	ts, err := n.scheduler.Get(krpc.MethodPing, PingTaskKey)
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Pending)
}

func TestControl(t *testing.T) {
	defer leaktest.Check(t)()
	n := newTestNode(t, testConfig())
	require.NoError(t, n.Start())
	ctx := context.Background()
	ih := testID(0x42).Bytes()

	cases := []struct {
		cmd    Command
		result Result
	}{
		{Command{ActionStop, krpc.MethodFindNode, n.ID().Bytes()}, Protected},
		{Command{ActionRemove, krpc.MethodPing, PingTaskKey}, Protected},
		{Command{ActionPush, krpc.MethodAnnouncePeer, ih}, Invalid},
		{Command{ActionPush, krpc.MethodGetPeers, "short"}, Invalid},
		{Command{"restart", krpc.MethodGetPeers, ih}, Invalid},
		{Command{ActionStop, krpc.MethodGetPeers, ih}, NotFound},
		{Command{ActionPush, krpc.MethodGetPeers, ih}, Applied},
		{Command{ActionPush, krpc.MethodGetPeers, ih}, Exists},
		{Command{ActionStop, krpc.MethodGetPeers, ih}, Applied},
		{Command{ActionStart, krpc.MethodGetPeers, ih}, Applied},
		{Command{ActionRemove, krpc.MethodGetPeers, ih}, Applied},
	}
	for _, c := range cases {
		r, err := n.Control(ctx, c.cmd)
		require.NoError(t, err)
		assert.Equal(t, c.result, r, "%s %s", c.cmd.Action, c.cmd.QueryType)
	}

	require.NoError(t, n.Close())
	_, err := n.Control(ctx, Command{ActionPush, krpc.MethodGetPeers, ih})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, n.Start(), ErrClosed)
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey(krpc.MethodPing, PingTaskKey)
	require.NoError(t, err)
	assert.Equal(t, PingTaskKey, key)

	key, err = ParseKey(krpc.MethodGetPeers, "f60cc95e3566af84c1ab223fd4ce80fa88e6438a")
	require.NoError(t, err)
	assert.Len(t, key, nodeid.Length)
	assert.Equal(t, "f60cc95e3566af84c1ab223fd4ce80fa88e6438a", FormatKey(key))

	_, err = ParseKey(krpc.MethodFindNode, "nope")
	assert.Error(t, err)
}
