package dht

import (
	"net/netip"

	"github.com/cenkalti/dhtcrawler/internal/krpc"
	"github.com/cenkalti/dhtcrawler/internal/metrics"
	"github.com/cenkalti/dhtcrawler/internal/nodeid"
	"github.com/cenkalti/dhtcrawler/internal/stringutil"
)

// Token given in get_peers replies. Announces are never verified.
const announceToken = "aoeusnth"

const maxLoggedMessage = 100

type messageHandler func(m *krpc.Message, addr netip.AddrPort)

type queryHandler func(tid string, args krpc.Args, addr netip.AddrPort)

func (n *Node) initHandlers() {
	n.messageHandlers = map[string]messageHandler{
		krpc.TypeQuery:    n.handleQuery,
		krpc.TypeResponse: n.handleReply,
		krpc.TypeError:    n.handleError,
	}
	n.queryHandlers = map[string]queryHandler{
		krpc.MethodPing:         n.onPing,
		krpc.MethodFindNode:     n.onFindNode,
		krpc.MethodGetPeers:     n.onGetPeers,
		krpc.MethodAnnouncePeer: n.onAnnouncePeer,
	}
	n.initReplyHandlers()
	n.initTaskTypes()
}

// handlePacket decodes a datagram and dispatches it by message class.
func (n *Node) handlePacket(b []byte, addr netip.AddrPort) {
	n.metrics.Incr(counterReceived)
	m, kerr := krpc.Decode(b)
	if kerr != nil {
		n.metrics.Incr(metrics.Name("recv", "invalid"))
		n.log.Debugf("invalid packet from %s: %s", addr, kerr)
		n.sendError(kerr, addr)
		return
	}
	h, ok := n.messageHandlers[m.Y]
	if !ok {
		n.metrics.Incr(metrics.Name("recv", "unknown"))
		n.log.Debugf("unknown message type %q from %s", m.Y, addr)
		n.sendError(krpc.NewError(krpc.ServerError, m.T), addr)
		return
	}
	h(m, addr)
}

func (n *Node) handleQuery(m *krpc.Message, addr netip.AddrPort) {
	h, ok := n.queryHandlers[m.Q]
	if !ok {
		n.metrics.Incr(metrics.Name("recv", "q", "unknown"))
		n.log.Debugf("unknown query method %q from %s", m.Q, addr)
		n.sendError(krpc.NewError(krpc.ServerError, m.T), addr)
		return
	}
	args, err := krpc.ParseArgs(m.Q, m.A)
	if err != nil {
		n.metrics.Incr(metrics.Name("recv", "q", "invalid"))
		n.log.Debugf("invalid %s query from %s: %s", m.Q, addr, err)
		n.sendError(krpc.NewError(krpc.ProtocolError, m.T), addr)
		return
	}
	n.metrics.Incr(metrics.Name("recv", "q", m.Q))
	h(m.T, args, addr)
}

func (n *Node) handleError(m *krpc.Message, addr netip.AddrPort) {
	n.metrics.Incr(metrics.Name("recv", "e"))
	e, err := krpc.ParseError(m)
	if err != nil {
		n.log.Debugf("invalid error message from %s: %s", addr, err)
		return
	}
	n.log.Debugf("error from %s: %d %s", addr, e.Code, stringutil.Printable(e.Message, maxLoggedMessage))
}

func (n *Node) onPing(tid string, args krpc.Args, addr netip.AddrPort) {
	n.sendReply(&krpc.Reply{TransactionID: tid, ID: n.idFor(args.ID, true)}, addr)
}

func (n *Node) onFindNode(tid string, args krpc.Args, addr netip.AddrPort) {
	n.sendReply(&krpc.Reply{
		TransactionID: tid,
		ID:            n.idFor(args.ID, true),
		Nodes:         n.nearest(args.Target),
	}, addr)
}

func (n *Node) onGetPeers(tid string, args krpc.Args, addr netip.AddrPort) {
	n.metrics.Incr(metrics.Name("collect", krpc.MethodGetPeers))
	n.harvester.GetPeersQuery(args.InfoHash, addr)
	n.sendReply(&krpc.Reply{
		TransactionID: tid,
		ID:            n.idFor(args.ID, true),
		Nodes:         n.nearest(args.InfoHash),
		Token:         announceToken,
	}, addr)
}

func (n *Node) onAnnouncePeer(tid string, args krpc.Args, addr netip.AddrPort) {
	port := uint16(args.Port)
	if args.ImpliedPort {
		port = addr.Port()
	}
	n.metrics.Incr(metrics.Name("collect", krpc.MethodAnnouncePeer))
	n.harvester.AnnouncePeerQuery(args.InfoHash, netip.AddrPortFrom(addr.Addr(), port))
	n.sendReply(&krpc.Reply{TransactionID: tid, ID: n.id}, addr)
}

// nearest returns the nodes to put in a find_node or get_peers reply. Never nil.
func (n *Node) nearest(target nodeid.ID) []krpc.Node {
	records := n.table.Nearest(target, n.config.ReturnNodeMaxLength)
	nodes := make([]krpc.Node, 0, len(records))
	for _, r := range records {
		nodes = append(nodes, krpc.Node{ID: r.ID, Addr: r.Addr})
	}
	return nodes
}

// idFor returns the id to present to the remote node with id remote.
func (n *Node) idFor(remote nodeid.ID, known bool) nodeid.ID {
	if n.config.NeighborIDs && known {
		return nodeid.Neighbor(remote, n.id)
	}
	return n.id
}

func (n *Node) sendReply(r *krpc.Reply, addr netip.AddrPort) {
	b, err := r.Encode()
	if err != nil {
		n.log.Errorln("cannot encode reply:", err)
		return
	}
	n.send(b, addr)
}

func (n *Node) sendError(e *krpc.Error, addr netip.AddrPort) {
	b, err := e.Encode()
	if err != nil {
		n.log.Errorln("cannot encode error:", err)
		return
	}
	n.metrics.Incr(metrics.Name("send", "e"))
	n.send(b, addr)
}

func (n *Node) send(b []byte, addr netip.AddrPort) bool {
	_, err := n.conn.WriteToUDPAddrPort(b, addr)
	if err != nil {
		n.metrics.Incr(metrics.Name("send", "error"))
		n.log.Debugf("cannot send to %s: %s", addr, err)
		return false
	}
	n.metrics.Incr(counterSent)
	return true
}
