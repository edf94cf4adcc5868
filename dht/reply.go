package dht

import (
	"errors"
	"net/netip"

	"github.com/cenkalti/dhtcrawler/internal/correlator"
	"github.com/cenkalti/dhtcrawler/internal/krpc"
	"github.com/cenkalti/dhtcrawler/internal/metrics"
	"github.com/cenkalti/dhtcrawler/internal/nodeid"
	"github.com/cenkalti/dhtcrawler/internal/scheduler"
)

type replyHandler func(ctx correlator.Context, r *krpc.Reply, addr netip.AddrPort)

func (n *Node) initReplyHandlers() {
	n.replyHandlers = map[string]replyHandler{
		krpc.MethodPing:     n.onPingReply,
		krpc.MethodFindNode: n.onFindNodeReply,
		krpc.MethodGetPeers: n.onGetPeersReply,
	}
}

// handleReply accepts a reply only if it answers a query we have sent to the node that replied.
// The replying node is then recorded in the routing table and the reply is passed to the task
// that sent the query.
func (n *Node) handleReply(m *krpc.Message, addr netip.AddrPort) {
	r, err := krpc.ParseReply(m)
	if err != nil {
		n.metrics.Incr(counterInvalidReply)
		n.log.Debugf("invalid reply from %s: %s", addr, err)
		return
	}
	ctx, err := n.correlator.Validate(m.T, r.ID, addr)
	if err != nil {
		n.metrics.Incr(counterInvalidReply)
		n.log.Debugf("rejected reply from %s: %s", addr, err)
		return
	}
	if err = n.table.Push(r.ID[:], addr); err != nil {
		n.log.Errorln("cannot update routing table:", err)
	}
	n.metrics.Incr(metrics.Name("recv", "r", ctx.QueryType))
	h, ok := n.replyHandlers[ctx.QueryType]
	if !ok {
		n.log.Errorf("no handler for %s reply", ctx.QueryType)
		return
	}
	started, err := n.scheduler.Started(ctx.QueryType, ctx.TaskKey)
	if errors.Is(err, scheduler.ErrTaskNotFound) {
		n.log.Infof("task is removed: %s %s", ctx.QueryType, FormatKey(ctx.TaskKey))
		return
	}
	if !started {
		return
	}
	h(ctx, r, addr)
}

func (n *Node) onPingReply(ctx correlator.Context, r *krpc.Reply, addr netip.AddrPort) {}

func (n *Node) onFindNodeReply(ctx correlator.Context, r *krpc.Reply, addr netip.AddrPort) {
	target, err := nodeid.FromString(ctx.TaskKey)
	if err != nil {
		return
	}
	for _, node := range r.Nodes {
		if node.ID == n.id {
			continue
		}
		if node.ID == target {
			n.metrics.Incr(metrics.Name("collect", "target"))
			n.harvester.TargetFound(target, node.Addr)
		}
		n.scheduler.Enqueue(ctx.QueryType, ctx.TaskKey, scheduler.Item{ID: node.ID, HasID: true, Addr: node.Addr})
	}
}

func (n *Node) onGetPeersReply(ctx correlator.Context, r *krpc.Reply, addr netip.AddrPort) {
	for _, node := range r.Nodes {
		if node.ID == n.id {
			continue
		}
		n.scheduler.Enqueue(ctx.QueryType, ctx.TaskKey, scheduler.Item{ID: node.ID, HasID: true, Addr: node.Addr})
	}
	if len(r.Values) == 0 {
		return
	}
	infoHash, err := nodeid.FromString(ctx.TaskKey)
	if err != nil {
		return
	}
	n.metrics.Incr(metrics.Name("collect", "values"))
	n.harvester.PeerValues(infoHash, r.Values)
}
