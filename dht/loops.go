package dht

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/cenkalti/dhtcrawler/internal/krpc"
	"github.com/cenkalti/dhtcrawler/internal/metrics"
	"github.com/cenkalti/dhtcrawler/internal/resolver"
	"github.com/cenkalti/dhtcrawler/internal/scheduler"
)

// maxPacketSize is enough for any datagram.
const maxPacketSize = 64 * 1024

const resolveTimeout = 10 * time.Second

func (n *Node) receiveLoop(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = 0
	buf := make([]byte, maxPacketSize)
	for {
		nr, addr, err := n.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			n.metrics.Incr(metrics.Name("recv", "error"))
			n.log.Errorln("cannot read from socket:", err)
			if !sleep(ctx, bo.NextBackOff()) {
				return nil
			}
			continue
		}
		bo.Reset()
		addr = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
		n.handlePacket(buf[:nr], addr)
	}
}

// healthCheckLoop periodically queues the nodes that have not been heard from for a while into the ping task.
func (n *Node) healthCheckLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.config.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.checkTable()
		case <-ctx.Done():
			return nil
		}
	}
}

func (n *Node) checkTable() {
	var queued int
	for _, r := range n.table.DueForCheck() {
		// Weight is only charged for probes that will actually be sent.
		if n.scheduler.Enqueue(krpc.MethodPing, PingTaskKey, scheduler.Item{ID: r.ID, HasID: true, Addr: r.Addr}) {
			n.table.Use(r.ID)
			queued++
		}
	}
	if queued > 0 {
		n.log.Debugf("%d nodes are queued for ping", queued)
	}
}

func (n *Node) statusLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.config.StatusInterval)
	defer ticker.Stop()
	prevSent := n.metrics.Count(counterSent)
	prevReceived := n.metrics.Count(counterReceived)
	for {
		select {
		case <-ticker.C:
			sent := n.metrics.Count(counterSent)
			received := n.metrics.Count(counterReceived)
			seconds := int64(n.config.StatusInterval / time.Second)
			if seconds == 0 {
				seconds = 1
			}
			n.rates.sent.Store((sent - prevSent) / seconds)
			n.rates.received.Store((received - prevReceived) / seconds)
			prevSent, prevReceived = sent, received
			s := n.Stats()
			n.log.Infof("table: %d nodes in %d buckets, tasks: %d, pending transactions: %d, sent: %d/s, received: %d/s",
				s.TableSize, s.Buckets, s.Tasks, s.PendingTransactions, s.SentPerSecond, s.ReceivedPerSecond)
		case <-ctx.Done():
			return nil
		}
	}
}

// resolveLoop resolves bootstrap host names. Each name is retried until it resolves or the node is closed.
func (n *Node) resolveLoop(ctx context.Context) error {
	hosts := n.bootstrap.Unresolved()
	done := make(chan struct{}, len(hosts))
	for _, hostport := range hosts {
		go func(hostport string) {
			n.resolve(ctx, hostport)
			done <- struct{}{}
		}(hostport)
	}
	for range hosts {
		<-done
	}
	return nil
}

func (n *Node) resolve(ctx context.Context, hostport string) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 5 * time.Minute
	bo.MaxElapsedTime = 0
	op := func() error {
		addrs, err := resolver.Resolve(ctx, hostport, resolveTimeout)
		if errors.Is(err, resolver.ErrInvalidPort) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		for _, addr := range addrs {
			n.bootstrap.Add(addr)
		}
		n.log.Debugf("resolved bootstrap node %s: %v", hostport, addrs)
		return nil
	}
	notify := func(err error, d time.Duration) {
		n.log.Warningf("cannot resolve bootstrap node %s, retrying in %s: %s", hostport, d, err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil && ctx.Err() == nil {
		n.log.Errorf("invalid bootstrap node %s: %s", hostport, err)
	}
}
