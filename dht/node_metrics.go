package dht

import (
	"sync/atomic"
	"time"

	"github.com/cenkalti/dhtcrawler/internal/metrics"
	"github.com/cenkalti/dhtcrawler/internal/routingtable"
)

var (
	counterSent         = metrics.Name("total", "sent")
	counterReceived     = metrics.Name("total", "received")
	counterInvalidReply = metrics.Name("reply", "invalid")
)

// rates are updated by the status loop.
type rates struct {
	sent     atomic.Int64
	received atomic.Int64
}

func (n *Node) initMetrics() {
	n.metrics.Gauge("table.size", func() int64 { return int64(n.table.Size()) })
	n.metrics.Gauge("table.buckets", func() int64 { return int64(len(n.table.Buckets())) })
	n.metrics.Gauge("tasks", func() int64 { return int64(n.numTasks()) })
	n.metrics.Gauge("transactions.pending", func() int64 { return int64(n.correlator.Pending()) })
	n.metrics.Gauge("bootstrap.nodes", func() int64 { return int64(n.bootstrap.Len()) })
	n.metrics.Gauge("uptime", func() int64 { return int64(n.clock.Since(n.createdAt) / time.Second) })
	if n.store != nil {
		n.metrics.Gauge("harvest.dropped", n.store.Dropped)
	}
}

func (n *Node) numTasks() int {
	var count int
	for _, tasks := range n.scheduler.Status() {
		count += len(tasks)
	}
	return count
}

// Stats of the node.
type Stats struct {
	TableSize           int
	Buckets             int
	Tasks               int
	PendingTransactions int
	BootstrapNodes      int
	SentPerSecond       int64
	ReceivedPerSecond   int64
	Uptime              time.Duration
}

// Stats returns the current stats.
func (n *Node) Stats() Stats {
	return Stats{
		TableSize:           n.table.Size(),
		Buckets:             len(n.table.Buckets()),
		Tasks:               n.numTasks(),
		PendingTransactions: n.correlator.Pending(),
		BootstrapNodes:      n.bootstrap.Len(),
		SentPerSecond:       n.rates.sent.Load(),
		ReceivedPerSecond:   n.rates.received.Load(),
		Uptime:              n.clock.Since(n.createdAt),
	}
}

// Counters returns message counters as a tree keyed by message kind.
func (n *Node) Counters() map[string]interface{} {
	return n.metrics.Tree()
}

// Count returns the value of a single counter, like "recv.q.ping".
func (n *Node) Count(name string) int64 {
	return n.metrics.Count(name)
}

// Table returns a snapshot of the routing table.
func (n *Node) Table() []routingtable.Bucket {
	return n.table.Buckets()
}
