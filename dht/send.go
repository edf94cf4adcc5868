package dht

import (
	"context"
	"time"

	"github.com/cenkalti/dhtcrawler/internal/correlator"
	"github.com/cenkalti/dhtcrawler/internal/krpc"
	"github.com/cenkalti/dhtcrawler/internal/metrics"
	"github.com/cenkalti/dhtcrawler/internal/nodeid"
	"github.com/cenkalti/dhtcrawler/internal/scheduler"
)

// taskType describes how tasks of a query type are driven by the send loop.
type taskType struct {
	// control may stop the task before it sends. Returns whether the task is still started.
	control func(qt string, ts scheduler.TaskStatus) bool
	// seed is called when a started task has no pending items.
	seed func(key string)
	// buildQuery fills the arguments specific to the query type.
	buildQuery func(key string, args *krpc.Args) error
}

func (n *Node) initTaskTypes() {
	n.tasks = map[string]taskType{
		krpc.MethodPing: {
			buildQuery: func(string, *krpc.Args) error { return nil },
		},
		krpc.MethodFindNode: {
			control: n.controlFindNode,
			seed:    n.seedFromNearest(krpc.MethodFindNode),
			buildQuery: func(key string, args *krpc.Args) error {
				var err error
				args.Target, err = nodeid.FromString(key)
				return err
			},
		},
		krpc.MethodGetPeers: {
			control: n.controlLookup,
			seed:    n.seedFromNearest(krpc.MethodGetPeers),
			buildQuery: func(key string, args *krpc.Args) error {
				var err error
				args.InfoHash, err = nodeid.FromString(key)
				return err
			},
		},
		// announce_peer is never sent.
	}
	n.sendOrder = []string{krpc.MethodPing, krpc.MethodFindNode, krpc.MethodGetPeers}
}

// controlFindNode stops the lookup of the local id once the table is full enough.
// Other lookups are limited like get_peers tasks.
func (n *Node) controlFindNode(qt string, ts scheduler.TaskStatus) bool {
	if ts.Key == n.id.Bytes() {
		if n.table.Size() > n.config.FullTableSize {
			return n.stopTask(qt, ts.Key, "routing table is full")
		}
		return ts.Started
	}
	return n.controlLookup(qt, ts)
}

func (n *Node) controlLookup(qt string, ts scheduler.TaskStatus) bool {
	if !ts.Started {
		return false
	}
	if ts.RunTime > n.config.MaxTaskRunTime || ts.Dispatched > n.config.MaxTaskDispatches {
		return n.stopTask(qt, ts.Key, "limit reached")
	}
	return true
}

func (n *Node) stopTask(qt, key, reason string) bool {
	started, _ := n.scheduler.Started(qt, key)
	if started {
		_ = n.scheduler.Stop(qt, key)
		n.log.Infof("stopped task %s %s: %s", qt, FormatKey(key), reason)
	}
	return false
}

// seedFromNearest returns a function that gives work to an empty lookup task.
// While the table is small a random bootstrap node is used, otherwise the nodes nearest to the key.
func (n *Node) seedFromNearest(qt string) func(key string) {
	return func(key string) {
		if n.table.Size() < n.config.MinBootstrapTableSize {
			if addr, ok := n.bootstrap.Random(); ok {
				n.scheduler.Enqueue(qt, key, scheduler.Item{Addr: addr})
			}
			return
		}
		target, err := nodeid.FromString(key)
		if err != nil {
			return
		}
		for _, r := range n.table.Nearest(target, n.config.BucketSize) {
			n.scheduler.Enqueue(qt, key, scheduler.Item{ID: r.ID, HasID: true, Addr: r.Addr})
		}
	}
}

func (n *Node) sendLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.config.SendCycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.sendCycle()
		case <-ctx.Done():
			return nil
		}
	}
}

// sendCycle removes deleted tasks, then gives every task a chance to send one query.
func (n *Node) sendCycle() {
	n.scheduler.Sweep()
	for _, qt := range n.sendOrder {
		tt := n.tasks[qt]
		for _, ts := range n.scheduler.Tasks(qt) {
			n.runTask(qt, tt, ts)
		}
	}
}

func (n *Node) runTask(qt string, tt taskType, ts scheduler.TaskStatus) {
	started := ts.Started
	if tt.control != nil {
		started = tt.control(qt, ts)
	}
	if !started {
		return
	}
	if ts.Pending == 0 {
		if tt.seed != nil {
			tt.seed(ts.Key)
		}
		return
	}
	if !n.bucket.WaitMaxDuration(1, n.config.SendCycleInterval) {
		return
	}
	item, ok := n.scheduler.Dequeue(qt, ts.Key)
	if !ok {
		return
	}
	n.sendQuery(qt, ts.Key, tt, item)
}

func (n *Node) sendQuery(qt, key string, tt taskType, item scheduler.Item) {
	q := krpc.Query{Method: qt}
	q.Args.ID = n.idFor(item.ID, item.HasID)
	if err := tt.buildQuery(key, &q.Args); err != nil {
		n.log.Errorf("invalid key for %s task: %s", qt, err)
		return
	}
	var expected *nodeid.ID
	if item.HasID {
		id := item.ID
		expected = &id
	}
	q.TransactionID = n.correlator.Reserve(correlator.Context{
		QueryType:  qt,
		TaskKey:    key,
		ExpectedID: expected,
		Addr:       item.Addr,
	})
	b, err := q.Encode()
	if err != nil {
		n.log.Errorln("cannot encode query:", err)
		return
	}
	if n.send(b, item.Addr) {
		n.metrics.Incr(metrics.Name("send", qt))
	}
}
