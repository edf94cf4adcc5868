// Package dht implements a BitTorrent DHT node that crawls the network.
//
// The node answers queries like a regular participant, keeps a routing table of the
// nodes that prove to be alive and runs lookup tasks that are controlled at runtime.
// Info hashes and peers seen on the way are handed to a harvest.Harvester.
// http://bittorrent.org/beps/bep_0005.html
package dht

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/dhtcrawler/internal/correlator"
	"github.com/cenkalti/dhtcrawler/internal/harvest"
	"github.com/cenkalti/dhtcrawler/internal/krpc"
	"github.com/cenkalti/dhtcrawler/internal/logger"
	"github.com/cenkalti/dhtcrawler/internal/metrics"
	"github.com/cenkalti/dhtcrawler/internal/nodeid"
	"github.com/cenkalti/dhtcrawler/internal/routingtable"
	"github.com/cenkalti/dhtcrawler/internal/scheduler"
	"github.com/juju/ratelimit"
	"golang.org/x/sync/errgroup"
)

// Version of the crawler. Set at build time.
var Version = "0.0.0"

// PingTaskKey is the key of the task that pings nodes in the routing table.
const PingTaskKey = "ping"

// ErrClosed is returned from methods of a closed Node.
var ErrClosed = errors.New("node is closed")

// Node is a DHT node. Create with New, then call Start or Run.
type Node struct {
	config    Config
	id        nodeid.ID
	conn      *net.UDPConn
	clock     clock.Clock
	createdAt time.Time
	log       logger.Logger

	table      *routingtable.Table
	correlator *correlator.Correlator
	scheduler  *scheduler.Scheduler
	metrics    *metrics.Metrics
	harvester  harvest.Harvester
	store      *harvest.Store
	bucket     *ratelimit.Bucket
	bootstrap  *bootstrapNodes
	rates      rates

	messageHandlers map[string]messageHandler
	queryHandlers   map[string]queryHandler
	replyHandlers   map[string]replyHandler
	tasks           map[string]taskType
	// Query types in the order they are visited by the send loop.
	sendOrder []string

	controlC chan controlRequest
	rpc      *rpcServer

	m         sync.Mutex
	started   bool
	cancel    context.CancelFunc
	group     *errgroup.Group
	closeC    chan struct{}
	closeOnce sync.Once
}

// New creates a Node and binds its UDP socket. The node does not send or
// receive anything until it is started.
func New(cfg Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	var id nodeid.ID
	if cfg.NodeIDSeed != "" {
		id = nodeid.FromSeed(cfg.NodeIDSeed)
	} else {
		var err error
		id, err = nodeid.Random()
		if err != nil {
			return nil, err
		}
	}
	host, _ := netip.ParseAddr(cfg.Host)
	conn, err := net.ListenUDP("udp4", net.UDPAddrFromAddrPort(netip.AddrPortFrom(host, uint16(cfg.Port))))
	if err != nil {
		return nil, err
	}
	n := &Node{
		config:    cfg,
		id:        id,
		conn:      conn,
		clock:     cfg.Clock,
		createdAt: cfg.Clock.Now(),
		log:       logger.New("dht node"),
		table: routingtable.New(id, routingtable.Config{
			K:             cfg.BucketSize,
			DefaultWeight: cfg.NodeDefaultWeight,
			Timeout:       cfg.NodeUpdateTime,
			Clock:         cfg.Clock,
		}),
		correlator: correlator.New(cfg.TransactionRingSize),
		scheduler:  scheduler.New(cfg.TaskMaxLength, cfg.Clock),
		metrics:    metrics.New(),
		bucket:     ratelimit.NewBucketWithRate(float64(cfg.MaxSendsPerSecond), int64(cfg.MaxSendsPerSecond)),
		bootstrap:  newBootstrapNodes(cfg.BootstrapNodes),
		controlC:   make(chan controlRequest),
		closeC:     make(chan struct{}),
	}
	var harvesters harvest.Multi
	if cfg.Database != "" {
		n.store, err = harvest.Open(cfg.Database, cfg.HarvestCacheSize)
		if err != nil {
			conn.Close()
			return nil, err
		}
		harvesters = append(harvesters, n.store)
	}
	if cfg.LogHarvest {
		harvesters = append(harvesters, harvest.NewLog())
	}
	if cfg.Harvester != nil {
		harvesters = append(harvesters, cfg.Harvester)
	}
	n.harvester = harvesters
	n.initHandlers()
	n.initMetrics()
	if cfg.RPCEnabled {
		n.rpc = newRPCServer(n)
	}

	// Tasks that keep the node alive. They cannot be changed by control requests.
	n.scheduler.Push(krpc.MethodFindNode, n.id.Bytes())
	n.scheduler.Push(krpc.MethodPing, PingTaskKey)
	return n, nil
}

// ID returns the local node id.
func (n *Node) ID() nodeid.ID {
	return n.id
}

// Addr returns the local address of the UDP socket.
func (n *Node) Addr() netip.AddrPort {
	return n.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Start runs the loops of the node in background.
func (n *Node) Start() error {
	n.m.Lock()
	defer n.m.Unlock()
	select {
	case <-n.closeC:
		return ErrClosed
	default:
	}
	if n.started {
		return nil
	}
	if n.rpc != nil {
		if err := n.rpc.Start(n.config.RPCHost, n.config.RPCPort); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.receiveLoop(ctx) })
	g.Go(func() error { return n.sendLoop(ctx) })
	g.Go(func() error { return n.healthCheckLoop(ctx) })
	g.Go(func() error { return n.controlLoop(ctx) })
	g.Go(func() error { return n.statusLoop(ctx) })
	g.Go(func() error { return n.resolveLoop(ctx) })
	n.cancel = cancel
	n.group = g
	n.started = true
	n.log.Infof("node %s is listening on %s", n.id, n.Addr())
	return nil
}

// Run starts the node and blocks until ctx is cancelled, then closes the node.
func (n *Node) Run(ctx context.Context) error {
	if err := n.Start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-n.closeC:
	}
	return n.Close()
}

// Close stops the loops and releases the socket and the database.
func (n *Node) Close() error {
	var err error
	n.closeOnce.Do(func() {
		n.m.Lock()
		defer n.m.Unlock()
		close(n.closeC)
		if n.rpc != nil && n.started {
			if err2 := n.rpc.Stop(n.config.RPCShutdownTimeout); err2 != nil {
				n.log.Errorln("cannot stop rpc server:", err2)
			}
		}
		if n.cancel != nil {
			n.cancel()
		}
		err = n.conn.Close()
		if n.group != nil {
			if err2 := n.group.Wait(); err2 != nil && err == nil {
				err = err2
			}
		}
		if n.store != nil {
			if err2 := n.store.Close(); err2 != nil && err == nil {
				err = err2
			}
		}
	})
	return err
}

// sleep waits for d or until ctx is done. Returns false if ctx is done.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
