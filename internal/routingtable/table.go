// Package routingtable implements the XOR distance bucket structure that holds known DHT nodes.
// http://bittorrent.org/beps/bep_0005.html#routing-table
package routingtable

import (
	"errors"
	"fmt"
	"math/big"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/dhtcrawler/internal/nodeid"
	"github.com/google/btree"
)

// ErrMalformedIdentifier is returned from Push when the id is not 20 bytes.
var ErrMalformedIdentifier = errors.New("malformed node identifier")

// Config of a Table.
type Config struct {
	// Max number of nodes in a bucket.
	K int
	// Weight of a newly inserted node.
	DefaultWeight int
	// Base interval between health checks of a node.
	Timeout time.Duration
	// Clock is the time source. Defaults to the wall clock.
	Clock clock.Clock
}

// DefaultConfig has the values used by the crawler.
var DefaultConfig = Config{
	K:             16,
	DefaultWeight: 5,
	Timeout:       900 * time.Second,
}

// Table is a routing table. Buckets are ordered by distance to the local id and
// tile the whole distance space. It is safe for concurrent use.
type Table struct {
	local  nodeid.ID
	config Config
	clock  clock.Clock

	m       sync.Mutex
	buckets *btree.BTree
	size    int
}

// New returns a Table with a single bucket covering the whole space.
func New(local nodeid.ID, cfg Config) *Table {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	t := &Table{
		local:   local,
		config:  cfg,
		clock:   cfg.Clock,
		buckets: btree.New(2),
	}
	t.buckets.ReplaceOrInsert(&bucket{low: new(big.Int), high: new(big.Int).Set(nodeid.Max)})
	return t
}

// Local returns the local id.
func (t *Table) Local() nodeid.ID {
	return t.local
}

// Distance returns the XOR distance of id to the local id.
func (t *Table) Distance(id nodeid.ID) *big.Int {
	return nodeid.Distance(t.local, id)
}

// Push adds the node to the table or, if it is already known, records a successful contact.
// Pushing the local id is a no-op.
func (t *Table) Push(id []byte, addr netip.AddrPort) error {
	nid, err := nodeid.FromBytes(id)
	if err != nil {
		return fmt.Errorf("%w: %d bytes", ErrMalformedIdentifier, len(id))
	}
	if nid == t.local {
		return nil
	}
	t.m.Lock()
	defer t.m.Unlock()
	t.push(nid, addr)
	return nil
}

func (t *Table) push(id nodeid.ID, addr netip.AddrPort) {
	now := t.clock.Now()
	b := t.bucketOf(t.Distance(id))
	if n := b.get(id); n != nil {
		n.onSuccess(now)
		return
	}
	if len(b.nodes) < t.config.K {
		b.nodes = append(b.nodes, newNode(id, addr, t.config.DefaultWeight, t.config.Timeout, now))
		t.size++
		return
	}
	if b.canSplit() {
		t.split(b)
		t.push(id, addr)
		return
	}
	b.replace(newNode(id, addr, t.config.DefaultWeight, t.config.Timeout, now))
}

// split halves the bucket. Members keep their state and move to the half owning their distance.
func (t *Table) split(b *bucket) {
	mid := b.midpoint()
	upper := &bucket{low: mid, high: b.high}
	lower := b.nodes
	b.high = mid
	b.nodes = nil
	for _, n := range lower {
		if upper.contains(t.Distance(n.ID)) {
			upper.nodes = append(upper.nodes, n)
		} else {
			b.nodes = append(b.nodes, n)
		}
	}
	// Key of b (its low bound) is unchanged so it can be mutated in place.
	t.buckets.ReplaceOrInsert(upper)
}

// bucketOf returns the bucket whose range contains the distance d.
func (t *Table) bucketOf(d *big.Int) *bucket {
	var found *bucket
	t.buckets.DescendLessOrEqual(&bucket{low: d}, func(i btree.Item) bool {
		found = i.(*bucket)
		return false
	})
	return found
}

// Nearest returns up to max nodes, starting with the bucket that contains target and
// continuing into farther buckets. Nodes inside a bucket are not sorted.
func (t *Table) Nearest(target nodeid.ID, max int) []Node {
	if max <= 0 {
		return nil
	}
	t.m.Lock()
	defer t.m.Unlock()
	nodes := make([]Node, 0, max)
	start := t.bucketOf(t.Distance(target))
	t.buckets.AscendGreaterOrEqual(start, func(i btree.Item) bool {
		for _, n := range i.(*bucket).nodes {
			nodes = append(nodes, *n)
		}
		return len(nodes) < max
	})
	if len(nodes) > max {
		nodes = nodes[:max]
	}
	return nodes
}

// DueForCheck returns the nodes whose next check time has passed.
func (t *Table) DueForCheck() []Node {
	t.m.Lock()
	defer t.m.Unlock()
	now := t.clock.Now()
	var nodes []Node
	t.buckets.Ascend(func(i btree.Item) bool {
		for _, n := range i.(*bucket).nodes {
			if n.needCheck(now) {
				nodes = append(nodes, *n)
			}
		}
		return true
	})
	return nodes
}

// Use records that a probe has been sent to the node and returns its new state.
func (t *Table) Use(id nodeid.ID) (Node, bool) {
	t.m.Lock()
	defer t.m.Unlock()
	n := t.bucketOf(t.Distance(id)).get(id)
	if n == nil {
		return Node{}, false
	}
	n.use(t.clock.Now())
	return *n, true
}

// Get returns the node with id.
func (t *Table) Get(id nodeid.ID) (Node, bool) {
	t.m.Lock()
	defer t.m.Unlock()
	n := t.bucketOf(t.Distance(id)).get(id)
	if n == nil {
		return Node{}, false
	}
	return *n, true
}

// Contains returns true if the node with id is in the table.
func (t *Table) Contains(id nodeid.ID) bool {
	_, ok := t.Get(id)
	return ok
}

// Size returns the number of nodes in the table.
func (t *Table) Size() int {
	t.m.Lock()
	defer t.m.Unlock()
	return t.size
}

// Bucket is a snapshot of a bucket for monitoring.
type Bucket struct {
	Low, High *big.Int
	CanSplit  bool
	Nodes     []Node
}

// Buckets returns snapshots of all buckets ordered by distance.
func (t *Table) Buckets() []Bucket {
	t.m.Lock()
	defer t.m.Unlock()
	ret := make([]Bucket, 0, t.buckets.Len())
	t.buckets.Ascend(func(i btree.Item) bool {
		b := i.(*bucket)
		s := Bucket{
			Low:      new(big.Int).Set(b.low),
			High:     new(big.Int).Set(b.high),
			CanSplit: b.canSplit(),
			Nodes:    make([]Node, 0, len(b.nodes)),
		}
		for _, n := range b.nodes {
			s.Nodes = append(s.Nodes, *n)
		}
		ret = append(ret, s)
		return true
	})
	return ret
}
