package routingtable

import (
	"math/big"

	"github.com/cenkalti/dhtcrawler/internal/nodeid"
	"github.com/google/btree"
)

var two = big.NewInt(2)

// bucket holds the nodes whose distance to the local id is in [low, high).
type bucket struct {
	low, high *big.Int
	nodes     []*Node
}

var _ btree.Item = (*bucket)(nil)

// Less orders buckets by their lower bound. Bucket ranges never overlap.
func (b *bucket) Less(than btree.Item) bool {
	return b.low.Cmp(than.(*bucket).low) < 0
}

func (b *bucket) contains(d *big.Int) bool {
	return d.Cmp(b.low) >= 0 && d.Cmp(b.high) < 0
}

func (b *bucket) get(id nodeid.ID) *Node {
	for _, n := range b.nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func (b *bucket) width() *big.Int {
	return new(big.Int).Sub(b.high, b.low)
}

// canSplit returns true if the bucket covers the neighbourhood of the local id
// and is wider than the minimal granularity.
func (b *bucket) canSplit() bool {
	return b.low.Sign() == 0 && b.width().Cmp(two) > 0
}

func (b *bucket) midpoint() *big.Int {
	m := new(big.Int).Add(b.low, b.high)
	return m.Rsh(m, 1)
}

// replace puts n in place of the member with the lowest weight below n's weight.
// Among equally weighted candidates the first one is replaced. Returns false if
// every member weighs at least as much as n.
func (b *bucket) replace(n *Node) bool {
	victim := -1
	for i, m := range b.nodes {
		if m.Weight >= n.Weight {
			continue
		}
		if victim == -1 || m.Weight < b.nodes[victim].Weight {
			victim = i
		}
	}
	if victim == -1 {
		return false
	}
	b.nodes[victim] = n
	return true
}
