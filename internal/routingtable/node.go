package routingtable

import (
	"net/netip"
	"time"

	"github.com/cenkalti/dhtcrawler/internal/nodeid"
)

// Node is a remote DHT node known by the table.
//
// Weight and MissStreak move in opposite directions: every probe sent to the node
// costs one weight point and adds a miss, every confirmed reply resets the misses
// and gives two weight points back. The next check is pushed out exponentially
// while probes go unanswered.
type Node struct {
	ID           nodeid.ID
	Addr         netip.AddrPort
	Weight       int
	MissStreak   int
	NextCheckDue time.Time
	FirstSeen    time.Time

	timeout time.Duration
}

func newNode(id nodeid.ID, addr netip.AddrPort, weight int, timeout time.Duration, now time.Time) *Node {
	return &Node{
		ID:           id,
		Addr:         addr,
		Weight:       weight,
		NextCheckDue: now.Add(timeout),
		FirstSeen:    now,
		timeout:      timeout,
	}
}

// onSuccess is called when the node has replied to us.
func (n *Node) onSuccess(now time.Time) {
	n.MissStreak = 0
	n.Weight += 2
	n.NextCheckDue = now.Add(n.timeout)
}

// maxBackoffShift bounds the exponential backoff so the interval does not overflow.
const maxBackoffShift = 20

// use is called when a probe is sent to the node.
func (n *Node) use(now time.Time) {
	shift := n.MissStreak
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	n.NextCheckDue = now.Add(n.timeout << uint(shift))
	n.MissStreak++
	n.Weight--
}

func (n *Node) needCheck(now time.Time) bool {
	return now.After(n.NextCheckDue)
}
