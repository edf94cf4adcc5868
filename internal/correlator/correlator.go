// Package correlator binds outgoing queries to incoming replies.
//
// Each query reserves a slot in a fixed size ring. The slot index is sent as the
// 2-byte transaction id and the slot remembers who was asked and why. A reply is
// accepted only if it names an allocated slot and comes from the node that was asked.
package correlator

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/cenkalti/dhtcrawler/internal/nodeid"
)

// MaxSize is the number of distinct 2-byte transaction ids.
const MaxSize = 1 << 16

// TransactionIDLength is the size of transaction ids generated by the Correlator.
const TransactionIDLength = 2

// ErrInvalid is returned from Validate for replies that do not match an outstanding query.
var ErrInvalid = errors.New("invalid reply")

// Context is what the Correlator remembers about an outstanding query.
type Context struct {
	QueryType string
	TaskKey   string
	// ExpectedID is nil for bootstrap probes where the remote identity is not known yet.
	ExpectedID *nodeid.ID
	Addr       netip.AddrPort
}

// Correlator is a ring of outstanding query contexts. It is safe for concurrent use.
type Correlator struct {
	m         sync.Mutex
	slots     []*Context
	cursor    int
	allocated int
}

// New returns a Correlator with size slots. size is clamped to [1, MaxSize].
func New(size int) *Correlator {
	if size <= 0 || size > MaxSize {
		size = MaxSize
	}
	return &Correlator{slots: make([]*Context, size)}
}

// Size returns the number of slots in the ring.
func (c *Correlator) Size() int {
	return len(c.slots)
}

// Reserve stores ctx in the next slot, overwriting whatever was there, and returns its transaction id.
func (c *Correlator) Reserve(ctx Context) string {
	c.m.Lock()
	defer c.m.Unlock()
	i := c.cursor
	c.slots[i] = &ctx
	c.cursor = (c.cursor + 1) % len(c.slots)
	if c.allocated < len(c.slots) {
		c.allocated++
	}
	return EncodeTransactionID(i)
}

// Validate checks a reply with transaction id tid from node id at addr.
// On success the slot is released and its context returned.
// Replies to bootstrap probes are accepted from any responder.
func (c *Correlator) Validate(tid string, id nodeid.ID, addr netip.AddrPort) (Context, error) {
	i, err := DecodeTransactionID(tid)
	if err != nil {
		return Context{}, fmt.Errorf("%w: %s", ErrInvalid, err)
	}
	c.m.Lock()
	defer c.m.Unlock()
	if i >= c.allocated {
		return Context{}, fmt.Errorf("%w: transaction id %d is not allocated", ErrInvalid, i)
	}
	ctx := c.slots[i]
	if ctx == nil {
		return Context{}, fmt.Errorf("%w: no pending query for transaction id %d", ErrInvalid, i)
	}
	if ctx.ExpectedID != nil && (*ctx.ExpectedID != id || ctx.Addr != addr) {
		return Context{}, fmt.Errorf("%w: transaction id %d expects %s at %s", ErrInvalid, i, ctx.ExpectedID, ctx.Addr)
	}
	c.slots[i] = nil
	return *ctx, nil
}

// Pending returns the number of slots holding an outstanding query.
func (c *Correlator) Pending() int {
	c.m.Lock()
	defer c.m.Unlock()
	n := 0
	for _, s := range c.slots[:c.allocated] {
		if s != nil {
			n++
		}
	}
	return n
}

// EncodeTransactionID returns the 2-byte big-endian form of slot index i.
func EncodeTransactionID(i int) string {
	var b [TransactionIDLength]byte
	binary.BigEndian.PutUint16(b[:], uint16(i))
	return string(b[:])
}

// DecodeTransactionID parses a 2-byte big-endian transaction id.
func DecodeTransactionID(tid string) (int, error) {
	if len(tid) != TransactionIDLength {
		return 0, fmt.Errorf("transaction id must be %d bytes, got %d", TransactionIDLength, len(tid))
	}
	return int(binary.BigEndian.Uint16([]byte(tid))), nil
}
