package scheduler

import (
	"net/netip"
	"time"

	"github.com/cenkalti/dhtcrawler/internal/nodeid"
)

// Item is a node to contact on behalf of a task.
// HasID is false for bootstrap nodes whose id is not known yet.
type Item struct {
	ID    nodeid.ID
	HasID bool
	Addr  netip.AddrPort
}

// task is a named unit of outstanding work for one query type.
type task struct {
	key       string
	maxLength int

	pending []Item
	set     map[Item]struct{}

	started    bool
	removed    bool
	dispatched int
	startedAt  time.Time
	createdAt  time.Time
}

func newTask(key string, maxLength int, now time.Time) *task {
	return &task{
		key:       key,
		maxLength: maxLength,
		set:       make(map[Item]struct{}),
		started:   true,
		startedAt: now,
		createdAt: now,
	}
}

func (t *task) put(it Item) bool {
	if len(t.pending) >= t.maxLength {
		return false
	}
	if _, ok := t.set[it]; ok {
		return false
	}
	t.set[it] = struct{}{}
	t.pending = append(t.pending, it)
	return true
}

func (t *task) get() (Item, bool) {
	if len(t.pending) == 0 {
		return Item{}, false
	}
	it := t.pending[0]
	t.pending[0] = Item{}
	t.pending = t.pending[1:]
	delete(t.set, it)
	t.dispatched++
	return it, true
}

// start returns false if the task is waiting to be swept.
func (t *task) start(now time.Time) bool {
	if t.removed {
		return false
	}
	t.started = true
	t.startedAt = now
	return true
}

func (t *task) stop() {
	t.started = false
}

func (t *task) remove() {
	t.stop()
	t.removed = true
}

func (t *task) status(now time.Time, withItems bool) TaskStatus {
	s := TaskStatus{
		Key:        t.key,
		Started:    t.started,
		Removed:    t.removed,
		Pending:    len(t.pending),
		MaxLength:  t.maxLength,
		Dispatched: t.dispatched,
		CreatedAt:  t.createdAt,
		StartedAt:  t.startedAt,
		RunTime:    now.Sub(t.startedAt),
	}
	if withItems {
		s.Items = make([]Item, len(t.pending))
		copy(s.Items, t.pending)
	}
	return s
}
