// Package scheduler keeps the outstanding work of the crawler grouped by query type.
//
// A task is identified by its query type and key (a target id, an info hash or a
// sentinel). It holds a bounded set of nodes still to be contacted. Tasks are created
// started; stopping a task halts dispatch without dropping its pending work. Removed
// tasks are stopped immediately and deleted by the next Sweep.
package scheduler

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultTaskMaxLength is the default capacity of a task's pending set.
const DefaultTaskMaxLength = 1024

// ErrTaskNotFound is returned when there is no task with the given query type and key.
var ErrTaskNotFound = errors.New("task not found")

// TaskStatus is a snapshot of a task.
type TaskStatus struct {
	Key        string
	Started    bool
	Removed    bool
	Pending    int
	MaxLength  int
	Dispatched int
	CreatedAt  time.Time
	StartedAt  time.Time
	// RunTime is the time elapsed since the task was last started.
	RunTime time.Duration
	// Items is only filled by Get.
	Items []Item
}

// Scheduler maps query types to ordered task collections. It is safe for concurrent use.
type Scheduler struct {
	maxLength int
	clock     clock.Clock

	m     sync.Mutex
	tubes map[string][]*task
}

// New returns an empty Scheduler. Tasks hold at most maxLength pending items.
// If clk is nil the wall clock is used.
func New(maxLength int, clk clock.Clock) *Scheduler {
	if maxLength <= 0 {
		maxLength = DefaultTaskMaxLength
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		maxLength: maxLength,
		clock:     clk,
		tubes:     make(map[string][]*task),
	}
}

func (s *Scheduler) find(qt, key string) *task {
	for _, t := range s.tubes[qt] {
		if t.key == key {
			return t
		}
	}
	return nil
}

// Push registers a task. It returns false if the task already exists.
func (s *Scheduler) Push(qt, key string) bool {
	s.m.Lock()
	defer s.m.Unlock()
	if s.find(qt, key) != nil {
		return false
	}
	s.tubes[qt] = append(s.tubes[qt], newTask(key, s.maxLength, s.clock.Now()))
	return true
}

// Enqueue adds item to the pending set of the task.
// The item is dropped if it is already pending, the set is full or the task does not exist.
func (s *Scheduler) Enqueue(qt, key string, item Item) bool {
	s.m.Lock()
	defer s.m.Unlock()
	t := s.find(qt, key)
	if t == nil {
		return false
	}
	return t.put(item)
}

// Dequeue removes one pending item from the task and counts it as dispatched.
func (s *Scheduler) Dequeue(qt, key string) (Item, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	t := s.find(qt, key)
	if t == nil {
		return Item{}, false
	}
	return t.get()
}

// Start resumes dispatching of the task and resets its run time.
// A removed task cannot be started again.
func (s *Scheduler) Start(qt, key string) error {
	s.m.Lock()
	defer s.m.Unlock()
	t := s.find(qt, key)
	if t == nil || !t.start(s.clock.Now()) {
		return ErrTaskNotFound
	}
	return nil
}

// Stop halts dispatching of the task. Queries already sent are not affected.
func (s *Scheduler) Stop(qt, key string) error {
	s.m.Lock()
	defer s.m.Unlock()
	t := s.find(qt, key)
	if t == nil {
		return ErrTaskNotFound
	}
	t.stop()
	return nil
}

// Remove stops the task and marks it for deletion on the next Sweep.
func (s *Scheduler) Remove(qt, key string) error {
	s.m.Lock()
	defer s.m.Unlock()
	t := s.find(qt, key)
	if t == nil {
		return ErrTaskNotFound
	}
	t.remove()
	return nil
}

// Sweep deletes the tasks marked for removal and returns how many were deleted.
func (s *Scheduler) Sweep() int {
	s.m.Lock()
	defer s.m.Unlock()
	n := 0
	for qt, tasks := range s.tubes {
		kept := tasks[:0]
		for _, t := range tasks {
			if t.removed {
				n++
				continue
			}
			kept = append(kept, t)
		}
		for i := len(kept); i < len(tasks); i++ {
			tasks[i] = nil
		}
		s.tubes[qt] = kept
	}
	return n
}

// QueryTypes returns the query types that have a task collection, sorted.
func (s *Scheduler) QueryTypes() []string {
	s.m.Lock()
	defer s.m.Unlock()
	ret := make([]string, 0, len(s.tubes))
	for qt := range s.tubes {
		ret = append(ret, qt)
	}
	sort.Strings(ret)
	return ret
}

// Keys returns the keys of the tasks of a query type in creation order.
func (s *Scheduler) Keys(qt string) []string {
	s.m.Lock()
	defer s.m.Unlock()
	tasks := s.tubes[qt]
	ret := make([]string, len(tasks))
	for i, t := range tasks {
		ret[i] = t.key
	}
	return ret
}

// Started reports whether the task is started. Removed tasks are never started.
func (s *Scheduler) Started(qt, key string) (bool, error) {
	s.m.Lock()
	defer s.m.Unlock()
	t := s.find(qt, key)
	if t == nil {
		return false, ErrTaskNotFound
	}
	return t.started, nil
}

// Get returns a snapshot of the task including its pending items.
func (s *Scheduler) Get(qt, key string) (TaskStatus, error) {
	s.m.Lock()
	defer s.m.Unlock()
	t := s.find(qt, key)
	if t == nil {
		return TaskStatus{}, ErrTaskNotFound
	}
	return t.status(s.clock.Now(), true), nil
}

// Tasks returns snapshots of the tasks of a query type in creation order, without items.
func (s *Scheduler) Tasks(qt string) []TaskStatus {
	s.m.Lock()
	defer s.m.Unlock()
	now := s.clock.Now()
	tasks := s.tubes[qt]
	ret := make([]TaskStatus, len(tasks))
	for i, t := range tasks {
		ret[i] = t.status(now, false)
	}
	return ret
}

// Status returns snapshots of all tasks keyed by query type.
func (s *Scheduler) Status() map[string][]TaskStatus {
	s.m.Lock()
	defer s.m.Unlock()
	now := s.clock.Now()
	ret := make(map[string][]TaskStatus, len(s.tubes))
	for qt, tasks := range s.tubes {
		l := make([]TaskStatus, len(tasks))
		for i, t := range tasks {
			l[i] = t.status(now, false)
		}
		ret[qt] = l
	}
	return ret
}
