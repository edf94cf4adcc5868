// Package metrics counts messages by kind in a go-metrics registry.
// Names are dot separated paths like "recv.q.ping" and can be exported as a tree.
package metrics

import (
	"sort"
	"strings"

	"github.com/rcrowley/go-metrics"
)

// Metrics is a set of named counters and gauges. It is safe for concurrent use.
type Metrics struct {
	registry metrics.Registry
}

// New returns an empty set.
func New() *Metrics {
	return &Metrics{registry: metrics.NewRegistry()}
}

// Name joins path elements into a metric name.
func Name(parts ...string) string {
	return strings.Join(parts, ".")
}

// Incr increments the counter with name, creating it on first use.
func (m *Metrics) Incr(name string) {
	metrics.GetOrRegisterCounter(name, m.registry).Inc(1)
}

// Count returns the value of a counter or 0 if it does not exist.
func (m *Metrics) Count(name string) int64 {
	if c, ok := m.registry.Get(name).(metrics.Counter); ok {
		return c.Count()
	}
	return 0
}

// Gauge registers a gauge whose value is read from fn at export time.
func (m *Metrics) Gauge(name string, fn func() int64) {
	_ = m.registry.Register(name, metrics.NewFunctionalGauge(fn))
}

// Snapshot returns the current value of every metric by name.
func (m *Metrics) Snapshot() map[string]int64 {
	ret := make(map[string]int64)
	m.registry.Each(func(name string, i interface{}) {
		switch v := i.(type) {
		case metrics.Counter:
			ret[name] = v.Count()
		case metrics.Gauge:
			ret[name] = v.Value()
		}
	})
	return ret
}

// Names returns the names of all metrics, sorted.
func (m *Metrics) Names() []string {
	snap := m.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tree returns the metrics as nested maps keyed by the path elements of their names.
// Leaves are int64 values. A name that is a prefix of another is kept under the "_" key.
func (m *Metrics) Tree() map[string]interface{} {
	root := make(map[string]interface{})
	snap := m.Snapshot()
	for _, name := range m.Names() {
		parts := strings.Split(name, ".")
		node := root
		for _, p := range parts[:len(parts)-1] {
			switch child := node[p].(type) {
			case map[string]interface{}:
				node = child
			case int64:
				sub := map[string]interface{}{"_": child}
				node[p] = sub
				node = sub
			default:
				sub := make(map[string]interface{})
				node[p] = sub
				node = sub
			}
		}
		leaf := parts[len(parts)-1]
		if sub, ok := node[leaf].(map[string]interface{}); ok {
			sub["_"] = snap[name]
		} else {
			node[leaf] = snap[name]
		}
	}
	return root
}
