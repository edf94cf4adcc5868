// Package console shows the live state of a running crawler in the terminal.
package console

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/dhtcrawler/internal/rpctypes"
	"github.com/cenkalti/dhtcrawler/rpcclient"
	"github.com/jroimartin/gocui"
)

const refreshInterval = time.Second

// Console polls the RPC server and draws stats, tasks and counters.
type Console struct {
	client *rpcclient.Client

	m        sync.Mutex
	stats    rpctypes.Stats
	tasks    []rpctypes.Task
	counters map[string]interface{}
	err      error

	stopC chan struct{}
}

// New returns a Console that reads from clt.
func New(clt *rpcclient.Client) *Console {
	return &Console{
		client: clt,
		stopC:  make(chan struct{}),
	}
}

// Run draws the console until the user presses q or Ctrl-C.
func (c *Console) Run() error {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return err
	}
	defer g.Close()

	g.SetManagerFunc(c.layout)
	quit := func(*gocui.Gui, *gocui.View) error { return gocui.ErrQuit }
	if err = g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		return err
	}
	if err = g.SetKeybinding("", 'q', gocui.ModNone, quit); err != nil {
		return err
	}

	go c.updateLoop(g)
	defer close(c.stopC)

	err = g.MainLoop()
	if err == gocui.ErrQuit {
		err = nil
	}
	return err
}

func (c *Console) updateLoop(g *gocui.Gui) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		c.update()
		g.Update(func(*gocui.Gui) error { return nil })
		select {
		case <-ticker.C:
		case <-c.stopC:
			return
		}
	}
}

func (c *Console) update() {
	stats, err := c.client.GetStats()
	var tasks []rpctypes.Task
	var counters map[string]interface{}
	if err == nil {
		tasks, err = c.client.ListTasks("")
	}
	if err == nil {
		counters, err = c.client.GetCounters()
	}
	c.m.Lock()
	defer c.m.Unlock()
	c.err = err
	if err != nil {
		return
	}
	c.stats = *stats
	c.tasks = tasks
	c.counters = counters
}

func (c *Console) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	half := maxX / 2
	c.m.Lock()
	defer c.m.Unlock()

	v, err := g.SetView("stats", 0, 0, maxX-1, 5)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	v.Title = "Node"
	v.Clear()
	if c.err != nil {
		fmt.Fprintln(v, "error:", c.err)
	} else {
		s := c.stats
		fmt.Fprintf(v, "id: %s  addr: %s  uptime: %s\n", s.ID, s.Addr, time.Duration(s.Uptime)*time.Second)
		fmt.Fprintf(v, "table: %d nodes in %d buckets  bootstrap nodes: %d\n", s.TableSize, s.Buckets, s.BootstrapNodes)
		fmt.Fprintf(v, "tasks: %d  pending transactions: %d\n", s.Tasks, s.PendingTransactions)
		fmt.Fprintf(v, "sent: %d/s  received: %d/s\n", s.SentPerSecond, s.ReceivedPerSecond)
	}

	v, err = g.SetView("tasks", 0, 6, half-1, maxY-1)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	v.Title = "Tasks"
	v.Clear()
	for _, t := range c.tasks {
		state := "stopped"
		if t.Started {
			state = "started"
		}
		fmt.Fprintf(v, "%-9s %s %s pending: %d dispatched: %d\n", t.QueryType, t.Key, state, t.Pending, t.Dispatched)
	}

	v, err = g.SetView("counters", half, 6, maxX-1, maxY-1)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	v.Title = "Counters"
	v.Clear()
	writeTree(v, c.counters, 0)
	return nil
}

func writeTree(v io.Writer, tree map[string]interface{}, depth int) {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	indent := strings.Repeat("  ", depth)
	for _, k := range keys {
		if sub, ok := tree[k].(map[string]interface{}); ok {
			fmt.Fprintf(v, "%s%s\n", indent, k)
			writeTree(v, sub, depth+1)
			continue
		}
		fmt.Fprintf(v, "%s%s: %v\n", indent, k, tree[k])
	}
}
