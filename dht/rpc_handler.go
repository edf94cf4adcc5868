package dht

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/dhtcrawler/internal/rpctypes"
	"github.com/cenkalti/dhtcrawler/internal/scheduler"
	"github.com/powerman/rpc-codec/jsonrpc2"
)

var errTaskNotFound = jsonrpc2.NewError(1, "task not found")

const controlTimeout = 10 * time.Second

type rpcHandler struct {
	node *Node
}

func (h *rpcHandler) Version(args struct{}, reply *string) error {
	*reply = Version
	return nil
}

func (h *rpcHandler) GetStats(args *rpctypes.GetStatsRequest, reply *rpctypes.GetStatsResponse) error {
	s := h.node.Stats()
	reply.Stats = rpctypes.Stats{
		ID:                  h.node.id.String(),
		Addr:                h.node.Addr().String(),
		TableSize:           s.TableSize,
		Buckets:             s.Buckets,
		Tasks:               s.Tasks,
		PendingTransactions: s.PendingTransactions,
		BootstrapNodes:      s.BootstrapNodes,
		SentPerSecond:       int(s.SentPerSecond),
		ReceivedPerSecond:   int(s.ReceivedPerSecond),
		Uptime:              int(s.Uptime / time.Second),
	}
	return nil
}

func (h *rpcHandler) GetTable(args *rpctypes.GetTableRequest, reply *rpctypes.GetTableResponse) error {
	buckets := h.node.Table()
	reply.Buckets = make([]rpctypes.Bucket, 0, len(buckets))
	for _, b := range buckets {
		rb := rpctypes.Bucket{
			Low:      b.Low.Text(16),
			High:     b.High.Text(16),
			CanSplit: b.CanSplit,
			Nodes:    make([]rpctypes.Node, 0, len(b.Nodes)),
		}
		for _, n := range b.Nodes {
			rb.Nodes = append(rb.Nodes, rpctypes.Node{
				ID:           n.ID.String(),
				Addr:         n.Addr.String(),
				Weight:       n.Weight,
				MissStreak:   n.MissStreak,
				NextCheckDue: rpctypes.NewTime(n.NextCheckDue),
				FirstSeen:    rpctypes.NewTime(n.FirstSeen),
			})
		}
		reply.Buckets = append(reply.Buckets, rb)
	}
	return nil
}

func (h *rpcHandler) ListTasks(args *rpctypes.ListTasksRequest, reply *rpctypes.ListTasksResponse) error {
	qts := h.node.sendOrder
	if args.QueryType != "" {
		qts = []string{args.QueryType}
	}
	reply.Tasks = make([]rpctypes.Task, 0)
	for _, qt := range qts {
		for _, ts := range h.node.scheduler.Tasks(qt) {
			reply.Tasks = append(reply.Tasks, h.newTask(qt, ts))
		}
	}
	return nil
}

func (h *rpcHandler) GetTask(args *rpctypes.GetTaskRequest, reply *rpctypes.GetTaskResponse) error {
	key, err := ParseKey(args.QueryType, args.Key)
	if err != nil {
		return jsonrpc2.NewError(2, err.Error())
	}
	ts, err := h.node.scheduler.Get(args.QueryType, key)
	if errors.Is(err, scheduler.ErrTaskNotFound) {
		return errTaskNotFound
	}
	if err != nil {
		return err
	}
	reply.Task = h.newTask(args.QueryType, ts)
	reply.Task.Items = make([]rpctypes.WorkItem, 0, len(ts.Items))
	for _, it := range ts.Items {
		wi := rpctypes.WorkItem{Addr: it.Addr.String()}
		if it.HasID {
			wi.ID = it.ID.String()
		}
		reply.Task.Items = append(reply.Task.Items, wi)
	}
	return nil
}

func (h *rpcHandler) GetCounters(args *rpctypes.GetCountersRequest, reply *rpctypes.GetCountersResponse) error {
	reply.Counters = h.node.Counters()
	return nil
}

func (h *rpcHandler) Control(args *rpctypes.ControlRequest, reply *rpctypes.ControlResponse) error {
	key, err := ParseKey(args.QueryType, args.Key)
	if err != nil {
		return jsonrpc2.NewError(2, err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	r, err := h.node.Control(ctx, Command{Action: Action(args.Action), QueryType: args.QueryType, Key: key})
	if err != nil {
		return err
	}
	reply.Result = r.String()
	return nil
}

func (h *rpcHandler) newTask(qt string, ts scheduler.TaskStatus) rpctypes.Task {
	return rpctypes.Task{
		QueryType:  qt,
		Key:        FormatKey(ts.Key),
		Protected:  h.node.isProtected(qt, ts.Key),
		Started:    ts.Started,
		Removed:    ts.Removed,
		Pending:    ts.Pending,
		MaxLength:  ts.MaxLength,
		Dispatched: ts.Dispatched,
		CreatedAt:  rpctypes.NewTime(ts.CreatedAt),
		StartedAt:  rpctypes.NewTime(ts.StartedAt),
		RunTime:    int(ts.RunTime / time.Second),
	}
}
