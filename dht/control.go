package dht

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/cenkalti/dhtcrawler/internal/krpc"
	"github.com/cenkalti/dhtcrawler/internal/magnet"
	"github.com/cenkalti/dhtcrawler/internal/nodeid"
	"github.com/cenkalti/dhtcrawler/internal/scheduler"
)

// Action changes the state of a task.
type Action string

// Actions accepted by Control.
const (
	ActionPush   Action = "push"
	ActionStart  Action = "start"
	ActionStop   Action = "stop"
	ActionRemove Action = "remove"
)

// Command is a control request for the task identified by QueryType and Key.
// Key is the binary task key: a 20 byte id for lookups or PingTaskKey.
type Command struct {
	Action    Action
	QueryType string
	Key       string
}

// Result of a Command.
type Result int

// Results of control requests.
const (
	// Applied means the task is changed.
	Applied Result = iota
	// Exists is returned when pushing a task that is already registered.
	Exists
	// NotFound means there is no such task.
	NotFound
	// Protected tasks cannot be changed.
	Protected
	// Invalid means the command is malformed.
	Invalid
)

var resultStrings = map[Result]string{
	Applied:   "applied",
	Exists:    "exists",
	NotFound:  "not_found",
	Protected: "protected",
	Invalid:   "invalid",
}

func (r Result) String() string {
	return resultStrings[r]
}

type controlRequest struct {
	cmd     Command
	resultC chan Result
}

// Control sends cmd to the control loop of the node and waits for the result.
func (n *Node) Control(ctx context.Context, cmd Command) (Result, error) {
	req := controlRequest{cmd: cmd, resultC: make(chan Result, 1)}
	select {
	case n.controlC <- req:
	case <-ctx.Done():
		return Invalid, ctx.Err()
	case <-n.closeC:
		return Invalid, ErrClosed
	}
	select {
	case r := <-req.resultC:
		return r, nil
	case <-ctx.Done():
		return Invalid, ctx.Err()
	}
}

func (n *Node) controlLoop(ctx context.Context) error {
	for {
		select {
		case req := <-n.controlC:
			r := n.applyControl(req.cmd)
			n.log.Infof("control %s %s %s: %s", req.cmd.Action, req.cmd.QueryType, FormatKey(req.cmd.Key), r)
			req.resultC <- r
		case <-ctx.Done():
			return nil
		}
	}
}

func (n *Node) isProtected(qt, key string) bool {
	return (qt == krpc.MethodFindNode && key == n.id.Bytes()) || (qt == krpc.MethodPing && key == PingTaskKey)
}

func (n *Node) applyControl(cmd Command) Result {
	if _, ok := n.tasks[cmd.QueryType]; !ok || cmd.Key == "" {
		return Invalid
	}
	if cmd.QueryType != krpc.MethodPing && len(cmd.Key) != nodeid.Length {
		return Invalid
	}
	if n.isProtected(cmd.QueryType, cmd.Key) {
		return Protected
	}
	var err error
	switch cmd.Action {
	case ActionPush:
		if !n.scheduler.Push(cmd.QueryType, cmd.Key) {
			return Exists
		}
		return Applied
	case ActionStart:
		err = n.scheduler.Start(cmd.QueryType, cmd.Key)
	case ActionStop:
		err = n.scheduler.Stop(cmd.QueryType, cmd.Key)
	case ActionRemove:
		err = n.scheduler.Remove(cmd.QueryType, cmd.Key)
	default:
		return Invalid
	}
	if errors.Is(err, scheduler.ErrTaskNotFound) {
		return NotFound
	}
	return Applied
}

// ParseKey converts a user given task key into its binary form.
// The ping task key is kept as is. Other keys may be in hex, base32 or a magnet link.
func ParseKey(qt, s string) (string, error) {
	if qt == krpc.MethodPing {
		return s, nil
	}
	ih, err := magnet.ParseInfoHash(s)
	if err != nil {
		return "", err
	}
	return ih.Bytes(), nil
}

// FormatKey returns a printable form of a binary task key.
func FormatKey(key string) string {
	if len(key) == nodeid.Length {
		return hex.EncodeToString([]byte(key))
	}
	return key
}
