// Package krpc implements the bencoded KRPC protocol of the BitTorrent DHT.
// http://bittorrent.org/beps/bep_0005.html
package krpc

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/cenkalti/dhtcrawler/internal/nodeid"
)

// Message classes.
const (
	TypeQuery    = "q"
	TypeResponse = "r"
	TypeError    = "e"
)

// Query methods.
const (
	MethodPing         = "ping"
	MethodFindNode     = "find_node"
	MethodGetPeers     = "get_peers"
	MethodAnnouncePeer = "announce_peer"
)

// Message is a decoded inbound packet. Only the body matching Y is set.
type Message struct {
	T string
	Y string

	// Query
	Q string
	A map[string]interface{}

	// Response
	R map[string]interface{}

	// Error
	E []interface{}
}

// Args are the arguments of a query.
// Target is only meaningful for find_node; InfoHash, Port, ImpliedPort and Token for get_peers and announce_peer.
type Args struct {
	ID          nodeid.ID
	Target      nodeid.ID
	InfoHash    nodeid.ID
	Port        int
	ImpliedPort bool
	Token       string
}

// Query is an outbound query.
type Query struct {
	TransactionID string
	Method        string
	Args          Args
}

// Reply is the body of a response.
// Nodes is nil when the response did not carry a "nodes" key.
type Reply struct {
	TransactionID string
	ID            nodeid.ID
	Nodes         []Node
	Values        []netip.AddrPort
	Token         string
}

// Encode returns the bencoded query.
func (q *Query) Encode() ([]byte, error) {
	a := map[string]interface{}{"id": q.Args.ID.Bytes()}
	switch q.Method {
	case MethodPing:
	case MethodFindNode:
		a["target"] = q.Args.Target.Bytes()
	case MethodGetPeers:
		a["info_hash"] = q.Args.InfoHash.Bytes()
	case MethodAnnouncePeer:
		a["info_hash"] = q.Args.InfoHash.Bytes()
		a["port"] = int64(q.Args.Port)
		a["token"] = q.Args.Token
		if q.Args.ImpliedPort {
			a["implied_port"] = int64(1)
		}
	default:
		return nil, fmt.Errorf("unknown query method: %q", q.Method)
	}
	return encode(map[string]interface{}{
		"t": q.TransactionID,
		"y": TypeQuery,
		"q": q.Method,
		"a": a,
	})
}

// Encode returns the bencoded response.
func (r *Reply) Encode() ([]byte, error) {
	body := map[string]interface{}{"id": r.ID.Bytes()}
	if r.Nodes != nil {
		body["nodes"] = string(PackNodes(r.Nodes))
	}
	if r.Token != "" {
		body["token"] = r.Token
	}
	if len(r.Values) > 0 {
		values := make([]interface{}, 0, len(r.Values))
		for _, v := range r.Values {
			b, err := PackPeer(v)
			if err != nil {
				continue
			}
			values = append(values, string(b))
		}
		body["values"] = values
	}
	return encode(map[string]interface{}{
		"t": r.TransactionID,
		"y": TypeResponse,
		"r": body,
	})
}

// ParseArgs validates the "a" dictionary of a query for the given method.
// Unknown methods only require the id.
func ParseArgs(method string, a map[string]interface{}) (Args, error) {
	var args Args
	var err error
	args.ID, err = idField(a, "id")
	if err != nil {
		return args, err
	}
	switch method {
	case MethodFindNode:
		args.Target, err = idField(a, "target")
	case MethodGetPeers:
		args.InfoHash, err = idField(a, "info_hash")
	case MethodAnnouncePeer:
		args.InfoHash, err = idField(a, "info_hash")
		if err != nil {
			return args, err
		}
		if v, ok := a["implied_port"].(int64); ok && v != 0 {
			args.ImpliedPort = true
		}
		port, ok := a["port"].(int64)
		if !ok && !args.ImpliedPort {
			return args, errors.New("missing port")
		}
		if port < 0 || port > 65535 {
			return args, errors.New("invalid port")
		}
		args.Port = int(port)
		args.Token, _ = a["token"].(string)
	}
	return args, err
}

// ParseReply validates the "r" dictionary of a response.
func ParseReply(m *Message) (*Reply, error) {
	if m.R == nil {
		return nil, errors.New("missing response body")
	}
	id, err := idField(m.R, "id")
	if err != nil {
		return nil, err
	}
	r := &Reply{TransactionID: m.T, ID: id}
	if v, ok := m.R["nodes"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, errors.New("nodes must be a string")
		}
		r.Nodes, err = UnpackNodes([]byte(s))
		if err != nil {
			return nil, err
		}
	}
	if v, ok := m.R["values"].([]interface{}); ok {
		for _, p := range v {
			s, ok := p.(string)
			if !ok {
				continue
			}
			addr, err := UnpackPeer([]byte(s))
			if err != nil {
				// only IPv4 is supported for now
				continue
			}
			r.Values = append(r.Values, addr)
		}
	}
	r.Token, _ = m.R["token"].(string)
	return r, nil
}

// ParseError returns the code and message of an error message.
func ParseError(m *Message) (*Error, error) {
	if len(m.E) != 2 {
		return nil, errors.New("error body must have 2 elements")
	}
	code, ok := m.E[0].(int64)
	if !ok {
		return nil, errors.New("error code must be an integer")
	}
	msg, _ := m.E[1].(string)
	return &Error{Code: int(code), Message: msg, TransactionID: m.T}, nil
}

func idField(d map[string]interface{}, key string) (nodeid.ID, error) {
	s, ok := d[key].(string)
	if !ok {
		return nodeid.ID{}, fmt.Errorf("missing %s", key)
	}
	id, err := nodeid.FromString(s)
	if err != nil {
		return id, fmt.Errorf("%s: %w", key, err)
	}
	return id, nil
}
