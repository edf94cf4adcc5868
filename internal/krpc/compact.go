package krpc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"net/netip"

	"github.com/cenkalti/dhtcrawler/internal/nodeid"
)

// NodeLength is the size of a packed node: 20 bytes id, 4 bytes IPv4 address, 2 bytes port.
const NodeLength = nodeid.Length + net.IPv4len + 2

// PeerLength is the size of a packed peer in "values" lists.
const PeerLength = net.IPv4len + 2

var (
	errNodesLength = errors.New("invalid compact node list length")
	errPeerLength  = errors.New("invalid compact peer length")
)

// Node is a contact as it travels on the wire.
type Node struct {
	ID   nodeid.ID
	Addr netip.AddrPort
}

// compactNode is the binary layout of a Node.
type compactNode struct {
	ID   [nodeid.Length]byte
	IP   [net.IPv4len]byte
	Port uint16
}

// MarshalBinary returns the 26 bytes of the node. Only IPv4 addresses can be packed.
func (n Node) MarshalBinary() ([]byte, error) {
	addr := n.Addr.Addr().Unmap()
	if !addr.Is4() {
		return nil, errors.New("only ipv4 nodes can be packed")
	}
	cn := compactNode{ID: n.ID, IP: addr.As4(), Port: n.Addr.Port()}
	buf := bytes.NewBuffer(make([]byte, 0, NodeLength))
	err := binary.Write(buf, binary.BigEndian, cn)
	return buf.Bytes(), err
}

// UnmarshalBinary reads 26 bytes into the node.
func (n *Node) UnmarshalBinary(data []byte) error {
	if len(data) != NodeLength {
		return errNodesLength
	}
	var cn compactNode
	err := binary.Read(bytes.NewReader(data), binary.BigEndian, &cn)
	if err != nil {
		return err
	}
	n.ID = cn.ID
	n.Addr = netip.AddrPortFrom(netip.AddrFrom4(cn.IP), cn.Port)
	return nil
}

// PackNodes concatenates packed nodes. Nodes without an IPv4 address are skipped.
func PackNodes(nodes []Node) []byte {
	b := make([]byte, 0, len(nodes)*NodeLength)
	for _, n := range nodes {
		p, err := n.MarshalBinary()
		if err != nil {
			continue
		}
		b = append(b, p...)
	}
	return b
}

// UnpackNodes parses a compact node list.
func UnpackNodes(b []byte) ([]Node, error) {
	if len(b)%NodeLength != 0 {
		return nil, errNodesLength
	}
	nodes := make([]Node, 0, len(b)/NodeLength)
	for i := 0; i < len(b); i += NodeLength {
		var n Node
		if err := n.UnmarshalBinary(b[i : i+NodeLength]); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// PackPeer returns the 6 byte form of an IPv4 peer address.
func PackPeer(addr netip.AddrPort) ([]byte, error) {
	ip := addr.Addr().Unmap()
	if !ip.Is4() {
		return nil, errors.New("only ipv4 peers can be packed")
	}
	b := make([]byte, PeerLength)
	a4 := ip.As4()
	copy(b, a4[:])
	binary.BigEndian.PutUint16(b[4:], addr.Port())
	return b, nil
}

// UnpackPeer parses the 6 byte form of a peer address.
func UnpackPeer(b []byte) (netip.AddrPort, error) {
	if len(b) != PeerLength {
		return netip.AddrPort{}, errPeerLength
	}
	ip := netip.AddrFrom4([4]byte{b[0], b[1], b[2], b[3]})
	return netip.AddrPortFrom(ip, binary.BigEndian.Uint16(b[4:])), nil
}
