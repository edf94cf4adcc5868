// Package harvest receives the information the crawler collects from the network.
package harvest

import (
	"net/netip"

	"github.com/cenkalti/dhtcrawler/internal/logger"
	"github.com/cenkalti/dhtcrawler/internal/nodeid"
)

// Harvester is notified about interesting messages seen by the node.
// Methods are called from the receive loop and must not block for long.
type Harvester interface {
	// GetPeersQuery is called when a remote node asks us for peers of an info hash.
	GetPeersQuery(infoHash nodeid.ID, from netip.AddrPort)
	// AnnouncePeerQuery is called when a remote node announces a peer for an info hash.
	AnnouncePeerQuery(infoHash nodeid.ID, peer netip.AddrPort)
	// PeerValues is called when a get_peers reply carries peer addresses.
	PeerValues(infoHash nodeid.ID, peers []netip.AddrPort)
	// TargetFound is called when a lookup reply returns the node that is being searched for.
	TargetFound(target nodeid.ID, addr netip.AddrPort)
}

// Log is a Harvester that writes everything it receives to a logger.
type Log struct {
	log logger.Logger
}

var _ Harvester = (*Log)(nil)

// NewLog returns a Harvester that logs at info level.
func NewLog() *Log {
	return &Log{log: logger.New("harvest")}
}

func (h *Log) GetPeersQuery(infoHash nodeid.ID, from netip.AddrPort) {
	h.log.Infof("get_peers %s from %s", infoHash, from)
}

func (h *Log) AnnouncePeerQuery(infoHash nodeid.ID, peer netip.AddrPort) {
	h.log.Infof("announce_peer %s peer %s", infoHash, peer)
}

func (h *Log) PeerValues(infoHash nodeid.ID, peers []netip.AddrPort) {
	h.log.Infof("values %s: %d peers", infoHash, len(peers))
}

func (h *Log) TargetFound(target nodeid.ID, addr netip.AddrPort) {
	h.log.Infof("found target %s at %s", target, addr)
}

// Multi fans out calls to several Harvesters in order.
type Multi []Harvester

var _ Harvester = Multi(nil)

func (m Multi) GetPeersQuery(infoHash nodeid.ID, from netip.AddrPort) {
	for _, h := range m {
		h.GetPeersQuery(infoHash, from)
	}
}

func (m Multi) AnnouncePeerQuery(infoHash nodeid.ID, peer netip.AddrPort) {
	for _, h := range m {
		h.AnnouncePeerQuery(infoHash, peer)
	}
}

func (m Multi) PeerValues(infoHash nodeid.ID, peers []netip.AddrPort) {
	for _, h := range m {
		h.PeerValues(infoHash, peers)
	}
}

func (m Multi) TargetFound(target nodeid.ID, addr netip.AddrPort) {
	for _, h := range m {
		h.TargetFound(target, addr)
	}
}
