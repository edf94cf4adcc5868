package dht

import (
	"math/rand"
	"net/netip"
	"sync"
)

// bootstrapNodes is the list of well known nodes used to enter the network.
type bootstrapNodes struct {
	m          sync.RWMutex
	addrs      []netip.AddrPort
	seen       map[netip.AddrPort]struct{}
	unresolved []string
}

// newBootstrapNodes adds IP literals immediately and keeps host names for the resolver.
func newBootstrapNodes(hostports []string) *bootstrapNodes {
	b := &bootstrapNodes{seen: make(map[netip.AddrPort]struct{})}
	for _, s := range hostports {
		addr, err := netip.ParseAddrPort(s)
		if err == nil && addr.Addr().Unmap().Is4() {
			b.Add(netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port()))
			continue
		}
		b.unresolved = append(b.unresolved, s)
	}
	return b
}

func (b *bootstrapNodes) Add(addr netip.AddrPort) {
	b.m.Lock()
	defer b.m.Unlock()
	if _, ok := b.seen[addr]; ok {
		return
	}
	b.seen[addr] = struct{}{}
	b.addrs = append(b.addrs, addr)
}

func (b *bootstrapNodes) Random() (netip.AddrPort, bool) {
	b.m.RLock()
	defer b.m.RUnlock()
	if len(b.addrs) == 0 {
		return netip.AddrPort{}, false
	}
	return b.addrs[rand.Intn(len(b.addrs))], true // nolint: gosec
}

func (b *bootstrapNodes) Len() int {
	b.m.RLock()
	defer b.m.RUnlock()
	return len(b.addrs)
}

func (b *bootstrapNodes) Unresolved() []string {
	return b.unresolved
}
