// Package resolver resolves "host:port" strings to IPv4 UDP addresses.
package resolver

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"time"
)

var (
	// ErrNotIPv4Address indicates that the host has no IPv4 address.
	ErrNotIPv4Address = errors.New("not ipv4 address")
	// ErrInvalidPort indicates that the port number in the address is invalid.
	ErrInvalidPort = errors.New("invalid port number")
)

// Resolve `hostport` to IPv4 addresses. IP literals are returned without a lookup.
func Resolve(ctx context.Context, hostport string, timeout time.Duration) ([]netip.AddrPort, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, ErrInvalidPort
	}
	var ips []netip.Addr
	if ip, err := netip.ParseAddr(host); err == nil {
		ips = []netip.Addr{ip}
	} else {
		ips, err = ResolveIPv4(ctx, timeout, host)
		if err != nil {
			return nil, err
		}
	}
	addrs := make([]netip.AddrPort, 0, len(ips))
	for _, ip := range ips {
		ip = ip.Unmap()
		if !ip.Is4() {
			continue
		}
		addrs = append(addrs, netip.AddrPortFrom(ip, uint16(port)))
	}
	if len(addrs) == 0 {
		return nil, ErrNotIPv4Address
	}
	return addrs, nil
}

// ResolveIPv4 resolves `host` to its IPv4 addresses.
func ResolveIPv4(ctx context.Context, timeout time.Duration, host string) ([]netip.Addr, error) {
	var cancel func()
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, ErrNotIPv4Address
	}
	return addrs, nil
}
