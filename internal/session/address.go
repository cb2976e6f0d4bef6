package session

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// ParseAddr resolves a host[:port] string to a concrete endpoint. A
// missing port falls back to defaultPort, localhost is pinned to
// 127.0.0.1, and hostnames resolve with an IPv4 preference. An
// explicit port of 0 is legal: listeners use it to bind an ephemeral
// port. Invalid input is reported as an error status, never a panic.
func ParseAddr(raw string, defaultPort uint16) (netip.AddrPort, error) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return netip.AddrPort{}, fmt.Errorf("%w: empty", ErrInvalidAddr)
	}

	host, portRaw, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		portRaw = ""
	}
	host = strings.TrimSpace(host)
	if host == "" || strings.EqualFold(host, "localhost") {
		host = "127.0.0.1"
	}

	port := defaultPort
	if portRaw != "" {
		p, err := strconv.ParseUint(strings.TrimSpace(portRaw), 10, 16)
		if err != nil {
			return netip.AddrPort{}, fmt.Errorf("%w: port %q", ErrInvalidAddr, portRaw)
		}
		port = uint16(p)
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		return netip.AddrPortFrom(ip.Unmap(), port), nil
	}

	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return netip.AddrPort{}, fmt.Errorf("%w: resolve %q", ErrInvalidAddr, host)
	}
	for i := range ips {
		if v4 := ips[i].To4(); v4 != nil {
			ip, ok := netip.AddrFromSlice(v4)
			if !ok {
				continue
			}
			return netip.AddrPortFrom(ip.Unmap(), port), nil
		}
	}
	ip, ok := netip.AddrFromSlice(ips[0])
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("%w: resolve %q", ErrInvalidAddr, host)
	}
	return netip.AddrPortFrom(ip.Unmap(), port), nil
}
