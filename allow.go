package bookends

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"

	"go4.org/netipx"
)

// AllowIPs returns a before handler that only lets requests through when the
// client address is in one of addrs. Each of addrs is a plain address
// ("10.0.0.7"), a prefix ("10.0.0.0/8") or a range ("10.0.0.1-10.0.0.9").
// Other clients get 403 Forbidden.
//
// The client address is taken from the connection (http.Request.RemoteAddr),
// never from headers that the client controls.
func AllowIPs(addrs ...string) (func(http.ResponseWriter, *http.Request) bool, error) {
	set, err := parseIPSet(addrs...)
	if err != nil {
		return nil, err
	}
	return func(w http.ResponseWriter, r *http.Request) bool {
		if addr, ok := clientAddr(r); ok && set.Contains(addr) {
			return true
		}
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return false
	}, nil
}

func parseIPSet(addrs ...string) (*netipx.IPSet, error) {
	var b netipx.IPSetBuilder
	for _, ip := range addrs {
		if addr, err := netip.ParseAddr(ip); err == nil {
			b.AddRange(netipx.IPRangeFrom(addr, addr))
			continue
		}
		if prefix, err := netip.ParsePrefix(ip); err == nil {
			b.AddRange(netipx.RangeOfPrefix(prefix))
			continue
		}
		ipRange, err := netipx.ParseIPRange(ip)
		if err != nil {
			return nil, fmt.Errorf("failed parsing IP address '%s': %w", ip, err)
		}
		b.AddRange(ipRange)
	}
	set, err := b.IPSet()
	if err != nil {
		return nil, fmt.Errorf("failed building IP set: %w", err)
	}
	return set, nil
}

func clientAddr(r *http.Request) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
