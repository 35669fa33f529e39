package gate

import (
	"fmt"
	"net/netip"
	"strings"
)

// IPAllowList matches client IPs against a configured set of literal
// addresses and CIDR ranges. An empty list allows every IP, preserving the
// default-open behavior expected by deployments without network restrictions.
type IPAllowList struct {
	addrs    []netip.Addr
	prefixes []netip.Prefix
}

// NewIPAllowList parses the configured entries. IPv4 and IPv6 literals and
// CIDR ranges are accepted. A malformed entry is a configuration error; the
// process must not serve traffic with a partially parsed allow-list.
func NewIPAllowList(entries []string) (*IPAllowList, error) {
	l := &IPAllowList{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid allow-list CIDR %q: %w", entry, err)
			}
			l.prefixes = append(l.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid allow-list address %q: %w", entry, err)
		}
		l.addrs = append(l.addrs, addr.Unmap())
	}
	return l, nil
}

// Empty reports whether no entries are configured.
func (l *IPAllowList) Empty() bool {
	return len(l.addrs) == 0 && len(l.prefixes) == 0
}

// Matches reports whether ip is admitted. An empty list admits everything.
// Unparseable input is denied when a list is configured.
func (l *IPAllowList) Matches(ip string) bool {
	if l.Empty() {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, a := range l.addrs {
		if addr == a {
			return true
		}
	}
	for _, p := range l.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
