package shared

import "net"

// NormalizeIP collapses IPv6-mapped IPv4 addresses (::ffff:1.2.3.4) to
// their IPv4 form so both notations address the same rate limit counter.
func NormalizeIP(addr string) string {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return host
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}
