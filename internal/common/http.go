package common

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the caller address used for rate limit keys. The router
// runs chi's RealIP first, which already folds X-Forwarded-For and X-Real-IP
// into RemoteAddr, so only RemoteAddr is read here. IPv4-mapped IPv6
// addresses are unmapped so one client gets one key. Unparsable values are
// returned trimmed.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	raw := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	addr, err := netip.ParseAddr(strings.Trim(raw, "[]"))
	if err != nil {
		return raw
	}
	return addr.Unmap().String()
}
