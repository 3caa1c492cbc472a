package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/templui/fileshare/internal/ctxkeys"
)

// RealIP resolves the client address once per request and stores it in the
// context for rate limiting and logging. Forwarding headers are only read
// when the direct peer is one of the trusted proxies; otherwise anyone could
// pick their own rate limit bucket.
func RealIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trusted)
			next.ServeHTTP(w, r.WithContext(ctxkeys.WithClientIP(r.Context(), ip)))
		})
	}
}

func resolveClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer, ok := parseAddr(remoteHost(r.RemoteAddr))
	if !ok {
		return remoteHost(r.RemoteAddr)
	}
	if !isTrusted(peer, trusted) {
		return peer.String()
	}

	// Walk X-Forwarded-For from the nearest hop and stop at the first
	// address our own proxies did not add.
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, ok := parseAddr(hops[i])
			if !ok {
				break
			}
			if !isTrusted(addr, trusted) {
				return addr.String()
			}
		}
	}

	if addr, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return addr.String()
	}

	return peer.String()
}

// getClientIP returns the address RealIP resolved, or the socket peer when
// RealIP is not installed.
func getClientIP(r *http.Request) string {
	if ip := ctxkeys.ClientIP(r.Context()); ip != "" {
		return ip
	}
	return remoteHost(r.RemoteAddr)
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func parseAddr(raw string) (netip.Addr, bool) {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(ip)
	return addr.Unmap(), ok
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
