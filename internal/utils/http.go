package utils

import (
	"net"
	"net/http"
	"strings"
)

// ClientKey identifies the caller of a request for per-client limits: the
// X-API-Key header when present, otherwise the first X-Forwarded-For hop,
// otherwise the remote address without its port.
func ClientKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return "key:" + key
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return "ip:" + first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
