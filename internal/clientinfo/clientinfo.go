package clientinfo

import (
	"net/http"
	"strings"
)

// Info captures who filed a request: resolved client IP, coarse geolocation
// from the edge proxy, and browser identity. Geo fields are best-effort and
// stay "Unknown" when the app is not fronted by Cloudflare.
type Info struct {
	IP        string `json:"ip"`
	Country   string `json:"country"`
	City      string `json:"city"`
	UserAgent string `json:"user_agent"`
	Referer   string `json:"referer"`
}

const unknown = "Unknown"

// FromRequest resolves reporter info from proxy headers.
// Header precedence for the IP: CF-Connecting-IP, then the first hop of
// X-Forwarded-For, then X-Real-IP, then the socket address.
func FromRequest(r *http.Request) Info {
	info := Info{
		IP:        realIP(r),
		Country:   headerOr(r, "CF-IPCountry", unknown),
		City:      headerOr(r, "CF-IPCity", unknown),
		UserAgent: headerOr(r, "User-Agent", unknown),
		Referer:   headerOr(r, "Referer", "Direct"),
	}
	return info
}

func realIP(r *http.Request) string {
	if v := r.Header.Get("CF-Connecting-IP"); v != "" {
		return v
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		return strings.TrimSpace(strings.SplitN(v, ",", 2)[0])
	}
	if v := r.Header.Get("X-Real-IP"); v != "" {
		return v
	}
	// RemoteAddr is host:port for TCP connections.
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 && !strings.Contains(addr[i:], "]") {
		return addr[:i]
	}
	return addr
}

func headerOr(r *http.Request, key, fallback string) string {
	if v := r.Header.Get(key); v != "" {
		return v
	}
	return fallback
}
