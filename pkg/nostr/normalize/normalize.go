package normalize

import (
	"net/url"
	"strings"
)

// URL normalizes a relay url: http(s) schemes become ws(s), a missing scheme
// is assumed to be wss, scheme and host are lower cased and a trailing path
// slash is dropped. It returns "" for input that does not parse.
func URL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	lower := strings.ToLower(u)
	// if prefix isn't specified as http/s or websocket, assume secure
	// websocket and add wss prefix (this is the most common).
	if !(strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "ws://") ||
		strings.HasPrefix(lower, "wss://")) {
		u = "wss://" + u
	}
	var e error
	var p *url.URL
	if p, e = url.Parse(u); e != nil || p.Host == "" {
		return ""
	}
	p.Scheme = strings.ToLower(p.Scheme)
	p.Host = strings.ToLower(p.Host)
	// convert http/s to ws/s
	switch p.Scheme {
	case "https":
		p.Scheme = "wss"
	case "http":
		p.Scheme = "ws"
	}
	// remove trailing path slash
	p.Path = strings.TrimRight(p.Path, "/")
	p.RawPath = ""
	return p.String()
}
