// Package origin normalizes browser Origin headers and decides whether a
// signaling WebSocket upgrade may proceed.
package origin

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Special allow-list entries.
const (
	// Any admits every origin, including requests without an Origin header.
	Any = "*"
	// SameHost admits origins whose host[:port] matches the request Host.
	SameHost = "self"
)

// NormalizeHeader validates and normalizes a browser Origin header.
//
// It returns the normalized origin (scheme://host[:port], default ports
// dropped) and the host[:port] portion for same-host comparisons. The opaque
// origin "null" is returned as-is with an empty host.
func NormalizeHeader(originHeader string) (normalizedOrigin string, host string, ok bool) {
	trimmed := strings.TrimSpace(originHeader)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" || u.ForceQuery {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = canonicalHost(scheme, u.Host)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// Policy is a parsed allow-list. The zero value admits every origin, which is
// what browser clients loaded from arbitrary hosts need.
type Policy struct {
	allowed []string
}

// NewPolicy builds a Policy from entries that are either Any, SameHost or
// origins already normalized by NormalizeHeader.
func NewPolicy(allowed []string) Policy {
	return Policy{allowed: append([]string(nil), allowed...)}
}

// Allows reports whether a request carrying originHeader for requestHost may
// proceed.
func (p Policy) Allows(originHeader, requestHost string) bool {
	if len(p.allowed) == 0 {
		return true
	}
	if strings.TrimSpace(originHeader) == "" {
		// Non-browser clients do not send Origin; only an explicit wildcard
		// admits them once an allow-list is configured.
		return p.has(Any)
	}

	normalized, originHost, ok := NormalizeHeader(originHeader)
	if !ok {
		return false
	}
	for _, entry := range p.allowed {
		switch entry {
		case Any:
			return true
		case SameHost:
			if sameHost(normalized, originHost, requestHost) {
				return true
			}
		default:
			if entry == normalized {
				return true
			}
		}
	}
	return false
}

// CheckRequest adapts Allows to websocket.Upgrader.CheckOrigin.
func (p Policy) CheckRequest(r *http.Request) bool {
	if len(r.Header.Values("Origin")) > 1 {
		return false
	}
	return p.Allows(r.Header.Get("Origin"), r.Host)
}

func (p Policy) has(entry string) bool {
	for _, e := range p.allowed {
		if e == entry {
			return true
		}
	}
	return false
}

// sameHost compares host[:port] without the scheme: the relay may sit behind
// a TLS-terminating proxy and see plain HTTP while the page is HTTPS.
func sameHost(normalizedOrigin, originHost, requestHost string) bool {
	scheme, _, ok := strings.Cut(normalizedOrigin, "://")
	if !ok {
		return false
	}
	reqHost, ok := canonicalHost(scheme, strings.TrimSpace(requestHost))
	if !ok {
		return false
	}
	return originHost == reqHost
}

// canonicalHost lower-cases the hostname, validates the port and drops it when
// it is the scheme default.
func canonicalHost(scheme, authority string) (string, bool) {
	rawHostname, rawPort, ok := splitHostPort(authority)
	if !ok {
		return "", false
	}
	hostname := strings.ToLower(rawHostname)
	if hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

// splitHostPort splits an authority host[:port]. IPv6 literals come back
// without brackets; the port is not validated.
func splitHostPort(rawHost string) (hostname, port string, ok bool) {
	if rawHost == "" {
		return "", "", false
	}

	if rest, found := strings.CutPrefix(rawHost, "["); found {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", "", false
		}
		hostname, rest = rest[:end], rest[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		port, found = strings.CutPrefix(rest, ":")
		if !found || port == "" {
			return "", "", false
		}
		return hostname, port, true
	}

	switch strings.Count(rawHost, ":") {
	case 0:
		return rawHost, "", true
	case 1:
		hostname, port, _ = strings.Cut(rawHost, ":")
		if hostname == "" || port == "" {
			return "", "", false
		}
		return hostname, port, true
	default:
		// Unbracketed IPv6 literals are not valid in an authority.
		return "", "", false
	}
}
