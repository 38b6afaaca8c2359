package relay

import (
	"net/http"
	"net/url"
	"strings"
)

type originPolicy struct {
	origins map[string]bool
	hosts   map[string]bool
}

func newOriginPolicy(allowed []string) *originPolicy {
	p := &originPolicy{
		origins: make(map[string]bool),
		hosts:   make(map[string]bool),
	}
	for _, origin := range allowed {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		p.origins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			p.hosts[parsed.Host] = true
		}
	}
	return p
}

// allow accepts requests without an Origin (non-browser clients such as the
// recorder and the terminal surface), configured origins, and otherwise
// same-host or loopback origins.
func (p *originPolicy) allow(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(p.origins) > 0 {
		if p.origins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return p.hosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host
	if host == r.Host {
		return true
	}
	hostname := parsed.Hostname()
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}
