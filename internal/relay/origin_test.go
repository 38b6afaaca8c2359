package relay

import (
	"net/http/httptest"
	"testing"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		host    string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "relay:8080", "", true},
		{"same host", nil, "relay:8080", "http://relay:8080", true},
		{"localhost", nil, "relay:8080", "http://localhost:5173", true},
		{"loopback v4", nil, "relay:8080", "http://127.0.0.1:3000", true},
		{"loopback v6", nil, "relay:8080", "http://[::1]:3000", true},
		{"foreign", nil, "relay:8080", "https://evil.example", false},
		{"garbage", nil, "relay:8080", "::::", false},
		{"configured exact", []string{"https://viz.example"}, "relay:8080", "https://viz.example", true},
		{"configured host other scheme", []string{"https://viz.example"}, "relay:8080", "http://viz.example", true},
		{"configured excludes localhost", []string{"https://viz.example"}, "relay:8080", "http://localhost:5173", false},
		{"blank entries ignored", []string{"  ", ""}, "relay:8080", "https://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://"+tt.host+"/surface", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := newOriginPolicy(tt.allowed).allow(req); got != tt.want {
				t.Errorf("allow(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestSetAllowedOriginsTakesEffect(t *testing.T) {
	r := newTestRelay(t)
	req := httptest.NewRequest("GET", "http://relay/surface", nil)
	req.Header.Set("Origin", "http://localhost:5173")

	if !r.srv.origins.Load().allow(req) {
		t.Fatal("localhost should be allowed by default")
	}
	r.srv.SetAllowedOrigins([]string{"https://viz.example"})
	if r.srv.origins.Load().allow(req) {
		t.Fatal("localhost should be rejected once origins are configured")
	}
}
