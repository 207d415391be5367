package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"direct", "203.0.113.5:4000", "", "", "203.0.113.5"},
		{"untrusted forwarder ignored", "203.0.113.5:4000", "198.51.100.1", "", "203.0.113.5"},
		{"trusted proxy forwards", "10.0.0.2:4000", "198.51.100.1, 10.0.0.2", "", "198.51.100.1"},
		{"trusted proxy real ip", "127.0.0.1:4000", "", "198.51.100.7", "198.51.100.7"},
		{"garbage header", "127.0.0.1:4000", "not-an-ip", "", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := extractClientIP(req); got != tt.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	tests := []struct {
		name string
		url  string
		ua   string
		want bool
	}{
		{"wallet address", "/api/passport/0x00000000000000000000000000000000000000ab", "", false},
		{"path traversal", "/api/uploads/../../etc/passwd", "", true},
		{"dotenv probe", "/.env", "", true},
		{"scanner agent", "/healthz", "sqlmap/1.7", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.URL.Path = tt.url
			req.Header.Set("User-Agent", tt.ua)
			var m securityMetrics
			if got := detectSuspiciousRequest(req, &m); got != tt.want {
				t.Errorf("detectSuspiciousRequest(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := bearerToken(req); ok {
		t.Fatal("expected no token")
	}
	req.Header.Set("Authorization", "bearer abc")
	if tok, ok := bearerToken(req); !ok || tok != "abc" {
		t.Fatalf("bearerToken() = %q, %v", tok, ok)
	}
	req.Header.Set("Authorization", "Basic abc")
	if _, ok := bearerToken(req); ok {
		t.Fatal("basic auth is not a bearer token")
	}
}
