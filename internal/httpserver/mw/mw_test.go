package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrSnakeDoc/apicatalog/internal/logger"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func TestMatchHost(t *testing.T) {
	tests := []struct {
		host    string
		pattern string
		want    bool
	}{
		{"catalog.example.com", "catalog.example.com", true},
		{"api.example.com", "*.example.com", true},
		{"a.b.example.com", "*.example.com", true},
		{"example.com", "*.example.com", false},
		{"evilexample.com", "*.example.com", false},
		{"other.com", "catalog.example.com", false},
	}
	for _, tt := range tests {
		if got := matchHost(tt.host, tt.pattern); got != tt.want {
			t.Errorf("matchHost(%q, %q) = %v, want %v", tt.host, tt.pattern, got, tt.want)
		}
	}
}

func TestEnforceHost(t *testing.T) {
	h := EnforceHost([]string{"Catalog.Example.com"}, logger.NewNop())(ok)

	tests := []struct {
		host string
		want int
	}{
		{"catalog.example.com", http.StatusOK},
		{"CATALOG.example.com:8443", http.StatusOK},
		{"example.com", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = tt.host
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("host %q: status = %d, want %d", tt.host, rec.Code, tt.want)
		}
	}
}

func TestAllowOnlyCIDRS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		trustProxy bool
		remote     string
		xff        string
		want       int
	}{
		{"empty list passes", nil, false, "203.0.113.9:1000", "", http.StatusOK},
		{"inside prefix", []string{"10.0.0.0/8"}, false, "10.1.2.3:1000", "", http.StatusOK},
		{"single address", []string{"192.168.1.10"}, false, "192.168.1.10:1000", "", http.StatusOK},
		{"outside prefix", []string{"10.0.0.0/8"}, false, "203.0.113.9:1000", "", http.StatusForbidden},
		{"forwarded ignored without trust", []string{"10.0.0.0/8"}, false, "203.0.113.9:1000", "10.0.0.1", http.StatusForbidden},
		{"forwarded honoured with trust", []string{"10.0.0.0/8"}, true, "203.0.113.9:1000", "10.0.0.1, 203.0.113.9", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AllowOnlyCIDRS(tt.allowed, tt.trustProxy, logger.NewNop())(ok)
			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRateLimitPerClient(t *testing.T) {
	h := RateLimit(RateLimitConfig{RPS: 0.01, Burst: 2})(ok)

	call := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/containers", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := call("10.0.0.1:1")
	if first.Code != http.StatusOK || first.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Fatalf("first: %d remaining=%s", first.Code, first.Header().Get("X-RateLimit-Remaining"))
	}
	if rec := call("10.0.0.1:2"); rec.Code != http.StatusOK {
		t.Fatalf("second: %d", rec.Code)
	}
	third := call("10.0.0.1:3")
	if third.Code != http.StatusTooManyRequests {
		t.Fatalf("third: %d, want 429", third.Code)
	}
	if third.Header().Get("Retry-After") == "" || third.Header().Get("X-RateLimit-Limit") != "2" {
		t.Errorf("headers = %v", third.Header())
	}

	if rec := call("10.0.0.2:1"); rec.Code != http.StatusOK {
		t.Errorf("other client: %d, want 200", rec.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(RateLimitConfig{})(ok)
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
}

func TestLimiterSweepsIdleClients(t *testing.T) {
	l := newLimiter(RateLimitConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute, SweepInterval: time.Second})
	now := time.Now()
	l.get("10.0.0.1", now)
	l.get("10.0.0.2", now.Add(2*time.Minute))

	if _, ok := l.clients["10.0.0.1"]; ok {
		t.Error("idle client should have been swept")
	}
	if len(l.clients) != 1 {
		t.Errorf("clients = %d, want 1", len(l.clients))
	}
}
