package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPFromForwardedHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "192.0.2.1:39812"

	if ip := clientIP(r); ip != "192.0.2.1" {
		t.Fatalf("expected remote addr host, got %q", ip)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if ip := clientIP(r); ip != "203.0.113.7" {
		t.Fatalf("expected first forwarded hop, got %q", ip)
	}
}
