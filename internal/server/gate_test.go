package server_test

import (
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/norfolkpine/collab-gateway/internal/server"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestGate() *server.Gate {
	return server.NewGate(newTestLogger(), []string{"https://app.example.com", "http://localhost:3000"})
}

func TestGateRejectsMissingOrigin(t *testing.T) {
	r := httptest.NewRequest("GET", "/collaboration/ws/?room=x", nil)
	r.Header.Set("Cookie", "sessionid=abc")

	v := newTestGate().Check(r)
	if v == nil {
		t.Fatal("expected a violation for missing Origin")
	}
	if v.Code != server.GateCloseCode {
		t.Errorf("expected close code 4001, got %d", v.Code)
	}
	if v.Reason != "Origin not allowed" {
		t.Errorf("unexpected reason %q", v.Reason)
	}
}

func TestGateRejectsForeignOrigin(t *testing.T) {
	r := httptest.NewRequest("GET", "/collaboration/ws/?room=x", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	r.Header.Set("Cookie", "sessionid=abc")

	if v := newTestGate().Check(r); v == nil || v.Reason != "Origin not allowed" {
		t.Fatalf("expected origin rejection, got %+v", v)
	}
}

func TestGateOriginMatchIsCaseSensitive(t *testing.T) {
	r := httptest.NewRequest("GET", "/collaboration/ws/?room=x", nil)
	r.Header.Set("Origin", "https://APP.example.com")
	r.Header.Set("Cookie", "sessionid=abc")

	if v := newTestGate().Check(r); v == nil {
		t.Fatal("origin comparison must be exact and case-sensitive")
	}
}

func TestGateRejectsMissingCookie(t *testing.T) {
	r := httptest.NewRequest("GET", "/collaboration/ws/?room=x", nil)
	r.Header.Set("Origin", "https://app.example.com")

	v := newTestGate().Check(r)
	if v == nil {
		t.Fatal("expected a violation for missing Cookie")
	}
	if v.Code != server.GateCloseCode {
		t.Errorf("expected close code 4001, got %d", v.Code)
	}
	if v.Reason != "No cookies" {
		t.Errorf("unexpected reason %q", v.Reason)
	}
}

func TestGateAllowsListedOriginWithCookie(t *testing.T) {
	r := httptest.NewRequest("GET", "/collaboration/ws/?room=x", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	r.Header.Set("Cookie", "sessionid=abc")

	if v := newTestGate().Check(r); v != nil {
		t.Fatalf("expected upgrade to proceed, got violation %+v", v)
	}
}
