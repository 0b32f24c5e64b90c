package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/norfolkpine/collab-gateway/internal/server/middleware"
)

func TestRequestLoggerEmitsCapturedMetadata(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var handlerCalled bool
	handler := middleware.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handlerCalled = true }),
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(logger),
	)

	req := httptest.NewRequest(http.MethodGet, "/collaboration/ws/?room=abc", nil)
	req.RemoteAddr = "192.0.2.7:52801"
	req.Header.Set("User-Agent", "editor/2.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !handlerCalled {
		t.Fatal("wrapped handler never ran")
	}
	line := buf.String()
	for _, want := range []string{
		"uri=\"/collaboration/ws/?room=abc\"",
		"ip=192.0.2.7",
		"userAgent=editor/2.1",
		"method=GET",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %s: %s", want, line)
		}
	}
}
