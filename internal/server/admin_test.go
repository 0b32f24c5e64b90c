package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norfolkpine/collab-gateway/internal/server"
	"github.com/norfolkpine/collab-gateway/pkg/config"
	"github.com/norfolkpine/collab-gateway/pkg/state"
)

const (
	testAPIKey = "test-admin-key"
	testRoom   = "2b2417b1-4699-46f3-94c2-92928b47a2f1"
)

func newTestApp() *server.App {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Address:     ":0",
			Mode:        "production",
			CORSOrigins: "http://localhost:3000",
			APIKeys:     testAPIKey + ",secondary-key",
		},
		Backend: config.BackendConfig{
			BaseURL:      "http://localhost:1",
			IdentityPath: "/me/",
			DocumentPath: "/documents/%s/",
			Timeout:      time.Second,
		},
		Transport: config.TransportConfig{
			ReadTimeout:      time.Minute,
			HandshakeTimeout: time.Second,
		},
	}
	return server.NewApp(newTestLogger(), context.Background(), cfg)
}

type fakeTransport struct {
	id uuid.UUID

	mu     sync.Mutex
	closed bool
}

func (f *fakeTransport) ID() uuid.UUID    { return f.id }
func (f *fakeTransport) Send(_ []byte)    {}
func (f *fakeTransport) SetReadOnly(bool) {}

func (f *fakeTransport) CloseWithStatus(_ websocket.StatusCode, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func attachFake(t *testing.T, app *server.App, room, identity string) *fakeTransport {
	t.Helper()
	tr := &fakeTransport{id: uuid.New()}
	_, err := app.Registry().Attach(&state.Connection{
		ID:        tr.id,
		Room:      room,
		Identity:  identity,
		Transport: tr,
	})
	require.NoError(t, err)
	return tr
}

func resetRequest(apiKey, room, user string) *http.Request {
	url := "/collaboration/reset-connections/"
	if room != "" {
		url += "?room=" + room
	}
	r := httptest.NewRequest(http.MethodPost, url, nil)
	if apiKey != "" {
		r.Header.Set("Authorization", apiKey)
	}
	if user != "" {
		r.Header.Set("x-user-id", user)
	}
	return r
}

func TestResetWholeRoom(t *testing.T) {
	app := newTestApp()
	tr1 := attachFake(t, app, testRoom, "u1")
	tr2 := attachFake(t, app, testRoom, "u1")
	tr3 := attachFake(t, app, testRoom, "u2")

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, resetRequest(testAPIKey, testRoom, ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message": "Connections reset"}`, rec.Body.String())
	assert.True(t, tr1.isClosed())
	assert.True(t, tr2.isClosed())
	assert.True(t, tr3.isClosed())
	assert.Equal(t, 0, app.Registry().ConnectionCount(testRoom))
}

func TestResetSingleUser(t *testing.T) {
	app := newTestApp()
	tr1 := attachFake(t, app, testRoom, "u1")
	tr2 := attachFake(t, app, testRoom, "u1")
	tr3 := attachFake(t, app, testRoom, "u2")

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, resetRequest(testAPIKey, testRoom, "u1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, tr1.isClosed())
	assert.True(t, tr2.isClosed())
	assert.False(t, tr3.isClosed(), "the other user's connection must stay open")
	assert.Equal(t, 1, app.Registry().ConnectionCount(testRoom))
}

func TestResetRequiresRoom(t *testing.T) {
	app := newTestApp()

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, resetRequest(testAPIKey, "", ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error": "Room name not provided"}`, rec.Body.String())
}

func TestResetRejectsInvalidAPIKey(t *testing.T) {
	app := newTestApp()
	tr := attachFake(t, app, testRoom, "u1")

	for name, key := range map[string]string{"missing": "", "wrong": "nope"} {
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, resetRequest(key, testRoom, ""))

		assert.Equal(t, http.StatusForbidden, rec.Code, name)
		assert.JSONEq(t, `{"error": "Forbidden: Invalid API Key"}`, rec.Body.String(), name)
	}
	assert.False(t, tr.isClosed(), "rejected requests must not close connections")
	assert.Equal(t, 1, app.Registry().ConnectionCount(testRoom))
}

func TestResetAcceptsSecondaryKey(t *testing.T) {
	app := newTestApp()
	attachFake(t, app, testRoom, "u1")

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, resetRequest("secondary-key", testRoom, ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, app.Registry().ConnectionCount(testRoom))
}

func TestResetRejectsNonPOST(t *testing.T) {
	app := newTestApp()

	r := httptest.NewRequest(http.MethodGet, "/collaboration/reset-connections/?room="+testRoom, nil)
	r.Header.Set("Authorization", testAPIKey)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, r)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPing(t *testing.T) {
	app := newTestApp()

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message": "pong"}`, rec.Body.String())
}
