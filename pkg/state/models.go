package state

import (
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Transport is the subset of the websocket connection the registry drives.
// *transport.Connection satisfies it; tests substitute fakes.
type Transport interface {
	ID() uuid.UUID
	Send(message []byte)
	SetReadOnly(readOnly bool)
	CloseWithStatus(status websocket.StatusCode, reason string)
}

// Connection is the registry's view of one live, fully-authorized websocket.
// Identity and ReadOnly are fixed during the handshake before the connection
// is attached; they never change for the connection's lifetime.
type Connection struct {
	ID         uuid.UUID
	Room       string
	Identity   string
	ReadOnly   bool
	RemoteAddr string
	Transport  Transport
	CreatedAt  time.Time
}

// Room pairs a name with its live connection count; returned by inspection
// helpers only, the registry owns the real thing.
type Room struct {
	Name        string
	Connections int
}
