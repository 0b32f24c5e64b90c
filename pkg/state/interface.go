package state

import (
	"errors"

	"github.com/google/uuid"
	"github.com/norfolkpine/collab-gateway/pkg/crdt"
)

var (
	ErrAlreadyAttached = errors.New("connection is already attached to a room")
	ErrUnknownRoom     = errors.New("room not found")
	ErrUnknownConn     = errors.New("connection not found in room")
	ErrReadOnly        = errors.New("read-only connection may not submit updates")
)

// Registry owns every room's shared document state and its set of live
// connections. All mutation of one room (attach, detach, merge, admin reset)
// goes through a single serialization path scoped to that room; unrelated
// rooms never contend.
type Registry interface {
	// Attach adds a fully-authorized connection to its declared room,
	// creating the room on first attach. It returns a snapshot of the
	// room's current document state so the caller can catch the new
	// connection up.
	Attach(conn *Connection) ([]crdt.Update, error)

	// Detach removes a connection from its room. When the last connection
	// leaves, the room and its in-memory document state are discarded.
	// Detaching an unknown connection is a no-op.
	Detach(room string, connID uuid.UUID)

	// Merge folds an update from the given connection into the room's
	// document and broadcasts the delta to every other attached connection.
	// Updates from read-only connections are rejected with ErrReadOnly.
	// Re-merging an already-seen update is a no-op and is not rebroadcast.
	Merge(room string, from uuid.UUID, update crdt.Update) error

	// CloseRoom force-closes every connection attached to the room and
	// reports how many were closed.
	CloseRoom(room string) int

	// CloseUser force-closes the room's connections whose identity equals
	// user, leaving the rest untouched, and reports how many were closed.
	CloseUser(room, user string) int

	// ConnectionCount reports the number of live connections in a room;
	// zero for rooms that do not exist.
	ConnectionCount(room string) int

	// RoomCount reports the number of live rooms.
	RoomCount() int

	// Rooms lists live rooms for inspection.
	Rooms() []Room
}
