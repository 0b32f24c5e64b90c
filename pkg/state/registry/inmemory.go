package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/norfolkpine/collab-gateway/pkg/crdt"
	"github.com/norfolkpine/collab-gateway/pkg/state"
)

// BroadcastEncoder wraps a raw document delta into the wire frame sent to
// peers. Injected so the registry stays protocol-agnostic.
type BroadcastEncoder func(update crdt.Update) []byte

// InMemoryRegistry keeps all rooms in process memory. Room membership and
// document state live and die together: the first attach creates them, the
// last detach discards them.
type InMemoryRegistry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	engine crdt.Engine
	encode BroadcastEncoder
	logger *slog.Logger
}

// room bundles one document's state with its attached connections. Its mutex
// is the per-room serialization path; the registry lock is only taken to
// create or tear down rooms.
type room struct {
	mu    sync.Mutex
	name  string
	doc   crdt.State
	conns map[uuid.UUID]*state.Connection
}

func NewInMemoryRegistry(logger *slog.Logger, engine crdt.Engine, encode BroadcastEncoder) *InMemoryRegistry {
	return &InMemoryRegistry{
		rooms:  make(map[string]*room),
		engine: engine,
		encode: encode,
		logger: logger.With(slog.String("component", "session_registry")),
	}
}

// compile-time check to ensure InMemoryRegistry implements Registry.
var _ state.Registry = (*InMemoryRegistry)(nil)

func (r *InMemoryRegistry) Attach(conn *state.Connection) ([]crdt.Update, error) {
	r.mu.Lock()
	rm, exists := r.rooms[conn.Room]
	if !exists {
		rm = &room{
			name:  conn.Room,
			doc:   r.engine.NewState(),
			conns: make(map[uuid.UUID]*state.Connection),
		}
		r.rooms[conn.Room] = rm
		r.logger.Debug("Room created", slog.String("room", conn.Room))
	}
	rm.mu.Lock()
	r.mu.Unlock()
	defer rm.mu.Unlock()

	if _, dup := rm.conns[conn.ID]; dup {
		return nil, state.ErrAlreadyAttached
	}
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = time.Now()
	}
	rm.conns[conn.ID] = conn

	r.logger.Debug("Connection attached",
		slog.String("room", conn.Room),
		slog.String("connID", conn.ID.String()),
		slog.String("identity", conn.Identity),
	)
	return rm.doc.Snapshot(), nil
}

func (r *InMemoryRegistry) Detach(roomName string, connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomName]
	if !ok {
		return
	}
	rm.mu.Lock()
	delete(rm.conns, connID)
	empty := len(rm.conns) == 0
	rm.mu.Unlock()

	if empty {
		delete(r.rooms, roomName)
		r.logger.Debug("Removed empty room", slog.String("room", roomName))
	}
	r.logger.Debug("Connection detached", slog.String("room", roomName), slog.String("connID", connID.String()))
}

func (r *InMemoryRegistry) Merge(roomName string, from uuid.UUID, update crdt.Update) error {
	r.mu.RLock()
	rm, ok := r.rooms[roomName]
	r.mu.RUnlock()
	if !ok {
		return state.ErrUnknownRoom
	}

	rm.mu.Lock()
	sender, ok := rm.conns[from]
	if !ok {
		rm.mu.Unlock()
		return state.ErrUnknownConn
	}
	if sender.ReadOnly {
		rm.mu.Unlock()
		return state.ErrReadOnly
	}
	if applied := rm.doc.Merge(update); !applied {
		// Duplicate delivery; converged already, nothing to fan out.
		rm.mu.Unlock()
		return nil
	}
	peers := make([]state.Transport, 0, len(rm.conns)-1)
	for id, c := range rm.conns {
		if id != from {
			peers = append(peers, c.Transport)
		}
	}
	rm.mu.Unlock()

	frame := r.encode(update)
	for _, p := range peers {
		p.Send(frame)
	}
	return nil
}

func (r *InMemoryRegistry) CloseRoom(roomName string) int {
	return r.closeMatching(roomName, func(*state.Connection) bool { return true })
}

func (r *InMemoryRegistry) CloseUser(roomName, user string) int {
	return r.closeMatching(roomName, func(c *state.Connection) bool { return c.Identity == user })
}

// closeMatching removes matching connections under the room's lock, then
// issues the transport closes outside it. Closing is fire-and-forget; the
// transports' own close handlers find the detach already done.
func (r *InMemoryRegistry) closeMatching(roomName string, match func(*state.Connection) bool) int {
	r.mu.Lock()
	rm, ok := r.rooms[roomName]
	if !ok {
		r.mu.Unlock()
		return 0
	}
	rm.mu.Lock()
	victims := make([]*state.Connection, 0, len(rm.conns))
	for id, c := range rm.conns {
		if match(c) {
			victims = append(victims, c)
			delete(rm.conns, id)
		}
	}
	empty := len(rm.conns) == 0
	rm.mu.Unlock()
	if empty {
		delete(r.rooms, roomName)
		r.logger.Debug("Removed empty room after reset", slog.String("room", roomName))
	}
	r.mu.Unlock()

	for _, c := range victims {
		r.logger.Info("Force-closing connection",
			slog.String("room", roomName),
			slog.String("connID", c.ID.String()),
			slog.String("identity", c.Identity),
		)
		c.Transport.CloseWithStatus(websocket.StatusNormalClosure, "Connection reset by administrator")
	}
	return len(victims)
}

func (r *InMemoryRegistry) ConnectionCount(roomName string) int {
	r.mu.RLock()
	rm, ok := r.rooms[roomName]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.conns)
}

func (r *InMemoryRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *InMemoryRegistry) Rooms() []state.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]state.Room, 0, len(r.rooms))
	for name, rm := range r.rooms {
		rm.mu.Lock()
		rooms = append(rooms, state.Room{Name: name, Connections: len(rm.conns)})
		rm.mu.Unlock()
	}
	return rooms
}
