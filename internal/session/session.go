// Package session ties one websocket to one room: it runs the connect-time
// authorization handshake and routes established traffic into the registry.
package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/norfolkpine/collab-gateway/internal/metrics"
	"github.com/norfolkpine/collab-gateway/pkg/protocol"
	"github.com/norfolkpine/collab-gateway/pkg/state"
	"github.com/norfolkpine/collab-gateway/pkg/transport"
)

// Conn is the transport surface the session drives. *transport.Connection
// implements it.
type Conn interface {
	ID() uuid.UUID
	Send(message []byte)
	SetReadOnly(readOnly bool)
	CloseWithStatus(status websocket.StatusCode, reason string)
	Done() <-chan struct{}
	SetOnMessageHandler(transport.MessageHandler)
	SetOnCloseHandler(transport.OnCloseHandler)
	SetOnDiscardHandler(func())
}

// Session is the per-connection protocol state machine. Messages arrive from
// the transport's read pump one at a time; the session moves from
// awaiting-handshake to established exactly once.
type Session struct {
	logger    *slog.Logger
	registry  state.Registry
	handshake *Handshake
	conn      Conn
	req       Request

	handshakeTimeout time.Duration

	// established flips on just before the registry attach. The close
	// handler can fire from another goroutine (admin reset), hence the
	// atomic.
	established atomic.Bool
	room        string
	identity    string
}

func New(logger *slog.Logger, registry state.Registry, handshake *Handshake, conn Conn, req Request, handshakeTimeout time.Duration) *Session {
	s := &Session{
		logger:           logger.With(slog.String("connID", conn.ID().String())),
		registry:         registry,
		handshake:        handshake,
		conn:             conn,
		req:              req,
		handshakeTimeout: handshakeTimeout,
	}
	conn.SetOnMessageHandler(s.handleMessage)
	conn.SetOnCloseHandler(s.handleClose)
	conn.SetOnDiscardHandler(func() { metrics.UpdatesDiscarded.Inc() })
	metrics.ActiveConnections.Inc()
	return s
}

func (s *Session) handleMessage(ctx context.Context, _ uuid.UUID, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		s.logger.Warn("Dropping malformed frame", slog.Any("error", err))
		if !s.established.Load() {
			s.reject("malformed_frame")
		}
		return
	}

	if !s.established.Load() {
		if msg.Type != protocol.TypeHandshake {
			s.logger.Warn("First frame was not a handshake", slog.String("type", msg.Type))
			s.reject("no_handshake")
			return
		}
		s.runHandshake(ctx, msg.Doc)
		return
	}

	switch msg.Type {
	case protocol.TypeUpdate:
		s.mergeUpdate(msg)
	case protocol.TypeHandshake:
		s.logger.Warn("Duplicate handshake frame on established connection")
	default:
		s.logger.Warn("Unknown frame type", slog.String("type", msg.Type))
	}
}

// runHandshake executes the authorization pipeline and, on success, attaches
// the connection to its room. Any failure closes the socket with a generic
// reason; the cause stays in server logs.
func (s *Session) runHandshake(ctx context.Context, docName string) {
	hsCtx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	defer cancel()

	s.req.DocName = docName
	grant, err := s.handshake.Authorize(hsCtx, &s.req)
	// Handshake headers are needed exactly once.
	s.req.Headers = nil
	if err != nil {
		s.logger.Info("Handshake rejected",
			slog.String("reason", Reason(err)),
			slog.String("room", s.req.RoomParam),
			slog.String("remoteAddr", s.req.RemoteAddr),
		)
		s.reject(Reason(err))
		return
	}

	s.conn.SetReadOnly(grant.ReadOnly)
	stateConn := &state.Connection{
		ID:         s.conn.ID(),
		Room:       docName,
		Identity:   grant.Identity,
		ReadOnly:   grant.ReadOnly,
		RemoteAddr: s.req.RemoteAddr,
		Transport:  s.conn,
	}
	// Flip established before the registry insert: if the transport dies
	// while Attach is in flight, the close handler must not skip the detach.
	// Detach of a connection the registry never saw is a no-op.
	s.room = docName
	s.identity = grant.Identity
	s.established.Store(true)

	snapshot, err := s.registry.Attach(stateConn)
	if err != nil {
		s.established.Store(false)
		s.logger.Error("Failed to attach authorized connection", slog.Any("error", err))
		s.reject("attach_failed")
		return
	}
	metrics.ActiveRooms.Set(float64(s.registry.RoomCount()))

	// The close handler may have run before Attach inserted the connection.
	// Re-check and undo so a socket dropped mid-handshake cannot leave a
	// phantom member behind.
	select {
	case <-s.conn.Done():
		s.registry.Detach(s.room, s.conn.ID())
		metrics.ActiveRooms.Set(float64(s.registry.RoomCount()))
		return
	default:
	}

	s.conn.Send(protocol.EncodeHandshakeAck())
	updates := make([][]byte, len(snapshot))
	for i, u := range snapshot {
		updates[i] = u
	}
	s.conn.Send(protocol.EncodeSync(updates))

	s.logger.Info("Connection established",
		slog.String("room", s.room),
		slog.String("identity", s.identity),
		slog.Bool("readOnly", grant.ReadOnly),
		slog.String("remoteAddr", s.req.RemoteAddr),
	)
}

func (s *Session) mergeUpdate(msg *protocol.Message) {
	payload, err := msg.UpdatePayload()
	if err != nil {
		s.logger.Warn("Dropping update with bad payload encoding")
		return
	}
	if err := s.registry.Merge(s.room, s.conn.ID(), payload); err != nil {
		// Read-only writes are already discarded at the transport layer;
		// hitting this path means a room raced its own teardown.
		s.logger.Warn("Update not merged",
			slog.String("room", s.room),
			slog.Any("error", err),
		)
		return
	}
	metrics.UpdatesMerged.Inc()
}

func (s *Session) reject(reason string) {
	metrics.HandshakeFailures.WithLabelValues(reason).Inc()
	s.conn.CloseWithStatus(websocket.StatusPolicyViolation, "handshake failed")
}

func (s *Session) handleClose(connID uuid.UUID, _ error) {
	metrics.ActiveConnections.Dec()
	if s.established.Load() {
		s.registry.Detach(s.room, connID)
		metrics.ActiveRooms.Set(float64(s.registry.RoomCount()))
		s.logger.Info("Connection detached",
			slog.String("room", s.room),
			slog.String("identity", s.identity),
		)
	}
}
